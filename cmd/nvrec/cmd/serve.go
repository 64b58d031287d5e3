/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssargent/nvrec/pkg/api"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve record status and wear metrics over HTTP",
		Long: `Start the status server. It exposes Prometheus metrics on /metrics and
the record and slot state under /api/v1.

Patching and rolling back over HTTP is enabled only when --api-key is set.

Examples:
  nvrec serve
  nvrec serve --listen :9464 --api-key=mysecretkey`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	serveCmd.Flags().String("listen", "", "Address to listen on (default from config)")
	serveCmd.Flags().String("api-key", "", "API key enabling the mutating routes")
	serveCmd.Flags().StringSlice("cors-origin", nil, "Origins allowed to read status from a browser")
	return serveCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	manager, err := managerFrom(cmd)
	if err != nil {
		return err
	}
	if err := readRecord(cmd, manager); err != nil {
		return err
	}

	listen, _ := cmd.Flags().GetString("listen")
	if listen == "" {
		listen = configFrom(cmd).Metrics.Listen
	}
	apiKey, _ := cmd.Flags().GetString("api-key")
	origins, _ := cmd.Flags().GetStringSlice("cors-origin")

	server := api.NewServer(manager, container.Metrics().Registry(), container.Logger(), api.ServerConfig{
		Listen:         listen,
		APIKey:         apiKey,
		AllowedOrigins: origins,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Serving on %s, metrics at /metrics\n", listen)
	return server.ListenAndServe(ctx)
}
