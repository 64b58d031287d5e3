/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/nvrec/pkg/config"
	"github.com/ssargent/nvrec/pkg/di"
	"github.com/ssargent/nvrec/pkg/logging"
	"github.com/ssargent/nvrec/pkg/record"
)

type contextKey string

const (
	managerKey contextKey = "manager"
	configKey  contextKey = "config"
	closerKey  contextKey = "closer"

	// skipManager marks commands that open no record manager
	skipManager = "skip-manager"
)

var container *di.Container

// SetContainer sets the dependency injection container
func SetContainer(c *di.Container) {
	container = c
}

// NewRootCmd builds the nvrec command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nvrec",
		Short: "nvrec - wear-leveled persistent record",
		Long: `nvrec keeps one fixed-layout record on an EEPROM image, rotating editions
across wear-leveling slots and verifying every read with a CRC-32.`,
		SilenceUsage:      true,
		PersistentPreRunE: openManager,
	}

	rootCmd.PersistentFlags().StringP("config", "c", config.GetDefaultConfigPath(), "Path to the configuration file")

	rootCmd.AddCommand(
		newInitCmd(),
		newShowCmd(),
		newSetCmd(),
		newRollBackCmd(),
		newDestroyCmd(),
		newSlotsCmd(),
		newServeCmd(),
	)

	// Release the device whether or not the command succeeded
	for _, sub := range rootCmd.Commands() {
		run := sub.RunE
		if run == nil {
			continue
		}
		sub.RunE = func(cmd *cobra.Command, args []string) error {
			defer closeManager(cmd)
			return run(cmd, args)
		}
	}
	return rootCmd
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func openManager(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[skipManager] != "" {
		return nil
	}
	if container == nil {
		return errors.New("dependency container not initialized")
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("%w (run 'nvrec init' first)", err)
	}
	if err := configureLogging(cfg, cmd.ErrOrStderr()); err != nil {
		return err
	}

	manager, closer, err := container.OpenManager(cfg)
	if err != nil {
		return err
	}

	ctx := context.WithValue(cmd.Context(), managerKey, manager)
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, closerKey, closer)
	cmd.SetContext(ctx)
	return nil
}

func closeManager(cmd *cobra.Command) {
	if closer, ok := cmd.Context().Value(closerKey).(io.Closer); ok {
		if err := closer.Close(); err != nil {
			cmd.PrintErrf("Warning: failed to close device: %v\n", err)
		}
	}
}

func configureLogging(cfg *config.Config, w io.Writer) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	container.SetLogger(logging.New(w, level, cfg.Logging.Format))
	return nil
}

func managerFrom(cmd *cobra.Command) (*record.Manager, error) {
	manager, ok := cmd.Context().Value(managerKey).(*record.Manager)
	if !ok {
		return nil, errors.New("record manager not found in context")
	}
	return manager, nil
}

func configFrom(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(configKey).(*config.Config)
	return cfg
}

// readRecord reads the record; a CRC failure is reported but not fatal
// since the record then holds fresh-start values.
func readRecord(cmd *cobra.Command, manager *record.Manager) error {
	err := manager.Read()
	if record.CodeOf(err) == record.CRC {
		cmd.PrintErrf("Warning: %v; using defaults\n", err)
		return nil
	}
	return err
}

func printRecord(cmd *cobra.Command, manager *record.Manager) {
	h := manager.Header()
	cmd.Printf("Status:   %s\n", manager.Err())
	cmd.Printf("Edition:  %d\n", h.Edition)
	cmd.Printf("Format:   %d\n", h.Format)
	cmd.Printf("Length:   %d\n", h.PayloadLength)
	cmd.Printf("Checksum: %08x\n", h.Checksum)
	cmd.Printf("Payload:  %x\n", manager.Payload())
}
