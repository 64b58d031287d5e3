/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/nvrec/pkg/config"
)

func newInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration and an erased record image",
		Long: `Write a configuration file and prepare the EEPROM image it points to.

This command will:
- Write the configuration (a new image id is generated for pebble images)
- Create the image, pre-filled with erased bytes
- Invalidate every slot so the record starts from defaults

Examples:
  nvrec init --path ./data/eeprom.bin
  nvrec init --backend pebble --path ./data/pebble --slots 8 --slot-size 128 --payload 32`,
		Annotations: map[string]string{skipManager: "true"},
		RunE:        runInit,
	}

	defaults := config.DefaultConfig()
	initCmd.Flags().String("backend", defaults.Device.Backend, "Image backend: file, pebble or memory")
	initCmd.Flags().String("path", defaults.Device.Path, "Image file or pebble directory")
	initCmd.Flags().Int("slots", defaults.Geometry.SlotCount, "Number of wear-leveling slots")
	initCmd.Flags().Int("slot-size", defaults.Geometry.SlotSize, "Bytes per slot")
	initCmd.Flags().Int("payload", defaults.Record.PayloadSize, "Payload bytes after the 16 byte header")
	initCmd.Flags().Uint16("format", defaults.Record.Format, "Payload format version")
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration and erase the image")
	return initCmd
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	force, _ := cmd.Flags().GetBool("force")

	if config.ConfigExists(configPath) && !force {
		cmd.Printf("Configuration already exists at %s. Use --force to reinitialize.\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()
	cfg.Device.Backend, _ = cmd.Flags().GetString("backend")
	cfg.Device.Path, _ = cmd.Flags().GetString("path")
	cfg.Geometry.SlotCount, _ = cmd.Flags().GetInt("slots")
	cfg.Geometry.SlotSize, _ = cmd.Flags().GetInt("slot-size")
	cfg.Record.PayloadSize, _ = cmd.Flags().GetInt("payload")
	cfg.Record.Format, _ = cmd.Flags().GetUint16("format")

	cfg, err := config.BootstrapConfig(configPath, cfg)
	if err != nil {
		return err
	}
	if err := configureLogging(cfg, cmd.ErrOrStderr()); err != nil {
		return err
	}

	manager, closer, err := container.OpenManager(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := manager.Destroy(); err != nil {
		return fmt.Errorf("failed to erase image: %w", err)
	}

	cmd.Printf("Configuration: %s\n", configPath)
	cmd.Printf("Image:         %s (%s, %d bytes)\n", cfg.Device.Path, cfg.Device.Backend, cfg.DeviceSize())
	if cfg.Device.ImageID != "" {
		cmd.Printf("Image id:      %s\n", cfg.Device.ImageID)
	}
	cmd.Printf("Slots:         %d x %d bytes, record %d bytes\n",
		cfg.Geometry.SlotCount, cfg.Geometry.SlotSize, cfg.RecordSize())
	return nil
}
