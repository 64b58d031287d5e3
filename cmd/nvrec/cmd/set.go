package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSetCmd() *cobra.Command {
	setCmd := &cobra.Command{
		Use:   "set <offset> <hex>",
		Short: "Patch payload bytes and write a new edition",
		Long: `Read the record, overwrite payload bytes starting at offset and write it.

Writing an unchanged record is skipped unless --force is given.

Example:
  nvrec set 0 66
  nvrec set 4 deadbeef --force`,
		Args: cobra.ExactArgs(2),
		RunE: runSet,
	}
	setCmd.Flags().Bool("force", false, "Write even when the record is unchanged")
	return setCmd
}

func runSet(cmd *cobra.Command, args []string) error {
	offset, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", args[0], err)
	}
	data, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("invalid hex data %q: %w", args[1], err)
	}
	force, _ := cmd.Flags().GetBool("force")

	manager, err := managerFrom(cmd)
	if err != nil {
		return err
	}
	if err := readRecord(cmd, manager); err != nil {
		return err
	}

	if _, err := manager.Patch(offset, data); err != nil {
		return err
	}

	before := manager.Header().Edition
	if err := manager.Write(force); err != nil {
		return err
	}
	if manager.Header().Edition == before {
		cmd.Printf("Record unchanged, nothing written (edition %d)\n", before)
		return nil
	}
	cmd.Printf("Wrote edition %d\n", manager.Header().Edition)
	return nil
}
