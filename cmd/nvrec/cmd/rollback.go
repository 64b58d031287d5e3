package cmd

import (
	"github.com/spf13/cobra"
)

func newRollBackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Invalidate the newest edition",
		Long: `Invalidate the newest edition on the device and load the one before it.
Rolling back the last remaining edition leaves the record at defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := managerFrom(cmd)
			if err != nil {
				return err
			}
			if err := manager.RollBack(); err != nil {
				return err
			}
			printRecord(cmd, manager)
			return nil
		},
	}
}
