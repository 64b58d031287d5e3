package cmd

import (
	"github.com/spf13/cobra"
)

func newDestroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy",
		Short: "Invalidate every edition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := managerFrom(cmd)
			if err != nil {
				return err
			}
			if err := manager.Destroy(); err != nil {
				return err
			}
			cmd.Printf("Erased %d slots\n", manager.Geometry().Count)
			return nil
		},
	}
}
