package cmd

import (
	"github.com/spf13/cobra"
)

func newSlotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "List the header stored in every slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := managerFrom(cmd)
			if err != nil {
				return err
			}
			infos, err := manager.Slots()
			if err != nil {
				return err
			}

			cmd.Printf("%-5s %-8s %-6s %-10s %-6s %-6s\n", "SLOT", "ADDR", "VALID", "EDITION", "FORMAT", "LENGTH")
			for _, info := range infos {
				marker := ""
				if info.Newest {
					marker = " *"
				}
				if !info.Header.Valid() {
					cmd.Printf("%-5d %-8d %-6t\n", info.Slot, info.Addr, false)
					continue
				}
				cmd.Printf("%-5d %-8d %-6t %-10d %-6d %-6d%s\n", info.Slot, info.Addr, true,
					info.Header.Edition, info.Header.Format, info.Header.PayloadLength, marker)
			}
			return nil
		},
	}
}
