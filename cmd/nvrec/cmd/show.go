package cmd

import (
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Read the record and print it",
		Long: `Read the newest valid edition and print its header and payload.

A checksum failure is reported as status CRC with a payload of defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := managerFrom(cmd)
			if err != nil {
				return err
			}
			if err := readRecord(cmd, manager); err != nil {
				return err
			}
			printRecord(cmd, manager)
			return nil
		},
	}
}
