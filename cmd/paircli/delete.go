package main

import (
	"github.com/spf13/cobra"
)

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <topic> [reason]",
		Short: "Tear down a settled pairing and notify the peer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason := "user_disconnected"
			if len(args) == 2 {
				reason = args[1]
			}
			return controller.Delete(args[0], reason)
		},
	}
	return cmd
}
