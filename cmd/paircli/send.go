package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <topic> <method> <json-params>",
		Short: "Send an application JSON-RPC request over a settled pairing",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var params any
			if err := json.Unmarshal([]byte(args[2]), &params); err != nil {
				return fmt.Errorf("parse params: %w", err)
			}
			return controller.Send(ctx, args[0], args[1], params)
		},
	}
	return cmd
}
