package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func updateCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "update <topic> <json-metadata>",
		Short: "Push new metadata for a settled pairing to the peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var metadata map[string]any
			if err := json.Unmarshal([]byte(args[1]), &metadata); err != nil {
				return fmt.Errorf("parse metadata: %w", err)
			}
			rec, err := controller.UpdateMetadata(ctx, args[0], metadata, token)
			if err != nil {
				return err
			}
			return printSettled(rec)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "optional metadata attestation JWT (see attest-metadata)")
	return cmd
}
