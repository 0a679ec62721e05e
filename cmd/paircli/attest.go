package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func attestMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attest-metadata <topic>",
		Short: "Sign a bearer token attesting the peer's current metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := controller.SignMetadataToken(args[0])
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	return cmd
}

func verifyMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-metadata <topic> <token>",
		Short: "Verify a metadata attestation token and print the attested metadata",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := controller.VerifyMetadataToken(args[0], args[1])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(metadata, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	return cmd
}
