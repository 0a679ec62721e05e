package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pairing/internal/pairing"
)

func proposeCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Create a new pairing proposal and print its shareable URI",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			record, err := controller.Propose(ctx, pairing.ProposeParams{})
			if err != nil {
				return err
			}
			fmt.Println(record.Proposal.Signal.Params.URI)

			if !wait {
				return nil
			}
			settled, err := controller.Await(ctx, record.Topic)
			if err != nil {
				return err
			}
			return printSettled(settled)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the peer responds")
	return cmd
}

func printSettled(s pairing.Settled) error {
	out, err := json.MarshalIndent(struct {
		Topic  string       `json:"topic"`
		Peer   pairing.Peer `json:"peer"`
		Expiry string       `json:"expiry"`
	}{Topic: s.Topic, Peer: s.Peer, Expiry: s.Expiry.Format(time.RFC3339)}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
