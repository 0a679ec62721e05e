package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pairing/internal/pairing"
)

func pairCmd() *cobra.Command {
	var reject bool
	var reason string
	var name string
	cmd := &cobra.Command{
		Use:   "pair <uri>",
		Short: "Accept (or reject) a pairing proposal from a URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			responded, err := controller.Pair(ctx, args[0], func(pairing.ParsedURI) pairing.PairDecision {
				if reject {
					return pairing.PairDecision{Accept: false, Reason: reason}
				}
				var metadata map[string]any
				if name != "" {
					metadata = map[string]any{"name": name}
				}
				return pairing.PairDecision{Accept: true, Metadata: metadata}
			})
			if err != nil {
				return err
			}
			if pairing.IsPairingFailed(responded) {
				fmt.Printf("rejected: %s\n", responded.Outcome.Reason)
				return nil
			}
			settled, err := controller.Get(responded.Outcome.Topic)
			if err != nil {
				return err
			}
			return printSettled(settled)
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the proposal instead of accepting it")
	cmd.Flags().StringVar(&reason, "reason", "rejected by user", "rejection reason, with --reject")
	cmd.Flags().StringVar(&name, "name", "", "metadata name to present to the peer")
	return cmd
}
