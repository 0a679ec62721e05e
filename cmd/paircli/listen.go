package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func listenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print lifecycle events for all pairings as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, unsub := controller.Events()
			defer unsub()

			ctx := cmd.Context()
			for {
				select {
				case ev := <-events:
					fmt.Printf("%s topic=%s reason=%q\n", ev.Kind, ev.Topic, ev.Reason)
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	return cmd
}
