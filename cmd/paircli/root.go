// Command paircli drives the pairing protocol from a terminal: propose
// a pairing, accept one from a URI, send application requests over a
// settled pairing, and tear it down again.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pairing/internal/pairing"
	"pairing/internal/relay"
	"pairing/internal/relaytransport/quicrelay"
	"pairing/internal/relaytransport/wsrelay"
)

var (
	transportName string
	relayAddr     string
	timeout       time.Duration

	controller *pairing.Controller
	closeFns   []func() error
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "paircli:", err)
		os.Exit(1)
	}
}

// Execute builds the root command and runs it, matching the
// dependency-graph-in-PersistentPreRunE shape a Cobra CLI in this
// corpus uses to share one client instance across subcommands.
func Execute() error {
	root := &cobra.Command{
		Use:   "paircli",
		Short: "Establish and manage end-to-end-encrypted pairings",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := dialTransport(cmd.Context())
			if err != nil {
				return err
			}
			controller = pairing.NewController(cmd.Context(), client)
			closeFns = append(closeFns, closeFn)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			controller.Close()
			for _, fn := range closeFns {
				if fn != nil {
					_ = fn()
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&transportName, "transport", "loopback", "relay transport: loopback, quic, ws")
	root.PersistentFlags().StringVar(&relayAddr, "relay-addr", "127.0.0.1:9443", "relay server address (quic/ws transports)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "operation timeout")

	root.AddCommand(proposeCmd(), pairCmd(), sendCmd(), updateCmd(), deleteCmd(), listenCmd(), exportKeyCmd(), attestMetadataCmd(), verifyMetadataCmd())
	return root.Execute()
}

// loopbackHub is shared only so a single paircli process can run
// propose and pair against itself for local testing; a real two-party
// pairing needs the quic or ws transport instead.
var loopbackHub = relay.NewLoopback()

func dialTransport(ctx context.Context) (relay.Client, func() error, error) {
	switch transportName {
	case "loopback":
		return loopbackHub.NewClient("paircli"), nil, nil
	case "quic":
		c, err := quicrelay.Dial(ctx, relayAddr, true)
		if err != nil {
			return nil, nil, fmt.Errorf("dial quic relay at %s: %w", relayAddr, err)
		}
		return c, c.Close, nil
	case "ws":
		c, err := wsrelay.Dial(ctx, "ws://"+relayAddr+"/")
		if err != nil {
			return nil, nil, fmt.Errorf("dial ws relay at %s: %w", relayAddr, err)
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", transportName)
	}
}
