// Command relaydemo stands up a bare relay server (QUIC or WebSocket)
// for exercising the pairing protocol without a hosted relay. Each run
// is tagged with a correlation id so its log lines can be told apart
// from a concurrent run on the same host.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/google/uuid"

	"pairing/internal/pprofutil"
	"pairing/internal/relaytransport/quicrelay"
	"pairing/internal/relaytransport/wsrelay"
)

const relayDemoVersion = "0.1.0"

func main() {
	usage := `Relay demo.

Usage:
    relaydemo serve --transport=<transport> [--addr=<addr>]

Options:
    -h --help               Show this screen.
    --version                Show version.
    --transport=<transport>  quic or ws.
    --addr=<addr>             Listen address. [default: 127.0.0.1:9443]`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], relayDemoVersion)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if serve_, _ := opts.Bool("serve"); serve_ {
		if err := serve(opts); err != nil {
			log.Fatalf("relaydemo: %v", err)
		}
	}
}

func serve(opts docopt.Opts) error {
	transport, _ := opts.String("--transport")
	addr, _ := opts.String("--addr")

	runID := uuid.NewString()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := pprofutil.StartFromEnv(os.Stderr); err != nil {
		return fmt.Errorf("pprof: %w", err)
	}

	switch transport {
	case "quic":
		srv, err := quicrelay.ListenAndServe(ctx, addr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		defer srv.Close()
		log.Printf("relaydemo[%s]: quic relay listening on %s", runID, srv.Addr())
	case "ws":
		srv, err := wsrelay.ListenAndServe(addr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		defer srv.Close()
		log.Printf("relaydemo[%s]: ws relay listening on %s", runID, srv.Addr())
	default:
		return fmt.Errorf("unknown transport %q, want quic or ws", transport)
	}

	<-ctx.Done()
	log.Printf("relaydemo[%s]: shutting down", runID)
	return nil
}
