// Command certproxy is the entry point for the sidecar TLS-terminating
// reverse proxy: it loads configuration, establishes the initial
// identity synchronously, then serves until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/certproxy/certproxy/internal/authority"
	"github.com/certproxy/certproxy/internal/broadcast"
	"github.com/certproxy/certproxy/internal/config"
	"github.com/certproxy/certproxy/internal/frontend"
	"github.com/certproxy/certproxy/internal/harness"
	"github.com/certproxy/certproxy/internal/identity"
	"github.com/certproxy/certproxy/internal/logging"
	"github.com/certproxy/certproxy/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	conf, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logging.New(conf.LogFormat)

	var opts []authority.Option
	if conf.Namespace != "" {
		opts = append(opts, authority.WithNamespace(conf.Namespace))
	}
	if conf.CACertPath != "" {
		opts = append(opts, authority.WithTrustAnchor(conf.CACertPath))
	}
	client := authority.New(conf.VaultAddr, opts...)

	st := store.New(conf.CertDir)
	bcast := broadcast.New()
	mgr := identity.New(conf, client, st, bcast, log, authority.ReadWorkloadToken)

	log.Info("performing initial identity acquisition")
	lease, err := mgr.Init(ctx)
	if err != nil {
		return fmt.Errorf("initial identity acquisition failed: %w", err)
	}

	fe := frontend.New(conf.ListenAddr, conf.BackendAddr, bcast, log)

	err = harness.Run(ctx,
		func(ctx context.Context) error { mgr.Run(ctx, lease); return nil },
		fe.Run,
	)
	bcast.Close()
	return err
}
