package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/cuemby/tempo-operator/pkg/api"
	"github.com/cuemby/tempo-operator/pkg/applier"
	"github.com/cuemby/tempo-operator/pkg/certs"
	"github.com/cuemby/tempo-operator/pkg/config"
	"github.com/cuemby/tempo-operator/pkg/events"
	"github.com/cuemby/tempo-operator/pkg/ingress"
	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/metrics"
	"github.com/cuemby/tempo-operator/pkg/peer"
	"github.com/cuemby/tempo-operator/pkg/reconciler"
	"github.com/cuemby/tempo-operator/pkg/relation"
	"github.com/cuemby/tempo-operator/pkg/storage"
	"github.com/cuemby/tempo-operator/pkg/types"
	"github.com/cuemby/tempo-operator/pkg/workload"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the operator",
	Long: `Run the reconciliation loop for this unit together with the HTTP API,
the gRPC health service and, when configured, the raft peer store.

A pass runs at startup, on every relation databag change, on leadership
changes and on the resync schedule.`,
	RunE: runOperator,
}

// peerBackend is the shared peer storage together with its leadership signal
type peerBackend struct {
	store     peer.Store
	elector   peer.Elector
	collector *metrics.Collector
	shutdown  func() error
}

func newPeerBackend(cfg *config.Config, local storage.Store) (*peerBackend, error) {
	if cfg.Peer.Backend != "raft" {
		return &peerBackend{
			store:    peer.NewMemoryStore(),
			elector:  peer.NewStaticElector(cfg.Peer.Leader),
			shutdown: func() error { return nil },
		}, nil
	}

	rs, err := peer.NewRaftStore(cfg.Unit.ID, cfg.Peer.Raft, local)
	if err != nil {
		return nil, fmt.Errorf("failed to start raft peer store: %w", err)
	}
	collector := metrics.NewCollector(rs)
	collector.Start()
	return &peerBackend{
		store:     rs,
		elector:   rs.Elector(),
		collector: collector,
		shutdown: func() error {
			collector.Stop()
			return rs.Shutdown()
		},
	}, nil
}

// newIssuer selects the certificate issuer. The ACME issuer also returns
// the HTTP-01 challenge handler that must be served on ACME.HTTPAddr.
func newIssuer(cfg *config.Config, store storage.Store, keys *certs.KeyStore, outbox *relation.Outbox) (certs.Issuer, http.Handler) {
	switch cfg.Certificates.Issuer {
	case "self-signed":
		return certs.NewSelfSignedIssuer(store, keys, cfg.Certificates.Validity), nil
	case "acme":
		provider := certs.NewHTTP01Provider()
		acme := cfg.Certificates.ACME
		return certs.NewACMEIssuer(acme.Email, acme.DirectoryURL, acme.Domains, provider), provider
	default:
		return certs.NewRelationIssuer(outbox, cfg.Unit.App), nil
	}
}

func runOperator(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := log.WithUnit(cfg.Unit.ID)
	metrics.SetVersion(Version)

	logger.Info().
		Str("version", Version).
		Str("peer_backend", cfg.Peer.Backend).
		Str("issuer", cfg.Certificates.Issuer).
		Str("relations", cfg.Relations.Dir).
		Msg("starting tempo operator")

	store, err := storage.NewBoltStore(cfg.Paths.State)
	if err != nil {
		metrics.RegisterComponent("storage", false, err.Error())
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("storage", true, "")

	peers, err := newPeerBackend(cfg, store)
	if err != nil {
		metrics.RegisterComponent("peer", false, err.Error())
		return err
	}
	metrics.RegisterComponent("peer", true, "")
	metrics.RegisterComponent("reconciler", false, "no pass yet")

	outbox := relation.NewOutbox(cfg.Relations.Outbox)
	keys := certs.NewKeyStore(cfg.Paths.Secrets)
	issuer, challenges := newIssuer(cfg, store, keys, outbox)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	grpcServer := api.NewGRPCServer()

	rec, err := reconciler.New(reconciler.Options{
		Config:      cfg,
		Source:      relation.NewFileSource(cfg.Relations.Dir),
		Outbox:      outbox,
		Certs:       certs.NewManager(certs.OptionsFromConfig(cfg), issuer, keys, store),
		Coordinator: peer.NewCoordinator(cfg.Unit.ID, peers.elector, peers.store),
		Routes:      ingress.NewPublisher(store, ingress.NewOutboxRouteClient(outbox, cfg.Unit.ID, cfg.Unit.Address)),
		Applier:     applier.New(cfg.Paths, store, workload.NewCommandSupervisor(cfg.Workload)),
		Broker:      broker,
		OnReport:    func(report types.StatusReport) { grpcServer.Update(report) },
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 4)

	if cfg.Relations.Watch {
		watcher, err := relation.NewWatcher(cfg.Relations.Dir, rec.Trigger)
		if err != nil {
			return err
		}
		metrics.RegisterComponent("relation-watcher", true, "")
		go func() {
			// Resync still picks up changes without the watcher.
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("relation watcher stopped")
				metrics.UpdateComponent("relation-watcher", false, err.Error())
			}
		}()
	}

	httpServer := api.NewServer(rec, broker)
	go func() {
		if err := httpServer.Start(cfg.API.Addr); err != nil {
			errCh <- fmt.Errorf("HTTP API: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Start(cfg.API.GRPCAddr); err != nil {
			errCh <- fmt.Errorf("gRPC health service: %w", err)
		}
	}()

	var challengeServer *http.Server
	if challenges != nil {
		challengeServer = &http.Server{
			Addr:              cfg.Certificates.ACME.HTTPAddr,
			Handler:           challenges,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := challengeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("ACME challenge server: %w", err)
			}
		}()
	}

	if err := rec.Start(ctx); err != nil {
		return err
	}
	fmt.Println("✓ Reconciler started")
	fmt.Printf("  API: %s\n", cfg.API.Addr)
	fmt.Printf("  gRPC health: %s\n", cfg.API.GRPCAddr)
	fmt.Println()
	fmt.Println("Operator is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Println("\nShutting down...")
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("component failed, shutting down")
	}

	rec.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var errs error
	errs = multierr.Append(errs, httpServer.Shutdown(shutdownCtx))
	grpcServer.Stop()
	if challengeServer != nil {
		errs = multierr.Append(errs, challengeServer.Shutdown(shutdownCtx))
	}
	errs = multierr.Append(errs, peers.shutdown())
	if errs != nil {
		return fmt.Errorf("shutdown: %w", errs)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}
