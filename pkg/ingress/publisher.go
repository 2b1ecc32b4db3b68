package ingress

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/storage"
	"github.com/cuemby/tempo-operator/pkg/types"
)

// SyncResult lists the route changes made by one Sync
type SyncResult struct {
	Added   []string
	Updated []string
	Removed []string
}

// Changed reports whether any route was added, updated or removed
func (r SyncResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Updated) > 0 || len(r.Removed) > 0
}

// Publisher keeps the routes registered with the ingress provider equal to
// the desired set, issuing only the delta. Published routes are persisted
// so the delta survives restarts.
type Publisher struct {
	store  storage.Store
	client RouteClient
	logger zerolog.Logger
}

// NewPublisher creates a route publisher
func NewPublisher(store storage.Store, client RouteClient) *Publisher {
	return &Publisher{
		store:  store,
		client: client,
		logger: log.WithComponent("ingress"),
	}
}

// Published returns the routes currently registered
func (p *Publisher) Published() ([]*types.Route, error) {
	return p.store.ListRoutes()
}

// Sync registers the routes desired for wc and retracts the rest. A changed
// route is re-registered under its name without being removed first. Every
// successful operation is persisted at once so a partial failure leaves an
// accurate record for the next pass.
func (p *Publisher) Sync(ctx context.Context, wc types.WorkloadConfig, address string) (SyncResult, error) {
	var result SyncResult

	published, err := p.store.ListRoutes()
	if err != nil {
		return result, fmt.Errorf("failed to list published routes: %w", err)
	}

	add, update, remove := Diff(DesiredRoutes(wc, address), published)

	var errs error
	for _, name := range remove {
		if err := p.client.RemoveRoute(ctx, name); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("remove route %s: %w", name, err))
			continue
		}
		if err := p.store.DeleteRoute(name); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("forget route %s: %w", name, err))
			continue
		}
		result.Removed = append(result.Removed, name)
	}

	for _, route := range update {
		if err := p.register(ctx, route); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("update route %s: %w", route.Name, err))
			continue
		}
		result.Updated = append(result.Updated, route.Name)
	}

	for _, route := range add {
		if err := p.register(ctx, route); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("add route %s: %w", route.Name, err))
			continue
		}
		result.Added = append(result.Added, route.Name)
	}

	if result.Changed() {
		p.logger.Info().
			Strs("added", result.Added).
			Strs("updated", result.Updated).
			Strs("removed", result.Removed).
			Bool("eligible", wc.RoutesEligible).
			Msg("ingress routes updated")
	}

	if errs != nil {
		return result, types.NewTransient("sync ingress routes", errs)
	}
	return result, nil
}

func (p *Publisher) register(ctx context.Context, route types.Route) error {
	if err := p.client.AddRoute(ctx, route); err != nil {
		return err
	}
	if err := p.store.SaveRoute(&route); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return nil
}
