package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cuemby/tempo-operator/pkg/applier"
	"github.com/cuemby/tempo-operator/pkg/certs"
	"github.com/cuemby/tempo-operator/pkg/config"
	"github.com/cuemby/tempo-operator/pkg/events"
	"github.com/cuemby/tempo-operator/pkg/ingress"
	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/metrics"
	"github.com/cuemby/tempo-operator/pkg/peer"
	"github.com/cuemby/tempo-operator/pkg/relation"
	"github.com/cuemby/tempo-operator/pkg/synth"
	"github.com/cuemby/tempo-operator/pkg/types"
)

// Options wires the components a Reconciler drives
type Options struct {
	Config      *config.Config
	Source      relation.Source
	Outbox      *relation.Outbox
	Certs       *certs.Manager
	Coordinator *peer.Coordinator
	Routes      *ingress.Publisher
	Applier     *applier.Applier

	// Broker receives operator events. Optional.
	Broker *events.Broker

	// OnReport is called with the report of every finished pass. Optional.
	OnReport func(types.StatusReport)
}

// Reconciler runs reconciliation passes one at a time. Triggers are
// coalesced: while a pass runs, any number of triggers schedule exactly
// one follow-up pass.
type Reconciler struct {
	cfg         *config.Config
	source      relation.Source
	outbox      *relation.Outbox
	certs       *certs.Manager
	coordinator *peer.Coordinator
	routes      *ingress.Publisher
	applier     *applier.Applier
	broker      *events.Broker
	onReport    func(types.StatusReport)

	triggers chan string
	limiter  *rate.Limiter
	cron     *cron.Cron

	// passMu serializes passes started by the loop and by RunOnce
	passMu sync.Mutex

	mu        sync.RWMutex
	report    types.StatusReport
	presences map[types.RelationKind]types.Presence

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped sync.Once

	now    func() time.Time
	logger zerolog.Logger
}

// New creates a Reconciler. Every component except Broker and OnReport is
// required.
func New(opts Options) (*Reconciler, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("reconciler: config is required")
	case opts.Source == nil:
		return nil, errors.New("reconciler: relation source is required")
	case opts.Outbox == nil:
		return nil, errors.New("reconciler: outbox is required")
	case opts.Certs == nil:
		return nil, errors.New("reconciler: certificate manager is required")
	case opts.Coordinator == nil:
		return nil, errors.New("reconciler: peer coordinator is required")
	case opts.Routes == nil:
		return nil, errors.New("reconciler: route publisher is required")
	case opts.Applier == nil:
		return nil, errors.New("reconciler: applier is required")
	}

	limit := rate.Inf
	if opts.Config.Reconcile.MinPassInterval > 0 {
		limit = rate.Every(opts.Config.Reconcile.MinPassInterval)
	}

	return &Reconciler{
		cfg:         opts.Config,
		source:      opts.Source,
		outbox:      opts.Outbox,
		certs:       opts.Certs,
		coordinator: opts.Coordinator,
		routes:      opts.Routes,
		applier:     opts.Applier,
		broker:      opts.Broker,
		onReport:    opts.OnReport,
		triggers:    make(chan string, 1),
		limiter:     rate.NewLimiter(limit, 1),
		cron:        cron.New(),
		report:      types.StatusReport{Unit: opts.Config.Unit.ID, Status: types.UnitStatus{Level: types.StatusWaiting, Message: "no pass yet"}},
		presences:   make(map[types.RelationKind]types.Presence),
		now:         time.Now,
		logger:      log.WithComponent("reconciler"),
	}, nil
}

// Start launches the pass loop, the leadership watch and the periodic
// resync, and queues an initial pass
func (r *Reconciler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	if schedule := r.cfg.Reconcile.ResyncSchedule; schedule != "" {
		if _, err := r.cron.AddFunc(schedule, func() { r.Trigger("resync") }); err != nil {
			cancel()
			return fmt.Errorf("invalid resync schedule %q: %w", schedule, err)
		}
		r.cron.Start()
	}

	r.cancel = cancel
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.coordinator.Watch(ctx, r.Trigger)
	}()

	r.logger.Info().
		Str("resync", r.cfg.Reconcile.ResyncSchedule).
		Dur("min_pass_interval", r.cfg.Reconcile.MinPassInterval).
		Msg("reconciler started")

	r.Trigger("startup")
	return nil
}

// Stop halts the loop and waits for an in-flight pass to finish
func (r *Reconciler) Stop() {
	r.stopped.Do(func() {
		<-r.cron.Stop().Done()
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
		r.logger.Info().Msg("reconciler stopped")
	})
}

// Trigger requests a pass. It never blocks: when a pass is already
// pending the trigger is merged into it.
func (r *Reconciler) Trigger(reason string) {
	metrics.TriggersTotal.WithLabelValues(reason).Inc()
	select {
	case r.triggers <- reason:
		r.logger.Debug().Str("reason", reason).Msg("pass requested")
	default:
		metrics.TriggersCoalesced.Inc()
		r.logger.Debug().Str("reason", reason).Msg("pass already pending, trigger coalesced")
	}
}

func (r *Reconciler) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-r.triggers:
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
			r.RunOnce(ctx, reason)
		}
	}
}

// Status returns the report of the most recent pass
func (r *Reconciler) Status() types.StatusReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneReport(r.report)
}

// Desired computes the workload configuration the current databags
// produce, without assigning a version or touching the workload
func (r *Reconciler) Desired(ctx context.Context) (types.WorkloadConfig, error) {
	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		return types.WorkloadConfig{}, types.NewTransient("read relations", err)
	}
	states := relation.NormalizeAll(snap, r.now())
	states.Certificates, _ = r.certs.Effective(states.Certificates, r.coordinator.Cached(), r.now())

	wc := synth.Synthesize(states, r.cfg)
	if err := synth.Check(wc); err != nil {
		return wc, err
	}
	return wc, nil
}

// ListReceivers returns the receivers of a fresh synthesis
func (r *Reconciler) ListReceivers(ctx context.Context) ([]types.ReceiverSpec, error) {
	wc, err := r.Desired(ctx)
	if err != nil {
		return nil, err
	}
	return wc.Receivers, nil
}

func (r *Reconciler) publishEvent(t events.EventType, msg string, meta map[string]string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(events.New(t, msg, meta))
}

func cloneReport(in types.StatusReport) types.StatusReport {
	out := in
	if in.Relations != nil {
		out.Relations = make(map[types.RelationKind]types.Presence, len(in.Relations))
		for k, v := range in.Relations {
			out.Relations[k] = v
		}
	}
	if in.Reasons != nil {
		out.Reasons = make(map[types.RelationKind]string, len(in.Reasons))
		for k, v := range in.Reasons {
			out.Reasons[k] = v
		}
	}
	out.Receivers = append([]types.ReceiverSpec(nil), in.Receivers...)
	out.Routes = append([]string(nil), in.Routes...)
	if in.CertNotAfter != nil {
		t := *in.CertNotAfter
		out.CertNotAfter = &t
	}
	return out
}
