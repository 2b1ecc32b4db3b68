package reconciler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/tempo-operator/pkg/certs"
	"github.com/cuemby/tempo-operator/pkg/events"
	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/metrics"
	"github.com/cuemby/tempo-operator/pkg/relation"
	"github.com/cuemby/tempo-operator/pkg/synth"
	"github.com/cuemby/tempo-operator/pkg/types"
)

// pass accumulates the outcome of one reconciliation pass
type pass struct {
	id     string
	reason string
	start  time.Time
	logger zerolog.Logger

	status types.UnitStatus
	report types.StatusReport
}

// note keeps the most severe status seen during the pass
func (p *pass) note(st types.UnitStatus) {
	if st.Worse(p.status) || (p.status.Message == "" && st.Level == p.status.Level) {
		p.status = st
	}
}

// fail records err as the status of a failed step
func (p *pass) fail(step string, err error) {
	st := types.StatusFor(err)
	p.logger.Warn().Err(err).Str("step", step).Str("status", string(st.Level)).Msg("pass step failed")
	p.note(st)
}

// RunOnce runs a single pass synchronously and returns its report. It
// never panics; a panic inside the pass is reported as degraded.
func (r *Reconciler) RunOnce(ctx context.Context, reason string) types.StatusReport {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	id := uuid.NewString()[:8]
	p := &pass{
		id:     id,
		reason: reason,
		start:  r.now(),
		logger: log.WithPass(id).With().Str("component", "reconciler").Str("reason", reason).Logger(),
		status: types.UnitStatus{Level: types.StatusActive},
		report: types.StatusReport{Unit: r.cfg.Unit.ID},
	}
	timer := metrics.NewTimer()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Reconcile.PassTimeout)
	defer cancel()

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				p.logger.Error().
					Interface("panic", rec).
					Str("stack", string(debug.Stack())).
					Msg("pass panicked")
				p.note(types.UnitStatus{Level: types.StatusDegraded, Message: fmt.Sprintf("pass panicked: %v", rec)})
			}
		}()
		if err := r.reconcile(ctx, p); err != nil {
			p.fail("abort", err)
		}
	}()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		p.note(types.UnitStatus{Level: types.StatusWaiting, Message: "pass timed out after " + r.cfg.Reconcile.PassTimeout.String()})
	}

	timer.ObserveDuration(metrics.PassDuration)
	return r.finish(p)
}

// reconcile runs the pipeline. An error return aborts the pass; step
// failures that still allow the rest of the pass to run are noted on p.
func (r *Reconciler) reconcile(ctx context.Context, p *pass) error {
	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		var transient *types.TransientError
		if !errors.As(err, &transient) {
			err = types.NewTransient("read relations", err)
		}
		return err
	}

	now := r.now()
	states := relation.NormalizeAll(snap, now)
	r.observeRelations(p, states)

	shared, err := r.coordinator.Refresh(ctx)
	if err != nil {
		p.fail("peer-refresh", err)
	}
	if states.Peers.IsPresent() {
		states.Peers.Payload.Leader = shared.Leader
	}
	if err := r.certs.Keys().Sync(shared.Keys); err != nil {
		p.fail("sync-keys", types.NewTransient("sync shared keys", err))
	}

	// Effective certificate replaces the raw relation state
	relCert := states.Certificates
	effective, certStatus := r.certs.Resolve(relCert, shared, now)
	p.note(certStatus)
	states.Certificates = effective

	wc := synth.Synthesize(states, r.cfg)
	if err := synth.Check(wc); err != nil {
		return err
	}

	wc, err = r.coordinator.Assign(ctx, wc)
	if err != nil {
		p.fail("assign-version", err)
	}
	leader := r.coordinator.IsLeader()
	p.report.Leader = leader
	p.report.Version = wc.Version

	r.renew(ctx, p, relCert, effective, leader, now)
	r.syncRoutes(ctx, p, wc)

	applied := r.apply(ctx, p, wc)
	if applied != nil {
		p.report.Hash = applied.Hash
		p.report.AppliedAt = applied.AppliedAt
		if shared.Applied.Hash != applied.Hash || shared.Applied.Version != applied.Version {
			if err := r.coordinator.RecordApplied(ctx, *applied); err != nil {
				p.fail("record-applied", err)
			}
		}
	}

	if err := r.coordinator.PublishUnits(ctx, r.peerUnits(states, applied)); err != nil {
		p.fail("publish-units", err)
	}

	if err := r.publish(states, wc, applied, leader); err != nil {
		p.fail("publish", types.NewTransient("publish relation data", err))
	}

	p.report.Receivers = wc.Receivers
	p.report.TLS = wc.TLS.Enabled
	if wc.TLS.Certificate != nil {
		notAfter := wc.TLS.Certificate.NotAfter
		p.report.CertNotAfter = &notAfter
	}
	return nil
}

func (r *Reconciler) observeRelations(p *pass, states types.AllRelationStates) {
	presences := states.Presences()
	reasons := states.Reasons()

	p.report.Relations = presences
	p.report.Reasons = make(map[types.RelationKind]string, len(reasons))
	for kind, reason := range reasons {
		p.report.Reasons[kind] = reason.String()
	}

	for kind, presence := range presences {
		for _, candidate := range []types.Presence{types.Absent, types.Invalid, types.Present} {
			v := 0.0
			if candidate == presence {
				v = 1
			}
			metrics.RelationPresence.WithLabelValues(string(kind), string(candidate)).Set(v)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, presence := range presences {
		if presence == types.Invalid && r.presences[kind] != types.Invalid {
			r.publishEvent(events.EventRelationInvalid, reasons[kind].String(), map[string]string{
				"relation": string(kind),
				"reason":   string(reasons[kind].Code),
			})
		}
		r.presences[kind] = presence
	}
}

// renew requests a certificate when one is due and shares the result
// through peer storage
func (r *Reconciler) renew(ctx context.Context, p *pass, rel, effective types.RelationState[types.CertificatePayload], leader bool, now time.Time) {
	result, err := r.certs.Renew(ctx, rel, effective, leader, now)
	if result != nil && result.Certificate == nil && len(result.Keys) > 0 {
		if perr := r.coordinator.PublishKeys(ctx, result.Keys); perr != nil {
			p.fail("publish-keys", perr)
		}
	}
	if err != nil {
		p.fail("renew-certificate", err)
		return
	}
	if result == nil {
		return
	}

	if result.Pending {
		p.report.RenewPending = true
		p.note(types.UnitStatus{Level: types.StatusWaiting, Message: "renewal pending: certificate requested"})
		r.publishEvent(events.EventRenewalPending, "certificate requested", nil)
		return
	}

	if err := r.coordinator.PublishCertificate(ctx, result.Certificate, result.Keys); err != nil {
		p.fail("publish-certificate", err)
		return
	}
	r.publishEvent(events.EventCertificateIssued, "certificate issued", map[string]string{
		"not_after": result.Certificate.NotAfter.Format(time.RFC3339),
	})
	// The new certificate is picked up from peer storage by the next pass
	r.Trigger("certificate-issued")
}

func (r *Reconciler) syncRoutes(ctx context.Context, p *pass, wc types.WorkloadConfig) {
	result, err := r.routes.Sync(ctx, wc, r.cfg.Unit.Address)
	if err != nil {
		p.fail("sync-routes", err)
	}
	if result.Changed() {
		r.publishEvent(events.EventRoutesChanged, "ingress routes updated", map[string]string{
			"added":   fmt.Sprint(result.Added),
			"updated": fmt.Sprint(result.Updated),
			"removed": fmt.Sprint(result.Removed),
		})
	}

	published, err := r.routes.Published()
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to list published routes")
		return
	}
	names := make([]string, 0, len(published))
	for _, route := range published {
		names = append(names, route.Name)
	}
	sort.Strings(names)
	p.report.Routes = names
	metrics.RoutesPublished.Set(float64(len(names)))
}

// apply hands wc to the applier and returns the AppliedState afterwards
func (r *Reconciler) apply(ctx context.Context, p *pass, wc types.WorkloadConfig) *types.AppliedState {
	var material certs.Material
	if wc.TLS.Enabled {
		m, err := r.certs.Material(wc.TLS.Certificate)
		if err != nil {
			// Followers wait for the leader to share the key
			p.fail("tls-material", types.NewTransient("load private key", err))
			return r.currentApplied(p)
		}
		material = m
	}

	result, err := r.applier.Apply(ctx, wc, material)
	switch {
	case err != nil:
		metrics.AppliesTotal.WithLabelValues("failed").Inc()
		p.fail("apply", err)
	case result.Applied:
		metrics.AppliesTotal.WithLabelValues("applied").Inc()
		r.publishEvent(events.EventConfigApplied, "configuration applied", map[string]string{
			"version":   fmt.Sprint(result.Version),
			"hash":      result.Hash,
			"restarted": fmt.Sprint(result.Restarted),
		})
	default:
		metrics.AppliesTotal.WithLabelValues("unchanged").Inc()
	}
	return r.currentApplied(p)
}

func (r *Reconciler) currentApplied(p *pass) *types.AppliedState {
	current, err := r.applier.Current()
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to read applied state")
		return nil
	}
	return current
}

// peerUnits is the peer view with this unit's own entry
func (r *Reconciler) peerUnits(states types.AllRelationStates, applied *types.AppliedState) []types.PeerUnit {
	self := types.PeerUnit{ID: r.cfg.Unit.ID, Address: r.cfg.Unit.Address}
	if applied != nil {
		self.LastSeenVersion = applied.Version
	}

	units := []types.PeerUnit{self}
	if states.Peers.IsPresent() {
		for _, u := range states.Peers.Payload.Units {
			if u.ID != self.ID {
				units = append(units, u)
			}
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units
}

// finish records the pass outcome in the report, metrics and events
func (r *Reconciler) finish(p *pass) types.StatusReport {
	p.report.Status = p.status
	p.report.LastPass = p.start

	r.mu.Lock()
	wasLeader := r.report.Leader
	firstPass := r.report.Passes == 0
	p.report.Passes = r.report.Passes + 1
	r.report = p.report
	report := cloneReport(r.report)
	r.mu.Unlock()

	metrics.PassesTotal.WithLabelValues(string(p.status.Level)).Inc()
	metrics.ConfigVersion.Set(float64(report.Version))
	metrics.ReceiversEnabled.Set(float64(len(report.Receivers)))
	metrics.SetBool(metrics.TLSEnabled, report.TLS)
	metrics.SetBool(metrics.IsLeader, report.Leader)
	if report.CertNotAfter != nil {
		metrics.CertificateExpiry.Set(float64(report.CertNotAfter.Unix()))
	} else {
		metrics.CertificateExpiry.Set(0)
	}
	metrics.UpdateComponent("reconciler", p.status.Level != types.StatusBlocked, p.status.Message)

	if report.Leader != wasLeader || (firstPass && report.Leader) {
		if report.Leader {
			r.publishEvent(events.EventLeaderElected, r.cfg.Unit.ID+" is leader", nil)
		} else {
			r.publishEvent(events.EventLeaderLost, r.cfg.Unit.ID+" is no longer leader", nil)
		}
	}

	evt := events.EventPassCompleted
	if p.status.Level == types.StatusDegraded || p.status.Level == types.StatusBlocked {
		evt = events.EventPassFailed
	}
	r.publishEvent(evt, string(p.status.Level), map[string]string{
		"pass_id": p.id,
		"reason":  p.reason,
		"message": p.status.Message,
	})

	p.logger.Info().
		Str("status", string(p.status.Level)).
		Str("message", p.status.Message).
		Uint64("version", report.Version).
		Bool("leader", report.Leader).
		Bool("tls", report.TLS).
		Int("receivers", len(report.Receivers)).
		Int("routes", len(report.Routes)).
		Dur("duration", r.now().Sub(p.start)).
		Msg("pass finished")

	if r.onReport != nil {
		r.onReport(report)
	}
	return report
}
