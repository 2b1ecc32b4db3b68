package certs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/cuemby/tempo-operator/pkg/config"
	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/storage"
	"github.com/cuemby/tempo-operator/pkg/types"
)

const (
	retainedKey = "retained"
	pendingKey  = "pending-key"
)

// Options controls renewal policy
type Options struct {
	// RelationIssued is true when certificates come from the certificates
	// relation rather than from a local issuer
	RelationIssued  bool
	RenewalFraction float64
	IssueTimeout    time.Duration
	RetryAttempts   uint
	RetryDelay      time.Duration
	RetryMaxDelay   time.Duration
	CommonName      string
	DNSNames        []string
}

// OptionsFromConfig derives renewal options from the static configuration
func OptionsFromConfig(cfg *config.Config) Options {
	dnsNames := []string{cfg.Unit.Address}
	dnsNames = append(dnsNames, cfg.Certificates.ACME.Domains...)
	return Options{
		RelationIssued:  cfg.Certificates.Issuer == "relation",
		RenewalFraction: cfg.Certificates.RenewalFraction,
		IssueTimeout:    cfg.Certificates.IssueTimeout,
		RetryAttempts:   cfg.Certificates.RetryAttempts,
		RetryDelay:      cfg.Certificates.RetryDelay,
		RetryMaxDelay:   cfg.Certificates.RetryMaxDelay,
		CommonName:      cfg.Unit.App,
		DNSNames:        dnsNames,
	}
}

// RenewResult is the outcome of a renewal attempt on the leader. Keys must
// be published to peers even when the certificate is still pending.
type RenewResult struct {
	Certificate *types.CertificatePayload
	Keys        map[string]string
	Pending     bool
}

// Manager resolves the effective certificate of a pass and renews it
type Manager struct {
	opts   Options
	issuer Issuer
	keys   *KeyStore
	store  storage.Store
	logger zerolog.Logger
}

// NewManager creates a certificate manager
func NewManager(opts Options, issuer Issuer, keys *KeyStore, store storage.Store) *Manager {
	return &Manager{
		opts:   opts,
		issuer: issuer,
		keys:   keys,
		store:  store,
		logger: log.WithComponent("certs"),
	}
}

// Keys returns the key store used to resolve private key references
func (m *Manager) Keys() *KeyStore {
	return m.keys
}

// Resolve picks the certificate the workload should serve this pass:
//
//  1. the certificates relation payload when Present
//  2. the certificate published by the leader in peer storage
//  3. while the relation is Invalid, the last valid certificate until it expires
//
// The returned status reports pending renewal and expiry. The chosen
// certificate is retained for later passes.
func (m *Manager) Resolve(rel types.RelationState[types.CertificatePayload], shared *types.PeerSnapshot, now time.Time) (types.RelationState[types.CertificatePayload], types.UnitStatus) {
	return m.resolve(rel, shared, now, true)
}

// Effective is Resolve without retaining anything. Read-only callers use it
// outside a reconciliation pass.
func (m *Manager) Effective(rel types.RelationState[types.CertificatePayload], shared *types.PeerSnapshot, now time.Time) (types.RelationState[types.CertificatePayload], types.UnitStatus) {
	return m.resolve(rel, shared, now, false)
}

func (m *Manager) resolve(rel types.RelationState[types.CertificatePayload], shared *types.PeerSnapshot, now time.Time, retain bool) (types.RelationState[types.CertificatePayload], types.UnitStatus) {
	if rel.IsPresent() {
		if retain {
			m.retain(rel.Payload)
		}
		return rel, m.windowStatus(rel.Payload, now)
	}

	if !m.opts.RelationIssued && shared != nil && shared.Certificate != nil && !shared.Certificate.Expired(now) {
		cert := *shared.Certificate
		if retain {
			m.retain(cert)
		}
		return types.PresentState(cert), m.windowStatus(cert, now)
	}

	if rel.Presence == types.Invalid {
		retained, err := m.store.GetCertificate(retainedKey)
		if err == nil {
			if !retained.Expired(now) {
				return types.PresentState(*retained), types.UnitStatus{
					Level: types.StatusWaiting,
					Message: fmt.Sprintf("renewal pending: certificates relation invalid (%s), serving certificate valid until %s",
						rel.Reason, retained.NotAfter.Format(time.RFC3339)),
				}
			}
			return rel, types.UnitStatus{
				Level:   types.StatusDegraded,
				Message: fmt.Sprintf("certificate expired at %s, tls disabled", retained.NotAfter.Format(time.RFC3339)),
			}
		}
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn().Err(err).Msg("failed to read retained certificate")
		}
	}

	return rel, types.UnitStatus{Level: types.StatusActive}
}

func (m *Manager) windowStatus(cert types.CertificatePayload, now time.Time) types.UnitStatus {
	if InRenewalWindow(cert, m.opts.RenewalFraction, now) {
		return types.UnitStatus{
			Level:   types.StatusActive,
			Message: "certificate renewal due, expires " + cert.NotAfter.Format(time.RFC3339),
		}
	}
	return types.UnitStatus{Level: types.StatusActive}
}

func (m *Manager) retain(cert types.CertificatePayload) {
	if existing, err := m.store.GetCertificate(retainedKey); err == nil && *existing == cert {
		return
	}
	if err := m.store.SaveCertificate(retainedKey, &cert); err != nil {
		m.logger.Warn().Err(err).Msg("failed to retain certificate")
	}
}

// RenewalDue reports whether a new certificate should be requested
func (m *Manager) RenewalDue(rel, effective types.RelationState[types.CertificatePayload], now time.Time) bool {
	if m.opts.RelationIssued {
		switch rel.Presence {
		case types.Invalid:
			return true
		case types.Present:
			return InRenewalWindow(rel.Payload, m.opts.RenewalFraction, now)
		default:
			// The provider signs only after it has seen a request.
			return rel.Related
		}
	}

	if rel.IsPresent() {
		return false
	}
	if !effective.IsPresent() {
		return true
	}
	return InRenewalWindow(effective.Payload, m.opts.RenewalFraction, now)
}

// Renew requests a certificate when renewal is due. Only the leader
// requests; followers return nil and wait for the leader's publication.
// Issuance is bounded by the issue timeout and retried with backoff
// inside that bound.
func (m *Manager) Renew(ctx context.Context, rel, effective types.RelationState[types.CertificatePayload], isLeader bool, now time.Time) (*RenewResult, error) {
	if !m.RenewalDue(rel, effective, now) {
		return nil, nil
	}
	if !isLeader {
		m.logger.Debug().Msg("certificate renewal due, waiting for leader")
		return nil, nil
	}

	keyName, keyPEM, err := m.pendingKey(now)
	if err != nil {
		return nil, err
	}
	signer, err := ParseKey(keyPEM)
	if err != nil {
		return nil, err
	}

	req := Request{
		CommonName: m.opts.CommonName,
		DNSNames:   m.opts.DNSNames,
		Key:        signer,
		KeyRef:     Ref(keyName),
	}
	result := &RenewResult{Keys: map[string]string{keyName: string(keyPEM)}}

	ctx, cancel := context.WithTimeout(ctx, m.opts.IssueTimeout)
	defer cancel()

	m.logger.Info().Str("issuer", m.issuer.Name()).Str("subject", describe(req)).Msg("requesting certificate")

	var cert *types.CertificatePayload
	err = retry.Do(
		func() error {
			c, err := m.issuer.Issue(ctx, req)
			if err != nil {
				return err
			}
			cert = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(m.opts.RetryAttempts),
		retry.Delay(m.opts.RetryDelay),
		retry.MaxDelay(m.opts.RetryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrIssuancePending)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			m.logger.Warn().Err(err).Uint("attempt", attempt+1).Msg("certificate issuance failed, retrying")
		}),
	)

	switch {
	case errors.Is(err, ErrIssuancePending):
		result.Pending = true
		return result, nil
	case err != nil:
		return result, types.NewTransient("issue certificate", err)
	}

	if err := m.store.DeleteCertificate(pendingKey); err != nil {
		m.logger.Warn().Err(err).Msg("failed to clear pending key")
	}
	m.logger.Info().Time("not_after", cert.NotAfter).Msg("certificate issued")

	result.Certificate = cert
	return result, nil
}

// pendingKey returns the key of the outstanding request, creating one if
// none exists. Reusing it keeps repeated requests for the same CSR stable.
func (m *Manager) pendingKey(now time.Time) (string, []byte, error) {
	if pending, err := m.store.GetCertificate(pendingKey); err == nil {
		if keyPEM, err := m.keys.Get(pending.PrivateKeyRef); err == nil {
			return pending.PrivateKeyRef[len(RefPrefix):], keyPEM, nil
		}
	}

	_, keyPEM, err := GenerateKey()
	if err != nil {
		return "", nil, err
	}
	name := fmt.Sprintf("tls-%d", now.UnixNano())
	ref, err := m.keys.Put(name, keyPEM)
	if err != nil {
		return "", nil, err
	}
	if err := m.store.SaveCertificate(pendingKey, &types.CertificatePayload{PrivateKeyRef: ref}); err != nil {
		return "", nil, fmt.Errorf("failed to record pending key: %w", err)
	}
	return name, keyPEM, nil
}

// Material returns the PEM files the workload serves for cert
func (m *Manager) Material(cert *types.CertificatePayload) (Material, error) {
	if cert == nil {
		return Material{}, nil
	}
	key, err := m.keys.Get(cert.PrivateKeyRef)
	if err != nil {
		return Material{}, err
	}
	return Material{
		Chain: []byte(cert.ChainPEM),
		Key:   key,
		CA:    []byte(cert.CABundlePEM),
	}, nil
}

// Material is TLS material ready to be written to disk
type Material struct {
	Chain []byte
	Key   []byte
	CA    []byte
}

// Empty reports whether there is no material to serve
func (m Material) Empty() bool {
	return len(m.Chain) == 0
}
