package certs

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/relation"
	"github.com/cuemby/tempo-operator/pkg/types"
)

// ACMEUser implements the required user interface for ACME registration
type ACMEUser struct {
	Email        string
	Registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *ACMEUser) GetEmail() string {
	return u.Email
}

func (u *ACMEUser) GetRegistration() *registration.Resource {
	return u.Registration
}

func (u *ACMEUser) GetPrivateKey() crypto.PrivateKey {
	return u.key
}

// HTTP01Provider implements the lego HTTP-01 challenge provider and serves
// the pending challenges over HTTP
type HTTP01Provider struct {
	mu sync.RWMutex
	// Map of domain -> (token -> keyAuth)
	challenges map[string]map[string]string
}

// NewHTTP01Provider creates a new HTTP-01 challenge provider
func NewHTTP01Provider() *HTTP01Provider {
	return &HTTP01Provider{
		challenges: make(map[string]map[string]string),
	}
}

// Present stores the challenge until CleanUp
func (p *HTTP01Provider) Present(domain, token, keyAuth string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.challenges[domain] == nil {
		p.challenges[domain] = make(map[string]string)
	}
	p.challenges[domain][token] = keyAuth

	log.Logger.Info().Str("domain", domain).Msg("presenting ACME challenge")
	return nil
}

// CleanUp removes the HTTP-01 challenge after verification
func (p *HTTP01Provider) CleanUp(domain, token, keyAuth string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if domainChallenges, exists := p.challenges[domain]; exists {
		delete(domainChallenges, token)
		if len(domainChallenges) == 0 {
			delete(p.challenges, domain)
		}
	}
	return nil
}

// GetKeyAuth retrieves the key authorization for a given domain and token
func (p *HTTP01Provider) GetKeyAuth(domain, token string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if domainChallenges, exists := p.challenges[domain]; exists {
		keyAuth, ok := domainChallenges[token]
		return keyAuth, ok
	}
	return "", false
}

const challengePrefix = "/.well-known/acme-challenge/"

// ServeHTTP answers HTTP-01 challenge requests
func (p *HTTP01Provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.URL.Path, challengePrefix)
	if !ok || token == "" {
		http.NotFound(w, r)
		return
	}

	host := r.Host
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}

	keyAuth, ok := p.GetKeyAuth(host, token)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(keyAuth))
}

// ACMEIssuer obtains certificates from an ACME directory using HTTP-01
type ACMEIssuer struct {
	email        string
	directoryURL string
	domains      []string
	provider     *HTTP01Provider

	mu     sync.Mutex
	client *lego.Client
}

// NewACMEIssuer creates an ACME issuer. Registration happens on the first
// issuance so that construction never touches the network.
func NewACMEIssuer(email, directoryURL string, domains []string, provider *HTTP01Provider) *ACMEIssuer {
	return &ACMEIssuer{
		email:        email,
		directoryURL: directoryURL,
		domains:      domains,
		provider:     provider,
	}
}

func (a *ACMEIssuer) Name() string { return "acme" }

func (a *ACMEIssuer) register() (*lego.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	// Generate private key for ACME account
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	user := &ACMEUser{
		Email: a.email,
		key:   privateKey,
	}

	config := lego.NewConfig(user)
	config.CADirURL = a.directoryURL
	config.Certificate.KeyType = certcrypto.EC256

	client, err := lego.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create lego client: %w", err)
	}

	if err := client.Challenge.SetHTTP01Provider(a.provider); err != nil {
		return nil, fmt.Errorf("failed to set HTTP-01 provider: %w", err)
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("failed to register with ACME server: %w", err)
	}
	user.Registration = reg

	log.Logger.Info().Str("email", a.email).Msg("ACME account registered")

	a.client = client
	return client, nil
}

// Issue obtains a certificate for the configured domains. The lego client
// has no context support, so the call runs in a goroutine and Issue
// returns when ctx expires even if the ACME exchange is still running.
func (a *ACMEIssuer) Issue(ctx context.Context, req Request) (*types.CertificatePayload, error) {
	type result struct {
		cert *types.CertificatePayload
		err  error
	}
	done := make(chan result, 1)

	go func() {
		cert, err := a.obtain(req)
		done <- result{cert, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.cert, r.err
	}
}

func (a *ACMEIssuer) obtain(req Request) (*types.CertificatePayload, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	client, err := a.register()
	if err != nil {
		return nil, err
	}

	domains := a.domains
	if len(domains) == 0 {
		domains = req.DNSNames
	}
	if len(domains) == 0 {
		return nil, fmt.Errorf("no domains to request a certificate for")
	}

	log.Logger.Info().Strs("domains", domains).Msg("requesting ACME certificate")

	resource, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains:    domains,
		Bundle:     true,
		PrivateKey: req.Key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to obtain certificate: %w", err)
	}

	leaf, err := relation.ParseLeaf(string(resource.Certificate))
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	log.Logger.Info().Strs("domains", domains).Time("not_after", leaf.NotAfter).Msg("ACME certificate obtained")

	return &types.CertificatePayload{
		ChainPEM:      string(resource.Certificate),
		PrivateKeyRef: req.KeyRef,
		CABundlePEM:   string(resource.IssuerCertificate),
		NotBefore:     leaf.NotBefore.UTC(),
		NotAfter:      leaf.NotAfter.UTC(),
	}, nil
}
