package certs

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/relation"
	"github.com/cuemby/tempo-operator/pkg/storage"
	"github.com/cuemby/tempo-operator/pkg/types"
)

const (
	// Root CA validity: 10 years
	rootCAValidity = 10 * 365 * 24 * time.Hour

	caStoreKey = "self-signed-ca"
	caKeyName  = "self-signed-ca"
)

// SelfSignedIssuer signs workload certificates with a local root CA. The
// CA is created on first use and persisted, so later issuances chain to
// the same root.
type SelfSignedIssuer struct {
	store    storage.Store
	keys     *KeyStore
	validity time.Duration
	now      func() time.Time

	mu       sync.Mutex
	rootCert *x509.Certificate
	rootKey  any
}

// NewSelfSignedIssuer creates an issuer that keeps its CA in store and keys
func NewSelfSignedIssuer(store storage.Store, keys *KeyStore, validity time.Duration) *SelfSignedIssuer {
	return &SelfSignedIssuer{
		store:    store,
		keys:     keys,
		validity: validity,
		now:      time.Now,
	}
}

func (s *SelfSignedIssuer) Name() string { return "self-signed" }

// initialize loads the root CA from storage or generates a new one
func (s *SelfSignedIssuer) initialize() error {
	if s.rootCert != nil {
		return nil
	}

	stored, err := s.store.GetCertificate(caStoreKey)
	switch {
	case err == nil:
		cert, err := relation.ParseLeaf(stored.ChainPEM)
		if err != nil {
			return fmt.Errorf("failed to parse root certificate: %w", err)
		}
		keyPEM, err := s.keys.Get(stored.PrivateKeyRef)
		if err != nil {
			return fmt.Errorf("failed to load root key: %w", err)
		}
		key, err := ParseKey(keyPEM)
		if err != nil {
			return err
		}
		s.rootCert, s.rootKey = cert, key
		return nil
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to get CA from storage: %w", err)
	}

	// Generate root key
	rootKey, rootKeyPEM, err := GenerateKey()
	if err != nil {
		return err
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := s.now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Tempo Operator"},
			CommonName:   "Tempo Operator Root CA",
		},
		NotBefore:             now,
		NotAfter:              now.Add(rootCAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, rootKey.Public(), rootKey)
	if err != nil {
		return fmt.Errorf("failed to create root certificate: %w", err)
	}
	rootCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("failed to parse root certificate: %w", err)
	}

	ref, err := s.keys.Put(caKeyName, rootKeyPEM)
	if err != nil {
		return err
	}
	err = s.store.SaveCertificate(caStoreKey, &types.CertificatePayload{
		ChainPEM:      encodeCert(certDER),
		PrivateKeyRef: ref,
		NotBefore:     rootCert.NotBefore,
		NotAfter:      rootCert.NotAfter,
	})
	if err != nil {
		return fmt.Errorf("failed to save CA to storage: %w", err)
	}

	log.Logger.Info().Time("not_after", rootCert.NotAfter).Msg("created self-signed root CA")

	s.rootCert, s.rootKey = rootCert, rootKey
	return nil
}

// Issue signs a server certificate for req
func (s *SelfSignedIssuer) Issue(ctx context.Context, req Request) (*types.CertificatePayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Key == nil {
		return nil, fmt.Errorf("certificate request without key")
	}
	if err := s.initialize(); err != nil {
		return nil, err
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := s.now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Tempo Operator"},
			CommonName:   req.CommonName,
		},
		NotBefore:   now,
		NotAfter:    now.Add(s.validity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    req.DNSNames,
		IPAddresses: req.IPAddresses,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, s.rootCert, req.Key.Public(), s.rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &types.CertificatePayload{
		ChainPEM:      encodeCert(certDER),
		PrivateKeyRef: req.KeyRef,
		CABundlePEM:   encodeCert(s.rootCert.Raw),
		NotBefore:     cert.NotBefore.UTC(),
		NotAfter:      cert.NotAfter.UTC(),
	}, nil
}

// RootCertificate returns the root CA certificate in DER format, or nil
// before the first issuance
func (s *SelfSignedIssuer) RootCertificate() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rootCert == nil {
		return nil
	}
	return s.rootCert.Raw
}
