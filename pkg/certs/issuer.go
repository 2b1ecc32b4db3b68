package certs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// ErrIssuancePending is returned when a certificate was requested but
// will arrive later, e.g. over the certificates relation
var ErrIssuancePending = errors.New("certificate issuance pending")

// Request describes the certificate wanted for the workload
type Request struct {
	CommonName  string
	DNSNames    []string
	IPAddresses []net.IP

	// Key is the private key the certificate must certify. KeyRef is the
	// reference recorded in the issued payload.
	Key    crypto.Signer
	KeyRef string
}

// Issuer obtains a certificate for a request
type Issuer interface {
	Name() string
	Issue(ctx context.Context, req Request) (*types.CertificatePayload, error)
}

// Publisher publishes an outgoing databag
type Publisher interface {
	Publish(kind types.RelationKind, name string, bag types.Databag) (bool, error)
}

// RelationIssuer requests certificates from the certificates relation
// provider by publishing a CSR. The signed chain arrives later as
// relation data, so Issue always returns ErrIssuancePending.
type RelationIssuer struct {
	outbox Publisher
	name   string
}

// NewRelationIssuer returns an issuer publishing its CSR under name
func NewRelationIssuer(outbox Publisher, name string) *RelationIssuer {
	return &RelationIssuer{outbox: outbox, name: name}
}

func (r *RelationIssuer) Name() string { return "relation" }

// Issue publishes the certificate signing request
func (r *RelationIssuer) Issue(ctx context.Context, req Request) (*types.CertificatePayload, error) {
	csrPEM, err := CreateCSR(req)
	if err != nil {
		return nil, err
	}

	sans, _ := json.Marshal(req.DNSNames)
	bag := types.Databag{
		"csr":             string(csrPEM),
		"common-name":     req.CommonName,
		"sans":            string(sans),
		"private-key-ref": req.KeyRef,
	}
	if _, err := r.outbox.Publish(types.RelationCertificates, r.name, bag); err != nil {
		return nil, fmt.Errorf("publish certificate request: %w", err)
	}
	return nil, ErrIssuancePending
}

// CreateCSR builds a PEM encoded certificate signing request for req
func CreateCSR(req Request) ([]byte, error) {
	if req.Key == nil {
		return nil, fmt.Errorf("certificate request without key")
	}
	tmpl := &x509.CertificateRequest{
		Subject:     pkix.Name{CommonName: req.CommonName},
		DNSNames:    req.DNSNames,
		IPAddresses: req.IPAddresses,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, tmpl, req.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate request: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}

func encodeCert(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func hostsFor(req Request) []string {
	hosts := append([]string(nil), req.DNSNames...)
	for _, ip := range req.IPAddresses {
		hosts = append(hosts, ip.String())
	}
	return hosts
}

func describe(req Request) string {
	return req.CommonName + " [" + strings.Join(hostsFor(req), ",") + "]"
}
