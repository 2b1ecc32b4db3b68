package certs

import (
	"time"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// RenewAt returns the instant after which cert should be renewed:
// NotBefore plus fraction of the validity period
func RenewAt(cert types.CertificatePayload, fraction float64) time.Time {
	validity := cert.NotAfter.Sub(cert.NotBefore)
	return cert.NotBefore.Add(time.Duration(float64(validity) * fraction))
}

// InRenewalWindow reports whether cert is due for renewal at now
func InRenewalWindow(cert types.CertificatePayload, fraction float64, now time.Time) bool {
	return !now.Before(RenewAt(cert, fraction))
}
