package certs

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/atomicwriter"
)

// RefPrefix prefixes private key references resolved by a KeyStore
const RefPrefix = "file:"

// KeyStore keeps private keys as PEM files in one directory.
// Keys are written atomically with owner-only permissions.
type KeyStore struct {
	dir string
}

// NewKeyStore returns a KeyStore rooted at dir
func NewKeyStore(dir string) *KeyStore {
	return &KeyStore{dir: dir}
}

// Ref returns the private key reference for a key name
func Ref(name string) string {
	return RefPrefix + name
}

func (k *KeyStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid key name %q", name)
	}
	return filepath.Join(k.dir, name+".pem"), nil
}

// Put stores a PEM encoded key and returns its reference
func (k *KeyStore) Put(name string, keyPEM []byte) (string, error) {
	path, err := k.path(name)
	if err != nil {
		return "", err
	}
	if existing, err := os.ReadFile(path); err == nil && string(existing) == string(keyPEM) {
		return Ref(name), nil
	}
	if err := os.MkdirAll(k.dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := atomicwriter.WriteFile(path, keyPEM, 0o600); err != nil {
		return "", fmt.Errorf("failed to write key %s: %w", name, err)
	}
	return Ref(name), nil
}

// Get resolves a reference to the PEM encoded key
func (k *KeyStore) Get(ref string) ([]byte, error) {
	name, ok := strings.CutPrefix(ref, RefPrefix)
	if !ok {
		return nil, fmt.Errorf("unsupported private key reference %q", ref)
	}
	path, err := k.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", name, err)
	}
	return data, nil
}

// Has reports whether ref resolves to a stored key
func (k *KeyStore) Has(ref string) bool {
	_, err := k.Get(ref)
	return err == nil
}

// Sync stores every key of a published key set
func (k *KeyStore) Sync(keys map[string]string) error {
	for name, keyPEM := range keys {
		if _, err := k.Put(name, []byte(keyPEM)); err != nil {
			return err
		}
	}
	return nil
}

// GenerateKey creates a new P-256 private key and its PEM encoding
func GenerateKey() (crypto.Signer, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return key, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParseKey decodes a PEM encoded PKCS#8, PKCS#1 or EC private key
func ParseKey(keyPEM []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("private key of type %T cannot sign", key)
	}
	return signer, nil
}
