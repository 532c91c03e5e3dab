package httpsig

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync/atomic"
)

// AgentKeyConfig declares one trusted agent at startup.
type AgentKeyConfig struct {
	// AgentID is the agent identifier URI presented in Signature-Agent.
	AgentID string
	// Name is the human-readable label surfaced on trust decisions.
	Name string
	// Algorithm the agent signs with.
	Algorithm Algorithm
	// PublicKeyPEM holds the PEM-encoded PKIX public key.
	PublicKeyPEM string
}

// TrustedAgentKey is an immutable keystore entry. Entries are looked up by
// agent identifier, never by key material.
type TrustedAgentKey struct {
	AgentID   string
	Name      string
	Algorithm Algorithm
	PublicKey crypto.PublicKey
}

// KeyStore holds the trusted agent keys. Lookups are read-only at request
// time; Swap replaces the whole table atomically so hot reloads never
// interrupt in-flight verifications.
type KeyStore struct {
	table atomic.Pointer[map[string]TrustedAgentKey]
}

// NewKeyStore builds a KeyStore from startup configuration, parsing and
// validating every public key up front.
func NewKeyStore(configs []AgentKeyConfig) (*KeyStore, error) {
	s := &KeyStore{}
	if err := s.Swap(configs); err != nil {
		return nil, err
	}
	return s, nil
}

// Lookup returns the trusted key for an agent identifier.
func (s *KeyStore) Lookup(agentID string) (TrustedAgentKey, bool) {
	table := s.table.Load()
	if table == nil {
		return TrustedAgentKey{}, false
	}
	key, ok := (*table)[agentID]
	return key, ok
}

// Swap atomically replaces the trusted agent table. Verifications already
// holding the previous table are unaffected.
func (s *KeyStore) Swap(configs []AgentKeyConfig) error {
	table := make(map[string]TrustedAgentKey, len(configs))
	for _, cfg := range configs {
		if cfg.AgentID == "" {
			return fmt.Errorf("httpsig: agent identifier is required")
		}
		key, err := parsePublicKey(cfg.Algorithm, cfg.PublicKeyPEM)
		if err != nil {
			return fmt.Errorf("httpsig: agent %s: %w", cfg.AgentID, err)
		}
		table[cfg.AgentID] = TrustedAgentKey{
			AgentID:   cfg.AgentID,
			Name:      cfg.Name,
			Algorithm: cfg.Algorithm,
			PublicKey: key,
		}
	}
	s.table.Store(&table)
	return nil
}

func parsePublicKey(alg Algorithm, pemData string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in public key material")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	switch alg {
	case AlgorithmRSAPSSSHA256:
		if _, ok := key.(*rsa.PublicKey); !ok {
			return nil, fmt.Errorf("algorithm %s requires an RSA public key, got %T", alg, key)
		}
	case AlgorithmEd25519:
		if _, ok := key.(ed25519.PublicKey); !ok {
			return nil, fmt.Errorf("algorithm %s requires an Ed25519 public key, got %T", alg, key)
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
	return key, nil
}
