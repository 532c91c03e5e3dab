package httpsig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStoreLookup(t *testing.T) {
	publicPEM, _ := generateEd25519Pair(t)
	keys, err := NewKeyStore([]AgentKeyConfig{{
		AgentID:      testAgentID,
		Name:         "Example Shopper",
		Algorithm:    AlgorithmEd25519,
		PublicKeyPEM: publicPEM,
	}})
	require.NoError(t, err)

	key, ok := keys.Lookup(testAgentID)
	assert.True(t, ok)
	assert.Equal(t, "Example Shopper", key.Name)
	assert.Equal(t, AlgorithmEd25519, key.Algorithm)
	assert.NotNil(t, key.PublicKey)

	_, ok = keys.Lookup("https://agents.example.com/stranger")
	assert.False(t, ok)
}

func TestKeyStoreSwap(t *testing.T) {
	firstPEM, _ := generateEd25519Pair(t)
	secondPEM, _ := generateEd25519Pair(t)

	keys, err := NewKeyStore([]AgentKeyConfig{{
		AgentID:      testAgentID,
		Algorithm:    AlgorithmEd25519,
		PublicKeyPEM: firstPEM,
	}})
	require.NoError(t, err)

	err = keys.Swap([]AgentKeyConfig{{
		AgentID:      "https://agents.example.com/other",
		Algorithm:    AlgorithmEd25519,
		PublicKeyPEM: secondPEM,
	}})
	require.NoError(t, err)

	_, ok := keys.Lookup(testAgentID)
	assert.False(t, ok, "old entry should be gone after swap")
	_, ok = keys.Lookup("https://agents.example.com/other")
	assert.True(t, ok)
}

func TestKeyStoreRejectsBadConfig(t *testing.T) {
	edPEM, _ := generateEd25519Pair(t)
	rsaPEM, _ := generateRSAPair(t)

	tests := map[string]AgentKeyConfig{
		"missing agent id": {
			Algorithm:    AlgorithmEd25519,
			PublicKeyPEM: edPEM,
		},
		"not pem": {
			AgentID:      testAgentID,
			Algorithm:    AlgorithmEd25519,
			PublicKeyPEM: "not a key",
		},
		"algorithm and key type mismatch": {
			AgentID:      testAgentID,
			Algorithm:    AlgorithmRSAPSSSHA256,
			PublicKeyPEM: edPEM,
		},
		"ed25519 declared for rsa key": {
			AgentID:      testAgentID,
			Algorithm:    AlgorithmEd25519,
			PublicKeyPEM: rsaPEM,
		},
		"unsupported algorithm": {
			AgentID:      testAgentID,
			Algorithm:    Algorithm("hmac-sha256"),
			PublicKeyPEM: edPEM,
		},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewKeyStore([]AgentKeyConfig{cfg})
			assert.Error(t, err)
		})
	}
}
