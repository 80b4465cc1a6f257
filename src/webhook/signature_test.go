package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","event":"sync.completed","timestamp":"2026-08-25T12:00:00Z","version":"1.0","data":{}}`)

	signature := Sign(payload, "topsecret")
	require.True(t, strings.HasPrefix(signature, "sha256="))
	require.True(t, Verify(payload, signature, "topsecret"))
}

func TestVerifyRejectsMutatedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1","event":"sync.completed"}`)
	signature := Sign(payload, "topsecret")

	// Any single-byte mutation must break verification.
	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		require.False(t, Verify(mutated, signature, "topsecret"), "mutation at byte %d verified", i)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	signature := Sign(payload, "topsecret")

	require.False(t, Verify(payload, signature, "othersecret"))
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)

	require.False(t, Verify(payload, "", "topsecret"))
	require.False(t, Verify(payload, "sha256=deadbeef", "topsecret"))
}
