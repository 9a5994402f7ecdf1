package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testStateKey = []byte("fedcba9876543210fedcba9876543210")

func TestStateCodecRoundTrip(t *testing.T) {
	codec, err := NewStateCodec(testStateKey, time.Minute, nil)
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{
		Provider:  "GitHub",
		ReturnURL: "/dashboard",
		Nonce:     "nonce",
		PKCE:      "verifier",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotContains(t, token, "verifier")

	payload, err := codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, "github", payload.Provider)
	require.Equal(t, "/dashboard", payload.ReturnURL)
	require.Equal(t, "nonce", payload.Nonce)
	require.Equal(t, "verifier", payload.PKCE)
}

func TestStateCodecExpired(t *testing.T) {
	clock := newTestClock()
	codec, err := NewStateCodec(testStateKey, time.Minute, clock.Now)
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{Provider: "gitlab", Nonce: "n", PKCE: "p"})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = codec.Decode(token)
	require.ErrorIs(t, err, ErrOAuthState)
}

func TestStateCodecRejectsTampering(t *testing.T) {
	codec, err := NewStateCodec(testStateKey, time.Minute, nil)
	require.NoError(t, err)

	other, err := NewStateCodec([]byte("0000000000000000"), time.Minute, nil)
	require.NoError(t, err)
	foreign, err := other.Encode(StatePayload{Provider: "google", Nonce: "n"})
	require.NoError(t, err)

	for _, token := range []string{"", "not-a-state", foreign} {
		_, err := codec.Decode(token)
		require.ErrorIs(t, err, ErrOAuthState)
	}

	_, err = codec.Encode(StatePayload{})
	require.Error(t, err)

	_, err = NewStateCodec([]byte("short"), time.Minute, nil)
	require.Error(t, err)
}
