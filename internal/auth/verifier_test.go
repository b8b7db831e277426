package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vspcbal/internal/config"
)

func TestDevTokens(t *testing.T) {
	v := NewVerifier(config.AuthConfig{})
	p, err := v.Verify("denver:Planner")
	require.NoError(t, err)
	assert.Equal(t, Principal{Tenant: "denver", Role: RolePlanner}, p)
	assert.True(t, p.CanPlan())
	assert.False(t, p.IsAdmin())

	p, err = v.Verify("denver:")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, p.Role)
	assert.False(t, p.CanPlan())

	_, err = v.Verify("denver")
	assert.Error(t, err)
}

func TestHMACTokens(t *testing.T) {
	secret := []byte("s3cret")
	v := NewVerifier(config.AuthConfig{Mode: "hmac", HMACSecret: string(secret), TenantClaim: "org"})
	v.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	tok, err := SignHS256(secret, map[string]any{"org": "boulder", "role": "admin", "exp": 1_700_000_100})
	require.NoError(t, err)
	p, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{Tenant: "boulder", Role: RoleAdmin}, p)

	forged, err := SignHS256([]byte("other"), map[string]any{"org": "boulder", "role": "admin"})
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.ErrorIs(t, err, ErrBadSignature)

	expired, err := SignHS256(secret, map[string]any{"org": "boulder", "exp": 1_699_999_999})
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrExpired)

	noTenant, err := SignHS256(secret, map[string]any{"role": "admin"})
	require.NoError(t, err)
	_, err = v.Verify(noTenant)
	assert.Error(t, err)

	_, err = v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestUnknownMode(t *testing.T) {
	v := NewVerifier(config.AuthConfig{Mode: "jwks"})
	_, err := v.Verify("x")
	assert.Error(t, err)
}
