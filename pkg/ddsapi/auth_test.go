package ddsapi

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke-gcb/ddsclient/pkg/config"
)

type stubClaimer struct {
	clock  clockwork.Clock
	ttl    time.Duration
	claims int
}

func (s *stubClaimer) claimToken(agentKey, userKey string) (string, time.Time, error) {
	s.claims++
	return fmt.Sprintf("tok%d", s.claims), s.clock.Now().Add(s.ttl), nil
}

func TestAuthReclaimsNearExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	claimer := &stubClaimer{clock: clock, ttl: 10 * time.Minute}
	auth := newAuth(&config.Config{AgentKey: "a", UserKey: "u"}, claimer, clock)

	token, err := auth.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok1", token)

	// Still comfortably before expiry, so the cached token is reused.
	clock.Advance(2 * time.Minute)
	token, err = auth.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok1", token)

	// Within the skew window of expiry a fresh token is claimed.
	clock.Advance(4 * time.Minute)
	token, err = auth.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok2", token)
}

func TestAuthLegacyToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	claimer := &stubClaimer{clock: clock, ttl: time.Minute}
	auth := newAuth(&config.Config{Auth: "LEGACY"}, claimer, clock)

	token, err := auth.Token()
	require.NoError(t, err)
	assert.Equal(t, "LEGACY", token)
	assert.Equal(t, 0, claimer.claims)
	assert.False(t, auth.CanRefresh())
}

func TestAuthMissingKeys(t *testing.T) {
	clock := clockwork.NewFakeClock()
	auth := newAuth(&config.Config{}, &stubClaimer{clock: clock}, clock)

	_, err := auth.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing initial setup")
	assert.Contains(t, err.Error(), "agent_key and user_key")
	assert.Contains(t, err.Error(), SetupGuideURL)
}

func TestAuthInvalidate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	claimer := &stubClaimer{clock: clock, ttl: time.Hour}
	auth := newAuth(&config.Config{AgentKey: "a", UserKey: "u"}, claimer, clock)

	_, err := auth.Token()
	require.NoError(t, err)
	auth.Invalidate()

	token, err := auth.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok2", token)
}
