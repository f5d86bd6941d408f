package ddsapi

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/duke-gcb/ddsclient/pkg/config"
)

// Tokens claimed from an agent key pair expire server side. We treat a token
// as stale this long before its stated expiry to absorb clock skew between
// us and the service.
const tokenExpirySkew = 5 * time.Minute

// tokenClaimer exchanges an agent/user key pair for a short-lived API token.
// Implemented by Client; an interface so auth tests don't need HTTP.
type tokenClaimer interface {
	claimToken(agentKey, userKey string) (token string, expiresOn time.Time, err error)
}

// Auth produces the api token sent with every data service request. It
// claims a token from the configured agent and user keys, caches it, and
// re-claims when it nears expiry. A bare "auth" token from the config is
// used as-is and can never be refreshed.
type Auth struct {
	mu        sync.Mutex
	claimer   tokenClaimer
	clock     clockwork.Clock
	agentKey  string
	userKey   string
	legacy    string
	token     string
	expiresOn time.Time
}

func newAuth(cfg *config.Config, claimer tokenClaimer, clock clockwork.Clock) *Auth {
	return &Auth{
		claimer:  claimer,
		clock:    clock,
		agentKey: cfg.AgentKey,
		userKey:  cfg.UserKey,
		legacy:   cfg.Auth,
	}
}

// Token returns a currently valid api token, claiming a fresh one if needed.
func (a *Auth) Token() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.legacy != "" {
		return a.legacy, nil
	}
	if a.token != "" && a.clock.Now().Add(tokenExpirySkew).Before(a.expiresOn) {
		return a.token, nil
	}
	if a.agentKey == "" || a.userKey == "" {
		return "", NewMissingSetupError(userConfigPath())
	}

	token, expiresOn, err := a.claimer.claimToken(a.agentKey, a.userKey)
	if err != nil {
		return "", err
	}
	a.token = token
	a.expiresOn = expiresOn
	return a.token, nil
}

// Invalidate drops the cached token so the next Token call claims a new
// one. Called when the service rejects the current token as unauthorized.
func (a *Auth) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.expiresOn = time.Time{}
}

// CanRefresh reports whether a rejected token can be replaced. Legacy
// single-token configurations cannot.
func (a *Auth) CanRefresh() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.legacy == ""
}
