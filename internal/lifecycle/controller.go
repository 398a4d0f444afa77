// Package lifecycle owns the per-session OAuth2 grant state machine: it
// decides when to redirect to the provider, when to exchange or refresh,
// when to serve the identity, and how every failure mode resolves. All
// grant mutations go through the controller; handlers never touch the
// store directly.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/authfront/authfront/internal/crypto"
	"github.com/authfront/authfront/internal/idp"
	"github.com/authfront/authfront/internal/log"
	"github.com/authfront/authfront/internal/session"
	"github.com/authfront/authfront/internal/storage"
)

var (
	// ErrAlreadyAuthenticated is returned by BeginLogin for sessions that
	// already hold valid credentials. A stale bookmark, not corruption.
	ErrAlreadyAuthenticated = errors.New("session already authenticated")

	// ErrStateMismatch is returned when the callback's state parameter does
	// not match the session's issued anti-forgery token.
	ErrStateMismatch = errors.New("state token mismatch")

	// ErrReauthRequired is returned when the grant was discarded and the
	// user must go through the authorization flow again.
	ErrReauthRequired = errors.New("re-authentication required")

	// ErrProviderUnavailable marks a transient provider failure. The
	// session's prior state is left intact so a later request can retry.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Config holds the lifecycle policy knobs
type Config struct {
	// PreAuthTTL bounds the anti-forgery window: sessions are short-lived
	// until a code exchange succeeds.
	PreAuthTTL time.Duration

	// AuthenticatedTTL is granted on successful code exchange.
	AuthenticatedTTL time.Duration

	// Rolling extends AuthenticatedTTL on authenticated activity.
	Rolling bool

	// TokenExpiryOverride, when positive, caps the provider-declared
	// expires_in with a shorter local horizon. Forces more frequent,
	// observable refresh cycles; a policy knob, not a protocol need.
	TokenExpiryOverride time.Duration

	// ProviderTimeout bounds every network call to the provider.
	ProviderTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.PreAuthTTL <= 0 {
		c.PreAuthTTL = 10 * time.Minute
	}
	if c.AuthenticatedTTL <= 0 {
		c.AuthenticatedTTL = 30 * 24 * time.Hour
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 30 * time.Second
	}
}

// Controller drives the session grant state machine against the store and
// the identity provider.
type Controller struct {
	store    storage.Store
	provider idp.Provider
	cfg      Config

	locks  *keyedMutex
	group  singleflight.Group // collapses concurrent exchanges per session id
	health *HealthTracker

	now func() time.Time
}

// NewController creates a lifecycle controller
func NewController(store storage.Store, provider idp.Provider, cfg Config) *Controller {
	cfg.applyDefaults()
	return &Controller{
		store:    store,
		provider: provider,
		cfg:      cfg,
		locks:    newKeyedMutex(),
		health:   NewHealthTracker(),
		now:      time.Now,
	}
}

// Health exposes provider availability derived from recent call outcomes
func (c *Controller) Health() *HealthTracker {
	return c.health
}

// Load resolves a session id to a session, creating a fresh anonymous one
// when the id is empty, unknown, or expired. The second return value
// reports whether a new session was created (and a cookie must be set).
func (c *Controller) Load(ctx context.Context, id string) (*session.Session, bool, error) {
	if id != "" {
		sess, err := c.store.Get(ctx, id)
		if err == nil {
			return sess, false, nil
		}
		if !errors.Is(err, storage.ErrSessionNotFound) {
			return nil, false, fmt.Errorf("loading session: %w", err)
		}
	}

	sess, err := c.newSession(ctx)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

func (c *Controller) newSession(ctx context.Context) (*session.Session, error) {
	id, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	now := c.now()
	sess := &session.Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(c.cfg.PreAuthTTL),
	}
	if err := c.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}
	return sess, nil
}

// BeginLogin issues a per-attempt anti-forgery token, binds it to the
// session, and returns the provider authorize URL carrying it as state.
func (c *Controller) BeginLogin(ctx context.Context, sessionID string) (string, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("loading session: %w", err)
	}

	if sess.State() == session.StateTokenAcquired {
		return "", ErrAlreadyAuthenticated
	}

	stateToken, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("generating state token: %w", err)
	}

	sess.Grant = &session.Grant{
		State:             session.StateAwaitingCallback,
		PendingStateToken: stateToken,
	}
	if err := c.store.Put(ctx, sess); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}

	log.LogDebugWithFields("lifecycle", "Login initiated", map[string]any{
		"session": sessionID,
	})

	return c.provider.AuthURL(stateToken), nil
}

// HandleCallback processes the provider redirect carrying code and state.
// The pending state token is consumed no matter the outcome, so a replayed
// callback can never validate. On a state match the code is stored and
// eagerly exchanged. Returns the session-level outcome; the caller always
// redirects back to the root view.
func (c *Controller) HandleCallback(ctx context.Context, sessionID, code, state string) error {
	err := c.acceptCallback(ctx, sessionID, code, state)
	if err != nil {
		return err
	}
	return c.exchangeCode(ctx, sessionID)
}

// acceptCallback validates the state binding and records the code
func (c *Controller) acceptCallback(ctx context.Context, sessionID, code, state string) error {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	if sess.State() != session.StateAwaitingCallback {
		// A callback without a pending attempt. Don't disturb whatever
		// grant the session holds.
		log.LogWarnWithFields("lifecycle", "Callback without pending login", map[string]any{
			"session": sessionID,
			"state":   string(sess.State()),
		})
		return ErrStateMismatch
	}

	expected := sess.Grant.ConsumePendingState()
	if expected == "" || !crypto.SecureEqual(expected, state) {
		sess.Grant = nil
		if putErr := c.store.Put(ctx, sess); putErr != nil {
			return fmt.Errorf("storing session: %w", putErr)
		}
		log.LogErrorWithFields("lifecycle", "State does not match issued token", map[string]any{
			"session": sessionID,
		})
		return ErrStateMismatch
	}

	sess.Grant.AuthorizationCode = code
	sess.Grant.State = session.StateCodeReceived
	if err := c.store.Put(ctx, sess); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// FailCallback handles a provider error redirect (error / error_description
// query parameters): the pending attempt is discarded and the session
// returns to anonymous.
func (c *Controller) FailCallback(ctx context.Context, sessionID, errCode, errDescription string) error {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	log.LogErrorWithFields("lifecycle", "Provider returned error on callback", map[string]any{
		"session":     sessionID,
		"error":       errCode,
		"description": errDescription,
	})

	if sess.State() == session.StateAwaitingCallback {
		sess.Grant = nil
		if err := c.store.Put(ctx, sess); err != nil {
			return fmt.Errorf("storing session: %w", err)
		}
	}
	return nil
}

// exchangeCode eagerly trades the stored authorization code for tokens.
// Single-flight per session: codes are single-use, so a duplicate exchange
// is guaranteed to fail and can desynchronize the session from the
// provider. Concurrent callers share the winner's outcome.
func (c *Controller) exchangeCode(ctx context.Context, sessionID string) error {
	_, err, _ := c.group.Do("code:"+sessionID, func() (any, error) {
		// The whole flight is detached from the request context: once the
		// code is submitted the result must be committed even if the caller
		// disconnects, or the session desynchronizes from the provider.
		dctx := context.WithoutCancel(ctx)

		unlock := c.locks.Lock(sessionID)
		defer unlock()

		sess, err := c.store.Get(dctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("loading session: %w", err)
		}

		switch sess.State() {
		case session.StateCodeReceived:
			// proceed
		case session.StateTokenAcquired:
			// Another flight already exchanged
			return nil, nil
		default:
			return nil, ErrReauthRequired
		}

		code := sess.Grant.ConsumeCode()

		token, exchErr := c.callExchange(dctx, func(pctx context.Context) (*idp.Token, error) {
			return c.provider.ExchangeCode(pctx, code)
		})
		if exchErr != nil {
			// Code exchange failure is terminal for the attempt regardless
			// of cause: the code was submitted and cannot be replayed.
			sess.Grant = nil
			if putErr := c.store.Put(dctx, sess); putErr != nil {
				return nil, fmt.Errorf("storing session: %w", putErr)
			}
			log.LogErrorWithFields("lifecycle", "Code exchange failed", map[string]any{
				"session": sessionID,
				"error":   exchErr.Error(),
			})
			return nil, fmt.Errorf("exchanging code: %w", exchErr)
		}

		sess.Grant.SetTokens(token.AccessToken, token.RefreshToken, c.tokenHorizon(token.Expiry))
		// The long-lived session is granted only now, on successful
		// exchange; the pre-auth session stays deliberately short.
		sess.ExpiresAt = c.now().Add(c.cfg.AuthenticatedTTL)
		if err := c.store.Put(dctx, sess); err != nil {
			return nil, fmt.Errorf("storing session: %w", err)
		}

		log.LogInfoWithFields("lifecycle", "Access token acquired", map[string]any{
			"session": sessionID,
			"expiry":  sess.Grant.TokenExpiry,
		})
		return nil, nil
	})
	return err
}

// Principal returns the authenticated identity for the session, refreshing
// the access token first if it passed its local horizon. Concurrent
// requests observing an expired token collapse into a single refresh.
func (c *Controller) Principal(ctx context.Context, sessionID string) (*idp.Principal, error) {
	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	switch sess.State() {
	case session.StateTokenAcquired:
		if sess.TokenExpired(c.now()) {
			sess, err = c.refresh(ctx, sessionID)
			if err != nil {
				return nil, err
			}
		}
	case session.StateRefreshPending:
		// A refresh is (or was) in flight for this session; join it and
		// use whatever token it commits.
		sess, err = c.refresh(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrReauthRequired
	}

	principal, err := c.fetchPrincipal(ctx, sessionID, sess)
	if err != nil {
		return nil, err
	}

	if c.cfg.Rolling {
		c.extendSession(ctx, sessionID)
	}
	return principal, nil
}

// refresh performs a single-flight refresh exchange for the session.
// All concurrent callers receive the session committed by the winner.
func (c *Controller) refresh(ctx context.Context, sessionID string) (*session.Session, error) {
	v, err, _ := c.group.Do("refresh:"+sessionID, func() (any, error) {
		// Detached like the code exchange: a disconnect mid-refresh must not
		// abandon the commit of a rotated refresh token.
		dctx := context.WithoutCancel(ctx)

		unlock := c.locks.Lock(sessionID)
		defer unlock()

		sess, err := c.store.Get(dctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("loading session: %w", err)
		}

		// Double-check inside the flight: a previous winner may already
		// have installed a fresh token. A persisted RefreshPending state
		// (crash mid-refresh) is retried here rather than discarded.
		switch sess.State() {
		case session.StateTokenAcquired:
			if !sess.TokenExpired(c.now()) {
				return sess, nil
			}
		case session.StateRefreshPending:
			// retry the interrupted refresh
		default:
			return nil, ErrReauthRequired
		}
		if sess.Grant.RefreshToken == "" {
			sess.Grant = nil
			if putErr := c.store.Put(dctx, sess); putErr != nil {
				return nil, fmt.Errorf("storing session: %w", putErr)
			}
			return nil, ErrReauthRequired
		}

		sess.Grant.State = session.StateRefreshPending
		if err := c.store.Put(dctx, sess); err != nil {
			return nil, fmt.Errorf("storing session: %w", err)
		}

		token, exchErr := c.callExchange(dctx, func(pctx context.Context) (*idp.Token, error) {
			return c.provider.Refresh(pctx, sess.Grant.RefreshToken)
		})

		switch {
		case exchErr == nil:
			sess.Grant.SetTokens(token.AccessToken, token.RefreshToken, c.tokenHorizon(token.Expiry))
			if err := c.store.Put(dctx, sess); err != nil {
				return nil, fmt.Errorf("storing session: %w", err)
			}
			log.LogInfoWithFields("lifecycle", "Access token refreshed", map[string]any{
				"session": sessionID,
				"expiry":  sess.Grant.TokenExpiry,
			})
			return sess, nil

		case idp.IsInvalidGrant(exchErr):
			// Refresh token revoked or expired upstream. Terminal: the
			// grant is marked revoked and the user must log in again.
			sess.Grant = &session.Grant{State: session.StateRevoked}
			if err := c.store.Put(dctx, sess); err != nil {
				return nil, fmt.Errorf("storing session: %w", err)
			}
			log.LogErrorWithFields("lifecycle", "Refresh token rejected", map[string]any{
				"session": sessionID,
				"error":   exchErr.Error(),
			})
			return nil, ErrReauthRequired

		default:
			// Transient failure: keep the stale-but-present credentials so
			// a later request can retry instead of forcing a re-login.
			sess.Grant.State = session.StateTokenAcquired
			if err := c.store.Put(dctx, sess); err != nil {
				return nil, fmt.Errorf("storing session: %w", err)
			}
			log.LogWarnWithFields("lifecycle", "Refresh failed transiently", map[string]any{
				"session": sessionID,
				"error":   exchErr.Error(),
			})
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, exchErr)
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

// fetchPrincipal retrieves the identity behind the session's access token.
// A revoked token despite valid local expiry clears the access token (the
// refresh token survives, so the next request refreshes) and degrades this
// request to anonymous.
func (c *Controller) fetchPrincipal(ctx context.Context, sessionID string, sess *session.Session) (*idp.Principal, error) {
	fctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
	defer cancel()

	principal, err := c.provider.UserInfo(fctx, sess.Grant.AccessToken)
	if err == nil {
		c.health.RecordSuccess()
		return principal, nil
	}

	if idp.IsInvalidGrant(err) {
		c.health.RecordSuccess()

		unlock := c.locks.Lock(sessionID)
		defer unlock()

		stored, getErr := c.store.Get(ctx, sessionID)
		if getErr == nil && stored.Grant != nil {
			stored.Grant.AccessToken = ""
			stored.Grant.TokenExpiry = time.Time{}
			if putErr := c.store.Put(ctx, stored); putErr != nil {
				return nil, fmt.Errorf("storing session: %w", putErr)
			}
		}

		log.LogWarnWithFields("lifecycle", "Access token rejected by userinfo endpoint", map[string]any{
			"session": sessionID,
		})
		return nil, fmt.Errorf("%w: access token revoked", ErrProviderUnavailable)
	}

	c.health.RecordFailure()
	return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// Logout destroys the session and returns a fresh anonymous one under a
// new id, so a pre-logout cookie can never be re-bound to new credentials.
func (c *Controller) Logout(ctx context.Context, sessionID string) (*session.Session, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	if err := c.store.Delete(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("destroying session: %w", err)
	}

	log.LogInfoWithFields("lifecycle", "Session logged out", map[string]any{
		"session": sessionID,
	})

	return c.newSession(ctx)
}

// callExchange runs a token-endpoint round trip detached from the request
// context: a client disconnect must not abandon an exchange whose result
// (possibly a rotated refresh token) has to be committed. Only the timeout
// bounds it.
func (c *Controller) callExchange(ctx context.Context, fn func(context.Context) (*idp.Token, error)) (*idp.Token, error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ProviderTimeout)
	defer cancel()

	token, err := fn(pctx)
	if err != nil {
		if idp.IsInvalidGrant(err) {
			// The provider answered; reachability is fine
			c.health.RecordSuccess()
		} else {
			c.health.RecordFailure()
		}
		return nil, err
	}
	c.health.RecordSuccess()
	return token, nil
}

// tokenHorizon applies the local expiry override to a provider-declared
// expiry. The provider's expires_in is treated as variable and untrusted.
func (c *Controller) tokenHorizon(providerExpiry time.Time) time.Time {
	if c.cfg.TokenExpiryOverride > 0 {
		local := c.now().Add(c.cfg.TokenExpiryOverride)
		if providerExpiry.IsZero() || local.Before(providerExpiry) {
			return local
		}
	}
	if providerExpiry.IsZero() {
		// Provider declared no expiry; pick a conservative horizon
		return c.now().Add(time.Hour)
	}
	return providerExpiry
}

func (c *Controller) extendSession(ctx context.Context, sessionID string) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return
	}
	sess.ExpiresAt = c.now().Add(c.cfg.AuthenticatedTTL)
	if err := c.store.Put(ctx, sess); err != nil {
		log.LogWarnWithFields("lifecycle", "Failed to extend rolling session", map[string]any{
			"session": sessionID,
			"error":   err.Error(),
		})
	}
}
