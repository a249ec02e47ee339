// Package auth owns the client session: login, logout, silent refresh and the
// retry-once wrapper every authorized backend call goes through.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/vidsplit/client/internal/api"
	"github.com/vidsplit/client/internal/models"
)

// State is the authentication phase of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Backend is the subset of the API the manager needs. *api.Client satisfies it.
type Backend interface {
	Login(ctx context.Context, req api.LoginRequest) (api.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
	FetchMe(ctx context.Context, header http.Header) (models.UserProfile, error)
}

// RequestFunc performs one backend call with the given header set.
type RequestFunc func(ctx context.Context, header http.Header) (*http.Response, error)

// LoginResult is the outcome of Login. Err is nil exactly when Success is true.
type LoginResult struct {
	Success      bool
	TOTPRequired bool
	User         *models.UserProfile
	Err          error
}

// Manager holds the session and performs every credential transition.
type Manager struct {
	backend Backend
	store   TokenStore
	logger  *slog.Logger

	refreshGroup singleflight.Group

	mu      sync.RWMutex
	state   State
	session models.Session
	// epoch changes on login and logout so an in-flight refresh that started
	// under an older session does not overwrite the newer one.
	epoch uint64
}

// NewManager constructs a Manager backed by the provided token store.
func NewManager(backend Backend, store TokenStore, logger *slog.Logger) *Manager {
	if backend == nil {
		panic("auth: backend must not be nil")
	}
	if store == nil {
		panic("auth: token store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend: backend,
		store:   store,
		logger:  logger,
		state:   StateUninitialized,
	}
}

// Initialize hydrates the session from the token store and validates it.
// It always leaves the manager authenticated or unauthenticated; the returned
// error only reports token store failures.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	m.state = StateInitializing
	m.mu.Unlock()

	pair, err := m.store.Load(ctx)
	if err != nil {
		m.settleUnauthenticated()
		return fmt.Errorf("load tokens: %w", err)
	}
	if pair.Empty() {
		m.settleUnauthenticated()
		return nil
	}

	profile, err := m.backend.FetchMe(ctx, bearer(pair.AccessToken))
	if err == nil {
		m.mu.Lock()
		m.installLocked(pair, profile)
		m.mu.Unlock()
		m.logger.Info("session restored", slog.String("user", profile.Username))
		return nil
	}
	m.logger.Info("stored access token rejected, refreshing", slog.Any("error", err))

	m.mu.Lock()
	m.session = models.Session{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	m.mu.Unlock()

	refreshErr := m.refreshShared(ctx, pair.AccessToken)
	if refreshErr == nil {
		return nil
	}

	if errors.Is(refreshErr, errSessionReplaced) {
		return nil
	}
	if !isRejection(refreshErr) {
		// The backend could not be reached; keep the stored pair for the next run.
		m.logger.Warn("backend unreachable while restoring session", slog.Any("error", refreshErr))
		m.settleUnauthenticated()
		return nil
	}

	m.Logout(ctx)
	return nil
}

// Login authenticates with the backend and replaces any existing session.
// It never returns a Go error; failures are reported in the result.
func (m *Manager) Login(ctx context.Context, username, password, totpCode string) LoginResult {
	resp, err := m.backend.Login(ctx, api.LoginRequest{Username: username, Password: password, TOTPCode: totpCode})
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Requires2FA {
			return LoginResult{
				TOTPRequired: true,
				Err:          &AuthError{Op: "login", TOTPRequired: true, Err: fmt.Errorf("%w: %w", ErrTOTPRequired, err)},
			}
		}
		m.logger.Warn("login rejected", slog.String("username", username), slog.Any("error", err))
		return LoginResult{Err: &AuthError{Op: "login", Err: err}}
	}

	pair := models.TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}

	var profile models.UserProfile
	if resp.User != nil {
		profile = *resp.User
	} else {
		profile, err = m.backend.FetchMe(ctx, bearer(pair.AccessToken))
		if err != nil {
			return LoginResult{Err: &AuthError{Op: "login", Err: err}}
		}
	}

	if err := m.store.Save(ctx, pair); err != nil {
		return LoginResult{Err: fmt.Errorf("persist tokens: %w", err)}
	}

	m.mu.Lock()
	m.epoch++
	m.installLocked(pair, profile)
	m.mu.Unlock()

	m.logger.Info("logged in", slog.String("user", profile.Username))
	return LoginResult{Success: true, User: &profile}
}

// Logout clears the session and the token store. It is idempotent and makes
// no backend call.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	wasAuthenticated := m.session.Authenticated
	m.epoch++
	m.session = models.Session{}
	m.state = StateUnauthenticated
	m.mu.Unlock()

	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("clear stored tokens", slog.Any("error", err))
	}
	if wasAuthenticated {
		m.logger.Info("logged out")
	}
}

// Refresh exchanges the refresh token for a new pair and re-fetches the user.
// On failure the session is left untouched and false is returned.
// Concurrent callers share a single in-flight exchange.
func (m *Manager) Refresh(ctx context.Context) bool {
	m.mu.RLock()
	stale := m.session.AccessToken
	m.mu.RUnlock()
	return m.refreshShared(ctx, stale) == nil
}

// AuthorizedRequest runs fn with the current auth header. A 401 triggers one
// shared refresh and, if it succeeds, exactly one retry. If the refresh fails,
// or the retry is still unauthorized, the session is logged out and an
// *AuthExpiredError is returned.
//
// fn may report a 401 either as the response status or as an *api.APIError.
// Non-401 responses are returned untouched for the caller to inspect.
func (m *Manager) AuthorizedRequest(ctx context.Context, fn RequestFunc) (*http.Response, error) {
	header, token := m.credentials()

	resp, err := fn(ctx, header)
	unauthorized, cause := unauthorizedCause(resp, err)
	if !unauthorized {
		return resp, err
	}

	refreshErr := m.refreshShared(ctx, token)
	switch {
	case refreshErr == nil:
	case errors.Is(refreshErr, errSessionReplaced):
		// A login or logout happened meanwhile; retry under whatever session is current.
		if _, current := m.credentials(); current == "" {
			return nil, &AuthExpiredError{Err: cause}
		}
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m.logger.Warn("refresh after 401 failed", slog.Any("error", refreshErr))
		m.Logout(ctx)
		return nil, &AuthExpiredError{Err: cause}
	}

	header, _ = m.credentials()
	resp, err = fn(ctx, header)
	unauthorized, cause = unauthorizedCause(resp, err)
	if !unauthorized {
		return resp, err
	}

	m.logger.Warn("request unauthorized after refresh")
	m.Logout(ctx)
	return nil, &AuthExpiredError{Err: cause}
}

// AuthHeader returns the Authorization header for the current session, or an
// empty header set when unauthenticated.
func (m *Manager) AuthHeader() http.Header {
	header, _ := m.credentials()
	return header
}

// Session returns a copy of the current session.
func (m *Manager) Session() models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.session
	if s.User != nil {
		user := *s.User
		s.User = &user
	}
	return s
}

// State returns the current authentication phase.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Authenticated reports whether a validated session is held.
func (m *Manager) Authenticated() bool {
	return m.State() == StateAuthenticated
}

// AccessExpiring reports whether the access token expires within margin.
// Tokens without a readable exp claim are never reported as expiring.
func (m *Manager) AccessExpiring(margin time.Duration) bool {
	m.mu.RLock()
	expiresAt := m.session.AccessExpiresAt
	m.mu.RUnlock()
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(expiresAt)
}

// EnsureFresh refreshes ahead of time when the access token is about to expire,
// so a long upload does not start with a token that dies midway.
func (m *Manager) EnsureFresh(ctx context.Context, margin time.Duration) {
	if !m.Authenticated() || !m.AccessExpiring(margin) {
		return
	}
	if !m.Refresh(ctx) {
		m.logger.Warn("proactive refresh failed; continuing with current token")
	}
}

// refreshShared joins or starts the single in-flight refresh. stale is the
// access token the caller saw rejected; if the session already moved past it,
// no exchange is made.
func (m *Manager) refreshShared(ctx context.Context, stale string) error {
	ch := m.refreshGroup.DoChan("refresh", func() (any, error) {
		return nil, m.doRefresh(context.WithoutCancel(ctx), stale)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context, stale string) error {
	m.mu.RLock()
	refreshToken := m.session.RefreshToken
	current := m.session.AccessToken
	authenticated := m.session.Authenticated
	epoch := m.epoch
	m.mu.RUnlock()

	if authenticated && current != "" && current != stale {
		return nil
	}
	if refreshToken == "" {
		return ErrNoRefreshToken
	}

	pair, err := m.backend.Refresh(ctx, refreshToken)
	if err == nil {
		var profile models.UserProfile
		profile, err = m.backend.FetchMe(ctx, bearer(pair.AccessToken))
		if err == nil {
			return m.installRefreshed(ctx, epoch, pair, profile)
		}
	}
	if m.replacedSince(epoch) {
		return errSessionReplaced
	}
	return &AuthError{Op: "refresh", Err: err}
}

func (m *Manager) replacedSince(epoch uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch != epoch
}

func (m *Manager) installRefreshed(ctx context.Context, epoch uint64, pair models.TokenPair, profile models.UserProfile) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.logger.Info("discarding refresh result for a replaced session")
		return errSessionReplaced
	}
	m.installLocked(pair, profile)
	m.mu.Unlock()

	// The backend has already rotated the refresh token, so the new pair is
	// kept in memory even when it cannot be written.
	if err := m.store.Save(ctx, pair); err != nil {
		m.logger.Error("persist refreshed tokens", slog.Any("error", err))
	}

	m.logger.Debug("session refreshed", slog.String("user", profile.Username))
	return nil
}

func (m *Manager) installLocked(pair models.TokenPair, profile models.UserProfile) {
	user := profile
	m.session = models.Session{
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		User:            &user,
		Authenticated:   true,
		AccessExpiresAt: tokenExpiry(pair.AccessToken),
	}
	m.state = StateAuthenticated
}

func (m *Manager) settleUnauthenticated() {
	m.mu.Lock()
	m.session = models.Session{}
	m.state = StateUnauthenticated
	m.mu.Unlock()
}

func (m *Manager) credentials() (http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.session.Authenticated || m.session.AccessToken == "" {
		return http.Header{}, ""
	}
	return bearer(m.session.AccessToken), m.session.AccessToken
}

func bearer(token string) http.Header {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}

// unauthorizedCause reports whether the call ended in a 401 and returns the
// error describing it. A 401 response body is consumed.
func unauthorizedCause(resp *http.Response, err error) (bool, error) {
	if err != nil {
		if api.IsUnauthorized(err) {
			return true, err
		}
		return false, nil
	}
	if resp != nil && resp.StatusCode == http.StatusUnauthorized {
		return true, api.CheckResponse(resp)
	}
	return false, nil
}

// isRejection reports whether err means the backend refused the credentials,
// as opposed to being unreachable.
func isRejection(err error) bool {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return true
		}
		return false
	}
	return errors.Is(err, ErrNoRefreshToken)
}

func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
