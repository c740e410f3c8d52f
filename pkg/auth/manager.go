// Package auth owns the authenticated/unauthenticated session state.
//
// The Manager bootstraps the session from durable credentials on startup
// and exposes login/signup/logout/refresh. Dependency failures never
// escape as panics or uncaught errors: they are folded into the session's
// Err field for the UI to render.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mockmate/mockmate/pkg/api"
	"github.com/mockmate/mockmate/pkg/creds"
)

// ValidationError is a local precondition failure that never reaches the
// network (missing credentials, short password).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Session is the current authentication state. Authenticated is true iff
// both User and AccessToken are set.
type Session struct {
	User          *creds.Profile
	AccessToken   string
	Authenticated bool
	Loading       bool
	Err           string
}

// Credentials are the login inputs.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup is the registration payload.
type Signup struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Manager drives the session state machine.
type Manager struct {
	mu      sync.Mutex
	session Session
	api     *api.Client
	creds   creds.Store

	// OnChange is invoked with a snapshot after every session transition.
	OnChange func(Session)
}

// NewManager creates a Manager seeded from whatever the credential store
// already holds. Call Bootstrap to validate it against the server.
func NewManager(client *api.Client, store creds.Store) *Manager {
	user := store.User()
	token := store.AccessToken()
	return &Manager{
		api:   client,
		creds: store,
		session: Session{
			User:          user,
			AccessToken:   token,
			Authenticated: user != nil && token != "",
			Loading:       true,
		},
	}
}

// Session returns the current session snapshot.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Bootstrap resolves the session on startup using only stored
// credentials. If neither token exists it resolves to anonymous without a
// network call; any failure along the way also resolves to anonymous.
func (m *Manager) Bootstrap(ctx context.Context) Session {
	m.setLoading(true)
	profile, err := m.fetchSession(ctx)
	if err != nil {
		slog.Debug("bootstrap session check failed", "err", err)
		profile = nil
	}
	return m.applySession(profile)
}

// Login validates locally, authenticates, persists the token pair and
// profile, and transitions to authenticated.
func (m *Manager) Login(ctx context.Context, c Credentials) (*creds.Profile, error) {
	if c.Email == "" || c.Password == "" {
		return nil, &ValidationError{Msg: "email and password are required"}
	}

	var resp struct {
		AccessToken  string         `json:"access_token"`
		RefreshToken string         `json:"refresh_token"`
		User         *creds.Profile `json:"user"`
	}
	if err := m.api.PostJSON(ctx, "/auth/login", c, &resp); err != nil {
		return nil, m.fail(err, "Login failed")
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, m.fail(errors.New("missing tokens in login response"), "Login failed")
	}
	m.creds.SaveTokens(creds.TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken})

	profile := resp.User
	if profile == nil {
		var err error
		profile, err = m.fetchProfile(ctx)
		if err != nil {
			return nil, m.fail(err, "Login failed")
		}
	}
	if profile == nil {
		return nil, m.fail(errors.New("failed to fetch user profile"), "Login failed")
	}
	m.creds.SaveUser(profile)

	m.applySession(profile)
	slog.Info("logged in", "email", c.Email)
	return profile, nil
}

// Signup registers a new account. It deliberately does not authenticate:
// the caller follows up with an explicit Login.
func (m *Manager) Signup(ctx context.Context, s Signup) error {
	if s.Name == "" || s.Email == "" || s.Password == "" {
		return &ValidationError{Msg: "name, email, and password are required"}
	}
	if len(s.Password) < 6 {
		return &ValidationError{Msg: "password must be at least 6 characters long"}
	}
	if err := m.api.PostJSON(ctx, "/auth/register", s, nil); err != nil {
		return m.fail(err, "Signup failed")
	}
	return nil
}

// Logout invalidates the session server-side on a best-effort basis and
// always clears local state, even when the call fails.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.api.PostJSON(ctx, "/auth/logout", nil, nil); err != nil {
		slog.Warn("server logout failed, clearing local session anyway", "err", err)
	}
	m.creds.Clear()
	m.applySession(nil)
}

// RefreshSession re-validates the session with current credentials. On
// failure the error is surfaced but the stored credentials are left
// alone; teardown is the interceptor's call.
func (m *Manager) RefreshSession(ctx context.Context) (*creds.Profile, error) {
	profile, err := m.fetchSession(ctx)
	if err != nil {
		m.setError(api.ErrorMessage(err))
		return nil, err
	}
	m.applySession(profile)
	return profile, nil
}

// ClearError resets the transient error field.
func (m *Manager) ClearError() {
	m.setError("")
}

// fetchSession resolves the current profile from stored credentials. With
// no tokens at all it returns (nil, nil) without touching the network.
func (m *Manager) fetchSession(ctx context.Context) (*creds.Profile, error) {
	if m.creds.AccessToken() == "" {
		if m.creds.RefreshToken() == "" {
			m.creds.ClearUser()
			return nil, nil
		}
		if _, err := m.api.Refresh(ctx); err != nil {
			m.creds.ClearTokens()
			m.creds.ClearUser()
			return nil, nil
		}
	}

	profile, err := m.fetchProfile(ctx)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.IsAuth() {
			// Refresh-and-retry already happened inside the client.
			m.creds.ClearTokens()
			m.creds.ClearUser()
			return nil, nil
		}
		return nil, err
	}
	if profile != nil {
		m.creds.SaveUser(profile)
	} else {
		m.creds.ClearUser()
	}
	return profile, nil
}

func (m *Manager) fetchProfile(ctx context.Context) (*creds.Profile, error) {
	var resp struct {
		User *creds.Profile `json:"user"`
	}
	if err := m.api.GetJSON(ctx, "/auth/me", &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// applySession installs the resolved profile and notifies the UI. A nil
// profile means anonymous.
func (m *Manager) applySession(profile *creds.Profile) Session {
	m.mu.Lock()
	token := m.creds.AccessToken()
	if profile == nil {
		m.session = Session{}
	} else {
		m.session = Session{
			User:          profile,
			AccessToken:   token,
			Authenticated: token != "",
		}
	}
	snapshot := m.session
	m.mu.Unlock()

	m.notify(snapshot)
	return snapshot
}

// fail records the user-facing message and returns the original error,
// falling back to the generic message when the server gave none.
func (m *Manager) fail(err error, generic string) error {
	msg := api.ErrorMessage(err)
	if msg == "" {
		msg = generic
	}
	m.setError(msg)
	return err
}

func (m *Manager) setError(msg string) {
	m.mu.Lock()
	m.session.Loading = false
	m.session.Err = msg
	snapshot := m.session
	m.mu.Unlock()
	m.notify(snapshot)
}

func (m *Manager) setLoading(loading bool) {
	m.mu.Lock()
	m.session.Loading = loading
	m.session.Err = ""
	snapshot := m.session
	m.mu.Unlock()
	m.notify(snapshot)
}

func (m *Manager) notify(s Session) {
	if m.OnChange != nil {
		m.OnChange(s)
	}
}
