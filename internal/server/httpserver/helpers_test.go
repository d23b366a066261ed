package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/throttle"
	"github.com/stretchr/testify/require"
)

const testRemoteAddr = "192.0.2.10:5555"

// ---- fakes ----

type fakeSessions struct {
	signupErr  error
	loginToken string
	loginErr   error
	forceErr   error
	logoutErr  error
	deleteErr  error
	state      services.SessionState
	stateErr   error
	panicMsg   string
}

func (f *fakeSessions) Signup(ctx context.Context, email, password, confirm string) error {
	return f.signupErr
}

func (f *fakeSessions) Login(ctx context.Context, email, password string) (string, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.loginToken, f.loginErr
}

func (f *fakeSessions) ForceLogout(ctx context.Context, email string) error { return f.forceErr }
func (f *fakeSessions) Logout(ctx context.Context, token string) error      { return f.logoutErr }
func (f *fakeSessions) Delete(ctx context.Context, token string) error      { return f.deleteErr }

func (f *fakeSessions) ValidateSession(ctx context.Context, token string) (services.SessionState, error) {
	return f.state, f.stateErr
}

// ---- builders ----

func newTestServer(t *testing.T, sessions SessionCoordinator, opts Options) *Server {
	t.Helper()
	s, err := NewServer(opts, logging.Nop(), sessions)
	require.NoError(t, err)
	return s
}

func newRealServer(t *testing.T, limiter throttle.Limiter) *Server {
	t.Helper()
	return newRealServerWithProxies(t, limiter, nil)
}

func newRealServerWithProxies(t *testing.T, limiter throttle.Limiter, trusted []string) *Server {
	t.Helper()
	m := repomanager.NewInMemoryRepositoryManager()
	tokens, err := auth.NewTokenService([]byte("test-secret"), 10*time.Minute, m.Accounts())
	require.NoError(t, err)
	hasher := auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32})
	svc, err := services.NewSessionService(m, hasher, tokens, logging.Nop())
	require.NoError(t, err)
	return newTestServer(t, svc, Options{Limiter: limiter, TrustedProxies: trusted, Cookie: CookieConfig{MaxAge: tokens.TTL()}})
}

// ---- requests ----

func get(t *testing.T, h http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = testRemoteAddr
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func post(t *testing.T, h http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return postFrom(t, h, testRemoteAddr, nil, path, form, cookies...)
}

// postFrom sends the form from remoteAddr with extra headers, such as the
// forwarding headers a proxy adds.
func postFrom(t *testing.T, h http.Handler, remoteAddr string, header http.Header, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[k] = v
	}
	req.RemoteAddr = remoteAddr
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func signup(t *testing.T, h http.Handler, email, password string) {
	t.Helper()
	rec := post(t, h, "/signup", url.Values{"email": {email}, "password": {password}, "confirm-password": {password}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
}

func login(t *testing.T, h http.Handler, email, password string) *http.Cookie {
	t.Helper()
	rec := post(t, h, "/login", url.Values{"email": {email}, "password": {password}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	ck := findCookie(rec, DefaultCookieName)
	require.NotNil(t, ck)
	require.NotEmpty(t, ck.Value)
	return ck
}
