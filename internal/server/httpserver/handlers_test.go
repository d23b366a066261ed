package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/throttle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginPage_StatusMarkers(t *testing.T) {
	h := newRealServer(t, nil).Handler()

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/login"`)

	for status, msg := range statusMessages {
		rec = get(t, h, "/?status="+status)
		assert.Contains(t, rec.Body.String(), msg, status)
	}
}

func TestPage(t *testing.T) {
	h := newRealServer(t, nil).Handler()

	rec := get(t, h, "/page/signup")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="confirm-password"`)

	rec = get(t, h, "/page/login")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/page/secret")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Back to login")
}

func TestSignup(t *testing.T) {
	h := newRealServer(t, nil).Handler()

	rec := post(t, h, "/signup", url.Values{"email": {"a@x.com"}, "password": {"p"}, "confirm-password": {"p"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?status=created", rec.Header().Get("Location"))
	assert.Nil(t, findCookie(rec, DefaultCookieName), "signup must not log in")

	rec = post(t, h, "/signup", url.Values{"email": {"a@x.com"}, "password": {"p"}, "confirm-password": {"q"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, common.ProblemEmailTaken.Message())
	assert.Contains(t, body, common.ProblemPasswordMismatch.Message())

	rec = post(t, h, "/signup", url.Values{"password": {"p"}, "confirm-password": {"q"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, common.ProblemMissingEmail.Message())
	assert.Contains(t, body, common.ProblemPasswordMismatch.Message())
}

func TestSignup_Cancel(t *testing.T) {
	h := newRealServer(t, nil).Handler()

	rec := post(t, h, "/signup", url.Values{"act": {"cancel"}, "email": {"a@x.com"}, "password": {"p"}, "confirm-password": {"p"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = post(t, h, "/login", url.Values{"email": {"a@x.com"}, "password": {"p"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "cancelled signup must not create the account")
}

func TestLogin_Flow(t *testing.T) {
	h := newRealServer(t, nil).Handler()
	signup(t, h, "a@x.com", "p")

	rec := post(t, h, "/login", url.Values{"email": {"a@x.com"}, "password": {"p"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/welcome", rec.Header().Get("Location"))
	ck := findCookie(rec, DefaultCookieName)
	require.NotNil(t, ck)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, 600, ck.MaxAge)

	rec = get(t, h, "/welcome", ck)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome, a@x.com")

	rec = post(t, h, "/login", url.Values{"email": {"a@x.com"}, "password": {"p"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/force-logout"`)
	assert.Nil(t, findCookie(rec, DefaultCookieName))
}

func TestLogin_PostRootAlias(t *testing.T) {
	h := newRealServer(t, nil).Handler()
	signup(t, h, "a@x.com", "p")

	rec := post(t, h, "/", url.Values{"email": {"a@x.com"}, "password": {"p"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NotNil(t, findCookie(rec, DefaultCookieName))
}

func TestLogin_Errors(t *testing.T) {
	h := newRealServer(t, nil).Handler()
	signup(t, h, "a@x.com", "p")

	rec := post(t, h, "/login", url.Values{"email": {"a@x.com"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), common.ProblemMissingCredential.Message())

	rec = post(t, h, "/login", url.Values{"email": {"a@x.com"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), msgBadCredentials)

	rec = post(t, h, "/login", url.Values{"email": {"ghost@x.com"}, "password": {"p"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), msgBadCredentials)
}

func TestLogout(t *testing.T) {
	h := newRealServer(t, nil).Handler()
	signup(t, h, "a@x.com", "p")
	ck := login(t, h, "a@x.com", "p")

	rec := post(t, h, "/logout", nil, ck)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?status=logged-out", rec.Header().Get("Location"))
	cleared := findCookie(rec, DefaultCookieName)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	rec = get(t, h, "/welcome", ck)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	login(t, h, "a@x.com", "p")
}

func TestDelete(t *testing.T) {
	h := newRealServer(t, nil).Handler()
	signup(t, h, "a@x.com", "p")
	ck := login(t, h, "a@x.com", "p")

	rec := post(t, h, "/delete", nil, ck)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?status=deleted", rec.Header().Get("Location"))

	rec = post(t, h, "/login", url.Values{"email": {"a@x.com"}, "password": {"p"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	signup(t, h, "a@x.com", "p")
}

func TestDelete_StaleTokenRedirects(t *testing.T) {
	s := newTestServer(t, &fakeSessions{
		state:     stateLoggedIn("a@x.com"),
		deleteErr: common.ErrorNotFound,
	}, Options{})

	rec := post(t, s.Handler(), "/delete", nil, &http.Cookie{Name: DefaultCookieName, Value: "tok"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestForceLogout(t *testing.T) {
	h := newRealServer(t, nil).Handler()
	signup(t, h, "a@x.com", "p")
	ck := login(t, h, "a@x.com", "p")

	rec := post(t, h, "/force-logout", url.Values{"email": {"a@x.com"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?status=forced-out", rec.Header().Get("Location"))

	rec = get(t, h, "/welcome", ck)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	login(t, h, "a@x.com", "p")

	rec = post(t, h, "/force-logout", url.Values{"email": {""}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), common.ProblemMissingEmail.Message())
}

func TestLogin_Throttled(t *testing.T) {
	limiter := throttle.NewMemoryLimiter(throttle.Policy{Attempts: 2, Window: time.Minute, Lockout: time.Minute})
	h := newRealServer(t, limiter).Handler()
	signup(t, h, "a@x.com", "p")

	for i := 0; i < 2; i++ {
		rec := post(t, h, "/login", url.Values{"email": {"a@x.com"}, "password": {"wrong"}})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	before := testutilCount(t, metrics.OutcomeThrottled)
	rec := post(t, h, "/login", url.Values{"email": {"a@x.com"}, "password": {"p"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, before+1, testutilCount(t, metrics.OutcomeThrottled))
}

func TestLogin_SuccessResetsThrottle(t *testing.T) {
	limiter := throttle.NewMemoryLimiter(throttle.Policy{Attempts: 2, Window: time.Minute, Lockout: time.Minute})
	h := newRealServer(t, limiter).Handler()
	signup(t, h, "a@x.com", "p")

	rec := post(t, h, "/login", url.Values{"email": {"a@x.com"}, "password": {"wrong"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	login(t, h, "a@x.com", "p")

	rec = post(t, h, "/login", url.Values{"email": {"a@x.com"}, "password": {"wrong"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(t, h, "/login", url.Values{"email": {"a@x.com"}, "password": {"p"}})
	assert.Equal(t, http.StatusConflict, rec.Code, "counter restarted after success")
}

func TestInternalErrorsRenderGenericPage(t *testing.T) {
	s := newTestServer(t, &fakeSessions{
		loginErr:  common.ErrorInternal,
		signupErr: errors.New("db down"),
	}, Options{})

	rec := post(t, s.Handler(), "/login", url.Values{"email": {"a@x.com"}, "password": {"p"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "An unexpected error occurred")

	rec = post(t, s.Handler(), "/signup", url.Values{"email": {"a@x.com"}, "password": {"p"}, "confirm-password": {"p"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeSessions{}, Options{})
	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	s = newTestServer(t, &fakeSessions{}, Options{Health: func(ctx context.Context) error { return errors.New("no db") }})
	rec = get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.RegisterMetrics(reg)
	metrics.RecordLogin(metrics.OutcomeSuccess)

	s := newTestServer(t, &fakeSessions{}, Options{Registry: reg})
	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "authkeeper_logins_total")

	s = newTestServer(t, &fakeSessions{}, Options{})
	rec = get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func stateLoggedIn(email string) services.SessionState {
	return services.SessionState{LoggedIn: true, Email: email}
}

func testutilCount(t *testing.T, outcome string) float64 {
	t.Helper()
	return testutil.ToFloat64(metrics.Logins.WithLabelValues(outcome))
}
