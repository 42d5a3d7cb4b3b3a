package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/audit"
	"github.com/passlink/passlink/internal/server/config"
	"github.com/passlink/passlink/internal/server/fingerprint"
	"github.com/passlink/passlink/internal/server/mailer"
	"github.com/passlink/passlink/internal/server/repositories/memory"
	"github.com/passlink/passlink/internal/server/services"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DevMode = true
	cfg.DelayMin = 0
	cfg.DelayMax = 0

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	store := memory.NewStore()

	recorder := audit.NewRecorder(store, logger)
	binder := fingerprint.NewBinder(fingerprint.Granularity(cfg.FingerprintGranularity))
	limiter := services.NewRateLimiter(store, cfg, recorder, logger)
	tokens := services.NewTokenService(store, cfg.TokenTTL, logger)
	sessions := services.NewSessionManager(store, cfg.SessionSlide, cfg.SessionAbsolute, logger)
	csrf := services.NewCsrfGuard(store, logger)

	renderer, err := mailer.NewLinkRenderer()
	require.NoError(t, err)

	authSvc := services.NewAuthService(cfg, store, limiter, tokens, sessions, csrf,
		binder, recorder, mailer.NewLogMailer(logger), renderer, nil, logger)

	ts := httptest.NewServer(NewServer(cfg, authSvc, sessions, csrf, logger).Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, client *http.Client, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

// login drives the full request/verify flow and returns the bearer
// ticket and the current anti-forgery value.
func login(t *testing.T, ts *httptest.Server, email string) (ticket, csrfToken string) {
	t.Helper()
	client := ts.Client()

	resp := postJSON(t, client, ts.URL+"/api/auth/request", map[string]string{"email": email}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var linkResp struct {
		Link string `json:"link"`
	}
	decodeBody(t, resp, &linkResp)
	require.NotEmpty(t, linkResp.Link)

	parsed, err := url.Parse(linkResp.Link)
	require.NoError(t, err)
	q := parsed.Query()

	verifyURL := ts.URL + "/api/auth/verify?token=" + q.Get("token") + "&secret=" + q.Get("secret")
	resp, err = client.Get(verifyURL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loginResp loginResponse
	decodeBody(t, resp, &loginResp)
	require.NotEmpty(t, loginResp.Ticket)
	require.NotEmpty(t, loginResp.CsrfToken)
	return loginResp.Ticket, loginResp.CsrfToken
}

func TestRequestVerifyFlow(t *testing.T) {
	ts := newTestServer(t)

	ticket, _ := login(t, ts, "alice@example.com")
	assert.NotEmpty(t, ticket)
}

func TestVerify_InvalidLinkIsGeneric(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/auth/verify?token=b2c5c4f0-0000-0000-0000-000000000000&secret=x")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body errorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "invalid or expired link", body.Error)
}

func TestRequest_BadEmail(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.Client(), ts.URL+"/api/auth/request", map[string]string{"email": "nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSessions_RequireTicket(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/sessions")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestSessions_ListWithTicket(t *testing.T) {
	ts := newTestServer(t)
	ticket, _ := login(t, ts, "alice@example.com")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ticket)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []sessionResponse
	decodeBody(t, resp, &list)
	require.Len(t, list, 1)
	assert.True(t, list[0].Current)
	assert.False(t, list[0].Revoked)
}

func TestLogout_RequiresCsrf(t *testing.T) {
	ts := newTestServer(t)
	ticket, _ := login(t, ts, "alice@example.com")

	resp := postJSON(t, ts.Client(), ts.URL+"/api/sessions/logout", map[string]string{},
		map[string]string{"Authorization": "Bearer " + ticket})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestLogout_TerminatesTheSession(t *testing.T) {
	ts := newTestServer(t)
	ticket, csrfToken := login(t, ts, "alice@example.com")

	headers := map[string]string{
		"Authorization": "Bearer " + ticket,
		"X-Csrf-Token":  csrfToken,
	}
	resp := postJSON(t, ts.Client(), ts.URL+"/api/sessions/logout", map[string]string{}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// the ticket is still signed, but the session behind it is gone
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ticket)
	resp2, err := ts.Client().Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
	resp2.Body.Close()
}

func TestCsrf_RotatesOnUse(t *testing.T) {
	ts := newTestServer(t)
	ticket, csrfToken := login(t, ts, "alice@example.com")

	headers := map[string]string{
		"Authorization": "Bearer " + ticket,
		"X-Csrf-Token":  csrfToken,
	}
	resp := postJSON(t, ts.Client(), ts.URL+"/api/sessions/logout_all", map[string]string{}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := resp.Header.Get("X-Csrf-Token")
	resp.Body.Close()

	assert.NotEmpty(t, rotated)
	assert.NotEqual(t, csrfToken, rotated)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
