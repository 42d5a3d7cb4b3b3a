package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/audit"
	"github.com/passlink/passlink/internal/server/config"
	"github.com/passlink/passlink/internal/server/fingerprint"
	"github.com/passlink/passlink/internal/server/geo"
	"github.com/passlink/passlink/internal/server/mailer"
	"github.com/passlink/passlink/internal/server/models"
	"github.com/passlink/passlink/internal/server/repositories/memory"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DevMode = true
	cfg.DelayMin = 0
	cfg.DelayMax = 0
	return cfg
}

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type capturingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *capturingMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

type staticResolver struct {
	loc geo.Location
	err error
}

func (r *staticResolver) Lookup(ip string) (geo.Location, error) { return r.loc, r.err }
func (r *staticResolver) Close() error                           { return nil }

// rig assembles the full service graph over the in-memory store with a
// controllable clock and no real delays.
type rig struct {
	store    *memory.Store
	config   *config.Config
	clock    *fakeClock
	recorder *audit.Recorder
	binder   *fingerprint.Binder
	limiter  *RateLimiter
	tokens   *TokenService
	sessions *SessionManager
	csrf     *CsrfGuard
	auth     *AuthService
	mailer   *capturingMailer
	resolver *staticResolver
}

func newRig(t *testing.T) *rig {
	t.Helper()

	store := memory.NewStore()
	cfg := testConfig()
	clock := newFakeClock()
	logger := testLogger()

	recorder := audit.NewRecorder(store, logger)

	binder := fingerprint.NewBinder(fingerprint.Granularity(cfg.FingerprintGranularity))

	limiter := NewRateLimiter(store, cfg, recorder, logger)
	limiter.now = clock.Now

	tokens := NewTokenService(store, cfg.TokenTTL, logger)
	tokens.now = clock.Now

	sessions := NewSessionManager(store, cfg.SessionSlide, cfg.SessionAbsolute, logger)
	sessions.now = clock.Now

	csrf := NewCsrfGuard(store, logger)
	csrf.now = clock.Now

	m := &capturingMailer{}
	renderer, err := mailer.NewLinkRenderer()
	if err != nil {
		t.Fatalf("NewLinkRenderer error: %v", err)
	}
	resolver := &staticResolver{}

	authSvc := NewAuthService(cfg, store, limiter, tokens, sessions, csrf,
		binder, recorder, m, renderer, resolver, logger)
	authSvc.now = clock.Now
	authSvc.sleep = func(ctx context.Context, d time.Duration) {}

	return &rig{
		store:    store,
		config:   cfg,
		clock:    clock,
		recorder: recorder,
		binder:   binder,
		limiter:  limiter,
		tokens:   tokens,
		sessions: sessions,
		csrf:     csrf,
		auth:     authSvc,
		mailer:   m,
		resolver: resolver,
	}
}

// auditEvents returns the recorded events of the given type.
func (r *rig) auditEvents(t *testing.T, eventType string) []*models.AuditEvent {
	t.Helper()
	all, err := r.store.Audit(r.store.Handle()).SelectBefore(
		context.Background(), time.Now().Add(time.Hour), 0, 1000)
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	var out []*models.AuditEvent
	for _, e := range all {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
