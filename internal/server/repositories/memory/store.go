// Package memory implements the identity store in process memory. It
// honors the same atomicity contract as the PostgreSQL store (every
// repository method is a single critical section), which makes it usable
// for concurrency tests and local development without a database.
package memory

import (
	"context"
	"sync"

	"github.com/passlink/passlink/internal/dbx"
	"github.com/passlink/passlink/internal/server/models"
	"github.com/passlink/passlink/internal/server/repositories/auditlog"
	"github.com/passlink/passlink/internal/server/repositories/captchas"
	"github.com/passlink/passlink/internal/server/repositories/csrftokens"
	"github.com/passlink/passlink/internal/server/repositories/lockouts"
	"github.com/passlink/passlink/internal/server/repositories/ratelimits"
	"github.com/passlink/passlink/internal/server/repositories/sessions"
	"github.com/passlink/passlink/internal/server/repositories/tokens"
	"github.com/passlink/passlink/internal/server/repositories/users"
)

type state struct {
	mu          sync.Mutex
	usersByID   map[string]*models.User
	emailToID   map[string]string
	tokens      map[string]*models.MagicLinkToken
	sessions    map[string]*models.Session
	counters    map[counterKey]*models.RateLimitCounter
	lockouts    map[string]*models.Lockout
	captchas    map[string]*models.CaptchaChallenge
	audit       []*models.AuditEvent
	csrf        map[string]*models.CsrfToken
	nextAuditID int64
}

type counterKey struct {
	scope  string
	key    string
	window int64
}

// Store vends in-memory repository implementations sharing one state.
type Store struct {
	st *state
}

// NewStore constructs an empty in-memory identity store.
func NewStore() *Store {
	return &Store{st: &state{
		usersByID: map[string]*models.User{},
		emailToID: map[string]string{},
		tokens:    map[string]*models.MagicLinkToken{},
		sessions:  map[string]*models.Session{},
		counters:  map[counterKey]*models.RateLimitCounter{},
		lockouts:  map[string]*models.Lockout{},
		captchas:  map[string]*models.CaptchaChallenge{},
		csrf:      map[string]*models.CsrfToken{},
	}}
}

func (s *Store) RunMigrations(ctx context.Context) error { return nil }

// Handle returns nil: in-memory repositories ignore the DBTX argument.
func (s *Store) Handle() dbx.DBTX { return nil }

// WithTx runs fn directly. Individual repository methods are already
// atomic; the in-memory store offers no multi-statement atomicity beyond
// that, which is all the engine's operations require.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return fn(ctx, nil)
}

func (s *Store) Users(db dbx.DBTX) users.Repository           { return &userRepo{st: s.st} }
func (s *Store) Tokens(db dbx.DBTX) tokens.Repository         { return &tokenRepo{st: s.st} }
func (s *Store) Sessions(db dbx.DBTX) sessions.Repository     { return &sessionRepo{st: s.st} }
func (s *Store) RateLimits(db dbx.DBTX) ratelimits.Repository { return &rateLimitRepo{st: s.st} }
func (s *Store) Lockouts(db dbx.DBTX) lockouts.Repository     { return &lockoutRepo{st: s.st} }
func (s *Store) Captchas(db dbx.DBTX) captchas.Repository     { return &captchaRepo{st: s.st} }
func (s *Store) Audit(db dbx.DBTX) auditlog.Repository        { return &auditRepo{st: s.st} }
func (s *Store) CsrfTokens(db dbx.DBTX) csrftokens.Repository { return &csrfRepo{st: s.st} }
