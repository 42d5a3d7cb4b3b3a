package repomanager

import (
	"context"

	"github.com/passlink/passlink/internal/dbx"
	"github.com/passlink/passlink/internal/server/repositories/auditlog"
	"github.com/passlink/passlink/internal/server/repositories/captchas"
	"github.com/passlink/passlink/internal/server/repositories/csrftokens"
	"github.com/passlink/passlink/internal/server/repositories/lockouts"
	"github.com/passlink/passlink/internal/server/repositories/ratelimits"
	"github.com/passlink/passlink/internal/server/repositories/sessions"
	"github.com/passlink/passlink/internal/server/repositories/tokens"
	"github.com/passlink/passlink/internal/server/repositories/users"
)

// Store is the identity store seen by services: it vends repositories
// bound to a handle, runs schema migrations, and scopes transactions.
//
// Every repository method is one atomic statement; WithTx exists for the
// few operations that must commit more than one statement together. A
// transaction must never span a call to an external collaborator.
type Store interface {
	RunMigrations(ctx context.Context) error
	// Handle returns the non-transactional handle repositories are bound
	// to outside WithTx.
	Handle() dbx.DBTX
	WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error

	Users(db dbx.DBTX) users.Repository
	Tokens(db dbx.DBTX) tokens.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	RateLimits(db dbx.DBTX) ratelimits.Repository
	Lockouts(db dbx.DBTX) lockouts.Repository
	Captchas(db dbx.DBTX) captchas.Repository
	Audit(db dbx.DBTX) auditlog.Repository
	CsrfTokens(db dbx.DBTX) csrftokens.Repository
}
