package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/passlink/passlink/internal/common"
	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/repositories/repomanager"
)

const csrfValueBytes = 32

// CsrfGuard keeps one anti-forgery value per session and rotates it on
// every successful validation, so a leaked value dies with its first
// replay attempt.
type CsrfGuard struct {
	store  repomanager.Store
	logger logging.Logger
	now    func() time.Time
}

// NewCsrfGuard constructs a guard over the given store.
func NewCsrfGuard(store repomanager.Store, logger logging.Logger) *CsrfGuard {
	return &CsrfGuard{
		store:  store,
		logger: logger.With("module", "csrf"),
		now:    time.Now,
	}
}

// Issue installs a fresh anti-forgery value for the session, replacing
// whatever was current, and returns it.
func (g *CsrfGuard) Issue(ctx context.Context, sessionID string) (string, error) {
	value, err := common.MakeRandHexString(csrfValueBytes)
	if err != nil {
		return "", fmt.Errorf("generating anti-forgery value: %w", err)
	}
	if err := g.store.CsrfTokens(g.store.Handle()).Put(ctx, sessionID, value, g.now()); err != nil {
		return "", fmt.Errorf("%w: storing anti-forgery value: %v", common.ErrStorage, err)
	}
	return value, nil
}

// Validate checks the presented value against the session's current one
// and, on success, rotates it. The returned value is the replacement the
// client must use next. Any failure, including losing a rotation race,
// reports ErrCsrfMismatch.
func (g *CsrfGuard) Validate(ctx context.Context, sessionID, presented string) (string, error) {
	repo := g.store.CsrfTokens(g.store.Handle())

	current, err := repo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrCsrfMismatch
		}
		return "", fmt.Errorf("%w: reading anti-forgery value: %v", common.ErrStorage, err)
	}
	if subtle.ConstantTimeCompare([]byte(current.Value), []byte(presented)) != 1 {
		return "", common.ErrCsrfMismatch
	}

	next, err := common.MakeRandHexString(csrfValueBytes)
	if err != nil {
		return "", fmt.Errorf("generating anti-forgery value: %w", err)
	}
	ok, err := repo.Rotate(ctx, sessionID, current.Value, next, g.now())
	if err != nil {
		return "", fmt.Errorf("%w: rotating anti-forgery value: %v", common.ErrStorage, err)
	}
	if !ok {
		// Someone else rotated first; the presented value is stale now.
		return "", common.ErrCsrfMismatch
	}
	return next, nil
}
