package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/passlink/passlink/internal/common"
	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/models"
	"github.com/passlink/passlink/internal/server/repositories/repomanager"
)

// SessionManager owns the session lifecycle: creation after a verified
// login, sliding renewal on activity, and terminal revocation. Expiry is
// enforced at read time, so a stale row is harmless until the janitor
// removes it.
type SessionManager struct {
	store    repomanager.Store
	slide    time.Duration
	absolute time.Duration
	logger   logging.Logger
	now      func() time.Time
}

// NewSessionManager constructs a manager with the given sliding window
// and absolute cap.
func NewSessionManager(store repomanager.Store, slide, absolute time.Duration, logger logging.Logger) *SessionManager {
	return &SessionManager{
		store:    store,
		slide:    slide,
		absolute: absolute,
		logger:   logger.With("module", "sessions"),
		now:      time.Now,
	}
}

// Create opens a session for the user. The device snapshot is opaque to
// the manager; it is stored for audit display only.
func (m *SessionManager) Create(ctx context.Context, userID, deviceSnapshot string) (*models.Session, error) {
	now := m.now()
	session := &models.Session{
		ID:                uuid.NewString(),
		UserID:            userID,
		CreatedAt:         now,
		LastSeenAt:        now,
		AbsoluteExpiresAt: now.Add(m.absolute),
		DeviceSnapshot:    deviceSnapshot,
	}
	if err := m.store.Sessions(m.store.Handle()).Create(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: storing session: %v", common.ErrStorage, err)
	}
	return session, nil
}

// Lookup returns the session if it is live. A revoked session yields
// ErrSessionRevoked even after its expiry would have passed; revocation
// is the stronger, terminal state.
func (m *SessionManager) Lookup(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.store.Sessions(m.store.Handle()).Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: reading session: %v", common.ErrStorage, err)
	}
	if session.RevokedAt != nil {
		return nil, common.ErrSessionRevoked
	}
	if session.Expired(m.now(), m.slide) {
		return nil, common.ErrSessionExpired
	}
	return session, nil
}

// Touch renews the sliding window for an active session and returns the
// refreshed row. The renewal is a guarded update: a session that is
// revoked or past either deadline cannot be revived by touching it.
func (m *SessionManager) Touch(ctx context.Context, id string) (*models.Session, error) {
	repo := m.store.Sessions(m.store.Handle())
	ok, err := repo.Touch(ctx, id, m.now(), m.slide)
	if err != nil {
		return nil, fmt.Errorf("%w: touching session: %v", common.ErrStorage, err)
	}
	if !ok {
		// Classify why the guard rejected the renewal.
		if _, lerr := m.Lookup(ctx, id); lerr != nil {
			return nil, lerr
		}
		return nil, common.ErrSessionExpired
	}
	return m.Lookup(ctx, id)
}

// Revoke terminates the session. Revoking an already revoked session is
// a no-op; an unknown id yields ErrorNotFound.
func (m *SessionManager) Revoke(ctx context.Context, id string) error {
	repo := m.store.Sessions(m.store.Handle())
	ok, err := repo.Revoke(ctx, id, m.now())
	if err != nil {
		return fmt.Errorf("%w: revoking session: %v", common.ErrStorage, err)
	}
	if ok {
		return nil
	}
	if _, err := repo.Get(ctx, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("%w: reading session: %v", common.ErrStorage, err)
	}
	return nil
}

// RevokeAll terminates every live session of the user and reports how
// many were affected.
func (m *SessionManager) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := m.store.Sessions(m.store.Handle()).RevokeAll(ctx, userID, m.now())
	if err != nil {
		return 0, fmt.Errorf("%w: revoking sessions: %v", common.ErrStorage, err)
	}
	return n, nil
}

// List returns every stored session of the user, live or not, newest
// first as the repository orders them.
func (m *SessionManager) List(ctx context.Context, userID string) ([]*models.Session, error) {
	list, err := m.store.Sessions(m.store.Handle()).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing sessions: %v", common.ErrStorage, err)
	}
	return list, nil
}

// DeleteExpired clears sessions past their effective expiry.
func (m *SessionManager) DeleteExpired(ctx context.Context) (int64, error) {
	n, err := m.store.Sessions(m.store.Handle()).DeleteExpired(ctx, m.now(), m.slide)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting expired sessions: %v", common.ErrStorage, err)
	}
	return n, nil
}
