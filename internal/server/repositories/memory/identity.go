package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/passlink/passlink/internal/common"
	"github.com/passlink/passlink/internal/server/models"
)

type userRepo struct {
	st *state
}

func (r *userRepo) GetOrCreate(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if id, ok := r.st.emailToID[email]; ok {
		return copyUser(r.st.usersByID[id]), nil
	}
	user := &models.User{ID: uuid.NewString(), Email: email, CreatedAt: time.Now()}
	r.st.usersByID[user.ID] = user
	r.st.emailToID[email] = user.ID
	return copyUser(user), nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	user, ok := r.st.usersByID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyUser(user), nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	id, ok := r.st.emailToID[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyUser(r.st.usersByID[id]), nil
}

func (r *userRepo) LockUntil(ctx context.Context, email string, until *time.Time) error {
	email = strings.ToLower(strings.TrimSpace(email))
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if id, ok := r.st.emailToID[email]; ok {
		r.st.usersByID[id].LockedUntil = copyTime(until)
	}
	return nil
}

type tokenRepo struct {
	st *state
}

func (r *tokenRepo) Create(ctx context.Context, token *models.MagicLinkToken) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.tokens[token.ID] = copyToken(token)
	return nil
}

func (r *tokenRepo) Get(ctx context.Context, id string) (*models.MagicLinkToken, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	token, ok := r.st.tokens[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyToken(token), nil
}

func (r *tokenRepo) Consume(ctx context.Context, id string, now time.Time) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	token, ok := r.st.tokens[id]
	if !ok || token.ConsumedAt != nil || !token.ExpiresAt.After(now) {
		return false, nil
	}
	consumed := now
	token.ConsumedAt = &consumed
	return true, nil
}

func (r *tokenRepo) ConsumeLiveByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for _, token := range r.st.tokens {
		if token.UserID == userID && token.ConsumedAt == nil && token.ExpiresAt.After(now) {
			consumed := now
			token.ConsumedAt = &consumed
			n++
		}
	}
	return n, nil
}

func (r *tokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for id, token := range r.st.tokens {
		if !token.ExpiresAt.After(now) {
			delete(r.st.tokens, id)
			n++
		}
	}
	return n, nil
}

type sessionRepo struct {
	st *state
}

func (r *sessionRepo) Create(ctx context.Context, session *models.Session) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.sessions[session.ID] = copySession(session)
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*models.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	session, ok := r.st.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copySession(session), nil
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var result []*models.Session
	for _, session := range r.st.sessions {
		if session.UserID == userID {
			result = append(result, copySession(session))
		}
	}
	return result, nil
}

func (r *sessionRepo) Touch(ctx context.Context, id string, now time.Time, slide time.Duration) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	session, ok := r.st.sessions[id]
	if !ok || session.RevokedAt != nil {
		return false, nil
	}
	if !session.AbsoluteExpiresAt.After(now) || !session.LastSeenAt.Add(slide).After(now) {
		return false, nil
	}
	session.LastSeenAt = now
	return true, nil
}

func (r *sessionRepo) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	session, ok := r.st.sessions[id]
	if !ok || session.RevokedAt != nil {
		return false, nil
	}
	revoked := now
	session.RevokedAt = &revoked
	return true, nil
}

func (r *sessionRepo) RevokeAll(ctx context.Context, userID string, now time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for _, session := range r.st.sessions {
		if session.UserID == userID && session.RevokedAt == nil {
			revoked := now
			session.RevokedAt = &revoked
			n++
		}
	}
	return n, nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time, slide time.Duration) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for id, session := range r.st.sessions {
		if session.RevokedAt != nil || !session.AbsoluteExpiresAt.After(now) || !session.LastSeenAt.Add(slide).After(now) {
			delete(r.st.sessions, id)
			n++
		}
	}
	return n, nil
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.LockedUntil = copyTime(u.LockedUntil)
	return &c
}

func copyToken(t *models.MagicLinkToken) *models.MagicLinkToken {
	c := *t
	c.SecretHash = append([]byte(nil), t.SecretHash...)
	c.ConsumedAt = copyTime(t.ConsumedAt)
	return &c
}

func copySession(s *models.Session) *models.Session {
	c := *s
	c.RevokedAt = copyTime(s.RevokedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
