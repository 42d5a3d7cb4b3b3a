package memory

import (
	"context"
	"sort"
	"time"

	"github.com/passlink/passlink/internal/common"
	"github.com/passlink/passlink/internal/server/models"
)

type rateLimitRepo struct {
	st *state
}

func (r *rateLimitRepo) IncrementOrCreate(ctx context.Context, scope, key string, windowStart time.Time, failure bool) (*models.RateLimitCounter, error) {
	ck := counterKey{scope: scope, key: key, window: windowStart.UnixNano()}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	counter, ok := r.st.counters[ck]
	if !ok {
		counter = &models.RateLimitCounter{Scope: scope, Key: key, WindowStart: windowStart}
		r.st.counters[ck] = counter
	}
	counter.Count++
	if failure {
		counter.ConsecutiveFailures++
	} else {
		counter.ConsecutiveFailures = 0
	}
	c := *counter
	return &c, nil
}

func (r *rateLimitRepo) Get(ctx context.Context, scope, key string, windowStart time.Time) (*models.RateLimitCounter, error) {
	ck := counterKey{scope: scope, key: key, window: windowStart.UnixNano()}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	counter, ok := r.st.counters[ck]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *counter
	return &c, nil
}

func (r *rateLimitRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for ck, counter := range r.st.counters {
		if counter.WindowStart.Before(cutoff) {
			delete(r.st.counters, ck)
			n++
		}
	}
	return n, nil
}

type lockoutRepo struct {
	st *state
}

func (r *lockoutRepo) Extend(ctx context.Context, subject string, lockedUntil time.Time, reason string) (*models.Lockout, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	lockout, ok := r.st.lockouts[subject]
	if !ok {
		lockout = &models.Lockout{Subject: subject, LockedUntil: lockedUntil, Reason: reason}
		r.st.lockouts[subject] = lockout
	} else {
		if lockedUntil.After(lockout.LockedUntil) {
			lockout.LockedUntil = lockedUntil
		}
		lockout.Reason = reason
	}
	c := *lockout
	return &c, nil
}

func (r *lockoutRepo) Get(ctx context.Context, subject string) (*models.Lockout, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	lockout, ok := r.st.lockouts[subject]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *lockout
	return &c, nil
}

func (r *lockoutRepo) Delete(ctx context.Context, subject string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	delete(r.st.lockouts, subject)
	return nil
}

func (r *lockoutRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for subject, lockout := range r.st.lockouts {
		if !lockout.LockedUntil.After(now) {
			delete(r.st.lockouts, subject)
			n++
		}
	}
	return n, nil
}

type captchaRepo struct {
	st *state
}

func (r *captchaRepo) Issue(ctx context.Context, subject string, issuedAt time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.captchas[subject] = &models.CaptchaChallenge{Subject: subject, IssuedAt: issuedAt}
	return nil
}

func (r *captchaRepo) Get(ctx context.Context, subject string) (*models.CaptchaChallenge, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	challenge, ok := r.st.captchas[subject]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *challenge
	return &c, nil
}

func (r *captchaRepo) MarkSolved(ctx context.Context, subject string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	challenge, ok := r.st.captchas[subject]
	if !ok {
		return false, nil
	}
	challenge.Solved = true
	return true, nil
}

func (r *captchaRepo) ConsumeSolved(ctx context.Context, subject string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	challenge, ok := r.st.captchas[subject]
	if !ok || !challenge.Solved {
		return false, nil
	}
	delete(r.st.captchas, subject)
	return true, nil
}

func (r *captchaRepo) DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for subject, challenge := range r.st.captchas {
		if challenge.IssuedAt.Before(cutoff) {
			delete(r.st.captchas, subject)
			n++
		}
	}
	return n, nil
}

type auditRepo struct {
	st *state
}

func (r *auditRepo) Append(ctx context.Context, event *models.AuditEvent) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.nextAuditID++
	event.ID = r.st.nextAuditID
	stored := *event
	if event.Metadata != nil {
		stored.Metadata = make(map[string]string, len(event.Metadata))
		for k, v := range event.Metadata {
			stored.Metadata[k] = v
		}
	}
	r.st.audit = append(r.st.audit, &stored)
	return nil
}

func (r *auditRepo) SelectBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]*models.AuditEvent, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var result []*models.AuditEvent
	for _, event := range r.st.audit {
		if event.ID > afterID && event.Timestamp.Before(cutoff) {
			c := *event
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type csrfRepo struct {
	st *state
}

func (r *csrfRepo) Put(ctx context.Context, sessionID, value string, issuedAt time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.csrf[sessionID] = &models.CsrfToken{SessionID: sessionID, Value: value, IssuedAt: issuedAt}
	return nil
}

func (r *csrfRepo) Get(ctx context.Context, sessionID string) (*models.CsrfToken, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	token, ok := r.st.csrf[sessionID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *token
	return &c, nil
}

func (r *csrfRepo) Rotate(ctx context.Context, sessionID, oldValue, newValue string, issuedAt time.Time) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	token, ok := r.st.csrf[sessionID]
	if !ok || token.Value != oldValue {
		return false, nil
	}
	token.Value = newValue
	token.IssuedAt = issuedAt
	return true, nil
}
