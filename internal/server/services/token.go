package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/passlink/passlink/internal/common"
	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/models"
	"github.com/passlink/passlink/internal/server/repositories/repomanager"
)

const tokenSecretBytes = 32

// VerifyStatus classifies a verification attempt.
type VerifyStatus int

const (
	VerifyValid VerifyStatus = iota
	VerifyExpired
	VerifyConsumed
	VerifySecretMismatch
	VerifyFingerprintMismatch
)

// VerifyResult is the outcome of a token verification. UserID is set for
// every status except when the token does not exist, so callers can
// attribute a failed attempt to the right account.
type VerifyResult struct {
	Status VerifyStatus
	UserID string
}

// TokenService mints and verifies single-use magic-link tokens. The
// secret travels to the user exactly once, inside the link; the store
// holds only its hash.
type TokenService struct {
	store  repomanager.Store
	ttl    time.Duration
	logger logging.Logger
	now    func() time.Time
}

// NewTokenService constructs a TokenService with the given lifetime.
func NewTokenService(store repomanager.Store, ttl time.Duration, logger logging.Logger) *TokenService {
	return &TokenService{
		store:  store,
		ttl:    ttl,
		logger: logger.With("module", "tokens"),
		now:    time.Now,
	}
}

func hashSecret(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Issue mints a fresh token bound to the user and the requester's
// fingerprint, and returns its id together with the plain secret. The
// secret exists only in the returned value. At most one token per user
// is live at a time: issuing retires the user's outstanding tokens
// first, so only the latest link works.
func (s *TokenService) Issue(ctx context.Context, userID, fingerprintHash string) (id, secret string, err error) {
	secret, err = common.MakeRandHexString(tokenSecretBytes)
	if err != nil {
		return "", "", fmt.Errorf("generating token secret: %w", err)
	}

	now := s.now()
	retired, err := s.store.Tokens(s.store.Handle()).ConsumeLiveByUser(ctx, userID, now)
	if err != nil {
		return "", "", fmt.Errorf("%w: retiring live tokens: %v", common.ErrStorage, err)
	}
	if retired > 0 {
		s.logger.Info(ctx, "retired outstanding tokens", "user_id", userID, "count", retired)
	}
	token := &models.MagicLinkToken{
		ID:              uuid.NewString(),
		UserID:          userID,
		SecretHash:      hashSecret(secret),
		FingerprintHash: fingerprintHash,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}
	if err := s.store.Tokens(s.store.Handle()).Create(ctx, token); err != nil {
		return "", "", fmt.Errorf("%w: storing token: %v", common.ErrStorage, err)
	}
	return token.ID, secret, nil
}

// Verify spends the token and then judges the attempt. Consumption comes
// first: whatever the verdict, the token is gone afterwards, so a
// concurrent duplicate of the same link can never win twice. Of the
// failure statuses only the not-found case surfaces as an error
// (common.ErrorNotFound); everything else is reported in the result.
func (s *TokenService) Verify(ctx context.Context, id, secret, fingerprintHash string) (*VerifyResult, error) {
	now := s.now()
	repo := s.store.Tokens(s.store.Handle())

	won, err := repo.Consume(ctx, id, now)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: consuming token: %v", common.ErrStorage, err)
	}

	token, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: reading token: %v", common.ErrStorage, err)
	}

	if !won {
		// The guarded update did not fire: either the token was already
		// spent or its expiry had passed before anyone spent it.
		if token.ConsumedAt != nil {
			return &VerifyResult{Status: VerifyConsumed, UserID: token.UserID}, nil
		}
		return &VerifyResult{Status: VerifyExpired, UserID: token.UserID}, nil
	}

	if subtle.ConstantTimeCompare(token.SecretHash, hashSecret(secret)) != 1 {
		return &VerifyResult{Status: VerifySecretMismatch, UserID: token.UserID}, nil
	}
	if subtle.ConstantTimeCompare([]byte(token.FingerprintHash), []byte(fingerprintHash)) != 1 {
		return &VerifyResult{Status: VerifyFingerprintMismatch, UserID: token.UserID}, nil
	}
	return &VerifyResult{Status: VerifyValid, UserID: token.UserID}, nil
}

// DeleteExpired clears tokens past their expiry and reports how many
// rows went away.
func (s *TokenService) DeleteExpired(ctx context.Context) (int64, error) {
	n, err := s.store.Tokens(s.store.Handle()).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: deleting expired tokens: %v", common.ErrStorage, err)
	}
	return n, nil
}
