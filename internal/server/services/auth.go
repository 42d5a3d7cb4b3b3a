package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/passlink/passlink/internal/common"
	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/audit"
	"github.com/passlink/passlink/internal/server/config"
	"github.com/passlink/passlink/internal/server/fingerprint"
	"github.com/passlink/passlink/internal/server/geo"
	"github.com/passlink/passlink/internal/server/mailer"
	"github.com/passlink/passlink/internal/server/repositories/repomanager"
)

// RequestLinkInput describes one magic-link request.
type RequestLinkInput struct {
	Email     string
	IP        string
	UserAgent string
}

// RequestLinkResult is deliberately empty in normal operation: the
// response must not reveal whether the address is registered or whether
// a link actually went out. Link is populated only in dev mode.
type RequestLinkResult struct {
	Link string
}

// VerifyLinkInput describes one verification attempt.
type VerifyLinkInput struct {
	TokenID   string
	Secret    string
	IP        string
	UserAgent string
}

// LoginResult is returned for a successful verification.
type LoginResult struct {
	SessionID string
	UserID    string
	CsrfToken string
}

type deviceSnapshot struct {
	UserAgent string `json:"user_agent"`
	IP        string `json:"ip"`
	Country   string `json:"country,omitempty"`
}

// AuthService orchestrates the two authentication flows. It owns the
// ordering rules: mitigation checks run before any credential state
// changes, a denied attempt leaves token state untouched, and every
// failed verification collapses into one generic outcome after a
// randomized delay.
type AuthService struct {
	config   *config.Config
	store    repomanager.Store
	limiter  *RateLimiter
	tokens   *TokenService
	sessions *SessionManager
	csrf     *CsrfGuard
	binder   *fingerprint.Binder
	audit    *audit.Recorder
	mailer   mailer.Mailer
	renderer *mailer.LinkRenderer
	geo      geo.Resolver
	logger   logging.Logger

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration)
	randInt func(n int64) int64
}

// NewAuthService wires the orchestrator. resolver may be nil; location
// enrichment is then skipped.
func NewAuthService(cfg *config.Config, store repomanager.Store, limiter *RateLimiter,
	tokens *TokenService, sessions *SessionManager, csrf *CsrfGuard,
	binder *fingerprint.Binder, recorder *audit.Recorder,
	m mailer.Mailer, renderer *mailer.LinkRenderer, resolver geo.Resolver,
	logger logging.Logger) *AuthService {
	return &AuthService{
		config:   cfg,
		store:    store,
		limiter:  limiter,
		tokens:   tokens,
		sessions: sessions,
		csrf:     csrf,
		binder:   binder,
		audit:    recorder,
		mailer:   m,
		renderer: renderer,
		geo:      resolver,
		logger:   logger.With("module", "auth"),
		now:      time.Now,
		sleep:    sleepContext,
		randInt:  rand.Int64N,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// delay pauses for a uniformly random duration inside the configured
// band, so response timing does not reveal which check failed.
func (s *AuthService) delay(ctx context.Context) {
	band := int64(s.config.DelayMax - s.config.DelayMin)
	d := s.config.DelayMin
	if band > 0 {
		d += time.Duration(s.randInt(band + 1))
	}
	s.sleep(ctx, d)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > 254 {
		return "", fmt.Errorf("%w: bad email address", common.ErrorValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: bad email address", common.ErrorValidation)
	}
	return email, nil
}

func (s *AuthService) buildLink(tokenID, secret string) string {
	q := url.Values{}
	q.Set("token", tokenID)
	q.Set("secret", secret)
	return s.config.LinkBaseURL + "?" + q.Encode()
}

// RequestLink handles a magic-link request. The happy path mints a
// token and mails the link; every throttled or suspicious path returns
// the same success-shaped result so callers cannot probe the account
// space. Only a required captcha is surfaced, as ErrCaptchaRequired.
func (s *AuthService) RequestLink(ctx context.Context, in RequestLinkInput) (*RequestLinkResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	ipKey := s.binder.NormalizeIP(in.IP)

	checks := []struct {
		scope Scope
		key   string
	}{
		{ScopeEmail, email},
		{ScopeIP, ipKey},
	}
	var gated []struct {
		scope Scope
		key   string
	}
	for _, c := range checks {
		dec, err := s.limiter.Check(ctx, c.scope, c.key)
		if err != nil {
			return nil, err
		}
		switch dec.Outcome {
		case OutcomeDeny:
			s.audit.Record(ctx, audit.EventLinkRequestThrottled, email, map[string]string{
				"scope": string(c.scope),
				"ip":    ipKey,
			})
			return &RequestLinkResult{}, nil
		case OutcomeRequireCaptcha:
			gated = append(gated, c)
		}
	}
	for _, c := range gated {
		ok, err := s.limiter.ConsumeSolvedCaptcha(ctx, c.scope, c.key)
		if err != nil {
			return nil, err
		}
		if !ok {
			if err := s.limiter.RequireCaptcha(ctx, c.scope, c.key); err != nil {
				return nil, err
			}
			return nil, common.ErrCaptchaRequired
		}
	}

	user, err := s.store.Users(s.store.Handle()).GetOrCreate(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving user: %v", common.ErrStorage, err)
	}
	if user.Locked(s.now()) {
		s.audit.Record(ctx, audit.EventLinkRequestThrottled, email, map[string]string{
			"reason": "account_locked",
			"ip":     ipKey,
		})
		return &RequestLinkResult{}, nil
	}

	fp := s.binder.Derive(in.IP, in.UserAgent)
	tokenID, secret, err := s.tokens.Issue(ctx, user.ID, fp)
	if err != nil {
		return nil, err
	}
	recorded := append(checks, struct {
		scope Scope
		key   string
	}{ScopeEmailIP, EmailIPKey(email, ipKey)})
	for _, c := range recorded {
		if err := s.limiter.RecordAttempt(ctx, c.scope, c.key, true); err != nil {
			return nil, err
		}
	}

	link := s.buildLink(tokenID, secret)
	s.audit.Record(ctx, audit.EventLinkRequested, email, map[string]string{
		"ip":       ipKey,
		"token_id": tokenID,
	})

	if s.config.DevMode {
		return &RequestLinkResult{Link: link}, nil
	}

	subject, body, err := s.renderer.Render(mailer.LinkVars{
		SiteName: s.config.SiteName,
		Link:     link,
		TTL:      s.config.TokenTTL.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering link mail: %w", err)
	}
	// Delivery runs after all state is committed; a failure is reported,
	// not retried, and must not leak back to the requester.
	if err := s.mailer.Send(ctx, email, subject, body); err != nil {
		s.logger.Error(ctx, "link mail delivery failed", "error", err, "to", email)
	}
	return &RequestLinkResult{}, nil
}

// VerifyLink handles a magic-link verification attempt. Scope denials
// happen before the token is touched; after that the token is spent
// regardless of verdict, and only a fully valid attempt opens a session.
func (s *AuthService) VerifyLink(ctx context.Context, in VerifyLinkInput) (*LoginResult, error) {
	if strings.TrimSpace(in.TokenID) == "" || strings.TrimSpace(in.Secret) == "" {
		return nil, fmt.Errorf("%w: missing token or secret", common.ErrorValidation)
	}
	ipKey := s.binder.NormalizeIP(in.IP)

	dec, err := s.limiter.Check(ctx, ScopeIP, ipKey)
	if err != nil {
		return nil, err
	}
	if dec.Outcome == OutcomeDeny {
		return nil, s.denyUntouched(ctx, ipKey, ipKey, string(ScopeIP))
	}

	// Resolve the token read-only so the account-level scopes can be
	// checked before any state changes.
	var email string
	token, err := s.store.Tokens(s.store.Handle()).Get(ctx, in.TokenID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("%w: reading token: %v", common.ErrStorage, err)
	}
	if token != nil {
		user, uerr := s.store.Users(s.store.Handle()).GetByID(ctx, token.UserID)
		if uerr != nil && !errors.Is(uerr, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: resolving user: %v", common.ErrStorage, uerr)
		}
		if user != nil {
			email = user.Email
			if user.Locked(s.now()) {
				return nil, s.denyUntouched(ctx, email, ipKey, "account_locked")
			}
			for _, c := range []struct {
				scope Scope
				key   string
			}{
				{ScopeEmail, email},
				{ScopeEmailIP, EmailIPKey(email, ipKey)},
			} {
				dec, err := s.limiter.Check(ctx, c.scope, c.key)
				if err != nil {
					return nil, err
				}
				if dec.Outcome == OutcomeDeny {
					return nil, s.denyUntouched(ctx, email, ipKey, string(c.scope))
				}
			}
		}
	}

	fp := s.binder.Derive(in.IP, in.UserAgent)
	result, err := s.tokens.Verify(ctx, in.TokenID, in.Secret, fp)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, s.fail(ctx, email, ipKey, "token_not_found")
		}
		return nil, err
	}

	switch result.Status {
	case VerifyValid:
		return s.succeed(ctx, result.UserID, in, ipKey)
	case VerifyFingerprintMismatch:
		s.audit.Record(ctx, audit.EventFingerprintMismatch, email, map[string]string{
			"ip": ipKey,
		})
		if s.config.FingerprintSoftFail {
			return s.succeed(ctx, result.UserID, in, ipKey)
		}
		return nil, s.fail(ctx, email, ipKey, "fingerprint_mismatch")
	case VerifyExpired:
		return nil, s.fail(ctx, email, ipKey, "token_expired")
	case VerifyConsumed:
		return nil, s.fail(ctx, email, ipKey, "token_consumed")
	default:
		return nil, s.fail(ctx, email, ipKey, "secret_mismatch")
	}
}

// denyUntouched is the scope-denial exit: the attempt is audited and
// delayed, but no counter advances and no token state changes.
func (s *AuthService) denyUntouched(ctx context.Context, subject, ipKey, reason string) error {
	s.audit.Record(ctx, audit.EventLoginFailed, subject, map[string]string{
		"reason": "throttled:" + reason,
		"ip":     ipKey,
	})
	s.delay(ctx)
	return common.ErrLinkInvalid
}

// fail is the generic-failure exit after the token was (or would have
// been) spent: the failure streaks advance and the caller learns nothing
// beyond "invalid or expired".
func (s *AuthService) fail(ctx context.Context, email, ipKey, reason string) error {
	if err := s.limiter.RecordAttempt(ctx, ScopeIP, ipKey, false); err != nil {
		return err
	}
	subject := ipKey
	if email != "" {
		subject = email
		if err := s.limiter.RecordAttempt(ctx, ScopeEmail, email, false); err != nil {
			return err
		}
		if err := s.limiter.RecordAttempt(ctx, ScopeEmailIP, EmailIPKey(email, ipKey), false); err != nil {
			return err
		}
	}
	s.audit.Record(ctx, audit.EventLoginFailed, subject, map[string]string{
		"reason": reason,
		"ip":     ipKey,
	})
	s.delay(ctx)
	return common.ErrLinkInvalid
}

func (s *AuthService) succeed(ctx context.Context, userID string, in VerifyLinkInput, ipKey string) (*LoginResult, error) {
	user, err := s.store.Users(s.store.Handle()).GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving user: %v", common.ErrStorage, err)
	}

	for _, c := range []struct {
		scope Scope
		key   string
	}{
		{ScopeEmail, user.Email},
		{ScopeIP, ipKey},
		{ScopeEmailIP, EmailIPKey(user.Email, ipKey)},
	} {
		if err := s.limiter.RecordAttempt(ctx, c.scope, c.key, true); err != nil {
			return nil, err
		}
	}

	country := s.enrichLocation(ctx, user.ID, user.Email, in.IP, ipKey)
	snapshot, err := json.Marshal(deviceSnapshot{
		UserAgent: in.UserAgent,
		IP:        ipKey,
		Country:   country,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding device snapshot: %w", err)
	}

	session, err := s.sessions.Create(ctx, user.ID, string(snapshot))
	if err != nil {
		return nil, err
	}
	csrfValue, err := s.csrf.Issue(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.EventLoginSuccess, user.Email, map[string]string{
		"ip":         ipKey,
		"session_id": session.ID,
	})
	return &LoginResult{
		SessionID: session.ID,
		UserID:    user.ID,
		CsrfToken: csrfValue,
	}, nil
}

// enrichLocation resolves the request location and compares it to the
// country of the user's most recent session. A change is an audited
// signal only; it never gates the login.
func (s *AuthService) enrichLocation(ctx context.Context, userID, email, rawIP, ipKey string) string {
	if s.geo == nil {
		return ""
	}
	loc, err := s.geo.Lookup(rawIP)
	if err != nil {
		s.logger.Warn(ctx, "location lookup failed", "error", err)
		return ""
	}
	if loc.Country == "" {
		return ""
	}

	list, err := s.sessions.List(ctx, userID)
	if err != nil {
		s.logger.Warn(ctx, "listing sessions for location check failed", "error", err)
		return loc.Country
	}
	for _, prev := range list {
		var snap deviceSnapshot
		if json.Unmarshal([]byte(prev.DeviceSnapshot), &snap) != nil || snap.Country == "" {
			continue
		}
		if snap.Country != loc.Country {
			s.audit.Record(ctx, audit.EventGeoChanged, email, map[string]string{
				"ip":   ipKey,
				"from": snap.Country,
				"to":   loc.Country,
			})
		}
		break
	}
	return loc.Country
}

// SolveCaptcha is the orchestrator surface for marking a challenge
// solved; the actual challenge check is the transport adapter's concern.
func (s *AuthService) SolveCaptcha(ctx context.Context, scope Scope, email, ip string) error {
	key := ""
	switch scope {
	case ScopeEmail:
		normalized, err := normalizeEmail(email)
		if err != nil {
			return err
		}
		key = normalized
	case ScopeIP:
		key = s.binder.NormalizeIP(ip)
	default:
		return fmt.Errorf("%w: unknown captcha scope", common.ErrorValidation)
	}
	return s.limiter.SolveCaptcha(ctx, scope, key)
}

// RevokeSession terminates one session and records the event.
func (s *AuthService) RevokeSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.EventSessionRevoked, sessionID, nil)
	return nil
}

// RevokeAllSessions terminates every session of the user.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID string) (int64, error) {
	n, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.audit.Record(ctx, audit.EventSessionRevoked, userID, map[string]string{
		"sessions": fmt.Sprintf("%d", n),
	})
	return n, nil
}
