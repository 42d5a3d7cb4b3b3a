// Package audit records structured security events into the append-only
// audit trail. Recording never fails the caller's flow: losing an audit
// row must not disable rate limiting or token logic, so a storage
// failure here is reported through the logging side channel instead.
package audit

import (
	"context"
	"time"

	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/repositories/repomanager"
)

// Event types written by the engine.
const (
	EventLinkRequested        = "link_requested"
	EventLinkRequestThrottled = "link_request_throttled"
	EventCaptchaRequired      = "captcha_required"
	EventLoginSuccess         = "login_success"
	EventLoginFailed          = "login_failed"
	EventLockout              = "lockout"
	EventFingerprintMismatch  = "fingerprint_mismatch"
	EventSessionRevoked       = "session_revoked"
	EventGeoChanged           = "geo_changed"
)

// Recorder appends events to the audit trail.
type Recorder struct {
	store  repomanager.Store
	logger logging.Logger
	now    func() time.Time
}

// NewRecorder constructs a Recorder writing through the given store.
func NewRecorder(store repomanager.Store, logger logging.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With("module", "audit"),
		now:    time.Now,
	}
}

// Record appends one immutable event. It deliberately has no error
// return: on storage failure the loss itself is logged as a
// degraded-mode event and the caller's flow proceeds.
func (r *Recorder) Record(ctx context.Context, eventType, subject string, metadata map[string]string) {
	event := newEvent(r.now(), eventType, subject, metadata)
	if err := r.store.Audit(r.store.Handle()).Append(ctx, event); err != nil {
		r.logger.Error(ctx, "audit append failed, event lost",
			"event_type", eventType, "subject", subject, "error", err.Error())
	}
}
