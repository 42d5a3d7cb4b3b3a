// Package common defines shared constants and sentinel errors used across
// passlink components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrStorage wraps any constraint violation or connectivity failure
	// coming out of the relational store. It is never swallowed; the
	// request that hit it fails with a generic server error.
	ErrStorage = errors.New("storage error")

	// Validation errors fail fast, before any shared state is touched.
	ErrorValidation = errors.New("validation error")

	// ErrCaptchaRequired tells the caller a challenge must be solved
	// before the request can be retried. Unlike a hard denial it is
	// surfaced to the client.
	ErrCaptchaRequired = errors.New("captcha required")

	// Session errors.
	ErrSessionExpired = errors.New("session expired")
	ErrSessionRevoked = errors.New("session revoked")

	// CSRF errors. Fatal to the guarded request, not to the session.
	ErrCsrfMismatch = errors.New("csrf token mismatch")

	// ErrLinkInvalid is the single user-visible failure outcome of link
	// verification. The detailed reason lives only in the audit trail.
	ErrLinkInvalid = errors.New("invalid or expired link")
)
