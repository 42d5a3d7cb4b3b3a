// Package fingerprint derives a stable binding value from a request's
// origin (normalized IP + user-agent). The binding is computed once when
// a credential or session is created and re-derived at use time; a
// mismatch is a security signal for the orchestrator to act on.
package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net"
	"strings"
)

// Granularity selects how much of the client IP participates in the
// binding. Subnet granularity tolerates ISP address rotation.
type Granularity string

const (
	// GranularityExact binds to the full IP address.
	GranularityExact Granularity = "exact"
	// GranularitySubnet binds to the /24 (IPv4) or /64 (IPv6) prefix.
	GranularitySubnet Granularity = "subnet"
)

const maxUserAgentLen = 256

// Binder derives and compares origin bindings.
type Binder struct {
	granularity Granularity
}

// NewBinder constructs a Binder. Unknown granularities fall back to
// subnet, the safer default against false mismatches.
func NewBinder(granularity Granularity) *Binder {
	if granularity != GranularityExact && granularity != GranularitySubnet {
		granularity = GranularitySubnet
	}
	return &Binder{granularity: granularity}
}

// Derive returns the hex-encoded one-way hash of the normalized origin.
func (b *Binder) Derive(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(b.NormalizeIP(ip) + "|" + normalizeUserAgent(userAgent)))
	return hex.EncodeToString(sum[:])
}

// Matches compares two binding hashes in constant time.
func (b *Binder) Matches(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

// NormalizeIP strips any port and zone and, at subnet granularity,
// truncates to /24 for IPv4 or /64 for IPv6.
func (b *Binder) NormalizeIP(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if i := strings.IndexByte(ip, '%'); i >= 0 {
		ip = ip[:i]
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return strings.TrimSpace(ip)
	}
	if b.granularity == GranularityExact {
		return parsed.String()
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return parsed.Mask(net.CIDRMask(64, 128)).String()
}

// User agents carry enough entropy in their prefix; trailing variance
// (plugin lists and the like) only causes false mismatches.
func normalizeUserAgent(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if len(userAgent) > maxUserAgentLen {
		userAgent = userAgent[:maxUserAgentLen]
	}
	return userAgent
}
