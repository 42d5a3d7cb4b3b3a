package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/passlink/passlink/internal/server/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller attached to the request context
// by sessionMiddleware.
type Identity struct {
	UserID    string
	SessionID string
}

func identityFrom(ctx context.Context) Identity {
	identity, _ := ctx.Value(identityKey).(Identity)
	return identity
}

// sessionMiddleware authenticates the bearer ticket and touches the
// backing session, so activity keeps the sliding window open and a
// revoked session stops working even while its ticket is still signed.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
			return
		}

		claims, err := auth.ParseTicket(strings.TrimPrefix(header, "Bearer "), s.jwtSecret)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
			return
		}

		if _, err := s.sessions.Touch(r.Context(), claims.SessionID); err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, Identity{
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// csrfMiddleware validates the anti-forgery header on state-changing
// routes and hands the rotated replacement back in the response.
func (s *Server) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := identityFrom(r.Context())

		rotated, err := s.csrf.Validate(r.Context(), identity.SessionID, r.Header.Get("X-Csrf-Token"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("X-Csrf-Token", rotated)
		next.ServeHTTP(w, r)
	})
}
