package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/passlink/passlink/internal/common"
	"github.com/passlink/passlink/internal/server/auth"
	"github.com/passlink/passlink/internal/server/services"
)

type requestLinkRequest struct {
	Email string `json:"email"`
}

type requestLinkResponse struct {
	Status string `json:"status"`
	Link   string `json:"link,omitempty"`
}

type loginResponse struct {
	Ticket    string `json:"ticket"`
	CsrfToken string `json:"csrf_token"`
}

type captchaRequest struct {
	Scope string `json:"scope"`
	Email string `json:"email,omitempty"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Device    string    `json:"device"`
	Current   bool      `json:"current"`
	Revoked   bool      `json:"revoked"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps service errors onto transport codes. Everything the
// generic-response rule covers arrives here already collapsed into
// common.ErrLinkInvalid.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad request"})
	case errors.Is(err, common.ErrCaptchaRequired):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "captcha_required"})
	case errors.Is(err, common.ErrLinkInvalid):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: common.ErrLinkInvalid.Error()})
	case errors.Is(err, common.ErrCsrfMismatch):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "request could not be validated"})
	case errors.Is(err, common.ErrSessionExpired), errors.Is(err, common.ErrSessionRevoked),
		errors.Is(err, common.ErrorNotFound):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
	default:
		s.logger.Error(r.Context(), "request failed", "error", err, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// clientIP prefers the first forwarded hop when a proxy added one, and
// falls back to the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (s *Server) handleRequestLink(w http.ResponseWriter, r *http.Request) {
	var req requestLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad request"})
		return
	}

	result, err := s.auth.RequestLink(r.Context(), services.RequestLinkInput{
		Email:     req.Email,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, requestLinkResponse{Status: "ok", Link: result.Link})
}

func (s *Server) handleVerifyLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := s.auth.VerifyLink(r.Context(), services.VerifyLinkInput{
		TokenID:   q.Get("token"),
		Secret:    q.Get("secret"),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ticket, err := auth.GenerateTicket(result.UserID, result.SessionID, s.jwtSecret, s.config.SessionSlide)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Ticket: ticket, CsrfToken: result.CsrfToken})
}

func (s *Server) handleSolveCaptcha(w http.ResponseWriter, r *http.Request) {
	var req captchaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad request"})
		return
	}

	err := s.auth.SolveCaptcha(r.Context(), services.Scope(req.Scope), req.Email, clientIP(r))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "no pending challenge"})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	list, err := s.sessions.List(r.Context(), identity.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(list))
	for _, sess := range list {
		out = append(out, sessionResponse{
			ID:        sess.ID,
			CreatedAt: sess.CreatedAt,
			Device:    sess.DeviceSnapshot,
			Current:   sess.ID == identity.SessionID,
			Revoked:   sess.RevokedAt != nil,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	if err := s.auth.RevokeSession(r.Context(), identity.SessionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	n, err := s.auth.RevokeAllSessions(r.Context(), identity.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "revoked": n})
}
