package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/node-relay-go/internal/errors"
	"github.com/openclaw/node-relay-go/internal/httputil"
	"github.com/openclaw/node-relay-go/internal/pairing"
)

// PairHandler is the HTTP control surface for pairing and sessions.
type PairHandler struct {
	authority *pairing.Authority
}

func NewPairHandler(authority *pairing.Authority) *PairHandler {
	return &PairHandler{authority: authority}
}

func (h *PairHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/pair", h.Pair)
	r.Get("/session", h.SessionStatus)
	r.Delete("/session", h.RevokeSession)

	return r
}

type pairRequest struct {
	Code string `json:"code"`
}

type pairResponse struct {
	OK        bool   `json:"ok"`
	NodeID    string `json:"node_id"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// POST /api/pair
func (h *PairHandler) Pair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		httputil.WriteError(w, apperrors.InvalidOrExpired())
		return
	}

	redemption, err := h.authority.Redeem(r.Context(), req.Code, callerAddr(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pairResponse{
		OK:        true,
		NodeID:    redemption.NodeID,
		Token:     redemption.Token,
		ExpiresAt: redemption.ExpiresAt.Unix(),
	})
}

type sessionStatusResponse struct {
	NodeID    string `json:"node_id"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// GET /api/session
func (h *PairHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
			Error: string(apperrors.CodeInvalidOrExpired),
		})
		return
	}

	session, ok := h.authority.SessionInfo(token)
	if !ok {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
			Error: string(apperrors.CodeInvalidOrExpired),
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, sessionStatusResponse{
		NodeID:    session.NodeID,
		CreatedAt: session.CreatedAt.Unix(),
		ExpiresAt: session.ExpiresAt.Unix(),
	})
}

// DELETE /api/session
func (h *PairHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" || !h.authority.Revoke(token) {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
			Error: string(apperrors.CodeInvalidOrExpired),
		})
		return
	}

	log.Info().Msg("session revoked")
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HealthHandler answers load balancer probes.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// callerAddr keys the redemption rate limit. RealIP middleware has already
// folded proxy headers into RemoteAddr; the port is stripped so one caller
// does not get a fresh window per connection.
func callerAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
