// Package pairing implements the pairing authority: one-time codes offered
// by nodes, session tokens minted for clients, and the redemption rate limit
// that keeps the code space from being brute-forced.
package pairing

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/node-relay-go/internal/audit"
	"github.com/openclaw/node-relay-go/internal/config"
	apperrors "github.com/openclaw/node-relay-go/internal/errors"
	"github.com/openclaw/node-relay-go/internal/metrics"
	"github.com/openclaw/node-relay-go/internal/util"
)

const pairingCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Offer is the result of installing a pairing code for a node.
type Offer struct {
	Code      string // plaintext; returned to the node transport exactly once
	Generated bool   // true when the relay chose the code
	ExpiresAt time.Time
}

// Redemption is the result of a successful code redemption. This is the only
// path by which a client learns which node id its session is bound to.
type Redemption struct {
	Token     string
	NodeID    string
	ExpiresAt time.Time
}

// Session authorizes one client transport against one node.
type Session struct {
	NodeID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type pairingCode struct {
	nodeID    string
	createdAt time.Time
	expiresAt time.Time
	consumed  bool
}

// Authority owns all pairing and session state. Everything is in memory;
// nothing survives a restart.
type Authority struct {
	limiter    Limiter
	codeTTL    time.Duration
	sessionTTL time.Duration

	mu         sync.Mutex
	codes      map[string]*pairingCode // keyed by code hash
	codeByNode map[string]string       // node id -> live code hash
	sessions   map[string]*Session     // keyed by token hash

	now func() time.Time
}

func NewAuthority(limiter Limiter, codeTTL, sessionTTL time.Duration) *Authority {
	return &Authority{
		limiter:    limiter,
		codeTTL:    codeTTL,
		sessionTTL: sessionTTL,
		codes:      make(map[string]*pairingCode),
		codeByNode: make(map[string]string),
		sessions:   make(map[string]*Session),
		now:        time.Now,
	}
}

// Offer installs a one-time pairing code for nodeID. A node may propose its
// own plaintext (it displays the code to its operator); an empty proposal
// makes the authority generate one. Only the hash is kept. Any prior
// unconsumed code for the same node is invalidated: at most one live code
// per node.
func (a *Authority) Offer(nodeID, proposed string) (*Offer, error) {
	if nodeID == "" || len(nodeID) > config.MaxNodeIDLength {
		return nil, apperrors.Relay("node id length out of bounds")
	}

	code := strings.TrimSpace(proposed)
	generated := code == ""
	if generated {
		code = generateCode()
	} else if len(code) < config.MinPairingCodeLen || len(code) > config.MaxPairingCodeLen {
		return nil, apperrors.Relay("pairing code length out of bounds")
	}

	hash := util.HashToken(code)
	expiresAt := a.now().Add(a.codeTTL)

	a.mu.Lock()
	if oldHash, ok := a.codeByNode[nodeID]; ok {
		delete(a.codes, oldHash)
	}
	a.codes[hash] = &pairingCode{
		nodeID:    nodeID,
		createdAt: a.now(),
		expiresAt: expiresAt,
	}
	a.codeByNode[nodeID] = hash
	a.mu.Unlock()

	audit.Log(audit.Event{
		Type:   audit.EventPairOffer,
		NodeID: nodeID,
		Details: map[string]any{
			"code":      util.MaskCode(code),
			"generated": generated,
		},
	})

	return &Offer{Code: code, Generated: generated, ExpiresAt: expiresAt}, nil
}

// Redeem exchanges a pairing code for a session token. The rate limit is
// checked before the code, so an attacker over the limit learns nothing
// about code validity. Not-found, expired, and already-consumed codes all
// fail uniformly with invalid_or_expired.
func (a *Authority) Redeem(ctx context.Context, code, callerAddr string) (*Redemption, error) {
	if !a.limiter.Allow(ctx, callerAddr) {
		metrics.Redemptions.WithLabelValues(string(apperrors.CodeRateLimited)).Inc()
		audit.Log(audit.Event{Type: audit.EventRedeemRateLimited, IP: callerAddr})
		return nil, apperrors.RateLimited()
	}

	hash := util.HashToken(strings.TrimSpace(code))
	now := a.now()

	a.mu.Lock()
	pc, ok := a.codes[hash]
	if !ok || pc.consumed || now.After(pc.expiresAt) {
		a.mu.Unlock()
		metrics.Redemptions.WithLabelValues(string(apperrors.CodeInvalidOrExpired)).Inc()
		audit.Log(audit.Event{Type: audit.EventRedeemFailed, IP: callerAddr})
		return nil, apperrors.InvalidOrExpired()
	}
	pc.consumed = true
	nodeID := pc.nodeID

	token, err := util.GenerateToken()
	if err != nil {
		a.mu.Unlock()
		return nil, apperrors.Relay("token generation failed").WithCause(err)
	}
	expiresAt := now.Add(a.sessionTTL)
	a.sessions[util.HashToken(token)] = &Session{
		NodeID:    nodeID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	a.mu.Unlock()

	metrics.Redemptions.WithLabelValues("ok").Inc()
	audit.Log(audit.Event{Type: audit.EventRedeemSuccess, NodeID: nodeID, IP: callerAddr})
	log.Info().Str("nodeId", nodeID).Msg("pairing code redeemed, session minted")

	return &Redemption{Token: token, NodeID: nodeID, ExpiresAt: expiresAt}, nil
}

// ValidateToken resolves a session token to its node id.
func (a *Authority) ValidateToken(token string) (string, bool) {
	hash := util.HashToken(token)

	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[hash]
	if !ok {
		return "", false
	}
	if a.now().After(s.ExpiresAt) {
		delete(a.sessions, hash)
		return "", false
	}
	return s.NodeID, true
}

// SessionInfo returns a copy of the session bound to token, if valid.
func (a *Authority) SessionInfo(token string) (*Session, bool) {
	hash := util.HashToken(token)

	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[hash]
	if !ok || a.now().After(s.ExpiresAt) {
		return nil, false
	}
	copied := *s
	return &copied, true
}

// Revoke destroys the session bound to token.
func (a *Authority) Revoke(token string) bool {
	hash := util.HashToken(token)

	a.mu.Lock()
	s, ok := a.sessions[hash]
	if ok {
		delete(a.sessions, hash)
	}
	a.mu.Unlock()

	if ok {
		audit.Log(audit.Event{Type: audit.EventSessionRevoked, NodeID: s.NodeID})
	}
	return ok
}

// SweepExpired drops expired codes and sessions; run from the cleanup job.
func (a *Authority) SweepExpired() (codes, sessions int) {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	for hash, pc := range a.codes {
		if pc.consumed || now.After(pc.expiresAt) {
			delete(a.codes, hash)
			if a.codeByNode[pc.nodeID] == hash {
				delete(a.codeByNode, pc.nodeID)
			}
			codes++
		}
	}
	for hash, s := range a.sessions {
		if now.After(s.ExpiresAt) {
			delete(a.sessions, hash)
			sessions++
		}
	}
	return codes, sessions
}

// SessionCount reports live sessions; used by tests and the health surface.
func (a *Authority) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

func generateCode() string {
	chars := []byte(pairingCodeChars)
	code := make([]byte, 0, 9)
	for i := 0; i < 8; i++ {
		if i == 4 {
			code = append(code, '-')
		}
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		code = append(code, chars[n.Int64()])
	}
	return string(code)
}
