// Package relay holds the broker core: the node connection registry and the
// request multiplexer that correlates proxy requests with node responses.
package relay

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/node-relay-go/internal/errors"
	"github.com/openclaw/node-relay-go/internal/metrics"
	"github.com/openclaw/node-relay-go/internal/protocol"
)

// Sender is the transport side of a node connection. SendFrame must be safe
// for concurrent use; Close must be idempotent.
type Sender interface {
	SendFrame(f *protocol.Frame) error
	Close()
}

// NodeConn is the single active connection for one node id, together with
// its pending-request table. The table lock is per node so traffic on one
// node never contends with another.
type NodeConn struct {
	nodeID      string
	sender      Sender
	connectedAt time.Time

	mu      sync.Mutex
	pending map[string]*pendingRequest
	closed  bool
}

type pendingRequest struct {
	id    string
	done  chan Response // buffered; receives exactly one Response
	timer *time.Timer
}

func (nc *NodeConn) NodeID() string { return nc.nodeID }

func (nc *NodeConn) ConnectedAt() time.Time { return nc.connectedAt }

// failAll completes every pending request with the given code and marks the
// connection closed. Safe to call more than once; only the first call
// delivers anything.
func (nc *NodeConn) failAll(code apperrors.Code) {
	nc.mu.Lock()
	if nc.closed {
		nc.mu.Unlock()
		return
	}
	nc.closed = true
	failed := nc.pending
	nc.pending = nil
	for _, p := range failed {
		p.timer.Stop()
	}
	nc.mu.Unlock()

	for _, p := range failed {
		p.done <- Response{Err: code}
	}
	if n := len(failed); n > 0 {
		metrics.PendingRequests.Sub(float64(n))
		metrics.ProxyRequests.WithLabelValues(string(code)).Add(float64(n))
		log.Info().
			Str("nodeId", nc.nodeID).
			Int("failed", n).
			Str("code", string(code)).
			Msg("failed pending requests on node teardown")
	}
}

// take removes one pending entry. When want is non-nil the entry is removed
// only if it is that exact handle, so a stale timer never steals a newer
// request that reused the id.
func (nc *NodeConn) take(id string, want *pendingRequest) *pendingRequest {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	p, ok := nc.pending[id]
	if !ok || (want != nil && p != want) {
		return nil
	}
	delete(nc.pending, id)
	p.timer.Stop()
	return p
}

// pendingCount reports the table size; zero after teardown.
func (nc *NodeConn) pendingCount() int {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return len(nc.pending)
}

// Registry tracks the single active transport connection per node id.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*NodeConn
}

func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]*NodeConn)}
}

// Register installs a fresh connection (and empty pending table) for nodeID.
// An existing connection for the same id is evicted first: all its pending
// requests fail with node_disconnected and its transport closes. Newest wins.
func (r *Registry) Register(nodeID string, sender Sender) *NodeConn {
	nc := &NodeConn{
		nodeID:      nodeID,
		sender:      sender,
		connectedAt: time.Now(),
		pending:     make(map[string]*pendingRequest),
	}

	r.mu.Lock()
	old := r.nodes[nodeID]
	r.nodes[nodeID] = nc
	r.mu.Unlock()

	if old != nil {
		old.failAll(apperrors.CodeNodeDisconnected)
		old.sender.Close()
		metrics.NodeEvictions.Inc()
		log.Warn().Str("nodeId", nodeID).Msg("evicted previous node connection")
	} else {
		metrics.NodesConnected.Inc()
	}

	log.Info().Str("nodeId", nodeID).Msg("node registered")
	return nc
}

// Lookup returns the active connection for nodeID, or nil.
func (r *Registry) Lookup(nodeID string) *NodeConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[nodeID]
}

// Unregister tears down nc. The registry entry is removed only if nc is
// still the active connection (an evicted connection's own close must not
// remove its replacement), but nc's pending table is failed unconditionally
// so pending count always returns to zero after any disconnect path.
func (r *Registry) Unregister(nodeID string, nc *NodeConn) {
	if nc == nil {
		return
	}

	r.mu.Lock()
	removed := r.nodes[nodeID] == nc
	if removed {
		delete(r.nodes, nodeID)
	}
	r.mu.Unlock()

	nc.failAll(apperrors.CodeNodeDisconnected)

	if removed {
		metrics.NodesConnected.Dec()
		log.Info().Str("nodeId", nodeID).Msg("node unregistered")
	}
}

// PendingCount reports in-flight requests for nodeID; zero when absent.
func (r *Registry) PendingCount(nodeID string) int {
	nc := r.Lookup(nodeID)
	if nc == nil {
		return 0
	}
	return nc.pendingCount()
}

// NodeCount reports the number of registered nodes.
func (r *Registry) NodeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// CloseAll evicts every node; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	nodes := r.nodes
	r.nodes = make(map[string]*NodeConn)
	r.mu.Unlock()

	for nodeID, nc := range nodes {
		nc.failAll(apperrors.CodeNodeDisconnected)
		nc.sender.Close()
		metrics.NodesConnected.Dec()
		log.Info().Str("nodeId", nodeID).Msg("node connection closed on shutdown")
	}
}
