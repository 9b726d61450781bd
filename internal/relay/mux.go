package relay

import (
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/node-relay-go/internal/errors"
	"github.com/openclaw/node-relay-go/internal/metrics"
	"github.com/openclaw/node-relay-go/internal/protocol"
)

// Request is a proxy call forwarded on behalf of a client. The body stays in
// its transport encoding; the relay never interprets it.
type Request struct {
	ID      string
	Method  string
	Path    string
	Headers map[string]string
	BodyB64 string
}

// Response is the single outcome delivered for a pending request. Err is
// empty on success.
type Response struct {
	Status  int
	Headers map[string]string
	BodyB64 string
	Err     apperrors.Code
}

// Mux correlates concurrent request/response pairs over each node's single
// transport connection.
type Mux struct {
	registry   *Registry
	timeout    time.Duration
	maxPending int
}

func NewMux(registry *Registry, timeout time.Duration, maxPending int) *Mux {
	return &Mux{
		registry:   registry,
		timeout:    timeout,
		maxPending: maxPending,
	}
}

// Submit forwards req to the node and returns a channel that yields exactly
// one Response: the matched node reply, timeout, or node_disconnected.
// Failures that prevent the request from ever being in flight are returned
// as an error instead: node_not_connected, id_in_use, too_many_pending.
func (m *Mux) Submit(nodeID string, req Request) (<-chan Response, error) {
	if req.ID == "" {
		return nil, apperrors.Relay("empty request id")
	}

	nc := m.registry.Lookup(nodeID)
	if nc == nil {
		return nil, apperrors.NodeNotConnected(nodeID)
	}

	p, err := m.addPending(nc, req.ID)
	if err != nil {
		return nil, err
	}
	metrics.PendingRequests.Inc()

	frame := &protocol.Frame{
		Type:    protocol.TypeHTTPProxy,
		ID:      req.ID,
		Method:  req.Method,
		Path:    req.Path,
		Headers: req.Headers,
		BodyB64: req.BodyB64,
	}
	if sendErr := nc.sender.SendFrame(frame); sendErr != nil {
		// The transport died under us; the read loop will run the full
		// teardown, this request just fails first.
		if taken := nc.take(req.ID, p); taken != nil {
			metrics.PendingRequests.Dec()
		}
		log.Warn().Err(sendErr).Str("nodeId", nodeID).Str("id", req.ID).Msg("forward to node failed")
		return nil, apperrors.NodeDisconnected().WithCause(sendErr)
	}

	log.Debug().
		Str("nodeId", nodeID).
		Str("id", req.ID).
		Str("method", req.Method).
		Str("path", req.Path).
		Msg("proxy request forwarded")

	return p.done, nil
}

// addPending inserts a handle into the node's table and arms its deadline
// timer, all under the table lock.
func (m *Mux) addPending(nc *NodeConn, id string) (*pendingRequest, error) {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	if nc.closed {
		return nil, apperrors.NodeNotConnected(nc.nodeID)
	}
	if _, exists := nc.pending[id]; exists {
		return nil, apperrors.IDInUse(id)
	}
	if len(nc.pending) >= m.maxPending {
		return nil, apperrors.TooManyPending(m.maxPending)
	}

	p := &pendingRequest{
		id:   id,
		done: make(chan Response, 1),
	}
	p.timer = time.AfterFunc(m.timeout, func() {
		m.expire(nc, id, p)
	})
	nc.pending[id] = p
	return p, nil
}

// expire completes a pending request with timeout, unless it has already
// been resolved or torn down.
func (m *Mux) expire(nc *NodeConn, id string, want *pendingRequest) {
	p := nc.take(id, want)
	if p == nil {
		return
	}
	p.done <- Response{Err: apperrors.CodeTimeout}
	metrics.PendingRequests.Dec()
	metrics.ProxyRequests.WithLabelValues(string(apperrors.CodeTimeout)).Inc()
	log.Info().Str("nodeId", nc.nodeID).Str("id", id).Msg("proxy request timed out")
}

// Resolve matches a node response to its pending handle. A response with no
// matching handle (late, duplicate, or spoofed) is dropped; that is a no-op,
// not an error, since the requester may have already timed out.
func (m *Mux) Resolve(nodeID, id string, resp Response) bool {
	nc := m.registry.Lookup(nodeID)
	if nc == nil {
		return false
	}

	p := nc.take(id, nil)
	if p == nil {
		log.Debug().Str("nodeId", nodeID).Str("id", id).Msg("dropped unmatched response")
		return false
	}

	p.done <- resp
	metrics.PendingRequests.Dec()
	outcome := "ok"
	if resp.Err != "" {
		outcome = string(resp.Err)
	}
	metrics.ProxyRequests.WithLabelValues(outcome).Inc()
	return true
}
