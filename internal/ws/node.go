package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/node-relay-go/internal/audit"
	"github.com/openclaw/node-relay-go/internal/config"
	apperrors "github.com/openclaw/node-relay-go/internal/errors"
	"github.com/openclaw/node-relay-go/internal/httputil"
	"github.com/openclaw/node-relay-go/internal/protocol"
	"github.com/openclaw/node-relay-go/internal/relay"
)

// NodeHandler serves GET /ws/node?node_id=... The first frame after the
// upgrade must be pair_offer; anything else is rejected and the connection
// closed before any registry state exists.
func (g *Gateway) NodeHandler(w http.ResponseWriter, r *http.Request) {
	nodeID := r.URL.Query().Get("node_id")
	if nodeID == "" || len(nodeID) > config.MaxNodeIDLength {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error": "node_id is required and bounded",
		})
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("nodeId", nodeID).Msg("node upgrade failed")
		return
	}

	peer := newPeerConn(ws, g.maxFrameBytes)

	// Pairing handshake, on its own shorter deadline.
	ws.SetReadDeadline(time.Now().Add(config.HandshakeTimeout))
	first, err := peer.readFrame()
	ws.SetReadDeadline(time.Now().Add(config.PongWait))
	if err != nil || first.Type != protocol.TypePairOffer {
		audit.Log(audit.Event{Type: audit.EventProtocolViolation, NodeID: nodeID, IP: r.RemoteAddr})
		peer.abort(apperrors.CodeRelayError, websocket.ClosePolicyViolation)
		return
	}

	offer, err := g.authority.Offer(nodeID, first.Code)
	if err != nil {
		peer.abort(apperrors.CodeOf(err), websocket.ClosePolicyViolation)
		return
	}
	peer.setState(stateAuthenticated)

	// Register before acking so the ack implies the node is reachable.
	nc := g.registry.Register(nodeID, peer)
	defer func() {
		g.registry.Unregister(nodeID, nc)
		peer.Close()
		audit.Log(audit.Event{Type: audit.EventNodeDisconnected, NodeID: nodeID})
	}()

	ack := &protocol.Frame{
		Type:      protocol.TypePairOfferAck,
		OK:        true,
		ExpiresAt: offer.ExpiresAt.Unix(),
	}
	if offer.Generated {
		// The plaintext goes back to the node exactly once; the node shows
		// it to its operator.
		ack.Code = offer.Code
	}
	if err := peer.SendFrame(ack); err != nil {
		return
	}

	peer.setState(stateActive)
	audit.Log(audit.Event{Type: audit.EventNodeConnected, NodeID: nodeID, IP: r.RemoteAddr})

	g.nodeReadLoop(nodeID, peer)
}

func (g *Gateway) nodeReadLoop(nodeID string, peer *peerConn) {
	for {
		frame, err := peer.readFrame()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				peer.abort(apperrors.CodeMessageTooLarge, websocket.CloseMessageTooBig)
			case errors.Is(err, errMalformedFrame):
				audit.Log(audit.Event{Type: audit.EventProtocolViolation, NodeID: nodeID})
				peer.abort(apperrors.CodeRelayError, websocket.CloseUnsupportedData)
			}
			log.Debug().Err(err).Str("nodeId", nodeID).Msg("node read loop ended")
			return
		}

		switch frame.Type {
		case protocol.TypeHTTPResponse:
			if err := frame.ValidateResponse(); err != nil {
				audit.Log(audit.Event{Type: audit.EventProtocolViolation, NodeID: nodeID})
				peer.abort(apperrors.CodeRelayError, websocket.CloseUnsupportedData)
				return
			}
			g.resolveResponse(nodeID, frame)

		case protocol.TypePing:
			peer.SendFrame(&protocol.Frame{Type: protocol.TypePong})

		case protocol.TypePong:
			// Liveness already refreshed by readFrame.

		default:
			audit.Log(audit.Event{Type: audit.EventProtocolViolation, NodeID: nodeID})
			peer.abort(apperrors.CodeRelayError, websocket.ClosePolicyViolation)
			return
		}
	}
}

// resolveResponse converts an http_response frame into a multiplexer
// resolution. An oversized response body fails only that one request; the
// connection and the node's other in-flight requests are untouched.
func (g *Gateway) resolveResponse(nodeID string, frame *protocol.Frame) {
	resp := relay.Response{
		Status:  frame.Status,
		Headers: frame.Headers,
		BodyB64: frame.BodyB64,
		Err:     apperrors.Code(frame.Error),
	}

	if frame.Error == "" {
		if _, err := frame.DecodeBody(g.maxBodyBytes); err != nil {
			log.Warn().Str("nodeId", nodeID).Str("id", frame.ID).Msg("oversized response body, failing request")
			resp = relay.Response{Err: apperrors.CodeMessageTooLarge}
		}
	}

	g.mux.Resolve(nodeID, frame.ID, resp)
}
