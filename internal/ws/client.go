package ws

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/node-relay-go/internal/audit"
	apperrors "github.com/openclaw/node-relay-go/internal/errors"
	"github.com/openclaw/node-relay-go/internal/httputil"
	"github.com/openclaw/node-relay-go/internal/metrics"
	"github.com/openclaw/node-relay-go/internal/protocol"
	"github.com/openclaw/node-relay-go/internal/relay"
)

// ClientHandler serves GET /ws/client. The session token (query param or
// bearer header) is validated before the upgrade, so an unauthenticated
// caller never reaches any multiplexer state.
func (g *Gateway) ClientHandler(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"error": string(apperrors.CodeInvalidOrExpired),
		})
		return
	}

	nodeID, ok := g.authority.ValidateToken(token)
	if !ok {
		audit.Log(audit.Event{Type: audit.EventClientRejected, IP: r.RemoteAddr})
		httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"error": string(apperrors.CodeInvalidOrExpired),
		})
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("client upgrade failed")
		return
	}

	peer := newPeerConn(ws, g.maxFrameBytes)
	peer.setState(stateAuthenticated)
	peer.setState(stateActive)
	defer peer.Close()

	metrics.ClientsConnected.Inc()
	defer metrics.ClientsConnected.Dec()
	audit.Log(audit.Event{Type: audit.EventClientConnected, NodeID: nodeID, IP: r.RemoteAddr})

	g.clientReadLoop(nodeID, peer)
}

func (g *Gateway) clientReadLoop(nodeID string, peer *peerConn) {
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
			log.Debug().Err(err).Str("nodeId", nodeID).Msg("client read loop ended")
			return
		}

		switch frame.Type {
		case protocol.TypeHTTPProxy:
			if err := frame.ValidateProxy(); err != nil {
				audit.Log(audit.Event{Type: audit.EventProtocolViolation, NodeID: nodeID})
				peer.abort(apperrors.CodeRelayError, websocket.CloseUnsupportedData)
				return
			}
			g.submitProxy(nodeID, peer, frame)

		case protocol.TypePing:
			peer.SendFrame(&protocol.Frame{Type: protocol.TypePong})

		case protocol.TypePong:

		default:
			audit.Log(audit.Event{Type: audit.EventProtocolViolation, NodeID: nodeID})
			peer.abort(apperrors.CodeRelayError, websocket.ClosePolicyViolation)
			return
		}
	}
}

// submitProxy validates one http_proxy frame and hands it to the
// multiplexer. The wait for the outcome happens on its own goroutine so one
// slow request never stalls the client's read loop.
func (g *Gateway) submitProxy(nodeID string, peer *peerConn, frame *protocol.Frame) {
	id := frame.ID
	if id == "" {
		id = uuid.NewString()
	}

	// Enforce the decoded-body cap before anything reaches the multiplexer.
	if _, err := frame.DecodeBody(g.maxBodyBytes); err != nil {
		peer.SendFrame(protocol.ResponseError(id, apperrors.CodeOf(err)))
		return
	}

	req := relay.Request{
		ID:      id,
		Method:  frame.Method,
		Path:    frame.Path,
		Headers: frame.Headers,
		BodyB64: frame.BodyB64,
	}

	done, err := g.mux.Submit(nodeID, req)
	if err != nil {
		peer.SendFrame(protocol.ResponseError(id, apperrors.CodeOf(err)))
		return
	}

	go func() {
		resp := <-done
		out := &protocol.Frame{Type: protocol.TypeHTTPResponse, ID: id}
		if resp.Err != "" {
			out.Error = string(resp.Err)
		} else {
			out.Status = resp.Status
			out.Headers = resp.Headers
			out.BodyB64 = resp.BodyB64
		}
		if err := peer.SendFrame(out); err != nil {
			// Client went away; nothing to deliver to.
			log.Debug().Str("nodeId", nodeID).Str("id", id).Msg("response dropped, client gone")
		}
	}()
}

func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
