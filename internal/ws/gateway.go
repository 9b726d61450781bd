package ws

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/openclaw/node-relay-go/internal/config"
	"github.com/openclaw/node-relay-go/internal/pairing"
	"github.com/openclaw/node-relay-go/internal/relay"
)

// Gateway owns the node and client WebSocket endpoints.
type Gateway struct {
	authority *pairing.Authority
	registry  *relay.Registry
	mux       *relay.Mux

	maxFrameBytes int64
	maxBodyBytes  int64

	upgrader websocket.Upgrader
}

func NewGateway(authority *pairing.Authority, registry *relay.Registry, mux *relay.Mux, maxFrameBytes, maxBodyBytes int64) *Gateway {
	return &Gateway{
		authority:     authority,
		registry:      registry,
		mux:           mux,
		maxFrameBytes: maxFrameBytes,
		maxBodyBytes:  maxBodyBytes,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			// The session token, not the Origin header, is the credential;
			// browsers are not the expected client surface here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}
