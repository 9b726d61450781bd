// Package ws is the transport gateway: it accepts node and client WebSocket
// connections, enforces frame and body ceilings, keeps connections alive, and
// feeds the broker core.
package ws

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openclaw/node-relay-go/internal/config"
	apperrors "github.com/openclaw/node-relay-go/internal/errors"
	"github.com/openclaw/node-relay-go/internal/protocol"
)

// connState tracks a connection through its lifecycle. closed is terminal;
// teardown runs exactly once.
type connState int32

const (
	stateConnecting connState = iota
	stateAuthenticated
	stateActive
	stateClosing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticated:
		return "authenticated"
	case stateActive:
		return "active"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// peerConn wraps one websocket connection with a single writer goroutine.
// All outbound frames go through the send buffer; the pump also owns the
// keepalive ping ticker.
type peerConn struct {
	ws    *websocket.Conn
	send  chan []byte
	state atomic.Int32

	closeOnce sync.Once
	done      chan struct{} // closed to stop the pump
	pumpDone  chan struct{} // closed by the pump on exit
}

func newPeerConn(ws *websocket.Conn, maxFrameBytes int64) *peerConn {
	p := &peerConn{
		ws:       ws,
		send:     make(chan []byte, config.SendBufferFrames),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	p.state.Store(int32(stateConnecting))

	ws.SetReadLimit(maxFrameBytes)
	ws.SetReadDeadline(time.Now().Add(config.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(config.PongWait))
	})

	go p.writePump()
	return p
}

func (p *peerConn) setState(s connState) { p.state.Store(int32(s)) }

func (p *peerConn) getState() connState { return connState(p.state.Load()) }

func (p *peerConn) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer ticker.Stop()
	defer close(p.pumpDone)

	for {
		select {
		case msg := <-p.send:
			p.ws.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := p.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				go p.Close()
				return
			}
		case <-ticker.C:
			p.ws.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := p.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				go p.Close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// SendFrame enqueues a frame for the writer goroutine. A full buffer means
// the peer cannot keep up; the connection is dropped rather than letting the
// queue grow without bound.
func (p *peerConn) SendFrame(f *protocol.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	select {
	case <-p.done:
		return fmt.Errorf("connection %s", p.getState())
	default:
	}

	select {
	case p.send <- data:
		return nil
	case <-p.done:
		return fmt.Errorf("connection %s", p.getState())
	default:
		p.Close()
		return fmt.Errorf("slow consumer, dropping connection")
	}
}

// Close tears the connection down. Idempotent; safe from any goroutine.
func (p *peerConn) Close() {
	p.closeOnce.Do(func() {
		p.setState(stateClosing)
		close(p.done)
		p.ws.Close()
		p.setState(stateClosed)
	})
}

// abort emits a bounded error frame plus a close frame, then tears down.
// Used for protocol violations; delivery is best effort since the peer may
// already be gone. The pump is stopped first so the direct writes below keep
// the single-writer discipline.
func (p *peerConn) abort(code apperrors.Code, closeCode int) {
	p.closeOnce.Do(func() {
		p.setState(stateClosing)
		close(p.done)
		<-p.pumpDone

		deadline := time.Now().Add(config.WriteWait)
		p.ws.SetWriteDeadline(deadline)
		if data, err := protocol.ErrorFrame(code).Encode(); err == nil {
			p.ws.WriteMessage(websocket.TextMessage, data)
		}
		p.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, string(code)), deadline)
		p.ws.Close()
		p.setState(stateClosed)
	})
}

// errMalformedFrame marks payloads that arrived intact but failed to decode,
// so read loops can answer with an error frame instead of dropping silently.
var errMalformedFrame = errors.New("malformed frame")

// readFrame blocks for the next text frame, refreshing the liveness deadline
// on every message received.
func (p *peerConn) readFrame() (*protocol.Frame, error) {
	_, data, err := p.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	p.ws.SetReadDeadline(time.Now().Add(config.PongWait))
	f, err := protocol.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	return f, nil
}
