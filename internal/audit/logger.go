// Package audit emits structured security events. Events go to the normal
// log stream tagged so they can be filtered downstream; the relay keeps no
// durable audit trail of its own.
package audit

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventPairOffer         EventType = "pair_offer"
	EventRedeemSuccess     EventType = "redeem_success"
	EventRedeemFailed      EventType = "redeem_failed"
	EventRedeemRateLimited EventType = "redeem_rate_limited"
	EventSessionRevoked    EventType = "session_revoked"
	EventNodeConnected     EventType = "node_connected"
	EventNodeDisconnected  EventType = "node_disconnected"
	EventNodeEvicted       EventType = "node_evicted"
	EventClientConnected   EventType = "client_connected"
	EventClientRejected    EventType = "client_rejected"
	EventProtocolViolation EventType = "protocol_violation"
)

type Event struct {
	Type    EventType
	NodeID  string
	IP      string
	Details map[string]any
}

func Log(event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.NodeID != "" {
		logger = logger.With().Str("node_id", event.NodeID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value any) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
