package config

import "time"

// HTTP server timeouts
const (
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
	APIRequestTimeout     = 30 * time.Second
)

// WebSocket keepalive. A peer that has not produced a pong (or any frame)
// within PongWait since the last ping is treated as disconnected.
const (
	WriteWait        = 10 * time.Second
	PongWait         = 60 * time.Second
	PingPeriod       = 30 * time.Second
	HandshakeTimeout = 10 * time.Second
)

// Per-connection outbound frame buffer. A peer that falls this far behind is
// a slow consumer and gets dropped.
const SendBufferFrames = 64

// Identifier bounds. node_id and request ids are opaque; only their length is
// ever inspected.
const (
	MaxNodeIDLength = 128
	MaxRequestIDLen = 128
	MaxPathLength   = 2048
	MaxHeaderCount  = 64
)

// Pairing code plaintext bounds for node-proposed codes.
const (
	MinPairingCodeLen = 8
	MaxPairingCodeLen = 128
)

// Body size cap on the JSON control API.
const APIMaxBodyBytes = 4096

// Background job intervals
const CleanupJobInterval = time.Minute

// Redemption rate limit window
const PairRateLimitWindow = time.Minute
