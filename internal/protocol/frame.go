// Package protocol defines the framing shared by node and client transports.
// Every WebSocket text message is one self-contained JSON frame with a type
// discriminator.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/openclaw/node-relay-go/internal/config"
	apperrors "github.com/openclaw/node-relay-go/internal/errors"
)

type Type string

const (
	TypePairOffer    Type = "pair_offer"
	TypePairOfferAck Type = "pair_offer_ack"
	TypeHTTPProxy    Type = "http_proxy"
	TypeHTTPResponse Type = "http_response"
	TypePing         Type = "ping"
	TypePong         Type = "pong"
	TypeError        Type = "error"
)

// Frame covers every message shape; unused fields stay absent on the wire.
type Frame struct {
	Type Type `json:"type"`

	// pair_offer / pair_offer_ack
	Code      string `json:"code,omitempty"`
	OK        bool   `json:"ok,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`

	// http_proxy / http_response
	ID      string            `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Path    string            `json:"path,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	BodyB64 string            `json:"body_b64,omitempty"`
	Status  int               `json:"status,omitempty"`

	// http_response / error
	Error string `json:"error,omitempty"`
}

func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type")
	}
	return &f, nil
}

func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeBody decodes body_b64 and enforces the decoded-byte cap before the
// payload reaches the multiplexer. The cap is checked on the encoded length
// first so an oversized body is rejected without allocating it.
func (f *Frame) DecodeBody(maxBytes int64) ([]byte, error) {
	if f.BodyB64 == "" {
		return nil, nil
	}
	if int64(base64.StdEncoding.DecodedLen(len(f.BodyB64))) > maxBytes+3 {
		return nil, apperrors.MessageTooLarge(maxBytes)
	}
	body, err := base64.StdEncoding.DecodeString(f.BodyB64)
	if err != nil {
		return nil, apperrors.Relay("body_b64 is not valid base64").WithCause(err)
	}
	if int64(len(body)) > maxBytes {
		return nil, apperrors.MessageTooLarge(maxBytes)
	}
	return body, nil
}

// EncodeBody fills body_b64 from raw bytes.
func EncodeBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(body)
}

// ValidateProxy checks the fields a client must supply on http_proxy. The id
// may be empty; the gateway allocates one in that case.
func (f *Frame) ValidateProxy() error {
	if f.Type != TypeHTTPProxy {
		return fmt.Errorf("not an http_proxy frame")
	}
	if f.Method == "" {
		return fmt.Errorf("http_proxy: missing method")
	}
	if f.Path == "" {
		return fmt.Errorf("http_proxy: missing path")
	}
	if len(f.Path) > config.MaxPathLength {
		return fmt.Errorf("http_proxy: path too long")
	}
	if len(f.ID) > config.MaxRequestIDLen {
		return fmt.Errorf("http_proxy: id too long")
	}
	if len(f.Headers) > config.MaxHeaderCount {
		return fmt.Errorf("http_proxy: too many headers")
	}
	return nil
}

// ValidateResponse checks the fields a node must supply on http_response.
func (f *Frame) ValidateResponse() error {
	if f.Type != TypeHTTPResponse {
		return fmt.Errorf("not an http_response frame")
	}
	if f.ID == "" {
		return fmt.Errorf("http_response: missing id")
	}
	if len(f.ID) > config.MaxRequestIDLen {
		return fmt.Errorf("http_response: id too long")
	}
	return nil
}

// ErrorFrame builds the bounded relay->peer error frame.
func ErrorFrame(code apperrors.Code) *Frame {
	return &Frame{Type: TypeError, Error: string(code)}
}

// ResponseError builds an http_response frame carrying a failure outcome for
// one request id.
func ResponseError(id string, code apperrors.Code) *Frame {
	return &Frame{Type: TypeHTTPResponse, ID: id, Error: string(code)}
}
