package protocol

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/node-relay-go/internal/errors"
)

func TestDecode(t *testing.T) {
	t.Run("decodes an http_proxy frame", func(t *testing.T) {
		raw := `{"type":"http_proxy","id":"r1","method":"GET","path":"/api/ping","headers":{"accept":"application/json"}}`

		f, err := Decode([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, TypeHTTPProxy, f.Type)
		assert.Equal(t, "r1", f.ID)
		assert.Equal(t, "GET", f.Method)
		assert.Equal(t, "/api/ping", f.Path)
		assert.Equal(t, "application/json", f.Headers["accept"])
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		_, err := Decode([]byte("{nope"))
		assert.Error(t, err)
	})

	t.Run("rejects a frame without type", func(t *testing.T) {
		_, err := Decode([]byte(`{"id":"r1"}`))
		assert.Error(t, err)
	})
}

func TestEncodeOmitsUnusedFields(t *testing.T) {
	data, err := (&Frame{Type: TypePong}).Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"pong"}`, string(data))
}

func TestDecodeBody(t *testing.T) {
	t.Run("round-trips a body", func(t *testing.T) {
		f := &Frame{Type: TypeHTTPResponse, ID: "r1", BodyB64: EncodeBody([]byte("ok"))}

		body, err := f.DecodeBody(1024)
		require.NoError(t, err)
		assert.Equal(t, []byte("ok"), body)
	})

	t.Run("empty body decodes to nil", func(t *testing.T) {
		body, err := (&Frame{Type: TypeHTTPProxy}).DecodeBody(1024)
		require.NoError(t, err)
		assert.Nil(t, body)
	})

	t.Run("enforces the decoded cap", func(t *testing.T) {
		f := &Frame{BodyB64: EncodeBody([]byte(strings.Repeat("x", 100)))}

		_, err := f.DecodeBody(99)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeMessageTooLarge, apperrors.CodeOf(err))
	})

	t.Run("exactly at the cap passes", func(t *testing.T) {
		f := &Frame{BodyB64: EncodeBody([]byte(strings.Repeat("x", 100)))}

		body, err := f.DecodeBody(100)
		require.NoError(t, err)
		assert.Len(t, body, 100)
	})

	t.Run("rejects invalid base64", func(t *testing.T) {
		f := &Frame{BodyB64: "!!not base64!!"}

		_, err := f.DecodeBody(1024)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeRelayError, apperrors.CodeOf(err))
	})

	t.Run("rejects an oversized body before decoding it", func(t *testing.T) {
		huge := base64.StdEncoding.EncodeToString(make([]byte, 10_000))
		f := &Frame{BodyB64: huge}

		_, err := f.DecodeBody(64)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeMessageTooLarge, apperrors.CodeOf(err))
	})
}

func TestValidateProxy(t *testing.T) {
	valid := func() *Frame {
		return &Frame{Type: TypeHTTPProxy, ID: "r1", Method: "GET", Path: "/api/ping"}
	}

	t.Run("accepts a valid frame", func(t *testing.T) {
		assert.NoError(t, valid().ValidateProxy())
	})

	t.Run("accepts an empty id", func(t *testing.T) {
		f := valid()
		f.ID = ""
		assert.NoError(t, f.ValidateProxy())
	})

	t.Run("rejects missing method and path", func(t *testing.T) {
		f := valid()
		f.Method = ""
		assert.Error(t, f.ValidateProxy())

		f = valid()
		f.Path = ""
		assert.Error(t, f.ValidateProxy())
	})

	t.Run("rejects an overlong id", func(t *testing.T) {
		f := valid()
		f.ID = strings.Repeat("a", 129)
		assert.Error(t, f.ValidateProxy())
	})
}

func TestValidateResponse(t *testing.T) {
	t.Run("accepts a valid frame", func(t *testing.T) {
		f := &Frame{Type: TypeHTTPResponse, ID: "r1", Status: 200}
		assert.NoError(t, f.ValidateResponse())
	})

	t.Run("rejects a missing id", func(t *testing.T) {
		f := &Frame{Type: TypeHTTPResponse, Status: 200}
		assert.Error(t, f.ValidateResponse())
	})
}

func TestErrorFrames(t *testing.T) {
	data, err := ErrorFrame(apperrors.CodeMessageTooLarge).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","error":"message_too_large"}`, string(data))

	data, err = ResponseError("r1", apperrors.CodeNodeNotConnected).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"http_response","id":"r1","error":"node_not_connected"}`, string(data))
}
