package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("formats code and message", func(t *testing.T) {
		err := New(CodeTimeout, "deadline passed")
		assert.Equal(t, "timeout: deadline passed", err.Error())
	})

	t.Run("includes cause when present", func(t *testing.T) {
		cause := errors.New("write: broken pipe")
		err := Wrap(CodeRelayError, "forward failed", cause)
		assert.Contains(t, err.Error(), "broken pipe")
		assert.Equal(t, cause, errors.Unwrap(err))
	})

	t.Run("unwraps through fmt wrapping", func(t *testing.T) {
		inner := IDInUse("r1")
		outer := fmt.Errorf("submit: %w", inner)

		appErr, ok := AsAppError(outer)
		assert.True(t, ok)
		assert.Equal(t, CodeIDInUse, appErr.Code)
	})
}

func TestCodeOf(t *testing.T) {
	t.Run("returns the wire code for app errors", func(t *testing.T) {
		assert.Equal(t, CodeNodeNotConnected, CodeOf(NodeNotConnected("n1")))
		assert.Equal(t, CodeRateLimited, CodeOf(RateLimited()))
		assert.Equal(t, CodeInvalidOrExpired, CodeOf(InvalidOrExpired()))
	})

	t.Run("falls back to relay_error for plain errors", func(t *testing.T) {
		assert.Equal(t, CodeRelayError, CodeOf(errors.New("boom")))
	})
}

func TestWireCodes(t *testing.T) {
	// The string values are part of the protocol.
	wire := map[Code]string{
		CodeNodeNotConnected: "node_not_connected",
		CodeNodeDisconnected: "node_disconnected",
		CodeTimeout:          "timeout",
		CodeTooManyPending:   "too_many_pending",
		CodeRateLimited:      "rate_limited",
		CodeIDInUse:          "id_in_use",
		CodeMessageTooLarge:  "message_too_large",
		CodeInvalidOrExpired: "invalid_or_expired",
		CodeRelayError:       "relay_error",
	}
	for code, want := range wire {
		assert.Equal(t, want, string(code))
	}
}
