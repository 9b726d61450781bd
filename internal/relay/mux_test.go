package relay

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/node-relay-go/internal/errors"
	"github.com/openclaw/node-relay-go/internal/protocol"
)

// fakeSender records forwarded frames and can simulate a dead transport.
type fakeSender struct {
	mu     sync.Mutex
	frames []*protocol.Frame
	fail   error
	closed int
}

func (s *fakeSender) SendFrame(f *protocol.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

func (s *fakeSender) sent() []*protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*protocol.Frame(nil), s.frames...)
}

func (s *fakeSender) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func newMux(t *testing.T, timeout time.Duration, maxPending int) (*Mux, *Registry) {
	t.Helper()
	reg := NewRegistry()
	return NewMux(reg, timeout, maxPending), reg
}

func TestSubmitAndResolve(t *testing.T) {
	mux, reg := newMux(t, time.Second, 64)
	sender := &fakeSender{}
	reg.Register("n1", sender)

	done, err := mux.Submit("n1", Request{ID: "r1", Method: "GET", Path: "/api/ping"})
	require.NoError(t, err)
	require.Equal(t, 1, reg.PendingCount("n1"))

	frames := sender.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.TypeHTTPProxy, frames[0].Type)
	assert.Equal(t, "r1", frames[0].ID)
	assert.Equal(t, "/api/ping", frames[0].Path)

	ok := mux.Resolve("n1", "r1", Response{Status: 200, BodyB64: protocol.EncodeBody([]byte("ok"))})
	assert.True(t, ok)

	select {
	case resp := <-done:
		assert.Equal(t, 200, resp.Status)
		assert.Empty(t, resp.Err)
	case <-time.After(time.Second):
		t.Fatal("no response delivered")
	}
	assert.Equal(t, 0, reg.PendingCount("n1"))
}

func TestSubmitNodeNotConnected(t *testing.T) {
	mux, _ := newMux(t, time.Second, 64)

	_, err := mux.Submit("n1", Request{ID: "r1", Method: "GET", Path: "/"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNodeNotConnected, apperrors.CodeOf(err))
}

func TestSubmitEmptyID(t *testing.T) {
	mux, reg := newMux(t, time.Second, 64)
	reg.Register("n1", &fakeSender{})

	_, err := mux.Submit("n1", Request{Method: "GET", Path: "/"})
	assert.Error(t, err)
}

func TestSubmitDuplicateID(t *testing.T) {
	mux, reg := newMux(t, time.Second, 64)
	reg.Register("n1", &fakeSender{})

	_, err := mux.Submit("n1", Request{ID: "r1", Method: "GET", Path: "/"})
	require.NoError(t, err)

	_, err = mux.Submit("n1", Request{ID: "r1", Method: "GET", Path: "/"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeIDInUse, apperrors.CodeOf(err))

	// The id frees up once the first request resolves.
	mux.Resolve("n1", "r1", Response{Status: 204})
	_, err = mux.Submit("n1", Request{ID: "r1", Method: "GET", Path: "/"})
	assert.NoError(t, err)
}

func TestSubmitBackpressure(t *testing.T) {
	const maxPending = 64
	mux, reg := newMux(t, time.Minute, maxPending)
	reg.Register("n1", &fakeSender{})

	for i := 0; i < maxPending; i++ {
		_, err := mux.Submit("n1", Request{ID: fmt.Sprintf("r%d", i), Method: "GET", Path: "/"})
		require.NoError(t, err)
	}

	_, err := mux.Submit("n1", Request{ID: "r64", Method: "GET", Path: "/"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTooManyPending, apperrors.CodeOf(err))

	// Resolving one frees a slot.
	mux.Resolve("n1", "r0", Response{Status: 200})
	_, err = mux.Submit("n1", Request{ID: "r64", Method: "GET", Path: "/"})
	assert.NoError(t, err)
}

func TestSubmitTimeout(t *testing.T) {
	mux, reg := newMux(t, 30*time.Millisecond, 64)
	reg.Register("n1", &fakeSender{})

	done, err := mux.Submit("n1", Request{ID: "r1", Method: "GET", Path: "/"})
	require.NoError(t, err)

	select {
	case resp := <-done:
		assert.Equal(t, apperrors.CodeTimeout, resp.Err)
	case <-time.After(time.Second):
		t.Fatal("timeout never delivered")
	}
	assert.Equal(t, 0, reg.PendingCount("n1"))

	// A late response after the timeout is dropped silently.
	assert.False(t, mux.Resolve("n1", "r1", Response{Status: 200}))
}

func TestResolveUnmatched(t *testing.T) {
	mux, reg := newMux(t, time.Second, 64)
	reg.Register("n1", &fakeSender{})

	assert.False(t, mux.Resolve("n1", "ghost", Response{Status: 200}))
	assert.False(t, mux.Resolve("missing-node", "r1", Response{Status: 200}))
}

func TestResolveDeliversAtMostOnce(t *testing.T) {
	mux, reg := newMux(t, time.Second, 64)
	reg.Register("n1", &fakeSender{})

	done, err := mux.Submit("n1", Request{ID: "r1", Method: "GET", Path: "/"})
	require.NoError(t, err)

	assert.True(t, mux.Resolve("n1", "r1", Response{Status: 200}))
	assert.False(t, mux.Resolve("n1", "r1", Response{Status: 500}))

	resp := <-done
	assert.Equal(t, 200, resp.Status)

	select {
	case extra := <-done:
		t.Fatalf("second delivery on the same handle: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubmitSendFailure(t *testing.T) {
	mux, reg := newMux(t, time.Second, 64)
	sender := &fakeSender{fail: fmt.Errorf("write: broken pipe")}
	reg.Register("n1", sender)

	_, err := mux.Submit("n1", Request{ID: "r1", Method: "GET", Path: "/"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNodeDisconnected, apperrors.CodeOf(err))
	assert.Equal(t, 0, reg.PendingCount("n1"))
}

func TestNodeDisconnectFailsAllPending(t *testing.T) {
	mux, reg := newMux(t, time.Minute, 64)
	nc := reg.Register("n1", &fakeSender{})

	var handles []<-chan Response
	for i := 0; i < 3; i++ {
		done, err := mux.Submit("n1", Request{ID: fmt.Sprintf("r%d", i), Method: "GET", Path: "/"})
		require.NoError(t, err)
		handles = append(handles, done)
	}
	require.Equal(t, 3, reg.PendingCount("n1"))

	reg.Unregister("n1", nc)

	for _, done := range handles {
		select {
		case resp := <-done:
			assert.Equal(t, apperrors.CodeNodeDisconnected, resp.Err)
		case <-time.After(time.Second):
			t.Fatal("pending request not failed on disconnect")
		}
	}
	assert.Equal(t, 0, reg.PendingCount("n1"))
	assert.Nil(t, reg.Lookup("n1"))
}

func TestConcurrentSubmitResolve(t *testing.T) {
	mux, reg := newMux(t, 5*time.Second, 1024)
	reg.Register("n1", &fakeSender{})

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("r%d", i)
			done, err := mux.Submit("n1", Request{ID: id, Method: "GET", Path: "/"})
			require.NoError(t, err)
			go mux.Resolve("n1", id, Response{Status: 200 + i%100})
			resp := <-done
			assert.Equal(t, 200+i%100, resp.Status)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, reg.PendingCount("n1"))
}
