package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemiaoio/android-auto-test/internal/agenterr"
	"github.com/hemiaoio/android-auto-test/internal/protocol"
)

type memIdempotencyCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newMemIdempotencyCache() *memIdempotencyCache {
	return &memIdempotencyCache{store: make(map[string][]byte)}
}

func (c *memIdempotencyCache) Lookup(ctx context.Context, requestID string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[requestID]
	return v, ok
}

func (c *memIdempotencyCache) Store(ctx context.Context, requestID string, response []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[requestID] = response
}

type fakeHandler struct {
	method     string
	validateErr error
	result     any
	err        error
}

func (f *fakeHandler) Method() string                { return f.method }
func (f *fakeHandler) Validate(params []byte) error  { return f.validateErr }
func (f *fakeHandler) Handle(ctx context.Context, params []byte, rc RequestContext) (any, error) {
	return f.result, f.err
}

func nowFn() int64 { return 1000 }

func TestDispatchMissingMethod(t *testing.T) {
	r := New()
	resp := r.Dispatch(context.Background(), &protocol.Envelope{ID: "R1", Type: protocol.TypeRequest}, "", nowFn)
	require.NotNil(t, resp.Error)
	assert.Equal(t, agenterr.CodeMissingMethod, resp.Error.Code)
}

func TestDispatchUnknownMethod(t *testing.T) {
	r := New()
	resp := r.Dispatch(context.Background(), &protocol.Envelope{ID: "R2", Type: protocol.TypeRequest, Method: "nope.nothing"}, "", nowFn)
	require.NotNil(t, resp.Error)
	assert.Equal(t, agenterr.CodeNotImplemented, resp.Error.Code)
	assert.Equal(t, "INTERNAL", resp.Error.Category)
	assert.Contains(t, resp.Error.Message, "Unknown method: nope.nothing")
}

func TestDispatchValidationFailure(t *testing.T) {
	r := New()
	r.Register(&fakeHandler{method: "x.y", validateErr: assertErr("bad params")})
	resp := r.Dispatch(context.Background(), &protocol.Envelope{ID: "R3", Type: protocol.TypeRequest, Method: "x.y"}, "", nowFn)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "bad params")
}

func TestDispatchSuccess(t *testing.T) {
	r := New()
	r.Register(&fakeHandler{method: "x.y", result: map[string]any{"ok": true}})
	resp := r.Dispatch(context.Background(), &protocol.Envelope{ID: "R4", Type: protocol.TypeRequest, Method: "x.y"}, "", nowFn)
	require.Nil(t, resp.Error)
	var got map[string]bool
	require.NoError(t, json.Unmarshal(resp.Result, &got))
	assert.True(t, got["ok"])
}

func TestDispatchAgentError(t *testing.T) {
	r := New()
	r.Register(&fakeHandler{method: "ui.click", err: agenterr.New(agenterr.CodeElementNotFound, "Element not found")})
	resp := r.Dispatch(context.Background(), &protocol.Envelope{ID: "R5", Type: protocol.TypeRequest, Method: "ui.click"}, "", nowFn)
	require.NotNil(t, resp.Error)
	assert.Equal(t, agenterr.CodeElementNotFound, resp.Error.Code)
	assert.Equal(t, "UI", resp.Error.Category)
	assert.True(t, resp.Error.Recoverable)
}

func TestDispatchUnknownException(t *testing.T) {
	r := New()
	r.Register(&fakeHandler{method: "x.y", err: assertErr("boom")})
	resp := r.Dispatch(context.Background(), &protocol.Envelope{ID: "R6", Type: protocol.TypeRequest, Method: "x.y"}, "", nowFn)
	require.NotNil(t, resp.Error)
	assert.Equal(t, agenterr.CodeUnknown, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "boom")
}

func TestRegisterUnregisterRestoresPriorState(t *testing.T) {
	r := New()
	before := r.Methods()
	r.Register(&fakeHandler{method: "custom.ping"})
	r.Unregister("custom.ping")
	assert.ElementsMatch(t, before, r.Methods())
}

func TestLastWriterWins(t *testing.T) {
	r := New()
	r.Register(&fakeHandler{method: "x.y", result: "first"})
	r.Register(&fakeHandler{method: "x.y", result: "second"})
	resp := r.Dispatch(context.Background(), &protocol.Envelope{ID: "R7", Type: protocol.TypeRequest, Method: "x.y"}, "", nowFn)
	var got string
	require.NoError(t, json.Unmarshal(resp.Result, &got))
	assert.Equal(t, "second", got)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
func assertErr(msg string) error  { return simpleErr(msg) }

func TestDispatchWithIdempotencyCacheAnswersResubmitFromCache(t *testing.T) {
	r := New()
	cache := newMemIdempotencyCache()
	r.SetIdempotencyCache(cache, time.Minute)

	calls := 0
	r.Register(handlerFunc{method: "x.y", fn: func() (any, error) { calls++; return "computed", nil }})

	req := &protocol.Envelope{ID: "dup-1", Type: protocol.TypeRequest, Method: "x.y"}
	first := r.Dispatch(context.Background(), req, "", nowFn)
	second := r.Dispatch(context.Background(), req, "", nowFn)

	assert.Equal(t, 1, calls)
	var firstResult, secondResult string
	require.NoError(t, json.Unmarshal(first.Result, &firstResult))
	require.NoError(t, json.Unmarshal(second.Result, &secondResult))
	assert.Equal(t, firstResult, secondResult)
}

type handlerFunc struct {
	method string
	fn     func() (any, error)
}

func (h handlerFunc) Method() string         { return h.method }
func (h handlerFunc) Validate([]byte) error  { return nil }
func (h handlerFunc) Handle(ctx context.Context, params []byte, rc RequestContext) (any, error) {
	return h.fn()
}
