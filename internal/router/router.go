// Package router maintains the dynamic method-name-to-handler mapping
// and dispatches request envelopes to bound handlers, converting
// failures into wire error responses.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hemiaoio/android-auto-test/internal/agenterr"
	"github.com/hemiaoio/android-auto-test/internal/protocol"
)

// RequestContext is passed to a handler alongside its decoded params.
type RequestContext struct {
	RequestID string
	SessionID string
	Metadata  *protocol.Metadata
	Deadline  time.Time // zero if the request carried no timeout metadata
}

// Handler is the contract every operation implements. Handlers are pure
// with respect to the envelope: they never read or write transport
// frames directly.
type Handler interface {
	Method() string
	Validate(params []byte) error
	Handle(ctx context.Context, params []byte, rc RequestContext) (any, error)
}

// IdempotencyCache lets the router short-circuit a request resubmitted
// (same id) by a flaky controller connection, answering from a cached
// response snapshot instead of re-executing the handler. Implemented by
// internal/store.
type IdempotencyCache interface {
	Lookup(ctx context.Context, requestID string) ([]byte, bool)
	Store(ctx context.Context, requestID string, response []byte, ttl time.Duration)
}

const defaultIdempotencyTTL = 5 * time.Minute

// Router is a concurrent-safe method-name-to-handler map with
// last-writer-wins registration semantics.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	idempotency    IdempotencyCache
	idempotencyTTL time.Duration
}

func New() *Router {
	return &Router{handlers: make(map[string]Handler), idempotencyTTL: defaultIdempotencyTTL}
}

// SetIdempotencyCache wires a cache used to de-duplicate requests by
// id. ttl <= 0 keeps the default of 5 minutes.
func (r *Router) SetIdempotencyCache(c IdempotencyCache, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idempotency = c
	if ttl > 0 {
		r.idempotencyTTL = ttl
	}
}

// Register binds h under h.Method(), replacing any prior binding.
func (r *Router) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Method()] = h
}

// Unregister removes the binding for method, if any.
func (r *Router) Unregister(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, method)
}

// Methods returns the currently registered method names.
func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	return out
}

func (r *Router) lookup(method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}

// Dispatch runs the full §4.4 algorithm against a decoded request
// envelope and returns the matching response envelope. Dispatch never
// returns a transport-level error; all failures are encoded as wire
// errors in the returned envelope.
func (r *Router) Dispatch(ctx context.Context, req *protocol.Envelope, sessionID string, now func() int64) *protocol.Envelope {
	ts := now()

	r.mu.RLock()
	cache := r.idempotency
	ttl := r.idempotencyTTL
	r.mu.RUnlock()

	if cache != nil && req.ID != "" {
		if cached, hit := cache.Lookup(ctx, req.ID); hit {
			if env, err := protocol.Decode(cached); err == nil {
				return env
			}
		}
	}

	resp := r.dispatchUncached(ctx, req, sessionID, ts)

	if cache != nil && req.ID != "" {
		if encoded, err := protocol.Encode(resp); err == nil {
			cache.Store(ctx, req.ID, encoded, ttl)
		}
	}
	return resp
}

func (r *Router) dispatchUncached(ctx context.Context, req *protocol.Envelope, sessionID string, ts int64) *protocol.Envelope {
	if req.Method == "" {
		return wireError(req, agenterr.CodeMissingMethod, "missing method", ts)
	}

	h, ok := r.lookup(req.Method)
	if !ok {
		return wireError(req, agenterr.CodeNotImplemented, fmt.Sprintf("Unknown method: %s", req.Method), ts)
	}

	if err := h.Validate(req.Params); err != nil {
		return wireError(req, agenterr.CodeValidationError, err.Error(), ts)
	}

	rc := RequestContext{RequestID: req.ID, SessionID: sessionID, Metadata: req.Metadata}
	if req.Metadata != nil && req.Metadata.TimeoutMs > 0 {
		rc.Deadline = time.Now().Add(time.Duration(req.Metadata.TimeoutMs) * time.Millisecond)
	}

	result, err := invoke(ctx, h, req.Params, rc)
	if err != nil {
		if ae, ok := err.(*agenterr.AgentError); ok {
			return wireErrorFromAgentError(req, ae, ts)
		}
		return wireError(req, agenterr.CodeUnknown, err.Error(), ts)
	}

	resp, encErr := protocol.NewResult(req.ID, req.Method, result, ts)
	if encErr != nil {
		return wireError(req, agenterr.CodeUnknown, encErr.Error(), ts)
	}
	return resp
}

// invoke calls the handler, recovering from panics the same way the
// router converts any other exception: INTERNAL/unknown.
func invoke(ctx context.Context, h Handler, params []byte, rc RequestContext) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h.Handle(ctx, params, rc)
}

func wireError(req *protocol.Envelope, code int, message string, ts int64) *protocol.Envelope {
	return protocol.NewError(req.ID, req.Method, protocol.Error{
		Code:        code,
		Category:    string(agenterr.CategoryOf(code)),
		Message:     message,
		Recoverable: agenterr.IsRecoverable(code),
	}, ts)
}

func wireErrorFromAgentError(req *protocol.Envelope, ae *agenterr.AgentError, ts int64) *protocol.Envelope {
	return protocol.NewError(req.ID, req.Method, protocol.Error{
		Code:            ae.Code,
		Category:        string(ae.Category()),
		Message:         ae.Message,
		Details:         ae.Details,
		Recoverable:     ae.Recoverable(),
		SuggestedAction: ae.SuggestedAction,
	}, ts)
}
