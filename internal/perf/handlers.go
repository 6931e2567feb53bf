package perf

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hemiaoio/android-auto-test/internal/agenterr"
	"github.com/hemiaoio/android-auto-test/internal/router"
)

type startParams struct {
	PackageName string   `json:"packageName"`
	Metrics     []Metric `json:"metrics"`
	IntervalMs  int      `json:"intervalMs"`
}

type startHandler struct{ engine *Engine }

func (h *startHandler) Method() string { return "perf.start" }

func (h *startHandler) Validate(params []byte) error {
	var p startParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return err
		}
	}
	if len(p.Metrics) == 0 {
		return fmt.Errorf("metrics must be a non-empty subset")
	}
	return nil
}

func (h *startHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p startParams
	_ = json.Unmarshal(params, &p)
	s := h.engine.Start(p.PackageName, p.Metrics, p.IntervalMs)
	return map[string]string{"sessionId": s.ID}, nil
}

type stopParams struct {
	SessionID string `json:"sessionId"`
}

type stopHandler struct{ engine *Engine }

func (h *stopHandler) Method() string { return "perf.stop" }

func (h *stopHandler) Validate(params []byte) error {
	var p stopParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if p.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	return nil
}

func (h *stopHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p stopParams
	_ = json.Unmarshal(params, &p)

	s, summary, samples, ok := h.engine.Stop(p.SessionID)
	if !ok {
		return nil, agenterr.New(agenterr.CodePerfSessionNotFound, "perf session not found: "+p.SessionID)
	}
	return map[string]any{
		"sessionId":   s.ID,
		"durationMs":  s.StoppedAt.Sub(s.StartedAt).Milliseconds(),
		"sampleCount": len(samples),
		"summary":     summary,
		"samples":     samples,
	}, nil
}

type snapshotParams struct {
	PackageName string   `json:"packageName"`
	Metrics     []Metric `json:"metrics"`
}

type snapshotHandler struct{ engine *Engine }

func (h *snapshotHandler) Method() string { return "perf.snapshot" }

func (h *snapshotHandler) Validate(params []byte) error {
	var p snapshotParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return err
		}
	}
	if len(p.Metrics) == 0 {
		return fmt.Errorf("metrics must be a non-empty subset")
	}
	return nil
}

func (h *snapshotHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p snapshotParams
	_ = json.Unmarshal(params, &p)
	return h.engine.Snapshot(p.PackageName, p.Metrics), nil
}

type streamParams struct {
	SessionID string `json:"sessionId"`
}

type streamHandler struct{ engine *Engine }

func (h *streamHandler) Method() string { return "perf.stream" }

func (h *streamHandler) Validate(params []byte) error {
	var p streamParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if p.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	return nil
}

func (h *streamHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p streamParams
	_ = json.Unmarshal(params, &p)
	if _, ok := h.engine.Get(p.SessionID); !ok {
		return nil, agenterr.New(agenterr.CodePerfSessionNotFound, "perf session not found: "+p.SessionID)
	}
	// Samples for every running session already flow to every
	// event-channel subscriber (§9: the transport event channel is not
	// mirrored to a per-session target). This ack confirms the session
	// is live for callers that want an explicit signal before watching
	// the event channel.
	return map[string]bool{"subscribed": true}, nil
}

// RegisterHandlers binds the perf.* methods to r.
func RegisterHandlers(r *router.Router, engine *Engine) {
	r.Register(&startHandler{engine: engine})
	r.Register(&stopHandler{engine: engine})
	r.Register(&snapshotHandler{engine: engine})
	r.Register(&streamHandler{engine: engine})
}
