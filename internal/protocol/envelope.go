// Package protocol defines the agent's wire schema — the textual
// envelope exchanged on the control and event channels, and the binary
// frame header used on the binary channel — and performs encode/decode
// for both.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Type enumerates the envelope's type field.
type Type string

const (
	TypeRequest     Type = "request"
	TypeResponse    Type = "response"
	TypeEvent       Type = "event"
	TypeStreamStart Type = "stream_start"
	TypeStreamData  Type = "stream_data"
	TypeStreamEnd   Type = "stream_end"
	TypeCancel      Type = "cancel"
)

// Metadata carries advisory per-request tuning: timeout, retry count,
// priority, and a tracing id. All fields are optional.
type Metadata struct {
	TimeoutMs int    `json:"timeout_ms,omitempty"`
	Retry     int    `json:"retry,omitempty"`
	Priority  string `json:"priority,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// Error is the wire error shape. Category and Recoverable are derived
// from Code, never set independently by handlers.
type Error struct {
	Code            int            `json:"code"`
	Category        string         `json:"category"`
	Message         string         `json:"message"`
	Details         map[string]any `json:"details,omitempty"`
	Recoverable     bool           `json:"recoverable"`
	SuggestedAction string         `json:"suggested_action,omitempty"`
}

// Envelope is the universal textual message on the control and event
// channels. Exactly one of Result/Error is set on a response.
type Envelope struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`
	Metadata  *Metadata       `json:"metadata,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Encode serializes the envelope as compact JSON. id, type and
// timestamp are always emitted; absent optional fields are omitted.
func Encode(env *Envelope) ([]byte, error) {
	if env.ID == "" || env.Type == "" {
		return nil, NewProtocolError("missing required envelope field")
	}
	return json.Marshal(env)
}

// Decode parses a textual envelope. Unknown fields are tolerated;
// missing required fields fail with a protocol error.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, NewProtocolError(fmt.Sprintf("malformed envelope: %v", err))
	}
	if env.ID == "" {
		return nil, NewProtocolError("missing id")
	}
	if env.Type == "" {
		return nil, NewProtocolError("missing type")
	}
	if (env.Type == TypeRequest || env.Type == TypeEvent) && env.Method == "" {
		return nil, NewProtocolError("missing method")
	}
	return &env, nil
}

// ProtocolError signals a malformed envelope or frame. Code distinguishes
// envelope decode failures (INTERNAL, per §4.1) from binary frame decode
// failures (TRANSPORT, per §4.1) — callers set it via the Code field so
// the router/transport can map it to the right wire category without
// guessing from the message text.
type ProtocolError struct {
	msg  string
	Code int
}

// envelopeProtocolErrorCode mirrors agenterr.CodeEnvelopeProtocolError.
// Duplicated as a literal (not imported) to keep this package
// dependency-free per §4.1.
const envelopeProtocolErrorCode = 9004

// frameProtocolErrorCode mirrors agenterr.CodeFrameProtocolError.
const frameProtocolErrorCode = 1004

func NewProtocolError(msg string) *ProtocolError {
	return &ProtocolError{msg: msg, Code: envelopeProtocolErrorCode}
}

func NewFrameProtocolError(msg string) *ProtocolError {
	return &ProtocolError{msg: msg, Code: frameProtocolErrorCode}
}

func (e *ProtocolError) Error() string { return e.msg }

// NewResult builds a success response envelope for the given request.
func NewResult(requestID string, method string, result any, ts int64) (*Envelope, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        requestID,
		Type:      TypeResponse,
		Method:    method,
		Result:    raw,
		Timestamp: ts,
	}, nil
}

// NewError builds a failure response envelope carrying a wire Error.
func NewError(requestID string, method string, wireErr Error, ts int64) *Envelope {
	return &Envelope{
		ID:        requestID,
		Type:      TypeResponse,
		Method:    method,
		Error:     &wireErr,
		Timestamp: ts,
	}
}

// NewEvent builds an event envelope for server-to-client push.
func NewEvent(id string, method string, payload any, ts int64) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        id,
		Type:      TypeEvent,
		Method:    method,
		Result:    raw,
		Timestamp: ts,
	}, nil
}
