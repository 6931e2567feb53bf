package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hemiaoio/android-auto-test/internal/capability"
	"github.com/hemiaoio/android-auto-test/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemCapabilitiesListsRegisteredMethods(t *testing.T) {
	resolver := capability.New()
	r := router.New()
	s := NewSystem(resolver, r, NewRuntimeConfig(1000, 5000), nil)
	s.RegisterHandlers(r)

	h := &systemCapabilitiesHandler{s}
	result, err := h.Handle(context.Background(), nil, router.RequestContext{})
	require.NoError(t, err)

	methods := result.(map[string]any)["registeredMethods"].([]string)
	assert.Contains(t, methods, "system.capabilities")
	assert.Contains(t, methods, "system.heartbeat")
}

func TestSystemHeartbeatReportsUptimeAndMemory(t *testing.T) {
	resolver := capability.New()
	r := router.New()
	s := NewSystem(resolver, r, NewRuntimeConfig(1000, 5000), nil)

	h := &systemHeartbeatHandler{s}
	result, err := h.Handle(context.Background(), nil, router.RequestContext{})
	require.NoError(t, err)

	m := result.(map[string]any)
	assert.GreaterOrEqual(t, m["uptime"].(int64), int64(0))
	assert.Greater(t, m["totalMemory"].(int64), int64(0))
}

func TestSystemConfigureUpdatesHeartbeatInterval(t *testing.T) {
	cfg := NewRuntimeConfig(1000, 5000)
	resolver := capability.New()
	r := router.New()
	s := NewSystem(resolver, r, cfg, nil)

	h := &systemConfigureHandler{s}
	params, _ := json.Marshal(map[string]any{"key": "heartbeat_interval_ms", "value": json.RawMessage("2500")})

	result, err := h.Handle(context.Background(), params, router.RequestContext{})
	require.NoError(t, err)
	assert.True(t, result.(map[string]bool)["success"])
	assert.Equal(t, int64(2500), cfg.HeartbeatInterval().Milliseconds())
}

func TestSystemConfigureUnknownKeyFails(t *testing.T) {
	cfg := NewRuntimeConfig(1000, 5000)
	resolver := capability.New()
	r := router.New()
	s := NewSystem(resolver, r, cfg, nil)

	h := &systemConfigureHandler{s}
	params, _ := json.Marshal(map[string]any{"key": "nope", "value": json.RawMessage("1")})

	result, err := h.Handle(context.Background(), params, router.RequestContext{})
	require.NoError(t, err)
	assert.False(t, result.(map[string]bool)["success"])
}

func TestSystemShutdownInvokesHook(t *testing.T) {
	called := make(chan struct{})
	resolver := capability.New()
	r := router.New()
	s := NewSystem(resolver, r, NewRuntimeConfig(1000, 5000), func() { close(called) })

	h := &systemShutdownHandler{s}
	_, err := h.Handle(context.Background(), nil, router.RequestContext{})
	require.NoError(t, err)

	<-called
}
