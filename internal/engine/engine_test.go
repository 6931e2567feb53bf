package engine

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemiaoio/android-auto-test/internal/config"
)

func freeTestPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func newTestConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.ControlPort = freeTestPort(t)
	cfg.BinaryPort = freeTestPort(t)
	cfg.EventPort = freeTestPort(t)
	cfg.PluginDir = ""
	return cfg
}

func TestEngineStartRegistersBuiltinMethodsAndServicesRequests(t *testing.T) {
	cfg := newTestConfig(t)
	e := New(cfg)

	methods := e.Router().Methods()
	assert.Contains(t, methods, "system.capabilities")
	assert.Contains(t, methods, "device.info")
	assert.Contains(t, methods, "ui.find")
	assert.Contains(t, methods, "app.list")
	assert.Contains(t, methods, "perf.start")

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()
	time.Sleep(50 * time.Millisecond)

	url := fmt.Sprintf("ws://127.0.0.1:%d/", cfg.ControlPort)
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "system.hello", hello["method"])

	req := map[string]any{"id": "r1", "type": "request", "method": "system.capabilities", "timestamp": 1}
	require.NoError(t, conn.WriteJSON(req))

	var resp map[string]any
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "r1", resp["id"])
	assert.Nil(t, resp["error"])
}

func TestEngineCapabilitiesSnapshotReportsEmptyPluginsInitially(t *testing.T) {
	e := New(newTestConfig(t))
	snap := e.Resolver().Snapshot()
	assert.Empty(t, snap.LoadedPluginIDs)
}

func TestEngineStopIsIdempotent(t *testing.T) {
	cfg := newTestConfig(t)
	e := New(cfg)
	require.NoError(t, e.Start(context.Background()))
	e.Stop()
	assert.NotPanics(t, func() { e.Stop() })
}
