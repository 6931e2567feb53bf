package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemiaoio/android-auto-test/internal/auth"
	"github.com/hemiaoio/android-auto-test/internal/protocol"
	"github.com/hemiaoio/android-auto-test/internal/router"
)

type echoHandler struct{}

func (echoHandler) Method() string          { return "test.echo" }
func (echoHandler) Validate(params []byte) error { return nil }
func (echoHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	return map[string]string{"ok": "yes"}, nil
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startTestServer(t *testing.T) (*Server, int, int, int) {
	t.Helper()
	rt := router.New()
	rt.Register(echoHandler{})
	a := auth.New("")

	controlPort, binaryPort, eventPort := freePort(t), freePort(t), freePort(t)
	srv := New(Config{
		Host:        "127.0.0.1",
		ControlPort: controlPort,
		BinaryPort:  binaryPort,
		EventPort:   eventPort,
	}, a, rt, func() int64 { return 1 }, nil)

	require.NoError(t, srv.Start())
	time.Sleep(50 * time.Millisecond) // allow listeners to bind
	return srv, controlPort, binaryPort, eventPort
}

func dial(t *testing.T, port int) *gorillaws.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://127.0.0.1:%d/", port)
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestControlChannelSendsHelloThenServicesRequests(t *testing.T) {
	srv, controlPort, _, _ := startTestServer(t)
	defer srv.Stop(context.Background())

	conn := dial(t, controlPort)
	defer conn.Close()

	var hello protocol.Envelope
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, protocol.TypeEvent, hello.Type)
	assert.Equal(t, "system.hello", hello.Method)

	req := protocol.Envelope{ID: "R1", Type: protocol.TypeRequest, Method: "test.echo", Timestamp: 1}
	require.NoError(t, conn.WriteJSON(req))

	var resp protocol.Envelope
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "R1", resp.ID)
	assert.Nil(t, resp.Error)

	var result map[string]string
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "yes", result["ok"])
}

func TestControlChannelUnknownMethod(t *testing.T) {
	srv, controlPort, _, _ := startTestServer(t)
	defer srv.Stop(context.Background())

	conn := dial(t, controlPort)
	defer conn.Close()

	var hello protocol.Envelope
	require.NoError(t, conn.ReadJSON(&hello))

	req := protocol.Envelope{ID: "R2", Type: protocol.TypeRequest, Method: "nope.nothing", Timestamp: 1}
	require.NoError(t, conn.WriteJSON(req))

	var resp protocol.Envelope
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, 9002, resp.Error.Code)
	assert.True(t, strings.Contains(resp.Error.Message, "Unknown method: nope.nothing"))
}

func TestEventChannelBroadcastsToSubscribers(t *testing.T) {
	srv, _, _, eventPort := startTestServer(t)
	defer srv.Stop(context.Background())

	conn := dial(t, eventPort)
	defer conn.Close()
	time.Sleep(20 * time.Millisecond) // allow subscription registration

	env, err := protocol.NewEvent("e1", "device.something", map[string]int{"x": 1}, 1)
	require.NoError(t, err)
	srv.Broadcast(env)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got protocol.Envelope
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "device.something", got.Method)
}

func TestBinaryChannelRoundTrip(t *testing.T) {
	var received *protocol.Frame
	receivedCh := make(chan struct{})

	rt := router.New()
	a := auth.New("")
	controlPort, binaryPort, eventPort := freePort(t), freePort(t), freePort(t)
	srv := New(Config{Host: "127.0.0.1", ControlPort: controlPort, BinaryPort: binaryPort, EventPort: eventPort}, a, rt,
		func() int64 { return 1 },
		func(sessionID string, frame *protocol.Frame) {
			received = frame
			close(receivedCh)
		})
	require.NoError(t, srv.Start())
	defer srv.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	conn := dial(t, binaryPort)
	defer conn.Close()

	frame := &protocol.Frame{CorrelationID: "abcdefghijklmnop", PayloadKind: protocol.PayloadScreenshotPNG, FinalChunk: true, Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	data := protocol.EncodeFrame(frame)
	require.NoError(t, conn.WriteMessage(gorillaws.BinaryMessage, data))

	select {
	case <-receivedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for binary frame delivery")
	}
	assert.Equal(t, protocol.PayloadScreenshotPNG, received.PayloadKind)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, received.Payload)
}
