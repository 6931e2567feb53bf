// Package transport implements the three-channel WebSocket transport
// server described in spec.md §4.2: a control channel (request/
// response plus the opening system.hello), a binary channel (bounded
// outbound queue with backpressure, inbound frame delivery), and an
// event channel (lossy fan-out broadcast). Each channel is bound to its
// own TCP listener.
package transport

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hemiaoio/android-auto-test/internal/auth"
	"github.com/hemiaoio/android-auto-test/internal/protocol"
	"github.com/hemiaoio/android-auto-test/internal/router"
)

// Config tunes keepalive cadence, queue depth, and frame size limits
// per spec.md §4.2 and §6.
type Config struct {
	Host                string
	ControlPort         int
	BinaryPort          int
	EventPort           int
	PingInterval        time.Duration
	PongTimeout         time.Duration
	BinaryQueueCapacity int // minimum 16, enforced
	MaxTextMessageBytes int64
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.BinaryQueueCapacity < 16 {
		c.BinaryQueueCapacity = 16
	}
	if c.MaxTextMessageBytes <= 0 {
		c.MaxTextMessageBytes = 1 << 20
	}
	return c
}

// BinaryFrameHandler is the optional hook invoked for every inbound
// binary frame.
type BinaryFrameHandler func(sessionID string, frame *protocol.Frame)

// Server owns the three listeners and their connection sets.
type Server struct {
	cfg  Config
	auth *auth.Authenticator
	rt   *router.Router
	now  func() int64

	binaryHandler BinaryFrameHandler

	upgrader websocket.Upgrader

	httpControl *http.Server
	httpBinary  *http.Server
	httpEvent   *http.Server

	eventMu   sync.RWMutex
	eventSubs map[chan *protocol.Envelope]struct{}

	controlMu    sync.RWMutex
	controlConns map[*textConn]struct{}

	outboundMu    sync.RWMutex
	outboundQueue map[string]chan *protocol.Frame

	stopOnce sync.Once
	stopped  chan struct{}
}

type textConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *textConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *textConn) close() { _ = c.conn.Close() }

func New(cfg Config, authenticator *auth.Authenticator, rt *router.Router, now func() int64, binaryHandler BinaryFrameHandler) *Server {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Server{
		cfg:           cfg.withDefaults(),
		auth:          authenticator,
		rt:            rt,
		now:           now,
		binaryHandler: binaryHandler,
		upgrader:      websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }},
		eventSubs:     make(map[chan *protocol.Envelope]struct{}),
		controlConns:  make(map[*textConn]struct{}),
		outboundQueue: make(map[string]chan *protocol.Frame),
		stopped:       make(chan struct{}),
	}
}

func (s *Server) bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// Start binds and serves all three listeners; it returns once all three
// http.Server.Serve calls have been launched in background goroutines.
func (s *Server) Start() error {
	controlMux := http.NewServeMux()
	controlMux.HandleFunc("/", s.handleControl)
	s.httpControl = &http.Server{Addr: addr(s.cfg.Host, s.cfg.ControlPort), Handler: controlMux}

	binaryMux := http.NewServeMux()
	binaryMux.HandleFunc("/", s.handleBinary)
	s.httpBinary = &http.Server{Addr: addr(s.cfg.Host, s.cfg.BinaryPort), Handler: binaryMux}

	eventMux := http.NewServeMux()
	eventMux.HandleFunc("/", s.handleEvent)
	s.httpEvent = &http.Server{Addr: addr(s.cfg.Host, s.cfg.EventPort), Handler: eventMux}

	for _, srv := range []*http.Server{s.httpControl, s.httpBinary, s.httpEvent} {
		srv := srv
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("transport listener failed: addr=%s err=%v", srv.Addr, err)
			}
		}()
	}
	log.Printf("transport listening: control=%s binary=%s event=%s", s.httpControl.Addr, s.httpBinary.Addr, s.httpEvent.Addr)
	return nil
}

func addr(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	return host + ":" + strconv.Itoa(port)
}

// handleControl upgrades, authenticates, pushes system.hello, then
// services request/response in arrival order per spec.md §4.2.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	session, err := s.auth.Authenticate(r.Context(), s.bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("control upgrade failed: err=%v", err)
		return
	}
	conn.SetReadLimit(s.cfg.MaxTextMessageBytes)
	client := &textConn{conn: conn}

	s.controlMu.Lock()
	s.controlConns[client] = struct{}{}
	s.controlMu.Unlock()

	go s.keepalive(conn)

	defer func() {
		s.controlMu.Lock()
		delete(s.controlConns, client)
		s.controlMu.Unlock()
		s.auth.Invalidate(session.ID)
		client.close()
	}()

	hello, err := protocol.NewEvent(uuid.NewString(), "system.hello", map[string]string{"sessionId": session.ID}, s.now())
	if err == nil {
		_ = client.writeJSON(hello)
	}

	for {
		_, body, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.auth.Touch(session.ID)

		req, err := protocol.Decode(body)
		if err != nil {
			continue
		}

		resp := s.rt.Dispatch(r.Context(), req, session.ID, s.now)
		if err := client.writeJSON(resp); err != nil {
			return
		}
	}
}

// handleBinary services the bidirectional binary channel: a bounded
// outbound queue feeding the sender loop, plus inbound frame decode
// and optional delivery.
func (s *Server) handleBinary(w http.ResponseWriter, r *http.Request) {
	session, err := s.auth.Authenticate(r.Context(), s.bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("binary upgrade failed: err=%v", err)
		return
	}
	defer func() {
		s.auth.Invalidate(session.ID)
		_ = conn.Close()
	}()

	outbound := make(chan *protocol.Frame, s.cfg.BinaryQueueCapacity)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for frame := range outbound {
			data := protocol.EncodeFrame(frame)
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		}
	}()

	s.registerOutbound(session.ID, outbound)
	defer s.unregisterOutbound(session.ID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			close(outbound)
			<-done
			return
		}
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			log.Printf("decode binary frame failed: session=%s err=%v", session.ID, err)
			continue
		}
		if s.binaryHandler != nil {
			s.binaryHandler(session.ID, frame)
		}
	}
}

func (s *Server) registerOutbound(sessionID string, ch chan *protocol.Frame) {
	s.outboundMu.Lock()
	defer s.outboundMu.Unlock()
	s.outboundQueue[sessionID] = ch
}

func (s *Server) unregisterOutbound(sessionID string) {
	s.outboundMu.Lock()
	defer s.outboundMu.Unlock()
	delete(s.outboundQueue, sessionID)
}

// SendBinary enqueues frame on sessionID's outbound queue. A full
// queue blocks the caller (back-pressure); this is the only place a
// producer waits on transport, per spec.md §4.2.
func (s *Server) SendBinary(sessionID string, frame *protocol.Frame) bool {
	s.outboundMu.RLock()
	ch, ok := s.outboundQueue[sessionID]
	s.outboundMu.RUnlock()
	if !ok {
		return false
	}
	ch <- frame
	return true
}

// handleEvent subscribes the connection to the lossy fan-out broadcast.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	session, err := s.auth.Authenticate(r.Context(), s.bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("event upgrade failed: err=%v", err)
		return
	}
	defer func() {
		s.auth.Invalidate(session.ID)
		_ = conn.Close()
	}()

	ch := make(chan *protocol.Envelope, 64)
	s.eventMu.Lock()
	s.eventSubs[ch] = struct{}{}
	s.eventMu.Unlock()
	defer func() {
		s.eventMu.Lock()
		delete(s.eventSubs, ch)
		s.eventMu.Unlock()
	}()

	go s.keepalive(conn)

	for env := range ch {
		if err := conn.WriteJSON(env); err != nil {
			return
		}
	}
}

// Broadcast sends env to every active event-channel subscriber;
// slow/full subscribers silently drop it (best-effort delivery).
func (s *Server) Broadcast(env *protocol.Envelope) {
	s.eventMu.RLock()
	defer s.eventMu.RUnlock()
	for ch := range s.eventSubs {
		select {
		case ch <- env:
		default:
		}
	}
}

// BroadcastControl sends env to every active control connection
// (distinct from the event channel's broadcast per spec.md §4.2).
func (s *Server) BroadcastControl(env *protocol.Envelope) {
	s.controlMu.RLock()
	defer s.controlMu.RUnlock()
	for c := range s.controlConns {
		if err := c.writeJSON(env); err != nil {
			log.Printf("broadcast to control connection failed: err=%v", err)
		}
	}
}

func (s *Server) keepalive(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopped:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// Stop sends a going-away close to every control connection and closes
// it, ends every event-channel subscription (those connections close
// without a going-away reason), and shuts the listeners down. Open
// binary-channel connections are not closed by Stop.
func (s *Server) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.stopped)

		s.controlMu.Lock()
		for c := range s.controlConns {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			c.close()
		}
		s.controlMu.Unlock()

		s.eventMu.Lock()
		for ch := range s.eventSubs {
			close(ch)
		}
		s.eventSubs = make(map[chan *protocol.Envelope]struct{})
		s.eventMu.Unlock()

		for _, srv := range []*http.Server{s.httpControl, s.httpBinary, s.httpEvent} {
			if srv != nil {
				_ = srv.Shutdown(ctx)
			}
		}
	})
}
