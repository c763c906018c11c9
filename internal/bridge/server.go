// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     bridge
// Description: WebSocket bridge between a browser shell and the session
// Author:      Mike Stoffels
// Created:     2026-10-02
// License:     MIT
// ============================================================================

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/msto63/krishisaathi/internal/history"
	"github.com/msto63/krishisaathi/internal/language"
	"github.com/msto63/krishisaathi/internal/session"
	"github.com/msto63/krishisaathi/pkg/core/health"
	"github.com/msto63/krishisaathi/pkg/core/logging"
	"github.com/msto63/krishisaathi/pkg/core/version"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 120 * time.Second
	pingPeriod = pongWait * 9 / 10

	defaultSendQueue = 64
)

// Session is the part of the session controller the bridge drives
type Session interface {
	State() session.State
	Language() language.Language
	Languages() []language.Language
	Messages() []history.Message
	CanCapture() bool
	Attach(init func(), fn session.Listener) (cancel func())
	StartCapture() bool
	SubmitText(text string) error
	Stop() bool
	ChangeLanguage(id string) error
	Reset() error
	Done() <-chan struct{}
}

// Config configures the bridge server
type Config struct {
	// AllowedOrigins lists browser origins allowed to connect. Empty
	// allows same-host and loopback origins only.
	AllowedOrigins []string

	// SendQueue bounds buffered outbound messages per connection
	SendQueue int

	// Health receives the session check and is reported on /healthz.
	// A fresh registry is used when nil.
	Health *health.Registry

	Logger *logging.Logger
}

// Server exposes one session over WebSocket
type Server struct {
	sess     Session
	cfg      Config
	logger   *logging.Logger
	health   *health.Registry
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*client]struct{}
}

// NewServer creates a bridge for sess
func NewServer(sess Session, cfg Config) *Server {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	registry := cfg.Health
	if registry == nil {
		registry = health.NewRegistry(version.Name, version.Version)
	}
	s := &Server{
		sess:   sess,
		cfg:    cfg,
		logger: logger.Named("bridge"),
		health: registry,
		conns:  make(map[*client]struct{}),
	}
	registry.Register(health.NewChecker("session", s.checkSession))
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the HTTP routes of the bridge
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /healthz", s.serveHealth)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled or the session ends
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("Bridge listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	case <-s.sess.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) checkSession(ctx context.Context) health.CheckResult {
	select {
	case <-s.sess.Done():
		return health.CheckResult{Status: health.StatusUnhealthy, Message: "session closed"}
	default:
	}
	return health.CheckResult{Status: health.StatusHealthy, Message: s.sess.State().String()}
}

// healthResponse is the /healthz body
type healthResponse struct {
	*health.Report
	State string `json:"state"`
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	report := s.health.Check(ctx)
	w.Header().Set("Content-Type", "application/json")
	if report.Status == health.StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(healthResponse{Report: report, State: s.sess.State().String()})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	ip := net.ParseIP(u.Hostname())
	return u.Hostname() == "localhost" || (ip != nil && ip.IsLoopback())
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan Outbound, s.cfg.SendQueue),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("Client connected", "client", c.id, "remote", conn.RemoteAddr().String())

	// The snapshot is queued in the same session step that subscribes, so
	// every later event is newer than the snapshot and none repeats it
	unsubscribe := s.sess.Attach(func() {
		c.enqueue(Outbound{Type: TypeSnapshot, Payload: s.snapshot()})
	}, c.onEvent)

	go c.writeLoop()
	c.readLoop()

	unsubscribe()
	c.close()
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.logger.Info("Client disconnected", "client", c.id)
}

func (s *Server) snapshot() SnapshotPayload {
	return SnapshotPayload{
		State:     s.sess.State().String(),
		Language:  s.sess.Language().ID,
		Languages: s.sess.Languages(),
		Messages:  s.sess.Messages(),
		CanListen: s.sess.CanCapture(),
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*client, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// ----------------------------------------------------------------------------
// Connection
// ----------------------------------------------------------------------------

type client struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan Outbound

	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// enqueue never blocks; a client that cannot keep up is disconnected
func (c *client) enqueue(msg Outbound) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	default:
		c.server.logger.Warn("Dropping slow client", "client", c.id)
		c.close()
	}
}

func (c *client) onEvent(ev session.Event) {
	switch ev.Type {
	case session.EventStateChanged:
		c.enqueue(Outbound{Type: TypeState, Payload: StatePayload{
			State:    ev.State.String(),
			Previous: ev.Previous.String(),
			Label:    ev.State.Label(),
		}})
	case session.EventMessageAppended:
		c.enqueue(Outbound{Type: TypeMessage, Payload: MessagePayload{Message: ev.Message, EnglishQuestion: ev.EnglishQuestion}})
	case session.EventHistoryReset:
		c.enqueue(Outbound{Type: TypeReset, Payload: ResetPayload{Messages: ev.Messages}})
	case session.EventLanguageChanged:
		c.enqueue(Outbound{Type: TypeLanguage, Payload: LanguagePayload{ID: ev.Language}})
	case session.EventNotice:
		c.enqueue(Outbound{Type: TypeNotice, Payload: NoticePayload{Text: ev.Notice}})
	}
}

// writeLoop is the only writer on conn and closes it on exit
func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debug("WebSocket write failed", "client", c.id, "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) readLoop() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.sendError(CodeInvalidPayload, "Malformed message")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug("WebSocket read error", "client", c.id, "error", err)
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *client) dispatch(msg Inbound) {
	sess := c.server.sess

	switch msg.Type {
	case TypePing:
		c.enqueue(Outbound{Type: TypePong})

	case TypeSubmit:
		var p SubmitPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.sendError(CodeInvalidPayload, "Invalid submit payload")
			return
		}
		c.sendResult(sess.SubmitText(p.Text))

	case TypeListen:
		switch {
		case !sess.CanCapture():
			c.sendError(CodeUnavailable, "Speech input is not available")
		case !sess.StartCapture():
			c.sendResult(session.ErrBusy)
		}

	case TypeStop:
		sess.Stop()

	case TypeLanguage:
		var p LanguagePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ID == "" {
			c.sendError(CodeInvalidPayload, "Invalid language payload")
			return
		}
		c.sendResult(sess.ChangeLanguage(p.ID))

	case TypeReset:
		c.sendResult(sess.Reset())

	default:
		c.sendError(CodeUnknownType, "Unknown message type: "+msg.Type)
	}
}

func (c *client) sendResult(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, session.ErrBusy):
		c.sendError(CodeBusy, "Please wait for the current turn to finish")
	case errors.Is(err, language.ErrUnknownLanguage):
		c.sendError(CodeUnknownLanguage, err.Error())
	case errors.Is(err, session.ErrEmptyText):
		c.sendError(CodeInvalidPayload, err.Error())
	case errors.Is(err, session.ErrClosed):
		c.sendError(CodeClosed, "Session closed")
	default:
		c.sendError(CodeInvalidPayload, err.Error())
	}
}

func (c *client) sendError(code, message string) {
	c.enqueue(Outbound{Type: TypeError, Payload: ErrorPayload{Code: code, Message: message}})
}
