package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/lotas/mergewin/internal/applog"
)

var (
	// ErrNotConnected is returned when no extension is attached.
	ErrNotConnected = errors.New("extension not connected")
	// ErrDisconnected is returned when the extension drops mid-request.
	ErrDisconnected = errors.New("extension disconnected")
)

// IncomingMsg is a message from the extension: either a response to an
// OutgoingMsg (ID set) or an unsolicited event (Type set).
type IncomingMsg struct {
	Type    string          `json:"type,omitempty"`
	ID      string          `json:"id,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Error   string          `json:"error,omitempty"`
	Windows json.RawMessage `json:"windows,omitempty"`
	Tabs    json.RawMessage `json:"tabs,omitempty"`
	// Event fields
	Source  string `json:"source,omitempty"`
	Browser string `json:"browser,omitempty"`
}

// OutgoingMsg is a command from the host to the extension.
type OutgoingMsg struct {
	ID       string `json:"id"`
	Action   string `json:"action"`
	TabIDs   []int  `json:"tabIds,omitempty"`
	WindowID int    `json:"windowId,omitempty"`
	Index    *int   `json:"index,omitempty"`
	Populate bool   `json:"populate,omitempty"`
	// Notification fields
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Trigger asks the host to run a consolidation pass.
type Trigger struct {
	Source string // "action", "command", "http", ...
}

// CommandError is a failure reported by the extension for one command.
type CommandError struct {
	Action  string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Server manages the WebSocket connection to the extension.
type Server struct {
	port     int
	msgs     chan IncomingMsg
	triggers chan Trigger
	mu       sync.Mutex
	conn     *websocket.Conn
	connCtx  context.Context
	pending  map[string]pendingRequest
}

// pendingRequest is a Request waiting for its response. It fails when the
// connection it was sent on goes away, even if a newer one replaced it.
type pendingRequest struct {
	conn *websocket.Conn
	ch   chan IncomingMsg
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port:     port,
		msgs:     make(chan IncomingMsg, 64),
		triggers: make(chan Trigger, 8),
		pending:  make(map[string]pendingRequest),
	}
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Messages returns the channel of unsolicited messages from the extension.
func (s *Server) Messages() <-chan IncomingMsg {
	return s.msgs
}

// Triggers returns merge requests from the extension (icon click, keyboard
// shortcut) and from POST /merge.
func (s *Server) Triggers() <-chan Trigger {
	return s.triggers
}

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// WaitConnected blocks until an extension connects or ctx is done.
func (s *Server) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !s.Connected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for extension: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Send sends a command to the connected extension without waiting for a
// response. It is a no-op when nothing is connected.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return write(ctx, conn, msg)
}

func write(ctx context.Context, conn *websocket.Conn, msg OutgoingMsg) error {
	applog.Info("ws.send", "action", msg.Action, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Request sends a command and waits for the extension's response with the
// same ID. A response with ok=false is returned as a *CommandError.
func (s *Server) Request(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	msg.ID = uuid.NewString()
	ch := make(chan IncomingMsg, 1)

	s.mu.Lock()
	conn, connCtx := s.conn, s.connCtx
	if conn == nil {
		s.mu.Unlock()
		return IncomingMsg{}, ErrNotConnected
	}
	s.pending[msg.ID] = pendingRequest{conn: conn, ch: ch}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.ID)
		s.mu.Unlock()
	}()

	if err := write(connCtx, conn, msg); err != nil {
		return IncomingMsg{}, fmt.Errorf("send %s: %w", msg.Action, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return IncomingMsg{}, ErrDisconnected
		}
		if resp.OK != nil && !*resp.OK {
			return resp, &CommandError{Action: msg.Action, Message: resp.Error}
		}
		return resp, nil
	case <-ctx.Done():
		return IncomingMsg{}, ctx.Err()
	}
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			log.Printf("websocket accept: %v", err)
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(16 << 20) // 16 MB; populated window lists can be large

		ctx := r.Context()
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connCtx = nil
			}
			for id, p := range s.pending {
				if p.conn == conn {
					close(p.ch)
					delete(s.pending, id)
				}
			}
			s.mu.Unlock()
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			s.dispatch(msg)
		}
	})
}

func (s *Server) dispatch(msg IncomingMsg) {
	if msg.ID != "" {
		s.mu.Lock()
		p, ok := s.pending[msg.ID]
		if ok {
			delete(s.pending, msg.ID)
		}
		s.mu.Unlock()
		if ok {
			p.ch <- msg
			return
		}
	}

	applog.Info("ws.recv", "type", msg.Type, "source", msg.Source)
	if msg.Type == "trigger" {
		s.trigger(Trigger{Source: msg.Source})
		return
	}
	select {
	case s.msgs <- msg:
	default:
	}
}

func (s *Server) trigger(t Trigger) bool {
	select {
	case s.triggers <- t:
		return true
	default:
		applog.Info("trigger.dropped", "source", t.Source)
		return false
	}
}

// Router serves the WebSocket endpoint on "/", a health probe and the
// POST /merge trigger used by external hotkey daemons.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/", s.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"connected": s.Connected()})
	})
	r.Post("/merge", func(w http.ResponseWriter, r *http.Request) {
		if !s.trigger(Trigger{Source: "http"}) {
			http.Error(w, "merge already queued", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	return r
}

// ListenAndServe starts the server on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	return srv.ListenAndServe()
}
