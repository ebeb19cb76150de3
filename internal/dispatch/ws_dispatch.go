package dispatch

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/ridewatch/internal/observability"
)

const writeWait = 5 * time.Second

// Frame is one message to a viewer. Seq, when set, is the reconciler change
// the frame carries or, for a baseline frame, the last change it reflects.
type Frame struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq,omitempty"`
	Data any    `json:"data,omitempty"`
}

type queued struct {
	f        Frame
	baseline bool
}

// WSSession is one connected viewer. Until its first baseline frame is
// written, frames addressed to it are held back; after that any frame whose
// Seq is already covered by the baseline is skipped.
type WSSession struct {
	ID   string
	conn *websocket.Conn

	mu      sync.Mutex
	ready   bool
	since   uint64
	backlog []queued
}

// Send writes f unless the viewer's baseline already covers it.
func (s *WSSession) Send(f Frame) error {
	return s.push(f, false)
}

func (s *WSSession) push(f Frame, baseline bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		s.backlog = append(s.backlog, queued{f: f, baseline: baseline})
		return nil
	}
	return s.write(f, baseline)
}

// open writes hello, when given, as the first baseline frame and flushes
// whatever was held back while it was being built.
func (s *WSSession) open(hello *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	backlog := s.backlog
	s.backlog = nil
	if hello != nil {
		if err := s.write(*hello, true); err != nil {
			return err
		}
	}
	for _, q := range backlog {
		if err := s.write(q.f, q.baseline); err != nil {
			return err
		}
	}
	return nil
}

func (s *WSSession) write(f Frame, baseline bool) error {
	if baseline {
		s.since = f.Seq
	} else if f.Seq != 0 && f.Seq <= s.since {
		return nil
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(f)
}

// WSRegistry fans frames out to every viewer. A viewer whose write fails is
// dropped.
type WSRegistry struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	// Hello builds the baseline frame a new viewer receives first.
	Hello func() Frame

	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	return &WSRegistry{
		logger:   logger,
		sessions: make(map[string]*WSSession),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Add registers conn. Frames sent to it are held until Open.
func (r *WSRegistry) Add(conn *websocket.Conn) *WSSession {
	s := &WSSession{ID: uuid.NewString(), conn: conn}
	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()
	observability.ViewersConnected.Set(float64(n))
	return s
}

func (r *WSRegistry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if ok {
		_ = s.conn.Close()
		observability.ViewersConnected.Set(float64(n))
	}
}

func (r *WSRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

var ErrNoSession = errors.New("no ws session")

func (r *WSRegistry) Send(id string, f Frame) error {
	return r.send(id, f, false)
}

// Open writes hello, when non-nil, as the viewer's baseline, then anything
// broadcast to it since Add that hello does not already cover.
func (r *WSRegistry) Open(id string, hello *Frame) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return r.check(id, s.open(hello))
}

func (r *WSRegistry) send(id string, f Frame, baseline bool) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return r.check(id, s.push(f, baseline))
}

func (r *WSRegistry) check(id string, err error) error {
	if err != nil {
		r.logger.Debug("ws send error", "viewer", id, "error", err)
		r.Remove(id)
	}
	return err
}

// Broadcast sends f to every viewer.
func (r *WSRegistry) Broadcast(f Frame) {
	r.fanOut(f, false)
}

// Rebase sends f to every viewer as a new baseline: changes up to f.Seq are
// skipped from then on.
func (r *WSRegistry) Rebase(f Frame) {
	r.fanOut(f, true)
}

func (r *WSRegistry) fanOut(f Frame, baseline bool) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		_ = r.send(id, f, baseline)
	}
}

// ServeHTTP upgrades the request and keeps the viewer registered until it
// disconnects. Anything the viewer sends is discarded.
func (r *WSRegistry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Debug("ws upgrade failed", "error", err)
		return
	}
	s := r.Add(conn)
	r.logger.Info("viewer connected", "viewer", s.ID, "remote", req.RemoteAddr)
	var hello *Frame
	if r.Hello != nil {
		f := r.Hello()
		hello = &f
	}
	_ = r.Open(s.ID, hello)
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	r.Remove(s.ID)
	r.logger.Info("viewer disconnected", "viewer", s.ID)
}

// CloseAll disconnects every viewer.
func (r *WSRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*WSSession)
	r.mu.Unlock()
	for _, s := range sessions {
		s.mu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		s.mu.Unlock()
		_ = s.conn.Close()
	}
	observability.ViewersConnected.Set(0)
}
