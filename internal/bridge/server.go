package bridge

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/btcsuite/btclog/v2"
	"github.com/gorilla/websocket"

	"github.com/immdipu/follower-detector/internal/intercept"
)

// ErrNoSession is returned by trigger calls when no page script is
// connected.
var ErrNoSession = errors.New("no bridge session connected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,

	// The page script connects from the platform's origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server accepts the page script's WebSocket connection and exposes UI
// triggers over it. At most one session is live; a reconnecting page
// replaces the previous session.
type Server struct {
	interceptor *intercept.Interceptor
	log         btclog.Logger

	mu      sync.Mutex
	current *session
}

// NewServer creates a bridge server feeding the given interceptor.
func NewServer(it *intercept.Interceptor, log btclog.Logger) *Server {
	return &Server{
		interceptor: it,
		log:         log,
	}
}

// ServeHTTP upgrades the page script's connection and starts its pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WarnS(r.Context(), "Bridge upgrade failed", err)
		return
	}

	sess := newSession(conn, s.interceptor, s.log, s.dropSession)

	s.mu.Lock()
	old := s.current
	s.current = sess
	s.mu.Unlock()

	if old != nil {
		s.log.Info("Replacing existing bridge session")
		old.close()
	}

	s.log.Infof("Bridge session connected from %s", r.RemoteAddr)

	go sess.writePump()
	go sess.readPump(context.Background())
}

// Connected reports whether a page script session is live.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current != nil
}

// Close tears down the live session, if any.
func (s *Server) Close() {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	if sess != nil {
		sess.close()
	}
}

// TriggerFollow asks the page script to click the follow control. The
// resulting network call arrives back through the session's read pump.
func (s *Server) TriggerFollow(ctx context.Context) error {
	return s.trigger(ctx, ActionFollow)
}

// TriggerUnfollow asks the page script to click the unfollow control.
func (s *Server) TriggerUnfollow(ctx context.Context) error {
	return s.trigger(ctx, ActionUnfollow)
}

func (s *Server) trigger(ctx context.Context, action string) error {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess == nil {
		return ErrNoSession
	}

	s.log.DebugS(ctx, "Sending trigger", "action", action)

	if !sess.enqueue(&Message{Type: TypeTrigger, Action: action}) {
		return ErrNoSession
	}

	return nil
}

func (s *Server) dropSession(sess *session) {
	s.mu.Lock()
	if s.current == sess {
		s.current = nil
	}
	s.mu.Unlock()

	s.log.Info("Bridge session disconnected")
}
