package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/gorilla/websocket"

	"github.com/immdipu/follower-detector/internal/intercept"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Follow payloads are small,
	// but relationships responses carry whole friend lists.
	maxMessageSize = 1 << 20

	// Size of the session send buffer.
	sendBufferSize = 256
)

// session is a single connected page script. The server keeps at most one
// live session; a reconnect replaces the previous one.
type session struct {
	conn        *websocket.Conn
	interceptor *intercept.Interceptor
	log         btclog.Logger

	// Buffered channel of outbound messages.
	send chan *Message

	mu     sync.Mutex
	closed bool

	onClose func(*session)
}

func newSession(conn *websocket.Conn, it *intercept.Interceptor,
	log btclog.Logger, onClose func(*session)) *session {

	return &session{
		conn:        conn,
		interceptor: it,
		log:         log,
		send:        make(chan *Message, sendBufferSize),
		onClose:     onClose,
	}
}

// enqueue queues an outbound message, dropping it if the buffer is full. A
// page script that stops draining must not stall the whole engine.
func (s *session) enqueue(msg *Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.send <- msg:
		return true
	default:
		s.log.Warnf("Send buffer full, dropping %s message", msg.Type)
		return false
	}
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.send)
	s.conn.Close()
}

// readPump pumps observed calls from the page script into the interceptor.
// It runs in its own goroutine per session.
func (s *session) readPump(ctx context.Context) {
	defer func() {
		s.onClose(s)
		s.close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {

				s.log.WarnS(ctx, "Bridge read error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.WarnS(ctx, "Undecodable bridge message", err)
			continue
		}
		if msg.Type != TypeRequest {
			s.log.Debugf("Ignoring bridge message type %q", msg.Type)
			continue
		}

		// Each observed call is handled off the read loop so a slow
		// upstream forward cannot starve the pong handler.
		go s.handleRequest(ctx, msg)
	}
}

// handleRequest routes one observed call through the interceptor and sends
// the real response back under the request's correlation ID.
func (s *session) handleRequest(ctx context.Context, msg Message) {
	resp, err := s.interceptor.HandleRequest(ctx, intercept.Request{
		URL:    msg.URL,
		Method: msg.Method,
		Body:   msg.Body,
	})
	if err != nil {
		s.enqueue(&Message{
			Type:  TypeError,
			ID:    msg.ID,
			Error: err.Error(),
		})
		return
	}

	s.enqueue(&Message{
		Type:   TypeResponse,
		ID:     msg.ID,
		Status: resp.Status,
		Body:   resp.Body,
	})
}

// writePump pumps queued messages to the page script and keeps the
// connection alive with pings. It runs in its own goroutine per session.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(
					websocket.CloseMessage, []byte{},
				)
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.log.Warnf("Bridge marshal error: %v", err)
				continue
			}

			err = s.conn.WriteMessage(websocket.TextMessage, data)
			if err != nil {
				s.log.Warnf("Bridge write error: %v", err)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		}
	}
}
