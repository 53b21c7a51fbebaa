package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/relay"
)

const (
	pongWait      = 70 * time.Second
	pingPeriod    = 25 * time.Second
	writeWait     = 10 * time.Second
	maxMessageLen = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// socket serializes writes; gorilla allows one concurrent writer.
type socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socket) send(ev relay.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(ev)
}

func (s *socket) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(writeWait))
}

func (s *socket) goingAway() {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// handleChatSocket runs one turn per inbound text frame, in order. Each event
// is written as a JSON frame {type, data}. Closing the socket cancels the turn
// in flight.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		AddError(r.Context(), err)
		return
	}
	defer conn.Close()

	sock := &socket{conn: conn}
	conn.SetReadLimit(maxMessageLen)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.keepalive(ctx, sock)

	frames := make(chan []byte)
	go func() {
		defer close(frames)
		defer cancel()
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("socket read failed", slog.String("request_id", GetRequestID(r.Context())), slog.String("error", err.Error()))
				}
				return
			}
			select {
			case frames <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	turns := 0
	defer func() { AddLogField(r.Context(), "turns", strconv.Itoa(turns)) }()
	for payload := range frames {
		var req relay.ChatRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			if sendErr := sock.send(relay.ErrorEvent(domain.ErrInvalidRequest(fmt.Sprintf("invalid request frame: %v", err)))); sendErr != nil {
				return
			}
			continue
		}
		turns++
		if err := s.socketTurn(ctx, sock, req); err != nil {
			return
		}
	}
}

// socketTurn returns an error only when the socket can no longer be written.
// A turn that fails before its first event, or runs out of time, ends with an
// error frame so the client is not left waiting.
func (s *Server) socketTurn(sockCtx context.Context, sock *socket, req relay.ChatRequest) error {
	ctx := sockCtx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	emitted := false
	var writeErr error
	err := s.chat.Stream(ctx, req, func(ev relay.Event) error {
		emitted = true
		if werr := sock.send(ev); werr != nil {
			writeErr = werr
			return werr
		}
		return nil
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil && sockCtx.Err() == nil && (!emitted || errors.Is(err, context.DeadlineExceeded)) {
		return sock.send(relay.ErrorEvent(err))
	}
	return nil
}

func (s *Server) keepalive(ctx context.Context, sock *socket) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := sock.ping(); err != nil {
				return
			}
		case <-s.closing:
			sock.goingAway()
			_ = sock.conn.Close()
			return
		case <-ctx.Done():
			return
		}
	}
}
