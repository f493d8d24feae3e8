package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fluentcare/parley/internal/audio"
	"github.com/fluentcare/parley/internal/identity"
	"github.com/fluentcare/parley/internal/transport"
	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	pingInterval     = 20 * time.Second
	pongWait         = 60 * time.Second
	maxMessageBytes  = 1 << 20
)

// clientHello is the first frame on every connection. The token must verify
// before any audio or control frame is accepted.
type clientHello struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	Encoding  string `json:"encoding"`
}

type clientControl struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type serverError struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// WebSocketServer upgrades HTTP requests into realtime session connections:
// binary frames carry Opus audio in and PCM audio out, text frames carry
// JSON events and controls.
type WebSocketServer struct {
	hooks      transport.SessionHooks
	verifier   identity.Verifier
	newDecoder audio.DecoderFactory
	upgrader   websocket.Upgrader
}

func NewWebSocketServer(hooks transport.SessionHooks, verifier identity.Verifier, newDecoder audio.DecoderFactory) *WebSocketServer {
	return &WebSocketServer{
		hooks:      hooks,
		verifier:   verifier,
		newDecoder: newDecoder,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	hello, err := s.readHello(conn)
	if err != nil {
		writeErrorFrame(conn, err.Error())
		_ = conn.Close()
		return
	}

	userID, err := s.verifier.Verify(r.Context(), hello.Token)
	if err != nil {
		slog.Warn("rejected connection with invalid token", "session_id", hello.SessionID, "error", err)
		writeErrorFrame(conn, "invalid token")
		_ = conn.Close()
		return
	}

	decoder, err := s.newDecoder()
	if err != nil {
		slog.Error("failed to create audio decoder", "session_id", hello.SessionID, "error", err)
		writeErrorFrame(conn, "internal error")
		_ = conn.Close()
		return
	}
	defer decoder.Close()

	ch := newWSChannel(conn)
	if err := s.hooks.OnConnect(r.Context(), hello.SessionID, userID, ch); err != nil {
		slog.Warn("connection refused", "session_id", hello.SessionID, "error", err)
		writeErrorFrame(conn, err.Error())
		_ = conn.Close()
		return
	}
	ch.startKeepalive()
	defer ch.stopKeepalive()

	s.readLoop(conn, hello.SessionID, decoder)
}

func (s *WebSocketServer) readHello(conn *websocket.Conn) (*clientHello, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, frame, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read hello frame")
	}
	if messageType != websocket.TextMessage {
		return nil, fmt.Errorf("first frame must be a text hello")
	}
	var hello clientHello
	if err := json.Unmarshal(frame, &hello); err != nil {
		return nil, fmt.Errorf("invalid hello frame")
	}
	if hello.SessionID == "" || hello.Token == "" {
		return nil, fmt.Errorf("hello frame requires session_id and token")
	}
	if hello.Encoding != "" && hello.Encoding != "opus" {
		return nil, fmt.Errorf("unsupported audio encoding %q", hello.Encoding)
	}
	return &hello, nil
}

// readLoop is the single reader for the connection; every audio frame and
// control command for this session flows through it in arrival order.
func (s *WebSocketServer) readLoop(conn *websocket.Conn, sessionID string, decoder audio.Decoder) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.hooks.OnDisconnect(sessionID, nil)
			} else {
				s.hooks.OnDisconnect(sessionID, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch messageType {
		case websocket.BinaryMessage:
			pcm, err := decoder.Decode(frame)
			if err != nil {
				slog.Debug("dropped undecodable audio packet", "session_id", sessionID, "error", err)
				continue
			}
			s.hooks.OnAudioFrame(sessionID, pcm)

		case websocket.TextMessage:
			var ctl clientControl
			if err := json.Unmarshal(frame, &ctl); err != nil || ctl.Type != "control" {
				slog.Debug("dropped malformed control frame", "session_id", sessionID)
				continue
			}
			if err := s.hooks.OnControl(context.Background(), sessionID, transport.Control(ctl.Command)); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				writeErrorFrame(conn, err.Error())
			}
		}
	}
}

func writeErrorFrame(conn *websocket.Conn, text string) {
	b, err := json.Marshal(serverError{Type: "error", Text: text})
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

// wsChannel is the outbound half of one connection. gorilla/websocket allows
// one concurrent writer, so every write takes the mutex.
type wsChannel struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	pingStop chan struct{}
	pingOnce sync.Once
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn, pingStop: make(chan struct{})}
}

func (c *wsChannel) SendAudio(ctx context.Context, data []byte) error {
	return c.write(ctx, websocket.BinaryMessage, data)
}

func (c *wsChannel) SendEvent(ctx context.Context, ev transport.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.write(ctx, websocket.TextMessage, b)
}

func (c *wsChannel) write(ctx context.Context, messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsChannel) Close() error {
	c.stopKeepalive()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	return c.conn.Close()
}

func (c *wsChannel) startKeepalive() {
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.mu.Lock()
				if c.closed {
					c.mu.Unlock()
					return
				}
				err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
				c.mu.Unlock()
				if err != nil {
					return
				}
			case <-c.pingStop:
				return
			}
		}
	}()
}

func (c *wsChannel) stopKeepalive() {
	c.pingOnce.Do(func() { close(c.pingStop) })
}
