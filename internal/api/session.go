package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/appsearch/appsearch/internal/icons"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Icon URLs can be long.
	maxMessageSize = 4096

	sendBuffer = 256
)

// Client message types. Each carries a RowPayload.
const (
	MsgRowVisible   = "row:visible"
	MsgRowInvisible = "row:invisible"
	MsgRowNear      = "row:near"
	MsgRowFar       = "row:far"
	MsgRowRetry     = "row:retry"

	MsgIconProgress = "icon:progress"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope for every websocket frame.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// RowPayload addresses one row of the client's list.
type RowPayload struct {
	Key int    `json:"key"`
	URL string `json:"url"`
}

// IconProgressPayload reports an icon state change. Image is base64 in JSON.
type IconProgressPayload struct {
	Key   int    `json:"key"`
	State string `json:"state"`
	Image []byte `json:"image,omitempty"`
	Error string `json:"error,omitempty"`
}

// session is one websocket connection with its own icon coordinator.
type session struct {
	id          string
	conn        *websocket.Conn
	coordinator *icons.Coordinator
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	logger      zerolog.Logger
}

// handleWebSocket upgrades the connection and starts a session.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	logger := s.logger.With().Str("session", id).Logger()
	sess := &session{
		id:          id,
		conn:        conn,
		coordinator: icons.NewCoordinator(s.deps.Fetcher, logger),
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		logger:      logger,
	}

	s.addSession(sess)
	sess.logger.Debug().Msg("Session opened")

	go sess.writePump()
	go func() {
		sess.readPump()
		s.removeSession(sess)
	}()

	return nil
}

// close cancels every icon task of the session and closes the connection.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.coordinator.CancelAll()
		s.conn.Close()
		s.logger.Debug().Msg("Session closed")
	})
}

// readPump dispatches client messages to the coordinator until the peer goes away.
func (s *session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("Session read failed")
			}
			return
		}
		s.handle(data)
	}
}

func (s *session) handle(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug().Err(err).Msg("Ignoring malformed message")
		return
	}

	var row RowPayload
	if err := json.Unmarshal(msg.Payload, &row); err != nil {
		s.logger.Debug().Err(err).Str("type", msg.Type).Msg("Ignoring malformed payload")
		return
	}
	key := icons.RowKey(row.Key)

	switch msg.Type {
	case MsgRowVisible, MsgRowNear, MsgRowRetry:
		if !fetchableURL(row.URL) {
			s.logger.Debug().Str("type", msg.Type).Str("url", row.URL).Msg("Ignoring non-HTTP icon URL")
			return
		}
	}

	switch msg.Type {
	case MsgRowVisible:
		s.coordinator.BecameVisible(key, row.URL, s.progressFor(row.Key))
	case MsgRowInvisible:
		s.coordinator.BecameInvisible(key)
	case MsgRowNear:
		s.coordinator.NearVisible(key, row.URL, s.progressFor(row.Key))
	case MsgRowFar:
		s.coordinator.NoLongerNearVisible(key)
	case MsgRowRetry:
		s.coordinator.Retry(key, row.URL, s.progressFor(row.Key))
	default:
		s.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown message type")
	}
}

// fetchableURL accepts absolute http and https URLs only.
func fetchableURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (s *session) progressFor(key int) icons.ProgressFunc {
	return func(p icons.Progress) {
		payload := IconProgressPayload{
			Key:   key,
			State: p.State.String(),
			Image: p.Image,
		}
		if p.Err != nil {
			payload.Error = p.Err.Error()
		}
		s.push(MsgIconProgress, payload)
	}
}

// push queues a message without blocking. Messages to a closed or stalled
// session are dropped.
func (s *session) push(msgType string, payload any) {
	select {
	case <-s.done:
		return
	default:
	}

	data, err := json.Marshal(struct {
		Type      string `json:"type"`
		Payload   any    `json:"payload"`
		Timestamp string `json:"timestamp"`
	}{msgType, payload, time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		s.logger.Error().Err(err).Str("type", msgType).Msg("Failed to encode message")
		return
	}

	select {
	case s.send <- data:
	default:
		s.logger.Warn().Str("type", msgType).Msg("Send buffer full, dropping message")
	}
}

// writePump writes queued messages and keepalive pings to the connection.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
