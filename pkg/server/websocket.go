package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hackmatch/hackmatch/pkg/chat"
)

var errConnClosed = errors.New("connection closed")
var errBackpressure = errors.New("send buffer full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The browser client runs on a different origin in development
		return true
	},
}

// wsClient is one live websocket connection. It implements chat.Conn: the
// identity is bound once at authentication and immutable afterwards, and
// Send queues without blocking so a slow reader can never stall a broadcast.
type wsClient struct {
	id       string
	identity string
	ws       *websocket.Conn
	send     chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSClient(identity string, ws *websocket.Conn, bufferSize int) *wsClient {
	return &wsClient{
		id:       uuid.NewString(),
		identity: identity,
		ws:       ws,
		send:     make(chan []byte, bufferSize),
		closed:   make(chan struct{}),
	}
}

func (c *wsClient) ID() string       { return c.id }
func (c *wsClient) Identity() string { return c.identity }

// Send marshals the event and queues it for the writer goroutine. A closed
// connection or a full buffer counts as a skipped best-effort delivery.
func (c *wsClient) Send(event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return errBackpressure
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

// HandleWebSocket authenticates and upgrades a push connection. The bearer
// credential comes once, in the query string at connection open; an invalid
// credential is refused with 401 before the upgrade, so no handler runs and
// no state is created.
func (s *Server) HandleWebSocket(c *gin.Context) {
	identity, err := s.auth.Verify(c.Request.Context(), c.Query("token"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newWSClient(identity, ws, s.config.SendBufferSize)
	s.presence.Register(client)
	log.Info().Str("user", identity).Str("conn", client.id).Msg("websocket connected")

	go s.writePump(client)
	go s.readPump(client)
}

// readPump reads intents off the socket and hands them to the router one at
// a time, preserving per-connection arrival order. When the read loop ends,
// for any reason, the connection's presence entry and subscriptions are torn
// down before the connection counts as closed.
func (s *Server) readPump(client *wsClient) {
	defer func() {
		s.router.Disconnect(client)
		client.close()
		log.Info().Str("user", client.identity).Str("conn", client.id).Msg("websocket disconnected")
	}()

	for {
		_, data, err := client.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("conn", client.id).Msg("websocket read error")
			}
			return
		}

		var intent chat.Intent
		if err := json.Unmarshal(data, &intent); err != nil {
			client.Send(chat.ErrorEvent{Type: chat.EventError, Message: "malformed intent"})
			continue
		}

		s.router.HandleIntent(client, intent)
	}
}

// writePump drains the send queue onto the socket. One writer per connection
// keeps gorilla's single-writer requirement satisfied.
func (s *Server) writePump(client *wsClient) {
	defer client.close()

	for {
		select {
		case <-client.closed:
			return
		case data := <-client.send:
			client.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("conn", client.id).Msg("websocket write error")
				return
			}
		}
	}
}
