package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 16 * 1024
	sendBuffer     = 256
)

var errClientClosed = errors.New("client closed")

// Client is one WebSocket connection. Outbound frames go through a
// buffered channel drained by a single write loop.
type Client struct {
	ID    string
	Email string

	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
	log    zerolog.Logger
}

func NewClient(email string, conn *websocket.Conn, logger zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:     id,
		Email:  email,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
		log:    logger.With().Str("client_id", id).Logger(),
	}
}

// Start launches the write loop. It must be called exactly once.
func (c *Client) Start() {
	go c.writeLoop()
}

// Emit queues ev for the client. It never blocks; a client that falls
// too far behind is disconnected.
func (c *Client) Emit(ev chat.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.log.Error().Err(err).Str("type", string(ev.Kind)).Msg("encode event")
		return
	}
	if err := c.Send(data); err != nil {
		c.log.Debug().Err(err).Msg("event dropped")
	}
}

func (c *Client) Send(payload []byte) error {
	select {
	case <-c.closed:
		return errClientClosed
	default:
	}
	select {
	case <-c.closed:
		return errClientClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
		return errors.New("send buffer full")
	}
}

// Close sends a close frame and tears down the connection.
func (c *Client) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.conn.Close()
	})
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} { return c.closed }

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Client) write(kind int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, payload)
}

// inbound is a client request.
type inbound struct {
	Type  string `json:"type"`
	DMID  string `json:"dm_id,omitempty"`
	Term  string `json:"term,omitempty"`
	Email string `json:"email,omitempty"`
	Text  string `json:"text,omitempty"`
}

// readLoop decodes requests and passes them to handle until the
// connection fails or is closed.
func (c *Client) readLoop(handle func(inbound)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			var (
				syntax    *json.SyntaxError
				fieldType *json.UnmarshalTypeError
			)
			if errors.As(err, &syntax) || errors.As(err, &fieldType) {
				c.Emit(chat.Event{Kind: chat.EventError, ErrorKind: "validation", Message: "malformed message"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		handle(in)
	}
}
