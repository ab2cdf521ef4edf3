package server

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Abnormal close codes of the session protocol.
const (
	CloseSuperseded   = 4001
	CloseRoomNotFound = 4004
)

// Client pumps frames between one websocket connection and the
// protocol engine. Identity is resolved during the transport handshake
// and fixed for the lifetime of the connection.
type Client struct {
	conn          *websocket.Conn
	ps            *PokerServer
	log           *log.Logger
	roomId        string
	participantId string
	isModerator   bool
	send          chan *ServerMessage
	stop          chan struct{}
	stopOnce      sync.Once
}

func NewClient(conn *websocket.Conn, ps *PokerServer, logger *log.Logger, roomId, participantId string, isModerator bool) *Client {
	return &Client{
		conn:          conn,
		ps:            ps,
		log:           logger,
		roomId:        roomId,
		participantId: participantId,
		isModerator:   isModerator,
		send:          make(chan *ServerMessage, 256),
		stop:          make(chan struct{}),
	}
}

func (c *Client) ParticipantId() string { return c.participantId }

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		c.ps.HandleMessage(c, raw)
	}
}

// queueMessage enqueues a frame for the write pump without blocking.
// A full channel means the client is too slow to keep up; the frame is
// dropped and the send reported as failed.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send channel full for %q, dropping message", c.participantId)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// closeWithCode delivers a close frame with a protocol-specific status
// code before tearing the connection down. Safe to call concurrently
// with the write pump.
func (c *Client) closeWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.log.Printf("write close frame: %v", err)
	}
	c.stopClient()
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.ps.Detach(c)
	c.stopClient()
}
