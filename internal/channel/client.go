package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	linkup_errors "linkup-client/pkg/errors"
	"linkup-client/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 65536
	sendBuffer     = 256
)

// Conn is the process-wide event channel connection. One physical socket
// carries the traffic for every open conversation; sessions attach per-call
// handlers through Subscribe.
type Conn struct {
	ID     string
	userID int
	log    *logger.Logger

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

// Dial connects to the socket endpoint, identifying the local user through
// the userId query parameter, and starts the read and write pumps.
func Dial(ctx context.Context, socketURL string, userID int, log *logger.Logger) (*Conn, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	u, err := url.Parse(socketURL)
	if err != nil {
		return nil, fmt.Errorf("channel: parse url: %w", err)
	}
	q := u.Query()
	q.Set("userId", strconv.Itoa(userID))
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("channel: dial %s: %w", u.String(), err)
	}

	c := &Conn{
		ID:     uuid.New().String(),
		userID: userID,
		log:    log,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		subs:   make(map[int]func(Event)),
	}

	go c.writePump()
	go c.readPump()

	log.Infof("channel: connected as user %d (conn %s)", userID, c.ID)
	return c, nil
}

// Subscribe registers a handler for inbound events and returns its
// unsubscribe function. Handlers run on the reader goroutine in arrival
// order; once unsubscribe returns, no further deliveries happen.
func (c *Conn) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Emit sends one fire-and-forget event. There is no acknowledgment and no
// offline queue: when the socket is down the caller gets ErrNotConnected.
func (c *Conn) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("channel: marshal %s: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("channel: marshal envelope: %w", err)
	}

	select {
	case <-c.done:
		return linkup_errors.ErrNotConnected
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return linkup_errors.ErrNotConnected
	}
}

// JoinRoom subscribes the local user to the room shared with a peer.
func (c *Conn) JoinRoom(senderID, receiverID int) error {
	return c.Emit(EventJoinRoom, JoinRoomPayload{SenderID: senderID, ReceiverID: receiverID})
}

// SendMessage dispatches a message onto the channel.
func (c *Conn) SendMessage(p SendMessagePayload) error {
	return c.Emit(EventSendMessage, p)
}

// DeleteMessage propagates a hard delete to the room.
func (c *Conn) DeleteMessage(messageID, senderID, receiverID int) error {
	return c.Emit(EventDeleteMessage, DeleteMessagePayload{
		MessageID:  messageID,
		SenderID:   senderID,
		ReceiverID: receiverID,
	})
}

// EnterChat confirms a pending connection with a peer.
func (c *Conn) EnterChat(userID, receiverID int) error {
	return c.Emit(EventEnterChat, EnterChatPayload{UserID: userID, ReceiverID: receiverID})
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
		c.log.Infof("channel: disconnected (conn %s)", c.ID)
	})
	return nil
}

func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Errorf("channel: read: %v", err)
			}
			return
		}

		event, err := DecodeEvent(raw)
		if err != nil {
			c.log.Warnf("channel: dropping frame: %v", err)
			continue
		}
		c.dispatch(event)
	}
}

func (c *Conn) dispatch(event Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, fn := range c.subs {
		fn(event)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
