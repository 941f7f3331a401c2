// Package cdp speaks the Chrome DevTools Protocol over a websocket: JSON
// envelopes with monotonically increasing ids, a single read loop demuxing
// responses to their callers and unsolicited messages to event subscribers.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"webshot/internal/observability"
)

// eventBuffer bounds per-subscription queues; events beyond it are dropped
// rather than stalling the read loop.
const eventBuffer = 16

// Event is an unsolicited protocol message, e.g. a page lifecycle
// notification.
type Event struct {
	Method string
	Params json.RawMessage
}

type envelope struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ProtocolError  `json:"error,omitempty"`
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Client is one protocol session bound to one browser subprocess.
type Client struct {
	conn *websocket.Conn
	log  *observability.Logger

	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan callResult
	subs    map[string][]chan Event
	closed  bool

	done chan struct{}
}

// Dial opens a protocol session against a devtools websocket URL.
func Dial(ctx context.Context, wsURL string, log *observability.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial devtools %s: %w", wsURL, err)
	}

	c := &Client{
		conn:    conn,
		log:     log,
		pending: make(map[int64]chan callResult),
		subs:    make(map[string][]chan Event),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Call sends one method invocation and blocks until the matching response
// arrives, the context expires, or the connection drops. Responses are
// correlated by id, so concurrent calls on one session are safe.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var rawParams json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", method, err)
		}
		rawParams = encoded
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan callResult, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	payload, err := json.Marshal(envelope{ID: id, Method: method, Params: rawParams})
	if err != nil {
		c.unregister(id)
		return nil, fmt.Errorf("marshal %s envelope: %w", method, err)
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.unregister(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%s: %w", method, res.err)
		}
		return res.result, nil
	case <-ctx.Done():
		c.unregister(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", method, ErrCallTimeout)
		}
		return nil, ctx.Err()
	case <-c.done:
		// The response may have been delivered just before shutdown.
		select {
		case res := <-ch:
			if res.err == nil {
				return res.result, nil
			}
		default:
		}
		return nil, fmt.Errorf("%s: %w", method, ErrConnectionClosed)
	}
}

// Subscribe registers for an event by method name. Register before issuing
// the call that triggers the event, or the notification can race past.
// The channel is dropped-on-overflow and closed when the session ends.
func (c *Client) Subscribe(method string) <-chan Event {
	ch := make(chan Event, eventBuffer)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch
	}
	c.subs[method] = append(c.subs[method], ch)
	return ch
}

// Close tears the connection down. Pending calls fail with
// ErrConnectionClosed.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) unregister(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop is the sole reader: responses go to the pending waiter matching
// their id, events fan out to subscribers, everything else is noise.
func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			if c.log != nil {
				c.log.Warn("discarding unparseable devtools message", "error", err)
			}
			continue
		}

		switch {
		case msg.ID != 0:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			if ok {
				delete(c.pending, msg.ID)
			}
			c.mu.Unlock()
			if !ok {
				// Late response for a deregistered caller.
				continue
			}
			if msg.Error != nil {
				ch <- callResult{err: msg.Error}
			} else {
				ch <- callResult{result: msg.Result}
			}
		case msg.Method != "":
			c.dispatchEvent(Event{Method: msg.Method, Params: msg.Params})
		}
	}
}

func (c *Client) dispatchEvent(ev Event) {
	c.mu.Lock()
	subs := c.subs[ev.Method]
	c.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// shutdown fails every pending waiter and closes subscriber channels.
func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]chan callResult)
	subs := c.subs
	c.subs = make(map[string][]chan Event)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- callResult{err: ErrConnectionClosed}
	}
	for _, chans := range subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	_ = c.conn.Close()
	close(c.done)
}
