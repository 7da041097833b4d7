package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/MilkywayRides/AuthE/internal/devicefeed"
	gorillaWS "github.com/gorilla/websocket"
)

// WSClient is a test client for the device feed websocket
type WSClient struct {
	t      *testing.T
	conn   *gorillaWS.Conn
	events chan devicefeed.Event
	errors chan error
	done   chan struct{}
	mu     sync.Mutex
}

// NewWSClient connects to url and starts reading feed events
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()

	dialer := *gorillaWS.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect to websocket: %v", err)
	}

	client := &WSClient{
		t:      t,
		conn:   conn,
		events: make(chan devicefeed.Event, 100),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
	}

	go client.readPump()

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

func (c *WSClient) readPump() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			case c.errors <- err:
			default:
			}
			return
		}

		var e devicefeed.Event
		if err := json.Unmarshal(data, &e); err != nil {
			select {
			case c.errors <- err:
			default:
			}
			continue
		}

		select {
		case c.events <- e:
		case <-c.done:
			return
		}
	}
}

// Next waits for the next event
func (c *WSClient) Next(timeout time.Duration) devicefeed.Event {
	c.t.Helper()

	select {
	case e, ok := <-c.events:
		if !ok {
			c.t.Fatal("websocket closed while waiting for event")
		}
		return e
	case err := <-c.errors:
		c.t.Fatalf("websocket error: %v", err)
	case <-time.After(timeout):
		c.t.Fatal("timed out waiting for websocket event")
	}
	return devicefeed.Event{}
}

// WaitFor skips events until match accepts one
func (c *WSClient) WaitFor(timeout time.Duration, match func(devicefeed.Event) bool) devicefeed.Event {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatal("timed out waiting for matching websocket event")
		}
		if e := c.Next(remaining); match(e) {
			return e
		}
	}
}

// Close closes the WebSocket connection gracefully
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
		_ = c.conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""))
		_ = c.conn.Close()
	}
}
