package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MilkywayRides/AuthE/internal/api/middleware"
	"github.com/MilkywayRides/AuthE/internal/devicefeed"
	"github.com/MilkywayRides/AuthE/internal/logger"
	ws "github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type DeviceEventsHandler struct {
	feed     *devicefeed.Feed
	upgrader ws.Upgrader
	logger   *slog.Logger
}

func NewDeviceEventsHandler(feed *devicefeed.Feed, allowedOrigins []string, log *slog.Logger) *DeviceEventsHandler {
	return &DeviceEventsHandler{
		feed: feed,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Stream handles GET /user/devices/events as a text/event-stream. Polling stops
// when the client goes away and the request context is cancelled.
func (h *DeviceEventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut the stream.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.DebugContext(r.Context(), "write deadline not supported", logger.Op("deviceEvents.Stream"), logger.Err(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for e := range h.feed.Subscribe(r.Context(), userID) {
		data, err := json.Marshal(e)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "marshal feed event failed", logger.Op("deviceEvents.Stream"), logger.Err(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// WebSocket handles GET /user/devices/ws with the same event contract.
func (h *DeviceEventsHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", logger.Op("deviceEvents.WebSocket"), logger.Err(err))
		return
	}
	defer conn.Close()

	// The hijacked request context is not cancelled on disconnect; readPump does
	// that. It still ends on server shutdown.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go readPump(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	events := h.feed.Subscribe(ctx, userID)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and cancels the subscription once the
// connection closes.
func readPump(conn *ws.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
