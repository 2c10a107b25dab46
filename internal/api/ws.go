package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ivishnuraj/vmaker/internal/events"
)

const (
	wsWriteWait     = 10 * time.Second
	wsPongWait      = 60 * time.Second
	wsPingPeriod    = wsPongWait * 9 / 10
	wsMaxMessage    = 4096
	wsSubscriberBuf = 256
)

// The server binds to loopback by default, so any local page may connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since int64
		if v := r.URL.Query().Get("since"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				WriteError(w, http.StatusBadRequest, "invalid since", "BAD_REQUEST")
				return
			}
			since = n
		}
		WriteJSON(w, http.StatusOK, EventsResponse{
			Events:  cfg.Bus.Since(since),
			LastSeq: cfg.Bus.LastSeq(),
		})
	}
}

// wsHandler pushes every bus event to the connection as a JSON text frame.
// Text frames sent by the client are answered with "pong: <msg>".
func wsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		requestID, _ := r.Context().Value(RequestIDKey).(string)
		c := &wsClient{
			conn:    conn,
			bus:     cfg.Bus,
			sub:     cfg.Bus.Subscribe(wsSubscriberBuf),
			logger:  cfg.Logger.With("request_id", requestID, "remote", r.RemoteAddr),
			replies: make(chan string, 8),
			closed:  make(chan struct{}),
		}
		c.logger.Info("websocket connected")

		go c.readLoop()
		c.writeLoop(cfg.shutdown)
	}
}

type wsClient struct {
	conn    *websocket.Conn
	bus     *events.Bus
	sub     *events.Subscriber
	logger  *slog.Logger
	replies chan string
	closed  chan struct{}
}

func (c *wsClient) readLoop() {
	defer close(c.closed)

	c.conn.SetReadLimit(wsMaxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		select {
		case c.replies <- string(msg):
		case <-c.sub.Done():
			return
		}
	}
}

// writeLoop owns every write to the connection. It returns when the client
// goes away, the bus drops the subscriber, or the server shuts down.
func (c *wsClient) writeLoop(shutdown <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.bus.Unsubscribe(c.sub)
		c.conn.Close()
		c.logger.Info("websocket disconnected")
	}()

	for {
		select {
		case evt, ok := <-c.sub.C():
			if !ok {
				c.logger.Warn("websocket subscriber dropped")
				c.close(websocket.CloseTryAgainLater, "subscriber fell behind")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(evt); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}
		case msg := <-c.replies:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte("pong: "+msg)); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-shutdown:
			c.close(websocket.CloseGoingAway, "server shutting down")
			return
		case <-c.closed:
			return
		}
	}
}

func (c *wsClient) close(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
