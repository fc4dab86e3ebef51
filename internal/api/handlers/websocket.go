// Package handlers provides HTTP request handlers for the quickscope server.
// This file implements the WebSocket endpoint that streams scan progress to
// connected clients as probes finish.
package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/quickscope/internal/logging"
	"github.com/anstrom/quickscope/internal/scanning"
)

const (
	writeWait       = 10 * time.Second                                   // Time allowed to write a message to the peer
	pongWait        = 60 * time.Second                                   // Time to read next pong message from peer
	pingPeriodRatio = 0.9                                                // Ratio of pongWait for pingPeriod
	pingPeriod      = time.Duration(float64(pongWait) * pingPeriodRatio) // Send pings to peer (must be < pongWait)
	maxMessageSize  = 512                                                // Maximum message size allowed from peer
	bufferSize      = 256                                                // Size of the broadcast and per-client buffers
	summaryWait     = 2 * time.Second                                    // How long PublishSummary waits for a backed-up hub
)

// Message types sent to clients.
const (
	MessageProbe        = "probe"
	MessageScanFinished = "scan_finished"
)

// Message is the envelope of every WebSocket message.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// ProbeUpdate describes one finished work unit.
type ProbeUpdate struct {
	ScanID   string `json:"scan_id"`
	IP       string `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
	Port     uint16 `json:"port"`
	Status   string `json:"status"`
	Banner   string `json:"banner,omitempty"`
	Done     int    `json:"done"`
	Total    int    `json:"total"`
}

// ScanFinished summarizes a completed or interrupted scan.
type ScanFinished struct {
	ScanID             string  `json:"scan_id"`
	Hosts              int     `json:"hosts"`
	Ports              int     `json:"ports"`
	Open               int     `json:"open"`
	Closed             int     `json:"closed"`
	Filtered           int     `json:"filtered"`
	Errors             int     `json:"errors"`
	Skipped            int     `json:"skipped"`
	ResolutionFailures int     `json:"resolution_failures"`
	DurationSeconds    float64 `json:"duration_seconds"`
	Cancelled          bool    `json:"cancelled"`
}

// client is one connected peer. Its writePump is the only goroutine that
// writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// ProgressHub fans scan progress out to WebSocket clients. Slow clients that
// fall a full buffer behind are disconnected rather than stalling the scan.
type ProgressHub struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	shutdown   chan struct{}
	closeOnce  sync.Once
	count      atomic.Int64
	dropped    atomic.Int64

	summaryWait time.Duration
}

// NewProgressHub creates a hub and starts its dispatch goroutine.
func NewProgressHub(logger *logging.Logger) *ProgressHub {
	if logger == nil {
		logger = logging.Default()
	}
	h := &ProgressHub{
		logger: logger.WithFields("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, bufferSize),
		register:   make(chan *client),
		unregister: make(chan *client),
		shutdown:   make(chan struct{}),

		summaryWait: summaryWait,
	}

	go h.run()

	return h
}

// ServeHTTP upgrades the request and streams progress until the peer leaves
// or the hub is closed.
func (h *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Failed to upgrade WebSocket connection", "error", err)
		return
	}
	h.logger.Debug("New progress WebSocket connection", "remote_addr", r.RemoteAddr)

	c := &client{conn: conn, send: make(chan []byte, bufferSize)}
	select {
	case h.register <- c:
	case <-h.shutdown:
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// Publish sends a probe update for e to every client. It never blocks; when
// the hub is backed up the update is dropped.
func (h *ProgressHub) Publish(e scanning.Event) {
	res := e.Result
	h.send(MessageProbe, 0, ProbeUpdate{
		ScanID:   e.ScanID.String(),
		IP:       res.Target.Addr.String(),
		Hostname: res.Target.Hostname,
		Port:     res.Port,
		Status:   string(res.Status),
		Banner:   res.BannerText(),
		Done:     e.Done,
		Total:    e.Total,
	})
}

// PublishSummary announces a finished scan. Unlike Publish it waits briefly
// for room when the hub is backed up, so the final message is not lost to a
// burst of probe updates.
func (h *ProgressHub) PublishSummary(s *scanning.Summary) {
	h.send(MessageScanFinished, h.summaryWait, ScanFinished{
		ScanID:             s.ID.String(),
		Hosts:              s.Totals.Hosts,
		Ports:              s.Totals.Ports,
		Open:               s.Totals.Open,
		Closed:             s.Totals.Closed,
		Filtered:           s.Totals.Filtered,
		Errors:             s.Totals.Errors,
		Skipped:            s.Totals.Skipped,
		ResolutionFailures: len(s.ResolutionFailures),
		DurationSeconds:    s.Duration().Seconds(),
		Cancelled:          s.Cancelled,
	})
}

// Clients returns the number of connected clients.
func (h *ProgressHub) Clients() int {
	return int(h.count.Load())
}

// Dropped returns how many messages were discarded because the broadcast
// buffer was full. Clients disconnected for being slow are not counted.
func (h *ProgressHub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every client and stops the hub. It is safe to call more
// than once.
func (h *ProgressHub) Close() {
	h.closeOnce.Do(func() {
		close(h.shutdown)
	})
}

// send queues a message for broadcast. With wait zero it never blocks;
// otherwise it waits up to wait for buffer space before dropping.
func (h *ProgressHub) send(messageType string, wait time.Duration, data any) {
	payload, err := json.Marshal(Message{
		Type:      messageType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		h.logger.Error("Failed to marshal progress message", "type", messageType, "error", err)
		return
	}

	select {
	case <-h.shutdown:
		return
	default:
	}

	if wait <= 0 {
		select {
		case h.broadcast <- payload:
		default:
			h.dropped.Add(1)
		}
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case h.broadcast <- payload:
	case <-h.shutdown:
	case <-timer.C:
		h.dropped.Add(1)
		h.logger.Warn("Progress hub backed up, message dropped", "type", messageType)
	}
}

// run owns the client set.
func (h *ProgressHub) run() {
	for {
		select {
		case <-h.shutdown:
			for c := range h.clients {
				h.remove(c)
			}
			h.logger.Debug("Progress hub shut down")
			return

		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug("Client registered", "total_clients", len(h.clients))

		case c := <-h.unregister:
			if h.clients[c] {
				h.remove(c)
				h.logger.Debug("Client unregistered", "total_clients", len(h.clients))
			}

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					h.logger.Warn("Progress client too slow, disconnecting",
						"remote_addr", c.conn.RemoteAddr().String())
					h.remove(c)
				}
			}
		}
	}
}

func (h *ProgressHub) remove(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

// readPump discards client messages and notices when the peer goes away.
func (h *ProgressHub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.shutdown:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("WebSocket unexpected close", "error", err)
			}
			return
		}
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (h *ProgressHub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("Write failed, closing connection", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debug("Ping failed, closing connection", "error", err)
				return
			}
		}
	}
}

