package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/bookscan/internal/camera"
	"github.com/MeKo-Tech/bookscan/internal/isbn"
	"github.com/MeKo-Tech/bookscan/internal/scanner"
	"github.com/MeKo-Tech/bookscan/internal/store"
	"github.com/MeKo-Tech/bookscan/internal/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// ScanEvent is a message sent to /ws/scan clients.
type ScanEvent struct {
	Type      string `json:"type"` // "status", "detected", "error"
	Status    string `json:"status,omitempty"`
	ISBN      string `json:"isbn,omitempty"`
	ISBN10    string `json:"isbn10,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// scanControl is a text message from a /ws/scan client.
type scanControl struct {
	Type string `json:"type"` // "start", "stop", "reset"
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// frameFeed is the device API of a websocket client: every GetUserMedia
// call hands out a fresh stream that the read loop fills with uploaded
// frames.
type frameFeed struct {
	mu      sync.Mutex
	current *camera.ChanStream
}

func (f *frameFeed) GetUserMedia(context.Context, camera.Constraints) (camera.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil {
		f.current.Close()
	}
	f.current = camera.NewChanStream("websocket", 2)
	return f.current, nil
}

func (f *frameFeed) push(frame []byte) (bool, error) {
	img, _, err := utils.DecodeImage(frame)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return false, nil
	}
	return f.current.Push(img), nil
}

// scanConn routes session callbacks to one websocket client.
type scanConn struct {
	id      string
	conn    WebSocketConnWriter
	history store.Store
	save    bool
	now     func() time.Time

	writeMu sync.Mutex
	mu      sync.Mutex
	last    string
}

func (c *scanConn) send(ev ScanEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal WebSocket event", "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("Failed to send WebSocket event", "connection", c.id, "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (c *scanConn) sendError(errorType, message string) {
	c.send(ScanEvent{Type: "error", ErrorType: errorType, Error: message})
}

// onSuccess reports a detected ISBN once until a different one is seen.
// The camera keeps decoding the same cover for as long as it is held up.
func (c *scanConn) onSuccess(key string) {
	c.mu.Lock()
	dup := key == c.last
	c.last = key
	c.mu.Unlock()
	if dup {
		return
	}

	scanRequestsTotal.WithLabelValues("websocket", "success").Inc()
	isbn10, _ := isbn.Convert13To10(key)
	c.send(ScanEvent{Type: "detected", ISBN: key, ISBN10: isbn10})

	if c.save && c.history != nil {
		if _, err := c.history.Record(store.Scan{ISBN: key, Source: store.SourceCamera, At: c.now()}); err != nil {
			slog.Error("Failed to record live scan", "isbn", key, "error", err)
		}
	}
}

func (c *scanConn) onError(err error) {
	scanRequestsTotal.WithLabelValues("websocket", "error").Inc()
	c.sendError("decode_error", err.Error())
}

func (c *scanConn) reset() {
	c.mu.Lock()
	c.last = ""
	c.mu.Unlock()
}

// scanWebSocketHandler runs a live scan session over a websocket. The client
// sends camera frames as binary JPEG/PNG messages and receives detected
// ISBNs as JSON events. save=true records every detection in the history.
func (s *Server) scanWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	id := newRequestID()
	slog.Info("WebSocket scan connection established", "remote_addr", r.RemoteAddr, "connection", id)
	s.handleScanConnection(conn, id, formBool(r, "save"))
	slog.Info("WebSocket scan connection closed", "connection", id)
}

func (s *Server) handleScanConnection(conn *websocket.Conn, id string, save bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	feed := &frameFeed{}
	opts := s.scanOpts
	opts.Host = camera.Host{Devices: feed}
	opts.Chain = nil
	session := scanner.New(opts)
	defer session.Stop()

	sc := &scanConn{id: id, conn: conn, history: s.history, save: save, now: s.now}
	session.SetHandlers(sc.onSuccess, sc.onError)

	start := func() {
		go func() {
			err := session.Start(ctx, nil)
			switch {
			case err == nil:
				sc.send(ScanEvent{Type: "status", Status: "scanning", SessionID: session.ID()})
			case errors.Is(err, scanner.ErrStopped):
			case errors.Is(err, scanner.ErrAlreadyActive):
				sc.sendError("invalid_request", "scan already running")
			default:
				sc.sendError("start_failed", err.Error())
			}
		}()
	}
	start()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket error", "connection", id, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		websocketMessagesTotal.WithLabelValues("received").Inc()

		switch messageType {
		case websocket.BinaryMessage:
			accepted, err := feed.push(data)
			if err != nil {
				sc.sendError("invalid_frame", "Failed to decode frame: "+err.Error())
				continue
			}
			if !accepted {
				websocketMessagesTotal.WithLabelValues("dropped").Inc()
			}
		case websocket.TextMessage:
			var ctl scanControl
			if err := json.Unmarshal(data, &ctl); err != nil {
				sc.sendError("invalid_request", "Failed to parse request: "+err.Error())
				continue
			}
			switch ctl.Type {
			case "start":
				sc.reset()
				start()
			case "stop":
				session.Stop()
				sc.send(ScanEvent{Type: "status", Status: "stopped"})
			case "reset":
				sc.reset()
			default:
				sc.sendError("invalid_request", "Unsupported request type: "+ctl.Type)
			}
		}
	}
}
