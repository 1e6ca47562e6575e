package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/decisiongraph/internal/events"
)

const (
	backlog    = 50
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Diagnostics are read-only; any origin may watch.
	CheckOrigin: func(*http.Request) bool { return true },
}

// watcher is one websocket client following the trace. When agent is set only
// events tagged with that agent are sent.
type watcher struct {
	conn  *websocket.Conn
	agent string
}

func (w *watcher) wants(e events.Event) bool {
	if w.agent == "" {
		return true
	}
	a, _ := e.Fields["agent"].(string)
	return a == w.agent
}

func (w *watcher) send(e events.Event) error {
	if !w.wants(e) {
		return nil
	}
	data, err := e.JSON()
	if err != nil {
		return nil
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// drain consumes client frames so pongs and close frames are processed. The
// returned channel closes when the client goes away.
func (w *watcher) drain() <-chan struct{} {
	gone := make(chan struct{})
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := w.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return gone
}

// wsEventsHandler streams the recent backlog and then live trace events.
// ?agent=name restricts the stream to one agent.
func (s *Server) wsEventsHandler(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	w := &watcher{conn: conn, agent: r.URL.Query().Get("agent")}

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	for _, e := range s.bus.Recent(backlog) {
		if err := w.send(e); err != nil {
			s.logger.Debug("ws write failed", "error", err)
			return
		}
	}

	gone := w.drain()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if err := w.send(e); err != nil {
				s.logger.Debug("ws write failed", "error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
