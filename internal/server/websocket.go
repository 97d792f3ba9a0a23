package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"toolshim-mcp/internal/dispatch"
)

// wsHandler answers one InvocationResult per CallRequest frame.
type wsHandler struct {
	ep       Endpoint
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newWSHandler(ep Endpoint) *wsHandler {
	return &wsHandler{
		ep:    ep,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	h.track(conn)
	defer h.untrack(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("WebSocket closed")
			}
			return
		}

		var req CallRequest
		var res dispatch.InvocationResult
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			res = dispatch.Failed("", "", dispatch.InvalidArguments, "invalid json frame")
		} else {
			res = h.ep.Invoke(r.Context(), req.invocation())
		}

		if err := conn.WriteJSON(res); err != nil {
			log.Debug().Err(err).Msg("WebSocket write failed")
			return
		}
	}
}

func (h *wsHandler) track(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *wsHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// closeAll tells every client the server is going away. Hijacked
// connections are not closed by http.Server.Shutdown.
func (h *wsHandler) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping")
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
}
