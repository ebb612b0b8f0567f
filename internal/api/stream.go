package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// StreamHub broadcasts cycle results to websocket subscribers. A slow
// subscriber is dropped rather than backing up the engine.
type StreamHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan interface{}
	logger  zerolog.Logger
}

func NewStreamHub(logger zerolog.Logger) *StreamHub {
	return &StreamHub{
		clients: make(map[*websocket.Conn]chan interface{}),
		logger:  logger.With().Str("component", "ws_stream").Logger(),
	}
}

// Broadcast queues a message for every connected subscriber.
func (h *StreamHub) Broadcast(msg interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- msg:
		default:
			h.logger.Warn().Msg("dropping slow websocket subscriber")
			close(ch)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// HandleWS upgrades the request and streams broadcasts until the
// client disconnects.
func (h *StreamHub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ch := make(chan interface{}, 32)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("websocket subscriber connected")

	// Reader goroutine: only to detect disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[conn]; ok {
			close(ch)
			delete(h.clients, conn)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
