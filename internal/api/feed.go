package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"

	"pricewatch/internal/broker"
	"pricewatch/internal/logger"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

type subscriber struct {
	subjectKey string
	send       chan []byte
}

// Hub fans alert events out to websocket subscribers. A subscriber that
// falls behind by more than its buffer loses events rather than slowing
// the others; the feed is at-least-once only up to this point.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	logger      logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		logger:      log,
	}
}

// Consume is a broker.HandlerFunc for the alert topic.
func (h *Hub) Consume(ctx context.Context, msg broker.Message) error {
	var ev models.AlertEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		h.logger.WarnwCtx(ctx, "Skipping undecodable alert event",
			"error", err,
			"offset", msg.Offset,
		)
		return nil
	}
	h.Broadcast(ev.SubjectKey, msg.Value)
	return nil
}

// Broadcast delivers payload to every subscriber interested in subjectKey.
func (h *Hub) Broadcast(subjectKey string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subscribers {
		if s.subjectKey != "" && s.subjectKey != subjectKey {
			continue
		}
		select {
		case s.send <- payload:
		default:
			h.logger.Warnw("Feed subscriber too slow, dropping event", "subject_key", subjectKey)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) subscribe(subjectKey string) *subscriber {
	s := &subscriber{subjectKey: subjectKey, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(n))
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, s)
	n := len(h.subscribers)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(n))
}

// Serve upgrades the request and streams events until the client goes
// away. The optional subject_key query parameter narrows the feed.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WarnwCtx(c.Request.Context(), "Websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	s := h.subscribe(c.Query("subject_key"))
	defer h.unsubscribe(s)

	// Subscribers only listen; CloseRead handles control frames and
	// cancels ctx when the peer disconnects.
	ctx := conn.CloseRead(c.Request.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case payload := <-s.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
