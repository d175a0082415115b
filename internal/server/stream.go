package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

// Hub fans monitor output out to websocket subscribers. Slow consumers
// get dropped messages, never a blocked monitoring cycle.
type Hub struct {
	log zerolog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	msgs chan []byte
}

const subscriberBuffer = 32

// NewHub creates a new stream hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:  log.With().Str("component", "stream").Logger(),
		subs: make(map[*subscriber]struct{}),
	}
}

// streamEnvelope wraps every message with its kind so one socket can carry
// alerts and snapshots together.
type streamEnvelope struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

// BroadcastAlert pushes an alert to all subscribers.
func (h *Hub) BroadcastAlert(alert domain.Alert) {
	h.broadcast(streamEnvelope{Kind: "alert", Payload: alert})
}

// BroadcastSnapshot pushes a portfolio snapshot to all subscribers.
func (h *Hub) BroadcastSnapshot(snapshot domain.PortfolioSnapshot) {
	h.broadcast(streamEnvelope{Kind: "snapshot", Payload: snapshot})
}

func (h *Hub) broadcast(env streamEnvelope) {
	msg, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode stream message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.msgs <- msg:
		default:
			// Subscriber is not keeping up; drop the message.
		}
	}
}

func (h *Hub) subscribe() *subscriber {
	sub := &subscriber{msgs: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()
	h.log.Debug().Int("subscribers", count).Msg("Stream subscriber connected")
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	count := len(h.subs)
	h.mu.Unlock()
	h.log.Debug().Int("subscribers", count).Msg("Stream subscriber disconnected")
}

// handleStream upgrades the request to a websocket and relays hub
// messages until the client goes away.
func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub := h.subscribe()
	defer h.unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.msgs:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
