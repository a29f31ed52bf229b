package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/yourorg/tradesim/internal/marketdata"
)

type watchRequest struct {
	client *Client
	symbol string
}

// Hub fans live quote ticks out to websocket clients. One redis
// subscription is held per watched symbol and dropped when the last watcher
// leaves.
type Hub struct {
	clients     map[*Client]bool
	watchers    map[string]map[*Client]bool
	tickCancels map[string]context.CancelFunc

	register   chan *Client
	unregister chan *Client
	watch      chan watchRequest
	unwatch    chan watchRequest

	ticks  *marketdata.TickStore
	logger *slog.Logger
}

func NewHub(ticks *marketdata.TickStore, logger *slog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		watchers:    make(map[string]map[*Client]bool),
		tickCancels: make(map[string]context.CancelFunc),
		register:    make(chan *Client, 64),
		unregister:  make(chan *Client, 64),
		watch:       make(chan watchRequest, 64),
		unwatch:     make(chan watchRequest, 64),
		ticks:       ticks,
		logger:      logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for sym, clients := range h.watchers {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						h.dropIfUnwatched(sym)
					}
				}
				close(client.send)
			}
		case req := <-h.watch:
			if _, ok := h.watchers[req.symbol]; !ok {
				h.watchers[req.symbol] = make(map[*Client]bool)
				tickCtx, cancel := context.WithCancel(ctx)
				h.tickCancels[req.symbol] = cancel
				go h.pumpTicks(tickCtx, req.symbol)
			}
			h.watchers[req.symbol][req.client] = true
		case req := <-h.unwatch:
			if clients, ok := h.watchers[req.symbol]; ok {
				delete(clients, req.client)
				h.dropIfUnwatched(req.symbol)
			}
		}
	}
}

func (h *Hub) dropIfUnwatched(symbol string) {
	if len(h.watchers[symbol]) > 0 {
		return
	}
	if cancel, ok := h.tickCancels[symbol]; ok {
		cancel()
		delete(h.tickCancels, symbol)
	}
	delete(h.watchers, symbol)
}

func (h *Hub) pumpTicks(ctx context.Context, symbol string) {
	pubsub := h.ticks.Subscribe(ctx, symbol)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(json.RawMessage(msg.Payload))
			if err != nil {
				continue
			}
			h.fanOut(symbol, data)
		}
	}
}

func (h *Hub) fanOut(symbol string, data []byte) {
	clients, ok := h.watchers[symbol]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.send <- data:
		default:
		}
	}
}
