// Package hub fans UI events out to connected dashboard websockets and
// hands inbound commands to a single handler, using the channel-based
// register/unregister/broadcast pattern.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/protocol"
)

// CommandHandler receives commands read from a client. It runs on the
// client's read goroutine, so commands from one client are handled in
// order.
type CommandHandler func(c *Client, msg *protocol.Message)

// ConnectHandler is called once a client is registered.
type ConnectHandler func(c *Client)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Name for logging
	name string
	log  *slog.Logger

	// Registered clients
	clients map[*Client]struct{}

	// Outbound payloads to broadcast
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu sync.RWMutex

	handlerMu sync.RWMutex
	onCommand CommandHandler
	onConnect ConnectHandler

	running atomic.Bool
	done    chan struct{}

	dropped atomic.Uint64
}

// New creates a new Hub. A nil logger uses the package default.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = log.L()
	}
	return &Hub{
		name:       name,
		log:        logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// OnCommand sets the handler for inbound commands.
func (h *Hub) OnCommand(fn CommandHandler) {
	h.handlerMu.Lock()
	h.onCommand = fn
	h.handlerMu.Unlock()
}

// OnConnect sets the handler called for each new client.
func (h *Hub) OnConnect(fn ConnectHandler) {
	h.handlerMu.Lock()
	h.onConnect = fn
	h.handlerMu.Unlock()
}

// Run starts the hub's main loop and blocks until ctx is done, at which
// point every client is disconnected.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			c.closeSend()
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client connected", "client_id", client.ID, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client disconnected", "client_id", client.ID, "clients", count)

		case data := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.enqueue(data) {
					// Client's buffer is full, drop them rather than
					// stall everyone else.
					delete(h.clients, client)
					client.closeSend()
					h.log.Warn("dropped slow client", "client_id", client.ID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a payload to all connected clients. It never blocks.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
		h.log.Warn("broadcast channel full, dropping message")
	}
}

// Emit broadcasts a UI event.
func (h *Hub) Emit(msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		h.log.Error("failed to encode event", "type", msg.Type, "error", err)
		return
	}
	h.Broadcast(data)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were discarded because the hub
// was saturated.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

func (h *Hub) commandHandler() CommandHandler {
	h.handlerMu.RLock()
	defer h.handlerMu.RUnlock()
	return h.onCommand
}

func (h *Hub) connectHandler() ConnectHandler {
	h.handlerMu.RLock()
	defer h.handlerMu.RUnlock()
	return h.onConnect
}
