package handlers

import (
	"fmt"
	"sync"
)

// client is one subscribed SSE connection's outbound frame queue.
type client struct {
	frames chan []byte
}

// Hub fans out SSE frames to every connected dashboard client. A slow
// client is detected on a full queue and its frame is dropped rather
// than blocking the broadcaster (§5: "SSE writes never block the
// snapshot task").
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty broadcast hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

func (h *Hub) subscribe() *client {
	c := &client{frames: make(chan []byte, 16)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.frames <- frame:
		default:
			// client isn't draining fast enough; drop this frame for it
			// rather than stall every other subscriber.
		}
	}
}

func sseFrame(event string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data))
}
