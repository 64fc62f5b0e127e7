package printer

import (
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ClientInfo describes a connected host
type ClientInfo struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"` // tcp, serial
	Remote      string    `json:"remote"`
	ConnectedAt time.Time `json:"connected_at"`
	Bytes       int64     `json:"bytes"`
}

type client struct {
	info   ClientInfo
	bytes  atomic.Int64
	closer io.Closer
}

// ClientPool tracks the hosts currently sending bytes to the emulator
type ClientPool struct {
	clients map[string]*client
	mu      sync.RWMutex
}

// NewClientPool creates an empty pool
func NewClientPool() *ClientPool {
	return &ClientPool{
		clients: make(map[string]*client),
	}
}

// Add registers a connection and returns its id
func (p *ClientPool) Add(kind, remote string, closer io.Closer) string {
	c := &client{
		info: ClientInfo{
			ID:          uuid.New().String(),
			Kind:        kind,
			Remote:      remote,
			ConnectedAt: time.Now(),
		},
		closer: closer,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.clients[c.info.ID] = c
	return c.info.ID
}

// Record adds n received bytes to a client's counter
func (p *ClientPool) Record(id string, n int) {
	p.mu.RLock()
	c, exists := p.clients[id]
	p.mu.RUnlock()

	if exists {
		c.bytes.Add(int64(n))
	}
}

// Remove forgets a client without closing it
func (p *ClientPool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.clients, id)
}

// Disconnect closes a client connection
func (p *ClientPool) Disconnect(id string) error {
	p.mu.Lock()
	c, exists := p.clients[id]
	delete(p.clients, id)
	p.mu.Unlock()

	if !exists {
		return nil // Already disconnected
	}
	return c.closer.Close()
}

// DisconnectAll closes all connections
func (p *ClientPool) DisconnectAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, c := range p.clients {
		c.closer.Close()
		delete(p.clients, id)
	}
}

// IsConnected checks if a client is connected
func (p *ClientPool) IsConnected(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, exists := p.clients[id]
	return exists
}

// List returns the connected clients, oldest first
func (p *ClientPool) List() []ClientInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ClientInfo, 0, len(p.clients))
	for _, c := range p.clients {
		info := c.info
		info.Bytes = c.bytes.Load()
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Count returns the number of connected clients
func (p *ClientPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.clients)
}
