package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/zeusync/sheetsync/internal/core/protocol"
)

// Presence tracks the clients connected to each document.
type Presence interface {
	Set(ctx context.Context, documentID string, client protocol.Client) error
	Remove(ctx context.Context, documentID, clientID string) error
	// List returns the clients of a document ordered by id.
	List(ctx context.Context, documentID string) ([]protocol.Client, error)
}

type MemoryPresence struct {
	mu      sync.RWMutex
	clients map[string]map[string]protocol.Client
}

var _ Presence = (*MemoryPresence)(nil)

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{clients: make(map[string]map[string]protocol.Client)}
}

func (p *MemoryPresence) Set(_ context.Context, documentID string, client protocol.Client) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clients[documentID] == nil {
		p.clients[documentID] = make(map[string]protocol.Client)
	}
	p.clients[documentID][client.ID] = client
	return nil
}

func (p *MemoryPresence) Remove(_ context.Context, documentID, clientID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients[documentID], clientID)
	if len(p.clients[documentID]) == 0 {
		delete(p.clients, documentID)
	}
	return nil
}

func (p *MemoryPresence) List(_ context.Context, documentID string) ([]protocol.Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]protocol.Client, 0, len(p.clients[documentID]))
	for _, c := range p.clients[documentID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
