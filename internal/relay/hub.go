package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/protocol"
	"github.com/zeusync/sheetsync/pkg/concurrent"
	"github.com/zeusync/sheetsync/pkg/sequence"
)

// Peer is one connected client. Send must be safe for concurrent use.
type Peer interface {
	ID() string
	Send(msg protocol.Message) error
	Close() error
}

// Exporter receives every committed state update after it was broadcast.
type Exporter interface {
	Export(documentID string, msg protocol.Message) error
}

// CommitPublisher is implemented by stores that publish committed messages
// on the broker themselves, atomically with the commit.
type CommitPublisher interface {
	PublishesCommits() bool
}

// HubConfig wires the collaborators of a Hub. Store is required, the rest
// falls back to in-process implementations.
type HubConfig struct {
	Store    Store
	Broker   Broker
	Presence Presence
	Exporter Exporter
	Metrics  *Metrics
	Logger   log.Log
	Shards   int
	FanOut   int
}

type room struct {
	id string

	// commitMu keeps publication in commit order.
	commitMu sync.Mutex

	mu          sync.RWMutex
	peers       map[string]Peer
	unsubscribe func()
}

type roomShard struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// Hub routes the messages of connected peers: state updates go through the
// Store, presence goes to the Presence registry, and whatever is accepted is
// published on the Broker and delivered to every local peer of the document.
type Hub struct {
	store    Store
	broker   Broker
	presence Presence
	exporter Exporter
	metrics  *Metrics
	logger   log.Log

	shards []*roomShard
	fanOut int

	publishes bool
	peers     int64 // atomic
	rooms     int64 // atomic
}

func NewHub(config HubConfig) *Hub {
	if config.Broker == nil {
		config.Broker = NewLocalBroker()
	}
	if config.Presence == nil {
		config.Presence = NewMemoryPresence()
	}
	if config.Logger == nil {
		config.Logger = log.NewNop()
	}
	if config.Shards <= 0 {
		config.Shards = 16
	}
	if config.FanOut == 0 {
		config.FanOut = -1
	}

	h := &Hub{
		store:    config.Store,
		broker:   config.Broker,
		presence: config.Presence,
		exporter: config.Exporter,
		metrics:  config.Metrics,
		logger:   config.Logger.With(log.String("component", "hub")),
		shards:   make([]*roomShard, config.Shards),
		fanOut:   config.FanOut,
	}
	if p, ok := config.Store.(CommitPublisher); ok {
		h.publishes = p.PublishesCommits()
	}
	for i := range h.shards {
		h.shards[i] = &roomShard{rooms: make(map[string]*room)}
	}
	return h
}

func (h *Hub) shardFor(documentID string) *roomShard {
	return h.shards[xxhash.Sum64String(documentID)%uint64(len(h.shards))]
}

func (h *Hub) getOrCreateRoom(ctx context.Context, documentID string) (*room, error) {
	sh := h.shardFor(documentID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if r, ok := sh.rooms[documentID]; ok {
		return r, nil
	}

	r := &room{id: documentID, peers: make(map[string]Peer)}
	unsubscribe, err := h.broker.Subscribe(ctx, documentID, func(msg protocol.Message) {
		h.deliver(r, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to document %s: %w", documentID, err)
	}
	r.unsubscribe = unsubscribe
	sh.rooms[documentID] = r

	atomic.AddInt64(&h.rooms, 1)
	if h.metrics != nil {
		h.metrics.Rooms.Inc()
	}
	return r, nil
}

func (h *Hub) room(documentID string) (*room, bool) {
	sh := h.shardFor(documentID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	r, ok := sh.rooms[documentID]
	return r, ok
}

// Join registers peer on a document. The messages committed after the
// revision since and the clients already present are sent to peer before any
// live message. An empty since skips the catch-up.
func (h *Hub) Join(ctx context.Context, documentID string, peer Peer, since string) error {
	if documentID == "" {
		return ErrInvalidDocumentID
	}
	r, err := h.getOrCreateRoom(ctx, documentID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if previous, ok := r.peers[peer.ID()]; ok && previous != peer {
		_ = previous.Close()
	} else if !ok {
		atomic.AddInt64(&h.peers, 1)
		if h.metrics != nil {
			h.metrics.Connections.Inc()
		}
	}
	r.peers[peer.ID()] = peer

	if since != "" {
		if err = h.catchUp(ctx, documentID, peer, since); err != nil {
			return err
		}
	}

	clients, err := h.presence.List(ctx, documentID)
	if err != nil {
		return fmt.Errorf("list clients of %s: %w", documentID, err)
	}
	for _, client := range clients {
		if client.ID == peer.ID() {
			continue
		}
		if err = peer.Send(protocol.NewClientJoined(client)); err != nil {
			return err
		}
	}

	h.logger.Debug("Peer joined",
		log.String("document_id", documentID),
		log.String("client_id", peer.ID()))
	return nil
}

func (h *Hub) catchUp(ctx context.Context, documentID string, peer Peer, since string) error {
	snapshot, messages, err := h.store.Load(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}
	found := snapshot.RevisionID == since
	for _, msg := range messages {
		if found {
			if err = peer.Send(msg); err != nil {
				return err
			}
		} else if msg.Type.IsRevision() && msg.NextRevisionID == since {
			found = true
		}
	}
	if !found {
		h.logger.Warn("Revision is not in the log, peer must reload",
			log.String("document_id", documentID),
			log.String("client_id", peer.ID()),
			log.String("since", since))
	}
	return nil
}

// Leave removes peer from a document and tells the other clients. The room
// is released with its last peer.
func (h *Hub) Leave(ctx context.Context, documentID string, peer Peer) error {
	r, ok := h.room(documentID)
	if !ok {
		return nil
	}

	r.mu.Lock()
	current, ok := r.peers[peer.ID()]
	if ok && current == peer {
		delete(r.peers, peer.ID())
		atomic.AddInt64(&h.peers, -1)
		if h.metrics != nil {
			h.metrics.Connections.Dec()
		}
	}
	r.mu.Unlock()
	if !ok || current != peer {
		return nil
	}

	h.releaseIfEmpty(r)

	var errs []error
	if err := h.presence.Remove(ctx, documentID, peer.ID()); err != nil {
		errs = append(errs, err)
	}
	if err := h.broker.Publish(ctx, documentID, protocol.NewClientLeft(peer.ID())); err != nil {
		errs = append(errs, err)
	}
	h.logger.Debug("Peer left",
		log.String("document_id", documentID),
		log.String("client_id", peer.ID()))
	return errors.Join(errs...)
}

func (h *Hub) releaseIfEmpty(r *room) {
	sh := h.shardFor(r.id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	r.mu.RLock()
	empty := len(r.peers) == 0
	r.mu.RUnlock()
	if !empty || sh.rooms[r.id] != r {
		return
	}
	delete(sh.rooms, r.id)
	r.unsubscribe()
	atomic.AddInt64(&h.rooms, -1)
	if h.metrics != nil {
		h.metrics.Rooms.Dec()
	}
}

// Handle processes one message sent by peer on a document. A state update
// built on a stale revision is dropped: the sender resends it once the
// conflicting revision reaches it.
func (h *Hub) Handle(ctx context.Context, documentID string, peer Peer, msg protocol.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.Messages.WithLabelValues(string(msg.Type)).Inc()
	}

	switch {
	case msg.Type.IsPresence():
		return h.handlePresence(ctx, documentID, peer, msg)
	case msg.Type.IsStateUpdate():
		return h.Commit(ctx, documentID, peer.ID(), msg)
	default:
		return fmt.Errorf("%w: %s is emitted by the server only", protocol.ErrInvalidMessage, msg.Type)
	}
}

func (h *Hub) handlePresence(ctx context.Context, documentID string, peer Peer, msg protocol.Message) error {
	if msg.ClientID != peer.ID() {
		return fmt.Errorf("%w: presence of %s sent by %s", ErrUnauthorized, msg.ClientID, peer.ID())
	}
	var err error
	if msg.Type == protocol.MessageClientLeft {
		err = h.presence.Remove(ctx, documentID, msg.ClientID)
	} else {
		err = h.presence.Set(ctx, documentID, *msg.Client)
	}
	if err != nil {
		return fmt.Errorf("update presence of %s: %w", msg.ClientID, err)
	}
	return h.broker.Publish(ctx, documentID, msg)
}

// Commit submits a state update on behalf of clientID and publishes the
// committed message. It is also the entry point of the HTTP relay.
func (h *Hub) Commit(ctx context.Context, documentID, clientID string, msg protocol.Message) error {
	if documentID == "" {
		return ErrInvalidDocumentID
	}
	if msg.Type == protocol.MessageRemoteRevision && msg.ClientID != clientID {
		return fmt.Errorf("%w: revision of %s sent by %s", ErrUnauthorized, msg.ClientID, clientID)
	}

	var r *room
	if existing, ok := h.room(documentID); ok {
		r = existing
		r.commitMu.Lock()
		defer r.commitMu.Unlock()
	}

	committed, err := h.store.Commit(ctx, documentID, msg)
	switch {
	case errors.Is(err, protocol.ErrUnexpectedRevisionID):
		h.countCommit(CommitRejected)
		h.logger.Debug("Stale state update dropped",
			log.String("document_id", documentID),
			log.String("client_id", clientID),
			log.Error(err))
		return nil
	case err != nil:
		h.countCommit(CommitFailed)
		return fmt.Errorf("commit on %s: %w", documentID, err)
	}
	h.countCommit(CommitAccepted)

	if !h.publishes {
		if err = h.broker.Publish(ctx, documentID, committed); err != nil {
			return fmt.Errorf("publish on %s: %w", documentID, err)
		}
	}

	if h.exporter != nil {
		result := "queued"
		if err = h.exporter.Export(documentID, committed); err != nil {
			result = "dropped"
			h.logger.Warn("Export failed",
				log.String("document_id", documentID),
				log.String("revision_id", committed.NextRevisionID),
				log.Error(err))
		}
		if h.metrics != nil {
			h.metrics.Exports.WithLabelValues(result).Inc()
		}
	}
	return nil
}

func (h *Hub) countCommit(result string) {
	if h.metrics != nil {
		h.metrics.Commits.WithLabelValues(result).Inc()
	}
}

// deliver sends msg to every local peer of the room. Peers failing to
// receive it are closed.
func (h *Hub) deliver(r *room, msg protocol.Message) {
	start := time.Now()

	r.mu.RLock()
	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.RUnlock()

	_ = concurrent.Limited(sequence.From(peers), h.fanOut, func(p Peer) error {
		if err := p.Send(msg); err != nil {
			h.logger.Warn("Failed to deliver message, closing peer",
				log.String("document_id", r.id),
				log.String("client_id", p.ID()),
				log.Error(err))
			_ = p.Close()
		}
		return nil
	})

	if h.metrics != nil {
		h.metrics.Broadcast.Observe(time.Since(start).Seconds())
	}
}

// Clients returns the clients present on a document.
func (h *Hub) Clients(ctx context.Context, documentID string) ([]protocol.Client, error) {
	return h.presence.List(ctx, documentID)
}

// Load returns the latest snapshot of a document and the messages after it.
func (h *Hub) Load(ctx context.Context, documentID string) (Snapshot, error) {
	snapshot, messages, err := h.store.Load(ctx, documentID)
	if err != nil {
		return Snapshot{}, err
	}
	if messages == nil {
		messages = []protocol.Message{}
	}
	return Snapshot{RevisionID: snapshot.RevisionID, Data: snapshot.Data, Messages: messages}, nil
}

// CloseAll closes every connected peer.
func (h *Hub) CloseAll() {
	for _, sh := range h.shards {
		sh.mu.Lock()
		rooms := make([]*room, 0, len(sh.rooms))
		for _, r := range sh.rooms {
			rooms = append(rooms, r)
		}
		sh.mu.Unlock()

		for _, r := range rooms {
			r.mu.RLock()
			peers := make([]Peer, 0, len(r.peers))
			for _, p := range r.peers {
				peers = append(peers, p)
			}
			r.mu.RUnlock()
			concurrent.ParallelMute(sequence.From(peers), Peer.Close)
		}
	}
}

// HubStats is a point in time view of the hub.
type HubStats struct {
	Peers int64 `json:"peers"`
	Rooms int64 `json:"rooms"`
}

func (h *Hub) Stats() HubStats {
	return HubStats{
		Peers: atomic.LoadInt64(&h.peers),
		Rooms: atomic.LoadInt64(&h.rooms),
	}
}
