// Package session implements the client side of the revision protocol.
//
// A session sends at most one state update at a time. Local revisions are
// applied immediately and queued; the head of the queue is sent and every
// other message waits until a revision is committed by the server.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/zeusync/sheetsync/internal/core/command"
	"github.com/zeusync/sheetsync/internal/core/events/bus"
	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/ot"
	"github.com/zeusync/sheetsync/internal/core/protocol"
	"github.com/zeusync/sheetsync/internal/core/revision"
)

var ErrReplayingInitialRevisions = errors.New("cannot send a revision while replaying initial revisions")

// ServerClientID owns the placeholder revisions of committed snapshots.
const ServerClientID = "server"

type Config struct {
	ClientID   string
	ClientName string
	// ServerRevisionID is the revision the local state was loaded at.
	ServerRevisionID string

	Transport protocol.Transport
	Revisions *revision.Log
	Registry  *ot.Registry
	Bus       bus.EventBus
	Logger    log.Log
}

// Session is not safe for concurrent use: deliveries and local calls must be
// serialized by the caller.
type Session struct {
	client    protocol.Client
	transport protocol.Transport
	revisions *revision.Log
	registry  *ot.Registry
	bus       bus.EventBus
	logger    log.Log

	serverRevisionID   string
	pendingMessages    []protocol.Message
	waitingAck         bool
	waitingUndoRedoAck bool
	replaying          bool
	processedRevisions mapset.Set[string]
	clients            map[string]protocol.Client
}

func New(cfg Config) *Session {
	id := cfg.ClientID
	if id == "" {
		id = uuid.NewString()
	}
	serverRevisionID := cfg.ServerRevisionID
	if serverRevisionID == "" {
		serverRevisionID = protocol.StartRevisionID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Provide()
	}
	return &Session{
		client:             protocol.Client{ID: id, Name: cfg.ClientName},
		transport:          cfg.Transport,
		revisions:          cfg.Revisions,
		registry:           cfg.Registry,
		bus:                cfg.Bus,
		logger:             logger.With(log.String("client_id", id)),
		serverRevisionID:   serverRevisionID,
		processedRevisions: mapset.NewThreadUnsafeSet[string](),
		clients:            make(map[string]protocol.Client),
	}
}

func (s *Session) ClientID() string {
	return s.client.ID
}

// RevisionID returns the last revision committed by the server.
func (s *Session) RevisionID() string {
	return s.serverRevisionID
}

// IsFullySynchronized reports whether every local revision was acknowledged.
func (s *Session) IsFullySynchronized() bool {
	return !s.waitingAck && len(s.pendingMessages) == 0
}

// CanApplyOptimisticUpdate is false while an undo or redo waits for the server.
func (s *Session) CanApplyOptimisticUpdate() bool {
	return !s.waitingUndoRedoAck
}

// ConnectedClients returns the known clients ordered by id.
func (s *Session) ConnectedClients() []protocol.Client {
	ids := slices.Sorted(maps.Keys(s.clients))
	out := make([]protocol.Client, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.clients[id])
	}
	return out
}

// Join registers the session on the transport. A nil client joins with the
// session identity and no position.
func (s *Session) Join(client *protocol.Client) {
	if client != nil {
		s.clients[client.ID] = *client
	} else {
		s.clients[s.client.ID] = s.client
	}
	s.transport.OnNewMessage(s.client.ID, s.onMessage)
}

// Leave unregisters the session and tells the other clients.
func (s *Session) Leave() error {
	delete(s.clients, s.client.ID)
	s.transport.Leave(s.client.ID)
	return s.transport.SendMessage(protocol.NewClientLeft(s.client.ID))
}

// Move publishes the position of the local client. The first position is
// announced with CLIENT_JOINED. An unchanged position is not sent.
func (s *Session) Move(position protocol.ClientPosition) error {
	current, known := s.clients[s.client.ID]
	if known && current.Position != nil && *current.Position == position {
		return nil
	}
	client := s.client
	client.Position = &position
	s.clients[client.ID] = client

	msg := protocol.NewClientMoved(client)
	if !known || current.Position == nil {
		msg = protocol.NewClientJoined(client)
	}
	return s.transport.SendMessage(msg)
}

// Save records a local revision already applied to the state and queues it.
// It returns the revision id, or "" when there was nothing to record.
func (s *Session) Save(commands []command.Command, changes []revision.Change) (string, error) {
	if len(commands) == 0 || len(changes) == 0 || s.waitingUndoRedoAck {
		return "", nil
	}
	r := revision.New(uuid.NewString(), s.client.ID, commands, changes)
	if err := s.revisions.Append(r.ID, r); err != nil {
		return "", err
	}
	if err := bus.Trigger(s.bus, EventNewLocalStateUpdate, s.client.ID, NewLocalStateUpdate{RevisionID: r.ID, Commands: commands}); err != nil {
		return "", err
	}
	return r.ID, s.sendUpdateMessage(protocol.NewRemoteRevision(s.client.ID, s.serverRevisionID, r.ID, commands))
}

// Undo asks the server to undo revisionID. Nothing changes locally until the
// server confirms.
func (s *Session) Undo(revisionID string) error {
	s.waitingUndoRedoAck = true
	return s.sendUpdateMessage(protocol.NewRevisionUndone(s.serverRevisionID, uuid.NewString(), revisionID))
}

// Redo asks the server to redo revisionID.
func (s *Session) Redo(revisionID string) error {
	s.waitingUndoRedoAck = true
	return s.sendUpdateMessage(protocol.NewRevisionRedone(s.serverRevisionID, uuid.NewString(), revisionID))
}

// Snapshot proposes data as the new base of the document. It is only sent
// when every local revision is acknowledged.
func (s *Session) Snapshot(data json.RawMessage) (bool, error) {
	if len(s.pendingMessages) != 0 || s.waitingAck {
		return false, nil
	}
	return true, s.sendUpdateMessage(protocol.NewSnapshot(s.serverRevisionID, uuid.NewString(), data))
}

// LoadInitialMessages replays the messages committed since the state was
// loaded. A message out of sequence means the stored document is corrupt.
func (s *Session) LoadInitialMessages(messages []protocol.Message) error {
	s.replaying = true
	defer func() { s.replaying = false }()
	for _, msg := range messages {
		if err := s.receive(msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) onMessage(msg protocol.Message) {
	if err := s.receive(msg); err != nil {
		s.logger.Error("Failed to handle message",
			log.String("type", string(msg.Type)),
			log.String("next_revision_id", msg.NextRevisionID),
			log.Error(err))
		if err = bus.Trigger(s.bus, EventFailure, s.client.ID, Failure{Err: err}); err != nil {
			s.logger.Error("Failure handler failed", log.Error(err))
		}
	}
}

func (s *Session) receive(msg protocol.Message) error {
	s.logger.Debug("Message received",
		log.String("type", string(msg.Type)),
		log.String("server_revision_id", msg.ServerRevisionID),
		log.String("next_revision_id", msg.NextRevisionID))

	if s.isAlreadyProcessed(msg) {
		return nil
	}
	if msg.Type.IsRevision() && msg.ServerRevisionID != s.serverRevisionID {
		if s.replaying {
			return fmt.Errorf("%w: expected %s, got %s", protocol.ErrUnexpectedRevisionID, s.serverRevisionID, msg.ServerRevisionID)
		}
		s.logger.Warn("Unexpected revision id",
			log.String("expected", s.serverRevisionID),
			log.String("received", msg.ServerRevisionID))
		return bus.Trigger(s.bus, EventUnexpectedRevisionID, s.client.ID, UnexpectedRevisionID{
			Expected: s.serverRevisionID,
			Received: msg.ServerRevisionID,
		})
	}

	var err error
	switch msg.Type {
	case protocol.MessageClientJoined:
		err = s.onClientJoined(msg)
	case protocol.MessageClientMoved:
		if msg.Client.ID != s.client.ID {
			s.clients[msg.Client.ID] = *msg.Client
		}
	case protocol.MessageClientLeft:
		if msg.ClientID != s.client.ID {
			delete(s.clients, msg.ClientID)
		}
	case protocol.MessageRemoteRevision:
		err = s.onRemoteRevision(msg)
	case protocol.MessageRevisionUndone:
		err = s.onHistoryChange(msg, msg.UndoneRevisionID, EventRevisionUndone, s.revisions.Undo)
	case protocol.MessageRevisionRedone:
		err = s.onHistoryChange(msg, msg.RedoneRevisionID, EventRevisionRedone, s.revisions.Redo)
	case protocol.MessageSnapshotCreated:
		err = s.onSnapshotCreated(msg)
	}
	if err != nil {
		return err
	}

	if err = s.acknowledge(msg); err != nil {
		return err
	}
	return bus.Trigger(s.bus, EventCollaborativeEventReceived, s.client.ID, CollaborativeEventReceived{Message: msg})
}

func (s *Session) isAlreadyProcessed(msg protocol.Message) bool {
	switch msg.Type {
	case protocol.MessageClientMoved:
		return msg.Client != nil && msg.Client.ID == s.client.ID
	case protocol.MessageRemoteRevision, protocol.MessageRevisionUndone, protocol.MessageRevisionRedone:
		return s.processedRevisions.Contains(msg.NextRevisionID)
	default:
		return false
	}
}

func (s *Session) onClientJoined(msg protocol.Message) error {
	if msg.Client.ID == s.client.ID {
		return nil
	}
	s.clients[msg.Client.ID] = *msg.Client
	if self, ok := s.clients[s.client.ID]; ok && self.Position != nil {
		return s.transport.SendMessage(protocol.NewClientMoved(self))
	}
	return nil
}

func (s *Session) onRemoteRevision(msg protocol.Message) error {
	if msg.ClientID == s.client.ID && !s.replaying {
		return nil
	}
	r := revision.New(msg.NextRevisionID, msg.ClientID, msg.Commands, nil)
	if err := s.revisions.Insert(r.ID, r, msg.ServerRevisionID); err != nil {
		return err
	}

	var pending []command.Command
	for _, m := range s.pendingMessages {
		if m.Type == protocol.MessageRemoteRevision {
			pending = append(pending, m.Commands...)
		}
	}
	return bus.Trigger(s.bus, EventRemoteRevisionReceived, s.client.ID, RemoteRevisionReceived{
		RevisionID: r.ID,
		ClientID:   r.ClientID,
		Commands:   s.registry.TransformAll(msg.Commands, pending),
	})
}

func (s *Session) onHistoryChange(msg protocol.Message, target, event string, change func(string, string, string) error) error {
	if err := change(target, msg.NextRevisionID, msg.ServerRevisionID); err != nil {
		return err
	}
	r, err := s.revisions.Get(target)
	if err != nil {
		return err
	}
	return bus.Trigger(s.bus, event, s.client.ID, HistoryChanged{RevisionID: target, Commands: r.Commands})
}

func (s *Session) onSnapshotCreated(msg protocol.Message) error {
	r := revision.New(msg.NextRevisionID, ServerClientID, nil, nil)
	if err := s.revisions.Insert(r.ID, r, msg.ServerRevisionID); err != nil {
		return err
	}
	s.dropPendingHistoryMessages()
	if s.revisions.HeadID() == r.ID {
		if err := s.revisions.Squash(r.ID); err != nil {
			return err
		}
	}
	return bus.Trigger(s.bus, EventSnapshot, s.client.ID, Snapshot{RevisionID: r.ID})
}

func (s *Session) dropPendingHistoryMessages() {
	before := len(s.pendingMessages)
	s.pendingMessages = slices.DeleteFunc(s.pendingMessages, func(m protocol.Message) bool {
		return m.Type == protocol.MessageRevisionUndone || m.Type == protocol.MessageRevisionRedone
	})
	if len(s.pendingMessages) != before {
		s.waitingUndoRedoAck = false
	}
}

// acknowledge moves the server revision forward. Any committed revision, not
// only the local one, releases the in-flight slot: a local message built on
// an older revision was rejected and is sent again.
func (s *Session) acknowledge(msg protocol.Message) error {
	if msg.Type == protocol.MessageRevisionUndone || msg.Type == protocol.MessageRevisionRedone {
		s.waitingUndoRedoAck = false
	}
	if !msg.Type.IsRevision() {
		return nil
	}
	s.waitingAck = false
	s.pendingMessages = slices.DeleteFunc(s.pendingMessages, func(m protocol.Message) bool {
		return m.NextRevisionID == msg.NextRevisionID
	})
	s.serverRevisionID = msg.NextRevisionID
	s.processedRevisions.Add(msg.NextRevisionID)
	return s.sendPendingMessage()
}

func (s *Session) sendUpdateMessage(msg protocol.Message) error {
	s.pendingMessages = append(s.pendingMessages, msg)
	if s.waitingAck {
		return nil
	}
	return s.sendPendingMessage()
}

func (s *Session) sendPendingMessage() error {
	if len(s.pendingMessages) == 0 {
		return nil
	}
	msg := s.pendingMessages[0]
	if msg.Type == protocol.MessageRemoteRevision {
		r, err := s.revisions.Get(msg.NextRevisionID)
		if err != nil {
			return err
		}
		if r.IsEmpty() {
			return s.dropPendingRevisions(r.ID)
		}
		msg.ClientID = r.ClientID
		msg.Commands = r.Commands
	}
	if s.replaying {
		return ErrReplayingInitialRevisions
	}

	msg.ServerRevisionID = s.serverRevisionID
	s.logger.Debug("Sending message",
		log.String("type", string(msg.Type)),
		log.String("server_revision_id", msg.ServerRevisionID),
		log.String("next_revision_id", msg.NextRevisionID))
	// A transport may deliver the acknowledgement before returning.
	s.waitingAck = true
	if err := s.transport.SendMessage(msg); err != nil {
		s.waitingAck = false
		return err
	}
	return nil
}

// dropPendingRevisions forgets the head revision, which became a no-op, and
// every local message queued after it.
func (s *Session) dropPendingRevisions(revisionID string) error {
	if err := s.revisions.Drop(revisionID); err != nil {
		return err
	}
	var ids []string
	for _, m := range s.pendingMessages {
		if m.Type == protocol.MessageRemoteRevision {
			ids = append(ids, m.NextRevisionID)
		}
	}
	s.pendingMessages = nil
	s.waitingAck = false
	s.waitingUndoRedoAck = false

	s.logger.Warn("Dropped pending revisions", log.String("revision_ids", strings.Join(ids, ",")))
	return bus.Trigger(s.bus, EventPendingRevisionsDropped, s.client.ID, PendingRevisionsDropped{RevisionIDs: ids})
}
