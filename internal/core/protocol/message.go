// Package protocol defines the messages collaborating clients exchange
// through a Transport.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/zeusync/sheetsync/internal/core/command"
)

// Version of the message format.
const Version = 1

type MessageType string

const (
	MessageRemoteRevision  MessageType = "REMOTE_REVISION"
	MessageRevisionUndone  MessageType = "REVISION_UNDONE"
	MessageRevisionRedone  MessageType = "REVISION_REDONE"
	MessageSnapshot        MessageType = "SNAPSHOT"
	MessageSnapshotCreated MessageType = "SNAPSHOT_CREATED"
	MessageClientJoined    MessageType = "CLIENT_JOINED"
	MessageClientMoved     MessageType = "CLIENT_MOVED"
	MessageClientLeft      MessageType = "CLIENT_LEFT"
)

// IsRevision reports whether the type moves the server revision forward once
// committed.
func (t MessageType) IsRevision() bool {
	switch t {
	case MessageRemoteRevision, MessageRevisionUndone, MessageRevisionRedone, MessageSnapshotCreated:
		return true
	default:
		return false
	}
}

// IsStateUpdate reports whether a sender proposes a new revision with it.
func (t MessageType) IsStateUpdate() bool {
	switch t {
	case MessageRemoteRevision, MessageRevisionUndone, MessageRevisionRedone, MessageSnapshot:
		return true
	default:
		return false
	}
}

func (t MessageType) IsPresence() bool {
	switch t {
	case MessageClientJoined, MessageClientMoved, MessageClientLeft:
		return true
	default:
		return false
	}
}

type ClientPosition struct {
	SheetID string `json:"sheetId"`
	Col     int    `json:"col"`
	Row     int    `json:"row"`
}

type Client struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Position *ClientPosition `json:"position,omitempty"`
}

// Message is the single wire shape of every message type. Fields that do not
// apply to a type are left empty.
type Message struct {
	Type             MessageType     `json:"type"`
	Version          int             `json:"version,omitempty"`
	ServerRevisionID string          `json:"serverRevisionId,omitempty"`
	NextRevisionID   string          `json:"nextRevisionId,omitempty"`
	ClientID         string          `json:"clientId,omitempty"`
	Commands         command.List    `json:"commands,omitempty"`
	UndoneRevisionID string          `json:"undoneRevisionId,omitempty"`
	RedoneRevisionID string          `json:"redoneRevisionId,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
	Client           *Client         `json:"client,omitempty"`
}

func NewRemoteRevision(clientID, serverRevisionID, nextRevisionID string, commands []command.Command) Message {
	return Message{
		Type:             MessageRemoteRevision,
		Version:          Version,
		ServerRevisionID: serverRevisionID,
		NextRevisionID:   nextRevisionID,
		ClientID:         clientID,
		Commands:         commands,
	}
}

func NewRevisionUndone(serverRevisionID, nextRevisionID, undoneRevisionID string) Message {
	return Message{
		Type:             MessageRevisionUndone,
		Version:          Version,
		ServerRevisionID: serverRevisionID,
		NextRevisionID:   nextRevisionID,
		UndoneRevisionID: undoneRevisionID,
	}
}

func NewRevisionRedone(serverRevisionID, nextRevisionID, redoneRevisionID string) Message {
	return Message{
		Type:             MessageRevisionRedone,
		Version:          Version,
		ServerRevisionID: serverRevisionID,
		NextRevisionID:   nextRevisionID,
		RedoneRevisionID: redoneRevisionID,
	}
}

func NewSnapshot(serverRevisionID, nextRevisionID string, data json.RawMessage) Message {
	return Message{
		Type:             MessageSnapshot,
		Version:          Version,
		ServerRevisionID: serverRevisionID,
		NextRevisionID:   nextRevisionID,
		Data:             data,
	}
}

func NewSnapshotCreated(serverRevisionID, nextRevisionID string) Message {
	return Message{
		Type:             MessageSnapshotCreated,
		Version:          Version,
		ServerRevisionID: serverRevisionID,
		NextRevisionID:   nextRevisionID,
	}
}

func NewClientJoined(client Client) Message {
	return Message{Type: MessageClientJoined, Version: Version, ClientID: client.ID, Client: &client}
}

func NewClientMoved(client Client) Message {
	return Message{Type: MessageClientMoved, Version: Version, ClientID: client.ID, Client: &client}
}

func NewClientLeft(clientID string) Message {
	return Message{Type: MessageClientLeft, Version: Version, ClientID: clientID}
}

// Validate checks that the fields required by the message type are set.
func (m Message) Validate() error {
	var missing string
	switch m.Type {
	case MessageRemoteRevision:
		missing = firstEmpty("serverRevisionId", m.ServerRevisionID, "nextRevisionId", m.NextRevisionID, "clientId", m.ClientID)
	case MessageRevisionUndone:
		missing = firstEmpty("serverRevisionId", m.ServerRevisionID, "nextRevisionId", m.NextRevisionID, "undoneRevisionId", m.UndoneRevisionID)
	case MessageRevisionRedone:
		missing = firstEmpty("serverRevisionId", m.ServerRevisionID, "nextRevisionId", m.NextRevisionID, "redoneRevisionId", m.RedoneRevisionID)
	case MessageSnapshot:
		missing = firstEmpty("serverRevisionId", m.ServerRevisionID, "nextRevisionId", m.NextRevisionID)
		if missing == "" && len(m.Data) == 0 {
			missing = "data"
		}
	case MessageSnapshotCreated:
		missing = firstEmpty("serverRevisionId", m.ServerRevisionID, "nextRevisionId", m.NextRevisionID)
	case MessageClientJoined, MessageClientMoved:
		if m.Client == nil {
			missing = "client"
		} else {
			missing = firstEmpty("client.id", m.Client.ID)
		}
	case MessageClientLeft:
		missing = firstEmpty("clientId", m.ClientID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, m.Type)
	}
	if missing != "" {
		return fmt.Errorf("%w: %s without %s", ErrInvalidMessage, m.Type, missing)
	}
	return nil
}

func firstEmpty(pairs ...string) string {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return pairs[i]
		}
	}
	return ""
}

// Clone returns a copy sharing nothing mutable with m.
func (m Message) Clone() Message {
	out := m
	out.Commands = slices.Clone(m.Commands)
	out.Data = bytes.Clone(m.Data)
	if m.Client != nil {
		client := *m.Client
		if client.Position != nil {
			position := *client.Position
			client.Position = &position
		}
		out.Client = &client
	}
	return out
}

// Encode renders a message as JSON.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses and validates a JSON message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// StartRevisionID identifies the revision of a document that was never edited.
const StartRevisionID = "START_REVISION"
