package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/zeusync/sheetsync/internal/core/document"
	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/protocol"
	"github.com/zeusync/sheetsync/internal/core/sequencer"
	"github.com/zeusync/sheetsync/internal/relay"
	"github.com/zeusync/sheetsync/internal/transport/memory"
)

const maxLineSize = 16 * 1024 * 1024

// Step is one revision of the replayed execution path.
type Step struct {
	ID        string `yaml:"id"`
	ClientID  string `yaml:"clientId,omitempty"`
	Commands  int    `yaml:"commands"`
	Cancelled bool   `yaml:"cancelled,omitempty"`
}

// Report is printed once every client replayed the log.
type Report struct {
	DocumentID string         `yaml:"documentId,omitempty"`
	Messages   int            `yaml:"messages"`
	Clients    int            `yaml:"clients"`
	Converged  bool           `yaml:"converged"`
	RevisionID string         `yaml:"revisionId"`
	Sheets     []string       `yaml:"sheets"`
	Path       []Step         `yaml:"path"`
	State      map[string]any `yaml:"state,omitempty"`
}

// exportedLine is the record written by the Kafka exporter. A plain message
// has no "message" member.
type exportedLine struct {
	DocumentID string            `json:"documentId"`
	Message    *protocol.Message `json:"message"`
}

// ReadLog decodes a JSON lines message log. Lines exported for another
// document than documentID are skipped when documentID is set.
func ReadLog(r io.Reader, documentID string) ([]protocol.Message, error) {
	var messages []protocol.Message
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for line := 1; scanner.Scan(); line++ {
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var exported exportedLine
		if err := json.Unmarshal(data, &exported); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if exported.Message != nil {
			if documentID != "" && exported.DocumentID != documentID {
				continue
			}
			if err := exported.Message.Validate(); err != nil {
				return nil, errors.Wrapf(err, "line %d", line)
			}
			messages = append(messages, *exported.Message)
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read log")
	}
	return messages, nil
}

// Source is the state replayed: an optional snapshot and the messages
// committed after it.
type Source struct {
	DocumentID string
	relay.Snapshot
}

// ReadSnapshot decodes the body of GET /documents/:id/messages.
func ReadSnapshot(r io.Reader) (relay.Snapshot, error) {
	var snapshot relay.Snapshot
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return relay.Snapshot{}, errors.Wrap(err, "read snapshot")
	}
	return snapshot, nil
}

// Replay opens clients documents on one in-process network, each replaying
// the source, and compares their states.
func Replay(source Source, clients int, logger log.Log) (Report, error) {
	if clients < 1 {
		return Report{}, fmt.Errorf("at least one client is required, got %d", clients)
	}
	if source.RevisionID == "" {
		source.RevisionID = protocol.StartRevisionID
	}
	network := memory.New(sequencer.Restore(sequencer.Snapshot{
		RevisionID: source.RevisionID,
		Data:       source.Data,
	}, source.Messages), logger)

	docs := make([]*document.Document, 0, clients)
	for i := range clients {
		doc, err := document.Open(document.Config{
			ClientID:   fmt.Sprintf("replay-%d", i+1),
			Transport:  network,
			Data:       source.Data,
			RevisionID: source.RevisionID,
			Messages:   source.Messages,
			Logger:     logger,
		})
		if err != nil {
			return Report{}, errors.Wrapf(err, "client %d", i+1)
		}
		docs = append(docs, doc)
	}

	first := docs[0]
	state, err := first.Export()
	if err != nil {
		return Report{}, err
	}
	report := Report{
		DocumentID: source.DocumentID,
		Messages:   len(source.Messages),
		Clients:    clients,
		Converged:  true,
		RevisionID: first.Session().RevisionID(),
		Sheets:     first.Workbook().Sheets(),
	}
	for _, doc := range docs[1:] {
		other, err := doc.Export()
		if err != nil {
			return Report{}, err
		}
		if !bytes.Equal(state, other) || doc.Session().RevisionID() != report.RevisionID {
			report.Converged = false
			logger.Warn("Client diverged", log.String("client_id", doc.Session().ClientID()))
		}
	}

	for _, step := range first.Revisions().Execution().Collect() {
		report.Path = append(report.Path, Step{
			ID:        step.Operation.ID,
			ClientID:  step.Operation.Data.ClientID,
			Commands:  len(step.Operation.Data.Commands),
			Cancelled: step.IsCancelled,
		})
	}
	if err = json.Unmarshal(state, &report.State); err != nil {
		return Report{}, errors.Wrap(err, "decode state")
	}

	for _, doc := range docs {
		if err = doc.Close(); err != nil {
			return Report{}, err
		}
	}
	return report, nil
}
