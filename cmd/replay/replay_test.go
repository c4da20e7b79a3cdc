package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/sheetsync/internal/core/command"
	"github.com/zeusync/sheetsync/internal/core/document"
	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/protocol"
	"github.com/zeusync/sheetsync/internal/relay"
	"github.com/zeusync/sheetsync/internal/transport/memory"
)

// record edits a document on an in-process network and returns the
// committed log.
func record(t *testing.T) []protocol.Message {
	t.Helper()
	network := memory.New(nil, log.NewNop())
	doc, err := document.Open(document.Config{ClientID: "alice", Transport: network, Logger: log.NewNop()})
	require.NoError(t, err)

	for _, cmd := range []command.Command{
		command.CreateSheet{SheetID: "s1", Name: "Sheet1"},
		command.UpdateCell{SheetID: "s1", Col: 0, Row: 0, Content: "kept"},
		command.UpdateCell{SheetID: "s1", Col: 1, Row: 0, Content: "undone"},
	} {
		result, err := doc.Dispatch(cmd)
		require.NoError(t, err)
		require.Equal(t, command.Success, result)
	}
	_, err = doc.Undo()
	require.NoError(t, err)
	require.True(t, doc.Session().IsFullySynchronized())
	return network.Sequencer().Messages()
}

func jsonLines(t *testing.T, values ...any) string {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range values {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.String()
}

func TestReplay_Converges(t *testing.T) {
	messages := record(t)
	values := make([]any, 0, len(messages))
	for _, m := range messages {
		values = append(values, m)
	}

	read, err := ReadLog(strings.NewReader(jsonLines(t, values...)+"\n"), "")
	require.NoError(t, err)
	require.Len(t, read, len(messages))

	report, err := Replay(Source{Snapshot: relay.Snapshot{Messages: read}}, 3, log.NewNop())
	require.NoError(t, err)
	assert.True(t, report.Converged)
	assert.Equal(t, 3, report.Clients)
	assert.Equal(t, len(messages), report.Messages)
	assert.Equal(t, messages[len(messages)-1].NextRevisionID, report.RevisionID)
	assert.Equal(t, []string{"s1"}, report.Sheets)

	require.NotEmpty(t, report.Path)
	assert.Equal(t, protocol.StartRevisionID, report.Path[0].ID)
	var cancelled int
	for _, step := range report.Path {
		if step.Cancelled {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)

	out, err := yaml.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(out), "converged: true")
	assert.Contains(t, string(out), "kept")
	assert.NotContains(t, string(out), "undone")
}

func TestReadLog_ExportedRecords(t *testing.T) {
	messages := record(t)
	values := make([]any, 0, 2*len(messages))
	for _, m := range messages {
		values = append(values,
			relay.CommittedMessage{DocumentID: "doc", Message: m, CommittedAt: time.Now()},
			relay.CommittedMessage{DocumentID: "other", Message: m, CommittedAt: time.Now()})
	}

	read, err := ReadLog(strings.NewReader(jsonLines(t, values...)), "doc")
	require.NoError(t, err)
	assert.Equal(t, messages, read)

	report, err := Replay(Source{DocumentID: "doc", Snapshot: relay.Snapshot{Messages: read}}, 1, log.NewNop())
	require.NoError(t, err)
	assert.True(t, report.Converged)
	assert.Equal(t, "doc", report.DocumentID)
}

func TestReplay_FromSnapshot(t *testing.T) {
	network := memory.New(nil, log.NewNop())
	doc, err := document.Open(document.Config{ClientID: "alice", Transport: network, Logger: log.NewNop()})
	require.NoError(t, err)
	_, err = doc.Dispatch(command.CreateSheet{SheetID: "s1", Name: "Sheet1"})
	require.NoError(t, err)
	created, err := doc.Snapshot()
	require.NoError(t, err)
	require.True(t, created)
	_, err = doc.Dispatch(command.UpdateCell{SheetID: "s1", Col: 0, Row: 0, Content: "after"})
	require.NoError(t, err)

	stored := network.Sequencer().Snapshot()
	body, err := json.Marshal(relay.Snapshot{
		RevisionID: stored.RevisionID,
		Data:       stored.Data,
		Messages:   network.Sequencer().Messages(),
	})
	require.NoError(t, err)
	snapshot, err := ReadSnapshot(bytes.NewReader(body))
	require.NoError(t, err)

	report, err := Replay(Source{Snapshot: snapshot}, 2, log.NewNop())
	require.NoError(t, err)
	assert.True(t, report.Converged)
	assert.Equal(t, doc.Session().RevisionID(), report.RevisionID)
	assert.Equal(t, 1, report.Messages)
}

func TestReadLog_Errors(t *testing.T) {
	_, err := ReadLog(strings.NewReader("{\"type\":\"CLIENT_LEFT\",\"clientId\":\"a\"}\nnot json\n"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = ReadLog(strings.NewReader(`{"type":"REMOTE_REVISION"}`), "")
	assert.ErrorIs(t, err, protocol.ErrInvalidMessage)

	_, err = Replay(Source{}, 0, log.NewNop())
	assert.Error(t, err)
}
