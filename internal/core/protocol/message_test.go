package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/sheetsync/internal/core/command"
)

func TestEncodeDecode(t *testing.T) {
	msg := NewRemoteRevision("alice", "r0", "r1", []command.Command{
		command.UpdateCell{SheetID: "s1", Col: 1, Row: 2, Content: "x"},
	})

	data, err := Encode(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "REMOTE_REVISION", raw["type"])
	assert.Equal(t, "r0", raw["serverRevisionId"])
	assert.NotContains(t, raw, "undoneRevisionId")

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", `{`, ErrInvalidMessage},
		{"unknown type", `{"type":"PING"}`, ErrUnknownMessageType},
		{"revision without client", `{"type":"REMOTE_REVISION","serverRevisionId":"a","nextRevisionId":"b"}`, ErrInvalidMessage},
		{"undo without target", `{"type":"REVISION_UNDONE","serverRevisionId":"a","nextRevisionId":"b"}`, ErrInvalidMessage},
		{"snapshot without data", `{"type":"SNAPSHOT","serverRevisionId":"a","nextRevisionId":"b"}`, ErrInvalidMessage},
		{"join without client", `{"type":"CLIENT_JOINED","clientId":"a"}`, ErrInvalidMessage},
		{"unknown command", `{"type":"REMOTE_REVISION","serverRevisionId":"a","nextRevisionId":"b","clientId":"c","commands":[{"type":"NOPE"}]}`, ErrInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMessageType_Classes(t *testing.T) {
	assert.True(t, MessageSnapshotCreated.IsRevision())
	assert.False(t, MessageSnapshot.IsRevision())
	assert.True(t, MessageSnapshot.IsStateUpdate())
	assert.False(t, MessageSnapshotCreated.IsStateUpdate())
	assert.True(t, MessageClientLeft.IsPresence())
	assert.False(t, MessageRemoteRevision.IsPresence())
}

func TestClone(t *testing.T) {
	msg := NewClientMoved(Client{ID: "a", Name: "Alice", Position: &ClientPosition{SheetID: "s1", Col: 1, Row: 1}})
	msg.Data = json.RawMessage(`{"x":1}`)

	clone := msg.Clone()
	clone.Client.Position.Col = 9
	clone.Data[2] = 'y'

	assert.Equal(t, 1, msg.Client.Position.Col)
	assert.JSONEq(t, `{"x":1}`, string(msg.Data))
}
