package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/sheetsync/internal/core/command"
	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/protocol"
)

func revision(client, server, next string) protocol.Message {
	return protocol.NewRemoteRevision(client, server, next, []command.Command{command.DeleteSheet{SheetID: "s1"}})
}

func TestNetwork_BroadcastsToEveryone(t *testing.T) {
	n := New(nil, log.NewNop())
	var alice, bob []string
	n.OnNewMessage("alice", func(m protocol.Message) { alice = append(alice, m.NextRevisionID) })
	n.OnNewMessage("bob", func(m protocol.Message) { bob = append(bob, m.NextRevisionID) })

	require.NoError(t, n.SendMessage(revision("alice", protocol.StartRevisionID, "r1")))
	n.Leave("bob")
	require.NoError(t, n.SendMessage(revision("alice", "r1", "r2")))

	assert.Equal(t, []string{"r1", "r2"}, alice)
	assert.Equal(t, []string{"r1"}, bob)
}

func TestNetwork_DropsRejectedMessages(t *testing.T) {
	n := New(nil, log.NewNop())
	var received []string
	n.OnNewMessage("alice", func(m protocol.Message) { received = append(received, m.NextRevisionID) })

	n.Concurrent(func() {
		require.NoError(t, n.SendMessage(revision("alice", protocol.StartRevisionID, "a1")))
		require.NoError(t, n.SendMessage(revision("bob", protocol.StartRevisionID, "b1")))
		assert.Empty(t, received)
	})

	assert.Equal(t, []string{"a1"}, received)
	assert.Equal(t, "a1", n.Sequencer().Head())
}

func TestNetwork_SendFromHandlerIsQueued(t *testing.T) {
	n := New(nil, log.NewNop())
	var order []string
	n.OnNewMessage("alice", func(m protocol.Message) {
		order = append(order, "alice:"+m.NextRevisionID)
		if m.NextRevisionID == "r1" {
			require.NoError(t, n.SendMessage(revision("alice", "r1", "r2")))
		}
	})
	n.OnNewMessage("bob", func(m protocol.Message) { order = append(order, "bob:"+m.NextRevisionID) })

	require.NoError(t, n.SendMessage(revision("alice", protocol.StartRevisionID, "r1")))

	assert.Equal(t, []string{"alice:r1", "bob:r1", "alice:r2", "bob:r2"}, order)
}

func TestNetwork_DeliversCopies(t *testing.T) {
	n := New(nil, log.NewNop())
	n.OnNewMessage("alice", func(m protocol.Message) { m.Commands[0] = command.DeleteSheet{SheetID: "changed"} })
	var got protocol.Message
	n.OnNewMessage("bob", func(m protocol.Message) { got = m })

	require.NoError(t, n.SendMessage(revision("alice", protocol.StartRevisionID, "r1")))
	assert.Equal(t, command.List{command.DeleteSheet{SheetID: "s1"}}, got.Commands)
}
