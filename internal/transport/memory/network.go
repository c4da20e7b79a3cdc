// Package memory is an in-process Transport. Messages are committed to a
// sequencer when sent and delivered in commit order to every listener.
package memory

import (
	"slices"
	"sync"

	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/protocol"
	"github.com/zeusync/sheetsync/internal/core/sequencer"
)

var _ protocol.Transport = (*Network)(nil)

type listener struct {
	clientID string
	handler  func(protocol.Message)
}

// Network connects clients living in the same process. Delivery is not
// reentrant: a message sent from a handler is queued behind the message
// being delivered.
type Network struct {
	mu         sync.Mutex
	sequencer  *sequencer.Sequencer
	listeners  []listener
	queue      [][]byte
	delivering bool
	batching   bool
	batch      []protocol.Message
	logger     log.Log
}

func New(seq *sequencer.Sequencer, logger log.Log) *Network {
	if seq == nil {
		seq = sequencer.New()
	}
	if logger == nil {
		logger = log.Provide()
	}
	return &Network{sequencer: seq, logger: logger.With(log.String("transport", "memory"))}
}

func (n *Network) Sequencer() *sequencer.Sequencer {
	return n.sequencer
}

func (n *Network) OnNewMessage(clientID string, handler func(protocol.Message)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, listener{clientID: clientID, handler: handler})
}

func (n *Network) Leave(clientID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = slices.DeleteFunc(n.listeners, func(l listener) bool { return l.clientID == clientID })
}

// SendMessage commits msg. A rejected message is dropped: its sender resends
// it once it learns about the revision it missed.
func (n *Network) SendMessage(msg protocol.Message) error {
	n.mu.Lock()
	if n.batching {
		n.batch = append(n.batch, msg.Clone())
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	n.commit(msg)
	return nil
}

// Concurrent runs fn while holding back every message it sends, then commits
// them in send order. Messages built on the same revision race like
// concurrent edits do: the first one wins.
func (n *Network) Concurrent(fn func()) {
	n.mu.Lock()
	n.batching = true
	n.mu.Unlock()

	fn()

	n.mu.Lock()
	batch := n.batch
	n.batch, n.batching = nil, false
	n.mu.Unlock()

	for _, msg := range batch {
		n.commit(msg)
	}
}

func (n *Network) commit(msg protocol.Message) {
	out, err := n.sequencer.Commit(msg)
	if err != nil {
		n.logger.Debug("Message rejected",
			log.String("type", string(msg.Type)),
			log.String("next_revision_id", msg.NextRevisionID),
			log.Error(err))
		return
	}
	data, err := protocol.Encode(out)
	if err != nil {
		n.logger.Error("Failed to encode message", log.Error(err))
		return
	}

	n.mu.Lock()
	n.queue = append(n.queue, data)
	if n.delivering {
		n.mu.Unlock()
		return
	}
	n.delivering = true
	n.mu.Unlock()

	n.drain()
}

func (n *Network) drain() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.delivering = false
			n.mu.Unlock()
			return
		}
		data := n.queue[0]
		n.queue = n.queue[1:]
		listeners := slices.Clone(n.listeners)
		n.mu.Unlock()

		for _, l := range listeners {
			msg, err := protocol.Decode(data)
			if err != nil {
				n.logger.Error("Failed to decode message", log.String("client_id", l.clientID), log.Error(err))
				continue
			}
			l.handler(msg)
		}
	}
}
