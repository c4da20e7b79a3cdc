package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/zeusync/sheetsync/internal/core/protocol"
	"github.com/zeusync/sheetsync/internal/core/sequencer"
)

const redisPrefix = "sheetsync:document:"

func documentChannel(documentID string) string {
	return redisPrefix + documentID
}

func documentKey(documentID, field string) string {
	return fmt.Sprintf("%s{%s}:%s", redisPrefix, documentID, field)
}

// commitScript moves the head of a document from ARGV[1] to ARGV[2] and
// appends ARGV[3] to its log, or replaces its snapshot with it when ARGV[4]
// is set. ARGV[6] is published on ARGV[5] in the same step.
var commitScript = redis.NewScript(`
local head = redis.call('GET', KEYS[1])
if not head then head = ARGV[7] end
if head ~= ARGV[1] then
	return redis.error_reply('STALE ' .. head)
end
redis.call('SET', KEYS[1], ARGV[2])
if ARGV[4] == '1' then
	redis.call('SET', KEYS[3], ARGV[3])
	redis.call('DEL', KEYS[2])
else
	redis.call('RPUSH', KEYS[2], ARGV[3])
end
if ARGV[5] ~= '' then
	redis.call('PUBLISH', ARGV[5], ARGV[6])
end
return 1
`)

// RedisStore keeps the head, log and snapshot of every document in Redis so
// that several relay nodes can serve the same document.
type RedisStore struct {
	rdb     redis.UniversalClient
	publish bool
}

var (
	_ Store           = (*RedisStore)(nil)
	_ CommitPublisher = (*RedisStore)(nil)
)

// NewRedisStore creates a store. With publish set, committed messages are
// published on the document channel of a RedisBroker by the commit itself.
func NewRedisStore(rdb redis.UniversalClient, publish bool) *RedisStore {
	return &RedisStore{rdb: rdb, publish: publish}
}

func (s *RedisStore) PublishesCommits() bool {
	return s.publish
}

func (s *RedisStore) Commit(ctx context.Context, documentID string, msg protocol.Message) (protocol.Message, error) {
	if err := msg.Validate(); err != nil {
		return protocol.Message{}, err
	}
	if msg.Type.IsPresence() {
		return msg, nil
	}
	if !msg.Type.IsStateUpdate() {
		return protocol.Message{}, fmt.Errorf("%w: %s is emitted by the server only", protocol.ErrInvalidMessage, msg.Type)
	}

	committed := msg
	isSnapshot := "0"
	var entry []byte
	var err error
	if msg.Type == protocol.MessageSnapshot {
		committed = protocol.NewSnapshotCreated(msg.ServerRevisionID, msg.NextRevisionID)
		isSnapshot = "1"
		entry, err = json.Marshal(sequencer.Snapshot{RevisionID: msg.NextRevisionID, Data: msg.Data})
	} else {
		entry, err = protocol.Encode(msg)
	}
	if err != nil {
		return protocol.Message{}, errors.Wrap(err, "failed to marshal message")
	}

	channel, payload := "", []byte(nil)
	if s.publish {
		channel = documentChannel(documentID)
		if payload, err = protocol.Encode(committed); err != nil {
			return protocol.Message{}, errors.Wrap(err, "failed to marshal message")
		}
	}

	keys := []string{
		documentKey(documentID, "head"),
		documentKey(documentID, "log"),
		documentKey(documentID, "snapshot"),
	}
	err = commitScript.Run(ctx, s.rdb, keys,
		msg.ServerRevisionID, msg.NextRevisionID, entry, isSnapshot, channel, payload, protocol.StartRevisionID,
	).Err()
	if err != nil {
		if head, ok := strings.CutPrefix(err.Error(), "STALE "); ok {
			return protocol.Message{}, fmt.Errorf("%w: got %s, head is %s", protocol.ErrUnexpectedRevisionID, msg.ServerRevisionID, head)
		}
		return protocol.Message{}, errors.Wrap(err, "failed to commit")
	}
	return committed, nil
}

func (s *RedisStore) Load(ctx context.Context, documentID string) (sequencer.Snapshot, []protocol.Message, error) {
	var snapshotCmd *redis.StringCmd
	var logCmd *redis.StringSliceCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		snapshotCmd = pipe.Get(ctx, documentKey(documentID, "snapshot"))
		logCmd = pipe.LRange(ctx, documentKey(documentID, "log"), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return sequencer.Snapshot{}, nil, errors.Wrap(err, "failed to load document")
	}

	snapshot := sequencer.Snapshot{RevisionID: protocol.StartRevisionID}
	if data, err := snapshotCmd.Bytes(); err == nil {
		if err = json.Unmarshal(data, &snapshot); err != nil {
			return sequencer.Snapshot{}, nil, errors.Wrap(err, "corrupt snapshot")
		}
	} else if !errors.Is(err, redis.Nil) {
		return sequencer.Snapshot{}, nil, errors.Wrap(err, "failed to load snapshot")
	}

	entries := logCmd.Val()
	messages := make([]protocol.Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := protocol.Decode([]byte(entry))
		if err != nil {
			return sequencer.Snapshot{}, nil, errors.Wrap(err, "corrupt log")
		}
		messages = append(messages, msg)
	}
	return snapshot, messages, nil
}

// RedisBroker relays the messages of a document between nodes with Redis
// pub/sub.
type RedisBroker struct {
	rdb redis.UniversalClient
}

var _ Broker = (*RedisBroker)(nil)

func NewRedisBroker(rdb redis.UniversalClient) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func (b *RedisBroker) Publish(ctx context.Context, documentID string, msg protocol.Message) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	return b.rdb.Publish(ctx, documentChannel(documentID), payload).Err()
}

// Subscribe returns once Redis confirmed the subscription. Messages are
// handled in publication order on a dedicated goroutine.
func (b *RedisBroker) Subscribe(ctx context.Context, documentID string, handler func(protocol.Message)) (func(), error) {
	pubsub := b.rdb.Subscribe(context.WithoutCancel(ctx), documentChannel(documentID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrap(err, "failed to subscribe")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := range pubsub.Channel() {
			msg, err := protocol.Decode([]byte(m.Payload))
			if err != nil {
				continue
			}
			handler(msg)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = pubsub.Close()
			<-done
		})
	}, nil
}

// RedisPresence keeps the clients of each document in a hash.
type RedisPresence struct {
	rdb redis.UniversalClient
}

var _ Presence = (*RedisPresence)(nil)

func NewRedisPresence(rdb redis.UniversalClient) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

func (p *RedisPresence) Set(ctx context.Context, documentID string, client protocol.Client) error {
	data, err := json.Marshal(client)
	if err != nil {
		return err
	}
	return p.rdb.HSet(ctx, documentKey(documentID, "clients"), client.ID, data).Err()
}

func (p *RedisPresence) Remove(ctx context.Context, documentID, clientID string) error {
	return p.rdb.HDel(ctx, documentKey(documentID, "clients"), clientID).Err()
}

func (p *RedisPresence) List(ctx context.Context, documentID string) ([]protocol.Client, error) {
	values, err := p.rdb.HGetAll(ctx, documentKey(documentID, "clients")).Result()
	if err != nil {
		return nil, err
	}
	out := make([]protocol.Client, 0, len(values))
	for _, v := range values {
		var client protocol.Client
		if err = json.Unmarshal([]byte(v), &client); err != nil {
			return nil, errors.Wrap(err, "corrupt presence entry")
		}
		out = append(out, client)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
