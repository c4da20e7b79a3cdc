package relay

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/protocol"
)

// CommittedMessage is the record exported for every committed state update.
type CommittedMessage struct {
	DocumentID  string           `json:"documentId"`
	Message     protocol.Message `json:"message"`
	CommittedAt time.Time        `json:"committedAt"`
}

type KafkaExporterOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultKafkaExporterOptions() KafkaExporterOptions {
	return KafkaExporterOptions{
		QueueSize:   1024,
		Workers:     4,
		MaxRetry:    3,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
	}
}

// KafkaExporter publishes committed messages on a Kafka topic keyed by
// document id. Export only enqueues: a full queue drops the message. Each
// document is bound to one worker so its messages keep their order.
type KafkaExporter struct {
	producer sarama.SyncProducer
	topic    string
	logger   log.Log

	mu     sync.RWMutex
	queues []chan CommittedMessage
	wg     sync.WaitGroup
	closed bool

	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	sent    uint64
	dropped uint64
}

var _ Exporter = (*KafkaExporter)(nil)

func NewKafkaExporter(producer sarama.SyncProducer, topic string, opt KafkaExporterOptions, logger log.Log) *KafkaExporter {
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 1
	}
	if logger == nil {
		logger = log.NewNop()
	}

	e := &KafkaExporter{
		producer:    producer,
		topic:       topic,
		logger:      logger.With(log.String("component", "kafka_exporter")),
		queues:      make([]chan CommittedMessage, opt.Workers),
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	for i := range e.queues {
		e.queues[i] = make(chan CommittedMessage, opt.QueueSize)
		e.wg.Add(1)
		go e.workerLoop(i)
	}
	return e
}

func (e *KafkaExporter) Export(documentID string, msg protocol.Message) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrServerClosed
	}
	queue := e.queues[xxhash.Sum64String(documentID)%uint64(len(e.queues))]
	select {
	case queue <- CommittedMessage{DocumentID: documentID, Message: msg, CommittedAt: time.Now().UTC()}:
		return nil
	default:
		atomic.AddUint64(&e.dropped, 1)
		return ErrExportQueueFull
	}
}

// Close stops accepting messages and waits for the queued ones to be sent.
func (e *KafkaExporter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, q := range e.queues {
		close(q)
	}
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}

// Stats returns the number of messages sent and dropped so far.
func (e *KafkaExporter) Stats() (sent, dropped uint64) {
	return atomic.LoadUint64(&e.sent), atomic.LoadUint64(&e.dropped)
}

func (e *KafkaExporter) workerLoop(workerID int) {
	defer e.wg.Done()
	for evt := range e.queues[workerID] {
		e.sendWithRetry(workerID, evt)
	}
}

func (e *KafkaExporter) sendWithRetry(workerID int, evt CommittedMessage) {
	for attempt := 0; attempt <= e.maxRetry; attempt++ {
		err := e.sendOnce(evt)
		if err == nil {
			atomic.AddUint64(&e.sent, 1)
			return
		}

		if attempt == e.maxRetry {
			atomic.AddUint64(&e.dropped, 1)
			e.logger.Error("Kafka send failed, message dropped",
				log.String("document_id", evt.DocumentID),
				log.String("revision_id", evt.Message.NextRevisionID),
				log.Int("worker", workerID),
				log.Error(err))
			return
		}

		backoff := e.baseBackoff * time.Duration(1<<attempt)
		if backoff > e.maxBackoff {
			backoff = e.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (e *KafkaExporter) sendOnce(evt CommittedMessage) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, _, err = e.producer.SendMessage(&sarama.ProducerMessage{
		Topic: e.topic,
		Key:   sarama.StringEncoder(evt.DocumentID),
		Value: sarama.ByteEncoder(b),
	})
	return err
}

// NewKafkaProducer connects a synchronous producer that waits for the local
// broker acknowledgement.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Partitioner = sarama.NewHashPartitioner
	return sarama.NewSyncProducer(brokers, config)
}
