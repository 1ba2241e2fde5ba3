package sink

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/0x5487/lob"
	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures KafkaPublishLog.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Async        bool
	WriteTimeout time.Duration // per Publish call; zero means 5s
}

// KafkaPublishLog publishes BookLogs as JSON, keyed by stock locate so the
// logs of one book stay ordered within a partition.
type KafkaPublishLog struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	sent   uint64
	failed uint64
	err    error
}

func NewKafkaPublishLog(cfg KafkaConfig, logger *slog.Logger) *KafkaPublishLog {
	return newKafkaPublishLog(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        cfg.Async,
		BatchTimeout: 10 * time.Millisecond,
	}, cfg.WriteTimeout, logger)
}

func newKafkaPublishLog(w messageWriter, timeout time.Duration, logger *slog.Logger) *KafkaPublishLog {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublishLog{writer: w, timeout: timeout, logger: logger}
}

// Publish encodes logs before returning; the books reuse them afterwards.
// Write failures are logged and counted, never returned to the book.
func (p *KafkaPublishLog) Publish(logs ...*lob.BookLog) {
	msgs := make([]kafka.Message, 0, len(logs))
	for _, log := range logs {
		val, err := json.Marshal(log)
		if err != nil {
			p.record(0, 1, err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatUint(uint64(log.Locate), 10)),
			Value: val,
		})
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish book logs", slog.Int("count", len(msgs)), slog.Any("err", err))
		p.record(0, uint64(len(msgs)), err)
		return
	}
	p.record(uint64(len(msgs)), 0, nil)
}

func (p *KafkaPublishLog) record(sent, failed uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent += sent
	p.failed += failed
	if err != nil && p.err == nil {
		p.err = err
	}
}

// Stats returns messages written and messages lost.
func (p *KafkaPublishLog) Stats() (sent, failed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.failed
}

// Err returns the first write error.
func (p *KafkaPublishLog) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *KafkaPublishLog) Close() error {
	return p.writer.Close()
}
