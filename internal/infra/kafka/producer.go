package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/config"
)

const clientID = "farmer-onboarding"

// Producer sends registration events without blocking the turn that raised
// them. Delivery failures are logged and counted, never returned to callers.
type Producer struct {
	async       sarama.AsyncProducer
	logger      *zap.Logger
	topicPrefix string
	failures    atomic.Uint64
	drained     chan struct{}
}

// SaramaConfig is the producer configuration: keyed by account id so all
// events for one farmer land on one partition.
func SaramaConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.Version = sarama.V3_5_0_0
	c.ClientID = clientID

	c.Producer.RequiredAcks = sarama.WaitForLocal
	c.Producer.Compression = sarama.CompressionSnappy
	c.Producer.Partitioner = sarama.NewHashPartitioner
	c.Producer.Flush.Frequency = 100 * time.Millisecond
	c.Producer.Retry.Max = 3
	c.Producer.Return.Successes = false
	c.Producer.Return.Errors = true

	c.Metadata.Retry.Max = 3
	c.Metadata.Retry.Backoff = 250 * time.Millisecond
	return c
}

// NewProducer connects to the brokers.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	async, err := sarama.NewAsyncProducer(cfg.Brokers, SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(async, cfg, logger), nil
}

func newProducer(async sarama.AsyncProducer, cfg config.KafkaSettings, logger *zap.Logger) *Producer {
	p := &Producer{
		async:       async,
		logger:      logger,
		topicPrefix: cfg.TopicPrefix,
		drained:     make(chan struct{}),
	}
	go p.drainErrors()
	return p
}

// drainErrors runs until the sarama producer closes its error channel.
func (p *Producer) drainErrors() {
	defer close(p.drained)
	for perr := range p.async.Errors() {
		if perr == nil {
			continue
		}
		p.failures.Add(1)
		topic := ""
		if perr.Msg != nil {
			topic = perr.Msg.Topic
		}
		p.logger.Error("registration event not delivered", zap.String("topic", topic), zap.Error(perr.Err))
	}
}

// Send queues msg, giving up when ctx ends first.
func (p *Producer) Send(ctx context.Context, msg *sarama.ProducerMessage) error {
	select {
	case p.async.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failures counts events the brokers refused after retries.
func (p *Producer) Failures() uint64 {
	return p.failures.Load()
}

// Close flushes queued events and waits for the error drain to finish.
func (p *Producer) Close() error {
	err := p.async.Close()
	<-p.drained
	if err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName prefixes an event type with the configured topic prefix.
func (p *Producer) TopicName(eventType string) string {
	if p.topicPrefix == "" {
		return eventType
	}
	prefix := p.topicPrefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}
	return prefix + eventType
}
