package trace

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const publishTimeout = 5 * time.Second

// Publisher mirrors spans to a Kafka topic. Publishing is best effort
// and asynchronous: a slow or unreachable broker drops spans rather than
// blocking the agent loop.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger

	queue chan Span
	once  sync.Once
	done  chan struct{}
}

// NewPublisher creates a Publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		logger: logger,
		queue:  make(chan Span, 256),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

// Publish enqueues a span. When the queue is full the span is dropped.
func (p *Publisher) Publish(span Span) {
	select {
	case p.queue <- span:
	default:
		p.logger.Warn("trace publish queue full, dropping span", "span", span.ID)
	}
}

// Close drains the queue and releases the writer.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.queue)
		<-p.done
		p.writer.Close()
	})
}

func (p *Publisher) loop() {
	defer close(p.done)
	for span := range p.queue {
		value, err := json.Marshal(span)
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(span.SessionID),
			Value: value,
		})
		cancel()
		if err != nil {
			p.logger.Warn("trace publish failed", "topic", p.writer.Topic, "error", err)
		}
	}
}
