package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer publishes to any topic through one async writer. Publish never
// blocks the caller: when the buffer is full the message is dropped and
// logged, since order events are best-effort notifications.
type Producer struct {
	w     *kafka.Writer
	inbox chan kafka.Message
	done  chan struct{}
	log   *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
}

func NewProducer(brokers []string, buf int, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Producer{
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
		log:   log,
	}
	p.w = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		Async:                  true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				p.log.Warn("kafka_write_failed", zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
	return p
}

func (p *Producer) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	go func() {
		defer close(p.done)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				p.log.Warn("kafka_enqueue_failed", zap.String("topic", m.Topic), zap.Error(err))
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn("kafka_close_failed", zap.Error(err))
		}
	}()
}

// Publish reports whether the message was queued.
func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	m := kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now(), Headers: headers}
	select {
	case p.inbox <- m:
		return true
	default:
		p.log.Warn("kafka_buffer_full", zap.String("topic", topic))
		return false
	}
}

// Close stops accepting messages, flushes the buffer and waits for the
// writer to close. It is safe to call more than once.
func (p *Producer) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.done
	}
}
