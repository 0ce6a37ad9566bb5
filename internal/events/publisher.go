// Package events publishes committed stock changes to Kafka for downstream
// consumers (accounting, dashboards). Publishing happens in the background
// after the database commit and never fails or delays the stock operation.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"ricemill-inventory/internal/config"
	"ricemill-inventory/internal/core"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const EventTypeStockChanged = "inventory.stock_changed"

const publishTimeout = 5 * time.Second

// StockChangedEvent is one message per product touched by an operation. The
// message key is the product id, so a consumer sees a product's changes in order.
type StockChangedEvent struct {
	EventID   string                      `json:"event_id"`
	EventType string                      `json:"event_type"`
	Operation string                      `json:"operation"`
	ProductID int                         `json:"product_id"`
	Entries   []core.InventoryTransaction `json:"entries"`
	Timestamp time.Time                   `json:"timestamp"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer  messageWriter
	log     *zap.Logger
	now     func() time.Time
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewPublisher returns nil when no brokers are configured; a nil *Publisher
// drops every change.
func NewPublisher(cfg config.KafkaConfig, log *zap.Logger) *Publisher {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: publishTimeout,
	}
	return newPublisher(w, log)
}

func newPublisher(w messageWriter, log *zap.Logger) *Publisher {
	return &Publisher{writer: w, log: log, now: time.Now, timeout: publishTimeout}
}

// StockChanged encodes the change and hands it to a background write. The
// write is detached from ctx cancellation and bounded by its own timeout.
func (p *Publisher) StockChanged(ctx context.Context, change core.StockChange) {
	if p == nil {
		return
	}
	byProduct := make(map[int][]core.InventoryTransaction, len(change.ProductIDs))
	for _, e := range change.Entries {
		byProduct[e.ProductID] = append(byProduct[e.ProductID], e)
	}

	msgs := make([]kafka.Message, 0, len(change.ProductIDs))
	for _, id := range change.ProductIDs {
		ev := StockChangedEvent{
			EventID:   uuid.NewString(),
			EventType: EventTypeStockChanged,
			Operation: change.Operation,
			ProductID: id,
			Entries:   byProduct[id],
			Timestamp: p.now().UTC(),
		}
		value, err := json.Marshal(ev)
		if err != nil {
			p.log.Error("failed to encode stock event", zap.Int("product_id", id), zap.Error(err))
			continue
		}
		msgs = append(msgs, kafka.Message{Key: []byte(strconv.Itoa(id)), Value: value})
	}
	if len(msgs) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			p.log.Error("failed to publish stock events",
				zap.String("operation", change.Operation),
				zap.Ints("product_ids", change.ProductIDs),
				zap.Error(err))
		}
	}()
}

// Close waits for in-flight writes, then closes the writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.wg.Wait()
	return p.writer.Close()
}
