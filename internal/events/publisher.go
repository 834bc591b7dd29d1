package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/funnycal/fulfillment/internal/order"
)

const (
	TypeOrderPlaced   = "order.placed"
	TypeStatusChanged = "order.status_changed"
	TypeOrderArchived = "order.archived"
)

// OrderEvent is the wire form published to the order-events topic.
type OrderEvent struct {
	EventID string       `json:"event_id"`
	Type    string       `json:"type"`
	OrderID string       `json:"order_id"`
	Status  order.Status `json:"status,omitempty"`
	At      time.Time    `json:"at"`
}

// Publisher emits order lifecycle events to a side channel. It is strictly
// best-effort: a nil Publisher or a failing producer never affects the
// operation being recorded, the failure is only logged.
type Publisher struct {
	producer Producer
	logger   *zap.Logger
}

func NewPublisher(producer Producer, logger *zap.Logger) *Publisher {
	return &Publisher{producer: producer, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, eventType, orderID string, status order.Status) {
	if p == nil || p.producer == nil {
		return
	}

	evt := OrderEvent{
		EventID: uuid.NewString(),
		Type:    eventType,
		OrderID: orderID,
		Status:  status,
		At:      time.Now().UTC(),
	}
	value, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("marshal order event", zap.Error(err))
		return
	}

	if err := p.producer.SendMessage(ctx, []byte(orderID), value); err != nil {
		p.logger.Warn("publish order event failed",
			zap.String("type", eventType), zap.String("order_id", orderID), zap.Error(err))
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
