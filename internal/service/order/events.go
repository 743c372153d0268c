package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/messaging"
)

// Lifecycle event types.
const (
	EventOrderCreated       = "order.created"
	EventLinesAppended      = "order.lines_appended"
	EventLineUpdated        = "order_line.updated"
	EventLineArchived       = "order_line.archived"
	EventDeadlineSet        = "order.deadline_set"
	EventOrderStatusChanged = "order.status_changed"
)

// Event is the payload published after a workflow succeeds.
type Event struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	OrderID     int64      `json:"order_id"`
	ItemID      int64      `json:"item_id,omitempty"`
	UserID      int64      `json:"user_id,omitempty"`
	Lines       int        `json:"lines,omitempty"`
	Skipped     int        `json:"skipped,omitempty"`
	Quantity    int        `json:"quantity,omitempty"`
	OrderTypeID int64      `json:"order_type_id,omitempty"`
	Status      int16      `json:"status,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

func (s *Service) emit(ctx context.Context, event Event) {
	if !s.publish || s.publisher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = s.now()

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order event", zap.String("event", event.Type), zap.Error(err))
		return
	}
	key := []byte(fmt.Sprintf("order-%d", event.OrderID))
	headers := map[string]string{messaging.HeaderEventType: event.Type}
	if err := s.publisher.Publish(ctx, key, payload, headers); err != nil {
		s.logger.Error("publish order event",
			zap.String("event", event.Type),
			zap.Int64("order_id", event.OrderID),
			zap.Error(err),
		)
	}
}
