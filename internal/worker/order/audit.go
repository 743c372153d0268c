// Package order consumes order lifecycle events.
package order

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/messaging"
	ordersvc "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/orderdesk/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewAuditHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewAuditHandler writes every lifecycle event to the structured log as an
// audit trail and counts it by type.
func NewAuditHandler(logger *zap.Logger) (worker.HandlerRegistration, error) {
	consumed, err := otel.Meter("github.com/Additional-Code/orderdesk/worker/order").Int64Counter(
		"orders.events.consumed",
		metric.WithDescription("Order lifecycle events consumed by the audit worker"),
	)
	if err != nil {
		return worker.HandlerRegistration{}, err
	}
	return worker.HandlerRegistration{
		Event:   worker.AnyEvent,
		Handler: audit(logger, consumed),
	}, nil
}

func audit(logger *zap.Logger, consumed metric.Int64Counter) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.audit", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.String("messaging.event_type", msg.Headers[messaging.HeaderEventType]),
		))
		defer span.End()

		var event ordersvc.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order event",
				zap.ByteString("key", msg.Key),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(attribute.Int64("order.id", event.OrderID))

		fields := []zap.Field{
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.Int64("order_id", event.OrderID),
			zap.Int64("user_id", event.UserID),
			zap.Time("occurred_at", event.OccurredAt),
		}
		if event.ItemID > 0 {
			fields = append(fields, zap.Int64("item_id", event.ItemID))
		}
		switch event.Type {
		case ordersvc.EventOrderCreated, ordersvc.EventLinesAppended:
			fields = append(fields, zap.Int("lines", event.Lines), zap.Int("skipped", event.Skipped))
		case ordersvc.EventLineUpdated:
			fields = append(fields, zap.Int("quantity", event.Quantity), zap.Int64("order_type_id", event.OrderTypeID))
		case ordersvc.EventOrderStatusChanged:
			fields = append(fields, zap.Int16("status", event.Status))
		case ordersvc.EventDeadlineSet:
			if event.Deadline != nil {
				fields = append(fields, zap.Time("deadline", *event.Deadline))
			}
		}

		consumed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", event.Type)))
		logger.Info("order event", fields...)
		return nil
	}
}
