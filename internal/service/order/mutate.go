package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/database"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

// LineUpdate sets a line's quantity and its order's type.
type LineUpdate struct {
	UserID      int64
	ItemID      int64
	OrderID     int64
	Quantity    int
	OrderTypeID int64
}

// UpdateLine writes the line quantity and the parent order type as one edit.
// Write conflicts retry the whole edit up to the configured attempt bound;
// any other failure is returned at once.
func (s *Service) UpdateLine(ctx context.Context, in LineUpdate) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdateLine", trace.WithAttributes(
		attribute.Int64("order.id", in.OrderID),
		attribute.Int64("order_line.id", in.ItemID),
	))
	defer span.End()

	if in.Quantity <= 0 {
		return errorbank.BadRequest("quantity must be a positive integer",
			errorbank.WithCause(ErrLineValidation),
			errorbank.WithDetail("quantity", in.Quantity),
		)
	}
	if in.OrderTypeID <= 0 {
		return errorbank.BadRequest("order type is required", errorbank.WithCause(ErrLineValidation))
	}
	if err := s.checkOrderType(ctx, in.OrderTypeID); err != nil {
		return err
	}

	edit := repo.LineEdit{
		ItemID:      in.ItemID,
		OrderID:     in.OrderID,
		Quantity:    in.Quantity,
		OrderTypeID: in.OrderTypeID,
		UserID:      in.UserID,
	}

	attempts := s.cfg.MaxEditAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		s.metrics.editAttempts.Add(ctx, 1)
		err = s.store.ApplyLineEdit(ctx, edit)
		if err == nil {
			span.SetAttributes(attribute.Int("order_line.edit_attempts", attempt))
			s.emit(ctx, Event{
				Type:        EventLineUpdated,
				OrderID:     in.OrderID,
				ItemID:      in.ItemID,
				UserID:      in.UserID,
				Quantity:    in.Quantity,
				OrderTypeID: in.OrderTypeID,
			})
			return nil
		}
		if errors.Is(err, repo.ErrLineNotFound) {
			span.SetStatus(codes.Error, "not found")
			return errorbank.NotFound("order line not found",
				errorbank.WithCause(err),
				errorbank.WithDetail("item_id", in.ItemID),
				errorbank.WithDetail("order_id", in.OrderID),
			)
		}
		if !errors.Is(err, database.ErrWriteConflict) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository error")
			return errorbank.Internal("failed to update order line", errorbank.WithCause(err))
		}

		s.metrics.editConflicts.Add(ctx, 1)
		s.logger.Warn("order line edit conflicted",
			zap.Int64("item_id", in.ItemID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		if attempt == attempts {
			break
		}
		if serr := s.sleep(ctx, s.cfg.EditBackoff*time.Duration(attempt)); serr != nil {
			err = serr
			break
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "retries exhausted")
	return errorbank.Internal("order line update was not applied", errorbank.WithCause(err),
		errorbank.WithDetail("attempts", attempts),
	)
}

// ArchiveLine soft-deletes one active line of orderID. The header is not
// touched. A missing or already archived line is reported as not found.
func (s *Service) ArchiveLine(ctx context.Context, userID, itemID, orderID int64) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.ArchiveLine", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("order_line.id", itemID),
	))
	defer span.End()

	notFound := errorbank.NotFound("order line not found or already archived",
		errorbank.WithCause(ErrNotFoundOrAlreadyArchived),
		errorbank.WithDetail("item_id", itemID),
		errorbank.WithDetail("order_id", orderID),
	)

	if _, err := s.store.FindActiveLine(ctx, itemID, orderID); err != nil {
		if errors.Is(err, repo.ErrLineNotFound) {
			return notFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to load order line", errorbank.WithCause(err))
	}

	flipped, err := s.store.ArchiveLine(ctx, itemID, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to archive order line", errorbank.WithCause(err))
	}
	if !flipped {
		return notFound
	}

	s.emit(ctx, Event{Type: EventLineArchived, OrderID: orderID, ItemID: itemID, UserID: userID})
	return nil
}

// SetDeadline sets the order deadline from a YYYY-MM-DD date.
func (s *Service) SetDeadline(ctx context.Context, userID, orderID int64, date string) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.SetDeadline", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	deadline, err := time.Parse(dateLayout, strings.TrimSpace(date))
	if err != nil {
		return errorbank.BadRequest("deadline must be a date (YYYY-MM-DD)", errorbank.WithDetail("deadline", date))
	}

	ok, err := s.store.SetDeadline(ctx, orderID, deadline, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to set deadline", errorbank.WithCause(err))
	}
	if !ok {
		return errorbank.NotFound("order not found", errorbank.WithDetail("order_id", orderID))
	}

	s.emit(ctx, Event{Type: EventDeadlineSet, OrderID: orderID, UserID: userID, Deadline: &deadline})
	return nil
}

// SetStatus moves the order to a known status.
func (s *Service) SetStatus(ctx context.Context, userID, orderID int64, status int16) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.SetStatus", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int("order.status", int(status)),
	))
	defer span.End()

	if status <= 0 {
		return errorbank.BadRequest("status is required")
	}
	known, err := s.catalog.StatusExists(ctx, status)
	if err != nil {
		span.RecordError(err)
		return errorbank.Internal("failed to load order statuses", errorbank.WithCause(err))
	}
	if !known {
		return errorbank.BadRequest("unknown order status", errorbank.WithDetail("status", status))
	}

	ok, err := s.store.SetStatus(ctx, orderID, status, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to set status", errorbank.WithCause(err))
	}
	if !ok {
		return errorbank.NotFound("order not found", errorbank.WithDetail("order_id", orderID))
	}

	s.emit(ctx, Event{Type: EventOrderStatusChanged, OrderID: orderID, UserID: userID, Status: status})
	return nil
}
