package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

// Skip reasons reported per batch line.
const (
	SkipInvalidProduct  = "invalid_product_id"
	SkipInvalidQuantity = "invalid_quantity"
	SkipInvalidPrice    = "invalid_unit_price"
	SkipProductMissing  = "product_not_found"
)

// LineBatch holds parallel, index-aligned line inputs as submitted.
type LineBatch struct {
	ProductIDs []string
	Quantities []string
	PricesUSD  []string
}

// CreateInput is the payload of the creation workflow.
type CreateInput struct {
	UserID      int64
	OrderTypeID string
	Lines       LineBatch
}

// AppendInput adds lines to an existing order.
type AppendInput struct {
	UserID  int64
	OrderID int64
	Lines   LineBatch
}

type parsedLine struct {
	productID int64
	quantity  int
	price     decimal.Decimal
}

// normalize splits single comma-separated values into lists.
func (b LineBatch) normalize() LineBatch {
	return LineBatch{
		ProductIDs: splitSingle(b.ProductIDs),
		Quantities: splitSingle(b.Quantities),
		PricesUSD:  splitSingle(b.PricesUSD),
	}
}

func (b LineBatch) aligned() bool {
	return len(b.ProductIDs) == len(b.Quantities) && len(b.ProductIDs) == len(b.PricesUSD)
}

func splitSingle(values []string) []string {
	if len(values) != 1 || !strings.Contains(values[0], ",") {
		return values
	}
	parts := strings.Split(values[0], ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseLine(b LineBatch, i int) (parsedLine, string) {
	productID, err := strconv.ParseInt(strings.TrimSpace(b.ProductIDs[i]), 10, 64)
	if err != nil || productID <= 0 {
		return parsedLine{}, SkipInvalidProduct
	}
	quantity, err := strconv.Atoi(strings.TrimSpace(b.Quantities[i]))
	if err != nil || quantity <= 0 {
		return parsedLine{}, SkipInvalidQuantity
	}
	price, err := decimal.NewFromString(strings.TrimSpace(b.PricesUSD[i]))
	if err != nil || price.IsNegative() {
		return parsedLine{}, SkipInvalidPrice
	}
	return parsedLine{productID: productID, quantity: quantity, price: price.Round(2)}, ""
}

func malformed(b LineBatch, opts ...errorbank.Option) *errorbank.AppError {
	opts = append(opts,
		errorbank.WithCause(ErrMalformedBatch),
		errorbank.WithDetail("product_ids", len(b.ProductIDs)),
		errorbank.WithDetail("quantities", len(b.Quantities)),
		errorbank.WithDetail("prices_usd", len(b.PricesUSD)),
	)
	return errorbank.BadRequest("product, quantity and price lists must have the same length", opts...)
}

// checkOrderType rejects an order type id missing from the catalog.
func (s *Service) checkOrderType(ctx context.Context, orderTypeID int64) error {
	types, err := s.catalog.OrderTypes(ctx)
	if err != nil {
		return errorbank.Internal("failed to load order types", errorbank.WithCause(err))
	}
	for _, t := range types {
		if t.ID == orderTypeID {
			return nil
		}
	}
	return errorbank.BadRequest("unknown order type", errorbank.WithDetail("order_type_id", orderTypeID))
}

// Create resolves the user's branch, writes the order header and then writes
// each line best-effort. Lines with bad input or an unavailable product are
// skipped. Once the header exists the returned result carries its id, even
// when an error is also returned.
func (s *Service) Create(ctx context.Context, in CreateInput) (dto.BatchResult, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(attribute.Int64("user.id", in.UserID)))
	defer span.End()

	var result dto.BatchResult

	orderTypeID, err := strconv.ParseInt(strings.TrimSpace(in.OrderTypeID), 10, 64)
	if err != nil || orderTypeID <= 0 {
		return result, errorbank.BadRequest("order type is required", errorbank.WithDetail("order_type_id", in.OrderTypeID))
	}
	lines := in.Lines.normalize()
	if len(lines.ProductIDs) == 0 {
		return result, errorbank.BadRequest("at least one line is required", errorbank.WithCause(ErrMalformedBatch))
	}
	if err := s.checkOrderType(ctx, orderTypeID); err != nil {
		return result, err
	}

	branchID, err := s.store.ResolveBranch(ctx, in.UserID)
	if errors.Is(err, repo.ErrBranchNotFound) {
		span.SetStatus(codes.Error, "branch resolution")
		return result, errorbank.Unprocessable("no branch is assigned to the user",
			errorbank.WithCause(ErrBranchResolution),
			errorbank.WithDetail("user_id", in.UserID),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return result, errorbank.Internal("failed to resolve branch", errorbank.WithCause(err))
	}

	order := &entity.Order{
		BranchID:    branchID,
		OrderTypeID: orderTypeID,
		Status:      entity.OrderStatusOpen,
		CreatedAt:   s.now(),
		CreatedBy:   in.UserID,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return result, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}
	result.OrderID = order.ID
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.metrics.created.Add(ctx, 1)

	if !lines.aligned() {
		s.logger.Warn("order created without lines; malformed batch",
			zap.Int64("order_id", order.ID),
			zap.Int("product_ids", len(lines.ProductIDs)),
			zap.Int("quantities", len(lines.Quantities)),
			zap.Int("prices_usd", len(lines.PricesUSD)),
		)
		return result, malformed(lines, errorbank.WithDetail("order_id", order.ID))
	}

	if err := s.writeLines(ctx, order.ID, in.UserID, lines, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "line batch")
		return result, errorbank.Internal("failed to write order lines",
			errorbank.WithCause(err),
			errorbank.WithDetail("order_id", order.ID),
			errorbank.WithDetail("persisted", result.Persisted),
		)
	}

	s.logger.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("branch_id", branchID),
		zap.Int("persisted", result.Persisted),
		zap.Int("skipped", len(result.Skipped)),
	)
	s.emit(ctx, Event{
		Type:        EventOrderCreated,
		OrderID:     order.ID,
		UserID:      in.UserID,
		OrderTypeID: orderTypeID,
		Status:      order.Status,
		Lines:       result.Persisted,
		Skipped:     len(result.Skipped),
	})
	return result, nil
}

// AppendLines writes additional lines to an existing order with the same
// skip policy as Create. A misaligned batch writes nothing.
func (s *Service) AppendLines(ctx context.Context, in AppendInput) (dto.BatchResult, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.AppendLines", trace.WithAttributes(attribute.Int64("order.id", in.OrderID)))
	defer span.End()

	result := dto.BatchResult{OrderID: in.OrderID}

	lines := in.Lines.normalize()
	if len(lines.ProductIDs) == 0 {
		return result, errorbank.BadRequest("at least one line is required", errorbank.WithCause(ErrMalformedBatch))
	}
	if !lines.aligned() {
		return result, malformed(lines)
	}

	ok, err := s.store.OrderExists(ctx, in.OrderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return result, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	if !ok {
		return result, errorbank.NotFound("order not found", errorbank.WithDetail("order_id", in.OrderID))
	}

	if err := s.writeLines(ctx, in.OrderID, in.UserID, lines, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "line batch")
		return result, errorbank.Internal("failed to write order lines",
			errorbank.WithCause(err),
			errorbank.WithDetail("persisted", result.Persisted),
		)
	}

	s.emit(ctx, Event{
		Type:    EventLinesAppended,
		OrderID: in.OrderID,
		UserID:  in.UserID,
		Lines:   result.Persisted,
		Skipped: len(result.Skipped),
	})
	return result, nil
}

// writeLines processes the batch in input order over one connection.
// Per-line problems skip the line; a data-access error stops the batch.
func (s *Service) writeLines(ctx context.Context, orderID, userID int64, lines LineBatch, result *dto.BatchResult) error {
	return s.store.WithLineBatch(ctx, func(ctx context.Context, w repo.LineWriter) error {
		for i := range lines.ProductIDs {
			line, reason := parseLine(lines, i)
			if reason != "" {
				s.skip(ctx, orderID, i, reason, ErrLineValidation, result)
				continue
			}

			ok, err := w.ProductAvailable(ctx, line.productID)
			if err != nil {
				return fmt.Errorf("check product %d: %w", line.productID, err)
			}
			if !ok {
				s.skip(ctx, orderID, i, SkipProductMissing, ErrProductNotFound, result)
				continue
			}

			item := &entity.OrderLineItem{
				OrderID:      orderID,
				ProductID:    line.productID,
				Quantity:     line.quantity,
				UnitPriceUSD: line.price,
				Status:       entity.LineStatusActive,
				CreatedAt:    s.now(),
				CreatedBy:    userID,
			}
			if err := w.InsertLine(ctx, item); err != nil {
				return fmt.Errorf("insert line %d: %w", i, err)
			}
			result.Persisted++
			s.metrics.persisted.Add(ctx, 1)
		}
		return nil
	})
}

func (s *Service) skip(ctx context.Context, orderID int64, index int, reason string, cause error, result *dto.BatchResult) {
	result.Skipped = append(result.Skipped, dto.LineSkip{Index: index, Reason: reason})
	s.metrics.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	s.logger.Warn("order line skipped",
		zap.Int64("order_id", orderID),
		zap.Int("index", index),
		zap.String("reason", reason),
		zap.Error(cause),
	)
}
