package order

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/dto"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

const dateLayout = "2006-01-02"

// SearchInput carries the raw filter fields of a listing request. Empty
// strings mean the filter is absent.
type SearchInput struct {
	BranchID    string
	OrderTypeID string
	Status      string
	From        string
	To          string
	Page        int
	Limit       int
}

func (in SearchInput) filter() (repo.Filter, error) {
	var f repo.Filter
	var err error
	if f.BranchID, err = optionalID(in.BranchID, "branch_id"); err != nil {
		return f, err
	}
	if f.OrderTypeID, err = optionalID(in.OrderTypeID, "order_type_id"); err != nil {
		return f, err
	}
	status, err := optionalID(in.Status, "status")
	if err != nil {
		return f, err
	}
	if status > 32767 {
		return f, errorbank.BadRequest("invalid status", errorbank.WithDetail("status", in.Status))
	}
	f.Status = int16(status)

	if f.From, err = optionalTime(in.From, "from", false); err != nil {
		return f, err
	}
	if f.To, err = optionalTime(in.To, "to", true); err != nil {
		return f, err
	}
	return f, nil
}

func optionalID(raw, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid "+field, errorbank.WithDetail(field, raw))
	}
	return id, nil
}

// optionalTime accepts a date or an RFC 3339 timestamp. A bare date used as
// an upper bound covers the whole day.
func optionalTime(raw, field string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errorbank.BadRequest("invalid "+field+" date", errorbank.WithDetail(field, raw))
	}
	return &t, nil
}

func (s *Service) pageBounds(page, limit, fallback int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = fallback
	}
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	return page, limit
}

// Search runs the filter listing. Without filters it returns the most recent
// orders and ignores paging.
func (s *Service) Search(ctx context.Context, in SearchInput) (dto.OrderPage, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Search")
	defer span.End()

	f, err := in.filter()
	if err != nil {
		return dto.OrderPage{}, err
	}
	page, limit := s.pageBounds(in.Page, in.Limit, s.cfg.DefaultLimit)

	rows, err := s.store.List(ctx, repo.ListQuery{
		Filter:       f,
		Page:         page,
		Limit:        limit,
		RecentWindow: s.cfg.RecentWindow,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return dto.OrderPage{}, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	return dto.OrderPage{Data: s.summaries(rows), Page: page, Limit: limit}, nil
}

// Browse is the always-paginated listing with totals and lookups.
func (s *Service) Browse(ctx context.Context, page, limit int) (dto.BrowsePage, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Browse")
	defer span.End()

	page, limit = s.pageBounds(page, limit, s.cfg.BrowseLimit)
	span.SetAttributes(attribute.Int("list.page", page), attribute.Int("list.limit", limit))

	rows, err := s.store.List(ctx, repo.ListQuery{Page: page, Limit: limit, Paginate: true})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return dto.BrowsePage{}, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	total, err := s.store.CountListed(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return dto.BrowsePage{}, errorbank.Internal("failed to count orders", errorbank.WithCause(err))
	}
	lookups, err := s.catalog.Lookups(ctx)
	if err != nil {
		return dto.BrowsePage{}, errorbank.Internal("failed to load lookups", errorbank.WithCause(err))
	}

	return dto.BrowsePage{
		Data:       s.summaries(rows),
		Page:       page,
		Limit:      limit,
		TotalCount: total,
		TotalPages: (total + limit - 1) / limit,
		Lookups:    lookups,
	}, nil
}

func (s *Service) summaries(rows []repo.ListRow) []dto.OrderSummary {
	now := s.now()
	out := make([]dto.OrderSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, dto.OrderSummary{
			OrderID:       r.OrderID,
			BranchName:    r.BranchName,
			OrderTypeName: r.OrderTypeName,
			CreatedByName: r.UserName,
			Status:        r.Status,
			TotalQuantity: r.TotalQuantity,
			Deadline:      r.Deadline,
			CreatedAt:     r.CreatedAt,
			CreatedBy:     r.CreatedBy,
			UpdatedAt:     r.UpdatedAt,
			UpdatedBy:     r.UpdatedBy,
			Difference:    r.Difference,
			AgeDays:       ageDays(now, r.CreatedAt),
		})
	}
	return out
}

// Detail returns one order with its active lines. An order whose lines are
// all archived is returned with no lines.
func (s *Service) Detail(ctx context.Context, orderID int64) (dto.OrderDetail, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Detail", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	header, err := s.store.Header(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return dto.OrderDetail{}, errorbank.NotFound("order not found", errorbank.WithDetail("order_id", orderID))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return dto.OrderDetail{}, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	lines, err := s.store.ActiveLines(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return dto.OrderDetail{}, errorbank.Internal("failed to load order lines", errorbank.WithCause(err))
	}
	form, err := s.catalog.NewOrderForm(ctx)
	if err != nil {
		return dto.OrderDetail{}, errorbank.Internal("failed to load catalog", errorbank.WithCause(err))
	}

	detail := dto.OrderDetail{
		Order: dto.OrderHeader{
			OrderID:       header.OrderID,
			BranchID:      header.BranchID,
			BranchName:    header.BranchName,
			OrderTypeID:   header.OrderTypeID,
			OrderTypeName: header.OrderTypeName,
			Status:        header.Status,
			Deadline:      header.Deadline,
			Archived:      header.Archived,
			CreatedAt:     header.CreatedAt,
			CreatedBy:     header.CreatedBy,
			CreatedByName: header.CreatorName,
			UpdatedAt:     header.UpdatedAt,
			UpdatedBy:     header.UpdatedBy,
			AgeDays:       ageDays(s.now(), header.CreatedAt),
		},
		Lines:   make([]dto.OrderLine, 0, len(lines)),
		Catalog: form,
	}
	for _, l := range lines {
		detail.Lines = append(detail.Lines, lineDTO(l))
	}
	return detail, nil
}

// GetLine returns one line with its order context and the order types it
// may be switched to.
func (s *Service) GetLine(ctx context.Context, itemID int64) (dto.LineEditView, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.GetLine", trace.WithAttributes(attribute.Int64("order_line.id", itemID)))
	defer span.End()

	view, err := s.store.Line(ctx, itemID)
	if errors.Is(err, repo.ErrLineNotFound) {
		return dto.LineEditView{}, errorbank.NotFound("order line not found", errorbank.WithDetail("item_id", itemID))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return dto.LineEditView{}, errorbank.Internal("failed to load order line", errorbank.WithCause(err))
	}
	types, err := s.catalog.OrderTypes(ctx)
	if err != nil {
		return dto.LineEditView{}, errorbank.Internal("failed to load order types", errorbank.WithCause(err))
	}

	return dto.LineEditView{
		Line:        lineDTO(view.LineView),
		OrderTypeID: view.OrderTypeID,
		BranchName:  view.BranchName,
		CreatorName: view.CreatorName,
		OrderTypes:  types,
	}, nil
}

// NewOrderForm returns the catalog used to compose a new order.
func (s *Service) NewOrderForm(ctx context.Context) (dto.NewOrderForm, error) {
	form, err := s.catalog.NewOrderForm(ctx)
	if err != nil {
		return dto.NewOrderForm{}, errorbank.Internal("failed to load catalog", errorbank.WithCause(err))
	}
	return form, nil
}

func lineDTO(l repo.LineView) dto.OrderLine {
	return dto.OrderLine{
		ItemID:       l.ItemID,
		OrderID:      l.OrderID,
		ProductID:    l.ProductID,
		ProductName:  l.ProductName,
		ProductModel: l.ProductModel,
		Quantity:     l.Quantity,
		UnitPriceUSD: l.UnitPriceUSD,
		Status:       l.Status,
		Archived:     l.Archived,
		CreatedAt:    l.CreatedAt,
		CreatedBy:    l.CreatedBy,
	}
}
