package order

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	service "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/internal/transport/http/identity"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderdesk/transport/http/order")

// OrderService is the workflow surface the handlers drive.
type OrderService interface {
	Create(ctx context.Context, in service.CreateInput) (dto.BatchResult, error)
	AppendLines(ctx context.Context, in service.AppendInput) (dto.BatchResult, error)
	UpdateLine(ctx context.Context, in service.LineUpdate) error
	ArchiveLine(ctx context.Context, userID, itemID, orderID int64) error
	SetDeadline(ctx context.Context, userID, orderID int64, date string) error
	SetStatus(ctx context.Context, userID, orderID int64, status int16) error
	Search(ctx context.Context, in service.SearchInput) (dto.OrderPage, error)
	Browse(ctx context.Context, page, limit int) (dto.BrowsePage, error)
	Detail(ctx context.Context, orderID int64) (dto.OrderDetail, error)
	GetLine(ctx context.Context, itemID int64) (dto.LineEditView, error)
	NewOrderForm(ctx context.Context) (dto.NewOrderForm, error)
}

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc    OrderService
	logger *zap.Logger
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service, logger *zap.Logger) *Handler {
	return newHandler(svc, logger)
}

func newHandler(svc OrderService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register routes behind the identity middleware.
func Register(e *echo.Echo, h *Handler, auth echo.MiddlewareFunc) {
	g := e.Group("/orders", auth)
	g.GET("", h.browse)
	g.POST("/search", h.search)
	g.GET("/new", h.newOrderForm)
	g.POST("", h.create)
	g.GET("/:id", h.detail)
	g.POST("/:id/lines", h.appendLines)
	g.POST("/:id/deadline", h.setDeadline)
	g.POST("/:id/status", h.setStatus)

	lines := e.Group("/order-lines", auth)
	lines.GET("/:id", h.getLine)
	lines.POST("/:id", h.updateLine)
	lines.POST("/:id/archive", h.archiveLine)
}

func detailPath(orderID int64) string {
	return fmt.Sprintf("/orders/%d", orderID)
}

func (h *Handler) browse(c echo.Context) error {
	b := response.New(c)

	var p browsePayload
	if err := bind(c, &p); err != nil {
		return b.WithError(err).Build()
	}
	page, err := optionalInt(p.Page, "page")
	if err != nil {
		return b.WithError(err).Build()
	}
	limit, err := optionalInt(p.Limit, "limit")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.browse")
	defer span.End()

	result, err := h.svc.Browse(ctx, page, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(result).Build()
}

func (h *Handler) search(c echo.Context) error {
	b := response.New(c)

	p, err := bindSearch(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	page, err := optionalInt(p.Page, "page")
	if err != nil {
		return b.WithError(err).Build()
	}
	limit, err := optionalInt(p.Limit, "limit")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.search")
	defer span.End()

	result, err := h.svc.Search(ctx, service.SearchInput{
		BranchID:    string(p.BranchID),
		OrderTypeID: string(p.OrderTypeID),
		Status:      string(p.Status),
		From:        string(p.From),
		To:          string(p.To),
		Page:        page,
		Limit:       limit,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) newOrderForm(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.newForm")
	defer span.End()

	form, err := h.svc.NewOrderForm(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(form).Build()
}

// create redirects to the order as soon as a header exists, even when the
// line batch reported an error.
func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var p linesPayload
	if err := bind(c, &p); err != nil {
		return b.WithError(err).Build()
	}
	userID := identity.UserID(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	result, err := h.svc.Create(ctx, service.CreateInput{
		UserID:      userID,
		OrderTypeID: string(p.OrderTypeID),
		Lines:       p.batch(),
	})
	if result.OrderID > 0 {
		if err != nil {
			h.logger.Warn("order created with errors", zap.Int64("order_id", result.OrderID), zap.Error(err))
		}
		return b.Redirect(detailPath(result.OrderID))
	}
	return b.WithError(err).Build()
}

func (h *Handler) detail(c echo.Context) error {
	b := response.New(c)

	id, err := requiredID(c.Param("id"), "order id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.detail", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	detail, err := h.svc.Detail(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(detail).Build()
}

func (h *Handler) appendLines(c echo.Context) error {
	b := response.New(c)

	id, err := requiredID(c.Param("id"), "order id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var p linesPayload
	if err := bind(c, &p); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.appendLines", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	_, err = h.svc.AppendLines(ctx, service.AppendInput{
		UserID:  identity.UserID(c),
		OrderID: id,
		Lines:   p.batch(),
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.Redirect(detailPath(id))
}

func (h *Handler) setDeadline(c echo.Context) error {
	b := response.New(c)

	id, err := requiredID(c.Param("id"), "order id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var p deadlinePayload
	if err := bind(c, &p); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.setDeadline", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := h.svc.SetDeadline(ctx, identity.UserID(c), id, string(p.Deadline)); err != nil {
		return b.WithError(err).Build()
	}
	return b.Redirect("/orders")
}

func (h *Handler) setStatus(c echo.Context) error {
	b := response.New(c)

	id, err := requiredID(c.Param("id"), "order id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var p statusPayload
	if err := bind(c, &p); err != nil {
		return b.WithError(err).Build()
	}
	status, err := strconv.ParseInt(string(p.Status), 10, 16)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid status", errorbank.WithDetail("status", string(p.Status)))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.setStatus", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := h.svc.SetStatus(ctx, identity.UserID(c), id, int16(status)); err != nil {
		return b.WithError(err).Build()
	}
	return b.Redirect(detailPath(id))
}

func (h *Handler) getLine(c echo.Context) error {
	b := response.New(c)

	id, err := requiredID(c.Param("id"), "line id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getLine", trace.WithAttributes(attribute.Int64("order_line.id", id)))
	defer span.End()

	view, err := h.svc.GetLine(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(view).Build()
}

func (h *Handler) updateLine(c echo.Context) error {
	b := response.New(c)

	itemID, err := requiredID(c.Param("id"), "line id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var p lineEditPayload
	if err := bind(c, &p); err != nil {
		return b.WithError(err).Build()
	}
	orderID, err := requiredID(string(p.OrderID), "order_id")
	if err != nil {
		return b.WithError(err).Build()
	}
	quantity, err := strconv.Atoi(string(p.Quantity))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid quantity", errorbank.WithDetail("quantity", string(p.Quantity)))).Build()
	}
	orderTypeID, err := requiredID(string(p.OrderTypeID), "order_type_id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateLine", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("order_line.id", itemID),
	))
	defer span.End()

	err = h.svc.UpdateLine(ctx, service.LineUpdate{
		UserID:      identity.UserID(c),
		ItemID:      itemID,
		OrderID:     orderID,
		Quantity:    quantity,
		OrderTypeID: orderTypeID,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.Redirect(detailPath(orderID))
}

func (h *Handler) archiveLine(c echo.Context) error {
	b := response.New(c)

	itemID, err := requiredID(c.Param("id"), "line id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var p lineEditPayload
	if err := bind(c, &p); err != nil {
		return b.WithError(err).Build()
	}
	orderID, err := requiredID(string(p.OrderID), "order_id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.archiveLine", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("order_line.id", itemID),
	))
	defer span.End()

	if err := h.svc.ArchiveLine(ctx, identity.UserID(c), itemID, orderID); err != nil {
		return b.WithError(err).Build()
	}
	return b.Redirect(detailPath(orderID))
}
