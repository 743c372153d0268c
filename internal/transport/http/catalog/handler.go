package catalog

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	catalogsvc "github.com/Additional-Code/orderdesk/internal/service/catalog"
	"github.com/Additional-Code/orderdesk/internal/transport/http/identity"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderdesk/transport/http/catalog")

// Module wires the catalog browsing endpoint.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(func(e *echo.Echo, h *Handler, v *identity.Verifier) {
		Register(e, h, v.Middleware())
	}),
)

// Browser reads one category of the catalog.
type Browser interface {
	ByCategory(ctx context.Context, categoryID int64) (dto.CategoryCatalog, error)
}

type Handler struct {
	svc Browser
}

func NewHandler(svc *catalogsvc.Service) *Handler {
	return &Handler{svc: svc}
}

func Register(e *echo.Echo, h *Handler, auth echo.MiddlewareFunc) {
	e.GET("/catalog/categories/:id", h.byCategory, auth)
}

func (h *Handler) byCategory(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return b.WithError(errorbank.BadRequest("invalid category id", errorbank.WithDetail("id", c.Param("id")))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "catalog.byCategory", trace.WithAttributes(attribute.Int64("category.id", id)))
	defer span.End()

	catalog, err := h.svc.ByCategory(ctx, id)
	if err != nil {
		return b.WithError(errorbank.Internal("failed to load catalog", errorbank.WithCause(err))).Build()
	}
	return b.WithData(catalog).Build()
}
