package catalog

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/cache"
	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/catalog"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/orderdesk/service/catalog")

// Module provides the catalog service to Fx.
var Module = fx.Provide(
	NewService,
	func(r *repo.Repository) Reader { return r },
)

// Reader is the reference-data read model.
type Reader interface {
	ActiveBranches(ctx context.Context) ([]entity.Branch, error)
	OrderTypes(ctx context.Context) ([]entity.OrderType, error)
	OrderStatuses(ctx context.Context) ([]entity.OrderStatus, error)
	StatusExists(ctx context.Context, status int16) (bool, error)
	Categories(ctx context.Context) ([]entity.ProductCategory, error)
	ProductTypes(ctx context.Context) ([]entity.ProductType, error)
	Brands(ctx context.Context) ([]entity.ProductBrand, error)
	TypesInCategory(ctx context.Context, categoryID int64) ([]entity.ProductType, error)
	BrandsInCategory(ctx context.Context, categoryID int64) ([]entity.ProductBrand, error)
	ProductsInCategory(ctx context.Context, categoryID int64) ([]entity.Product, error)
}

// Service serves reference lists, caching them in the configured store.
type Service struct {
	reader Reader
	cache  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Reader Reader
	Cache  cache.Store
	Config config.Config
	Logger *zap.Logger
}

func NewService(p Params) *Service {
	return New(p.Reader, p.Cache, p.Config.Cache.DefaultTTL, p.Logger)
}

// New builds a Service. A nil store disables caching.
func New(reader Reader, store cache.Store, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{reader: reader, cache: store, ttl: ttl, logger: logger}
}

// Lookups returns active branches, order types and statuses.
func (s *Service) Lookups(ctx context.Context) (dto.Lookups, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.Lookups")
	defer span.End()

	return cache.Remember(ctx, s.cache, s.logger, "catalog:lookups", s.ttl, func(ctx context.Context) (dto.Lookups, error) {
		branches, err := s.reader.ActiveBranches(ctx)
		if err != nil {
			return dto.Lookups{}, err
		}
		types, err := s.reader.OrderTypes(ctx)
		if err != nil {
			return dto.Lookups{}, err
		}
		statuses, err := s.reader.OrderStatuses(ctx)
		if err != nil {
			return dto.Lookups{}, err
		}

		out := dto.Lookups{
			Branches:   make([]dto.NamedRef, 0, len(branches)),
			OrderTypes: orderTypeRefs(types),
			Statuses:   make([]dto.StatusRef, 0, len(statuses)),
		}
		for _, b := range branches {
			out.Branches = append(out.Branches, dto.NamedRef{ID: b.ID, Name: b.Name})
		}
		for _, st := range statuses {
			out.Statuses = append(out.Statuses, dto.StatusRef{ID: st.ID, Name: st.Name})
		}
		return out, nil
	})
}

func (s *Service) OrderTypes(ctx context.Context) ([]dto.NamedRef, error) {
	return cache.Remember(ctx, s.cache, s.logger, "catalog:order_types", s.ttl, func(ctx context.Context) ([]dto.NamedRef, error) {
		types, err := s.reader.OrderTypes(ctx)
		if err != nil {
			return nil, err
		}
		return orderTypeRefs(types), nil
	})
}

// StatusExists is always read through to the store.
func (s *Service) StatusExists(ctx context.Context, status int16) (bool, error) {
	return s.reader.StatusExists(ctx, status)
}

// NewOrderForm returns the catalog a new order is composed from.
func (s *Service) NewOrderForm(ctx context.Context) (dto.NewOrderForm, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.NewOrderForm")
	defer span.End()

	return cache.Remember(ctx, s.cache, s.logger, "catalog:new_order_form", s.ttl, func(ctx context.Context) (dto.NewOrderForm, error) {
		categories, err := s.reader.Categories(ctx)
		if err != nil {
			return dto.NewOrderForm{}, err
		}
		types, err := s.reader.ProductTypes(ctx)
		if err != nil {
			return dto.NewOrderForm{}, err
		}
		brands, err := s.reader.Brands(ctx)
		if err != nil {
			return dto.NewOrderForm{}, err
		}
		orderTypes, err := s.reader.OrderTypes(ctx)
		if err != nil {
			return dto.NewOrderForm{}, err
		}

		out := dto.NewOrderForm{
			Categories:   make([]dto.NamedRef, 0, len(categories)),
			ProductTypes: productTypeRefs(types),
			Brands:       brandRefs(brands),
			OrderTypes:   orderTypeRefs(orderTypes),
		}
		for _, c := range categories {
			out.Categories = append(out.Categories, dto.NamedRef{ID: c.ID, Name: c.Name})
		}
		return out, nil
	})
}

// ByCategory returns the types, brands and products of one category.
func (s *Service) ByCategory(ctx context.Context, categoryID int64) (dto.CategoryCatalog, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.ByCategory", trace.WithAttributes(attribute.Int64("category.id", categoryID)))
	defer span.End()

	key := fmt.Sprintf("catalog:category:%d", categoryID)
	return cache.Remember(ctx, s.cache, s.logger, key, s.ttl, func(ctx context.Context) (dto.CategoryCatalog, error) {
		types, err := s.reader.TypesInCategory(ctx, categoryID)
		if err != nil {
			return dto.CategoryCatalog{}, err
		}
		brands, err := s.reader.BrandsInCategory(ctx, categoryID)
		if err != nil {
			return dto.CategoryCatalog{}, err
		}
		products, err := s.reader.ProductsInCategory(ctx, categoryID)
		if err != nil {
			return dto.CategoryCatalog{}, err
		}

		out := dto.CategoryCatalog{
			CategoryID:   categoryID,
			ProductTypes: productTypeRefs(types),
			Brands:       brandRefs(brands),
			Products:     make([]dto.ProductRef, 0, len(products)),
		}
		for _, p := range products {
			out.Products = append(out.Products, dto.ProductRef{ID: p.ID, BrandTypeID: p.BrandTypeID, Name: p.Name, Model: p.Model})
		}
		return out, nil
	})
}

func orderTypeRefs(types []entity.OrderType) []dto.NamedRef {
	out := make([]dto.NamedRef, 0, len(types))
	for _, t := range types {
		out = append(out, dto.NamedRef{ID: t.ID, Name: t.Name})
	}
	return out
}

func productTypeRefs(types []entity.ProductType) []dto.ProductTypeRef {
	out := make([]dto.ProductTypeRef, 0, len(types))
	for _, t := range types {
		out = append(out, dto.ProductTypeRef{ID: t.ID, CategoryID: t.CategoryID, Name: t.Name})
	}
	return out
}

func brandRefs(brands []entity.ProductBrand) []dto.NamedRef {
	out := make([]dto.NamedRef, 0, len(brands))
	for _, b := range brands {
		out = append(out, dto.NamedRef{ID: b.ID, Name: b.Name})
	}
	return out
}
