package catalog

import (
	"context"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/orderdesk/repository/catalog")

// Module provides the catalog repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository reads reference data: branches, order types, statuses and the
// product catalog.
type Repository struct {
	reader *bun.DB
}

// NewRepository builds a catalog repository on the read connection.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{reader: conns.Reader}
}

func (r *Repository) list(ctx context.Context, name string, dest any, build func(*bun.SelectQuery) *bun.SelectQuery, attrs ...attribute.KeyValue) error {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository."+name, trace.WithAttributes(attrs...))
	defer span.End()

	if err := build(r.reader.NewSelect().Model(dest)).Scan(ctx); err != nil {
		err = database.Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return err
	}
	return nil
}

// ActiveBranches lists branches flagged active, by name.
func (r *Repository) ActiveBranches(ctx context.Context) ([]entity.Branch, error) {
	out := make([]entity.Branch, 0)
	err := r.list(ctx, "ActiveBranches", &out, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("b.is_active = ?", true).OrderExpr("b.name ASC")
	})
	return out, err
}

// OrderTypes lists non-archived order types by id.
func (r *Repository) OrderTypes(ctx context.Context) ([]entity.OrderType, error) {
	out := make([]entity.OrderType, 0)
	err := r.list(ctx, "OrderTypes", &out, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("ot.archived = ?", false).OrderExpr("ot.id ASC")
	})
	return out, err
}

// OrderStatuses lists non-archived order statuses by id.
func (r *Repository) OrderStatuses(ctx context.Context) ([]entity.OrderStatus, error) {
	out := make([]entity.OrderStatus, 0)
	err := r.list(ctx, "OrderStatuses", &out, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("os.archived = ?", false).OrderExpr("os.id ASC")
	})
	return out, err
}

// StatusExists reports whether status is a known, non-archived order status.
func (r *Repository) StatusExists(ctx context.Context, status int16) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.StatusExists", trace.WithAttributes(attribute.Int("order.status", int(status))))
	defer span.End()

	ok, err := r.reader.NewSelect().
		Model((*entity.OrderStatus)(nil)).
		Where("os.id = ?", status).
		Where("os.archived = ?", false).
		Exists(ctx)
	if err != nil {
		err = database.Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return false, err
	}
	return ok, nil
}

// Categories lists non-archived product categories by name.
func (r *Repository) Categories(ctx context.Context) ([]entity.ProductCategory, error) {
	out := make([]entity.ProductCategory, 0)
	err := r.list(ctx, "Categories", &out, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("pc.archived = ?", false).OrderExpr("pc.name ASC")
	})
	return out, err
}

// ProductTypes lists non-archived product types by name.
func (r *Repository) ProductTypes(ctx context.Context) ([]entity.ProductType, error) {
	out := make([]entity.ProductType, 0)
	err := r.list(ctx, "ProductTypes", &out, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("pt.archived = ?", false).OrderExpr("pt.name ASC")
	})
	return out, err
}

// Brands lists non-archived product brands by name.
func (r *Repository) Brands(ctx context.Context) ([]entity.ProductBrand, error) {
	out := make([]entity.ProductBrand, 0)
	err := r.list(ctx, "Brands", &out, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("pb.archived = ?", false).OrderExpr("pb.name ASC")
	})
	return out, err
}

// TypesInCategory lists the non-archived product types of a category.
func (r *Repository) TypesInCategory(ctx context.Context, categoryID int64) ([]entity.ProductType, error) {
	out := make([]entity.ProductType, 0)
	err := r.list(ctx, "TypesInCategory", &out, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("pt.category_id = ?", categoryID).
			Where("pt.archived = ?", false).
			OrderExpr("pt.name ASC")
	}, attribute.Int64("category.id", categoryID))
	return out, err
}

// BrandsInCategory lists brands that make at least one type of the category.
func (r *Repository) BrandsInCategory(ctx context.Context, categoryID int64) ([]entity.ProductBrand, error) {
	out := make([]entity.ProductBrand, 0)
	err := r.list(ctx, "BrandsInCategory", &out, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Distinct().
			Join("JOIN product_brand_types AS pbt ON pbt.brand_id = pb.id").
			Join("JOIN product_types AS pt ON pt.id = pbt.type_id").
			Where("pt.category_id = ?", categoryID).
			Where("pb.archived = ?", false).
			OrderExpr("pb.name ASC")
	}, attribute.Int64("category.id", categoryID))
	return out, err
}

// ProductsInCategory lists the non-archived products of a category.
func (r *Repository) ProductsInCategory(ctx context.Context, categoryID int64) ([]entity.Product, error) {
	out := make([]entity.Product, 0)
	err := r.list(ctx, "ProductsInCategory", &out, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Join("JOIN product_brand_types AS pbt ON pbt.id = pn.brand_type_id").
			Join("JOIN product_types AS pt ON pt.id = pbt.type_id").
			Where("pt.category_id = ?", categoryID).
			Where("pn.archived = ?", false).
			OrderExpr("pn.name ASC")
	}, attribute.Int64("category.id", categoryID))
	return out, err
}
