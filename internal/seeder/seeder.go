package seeder

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// Seeder loads the reference data an empty database needs before orders can
// be placed.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Reference seeds branches, users, order types, statuses and a small
// product catalog. Existing rows are left untouched, so it can run repeatedly.
func (s *Seeder) Reference(ctx context.Context) error {
	p := defaultPlan()
	var inserted int

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, st := range p.Statuses {
			res, err := tx.NewInsert().Model(&entity.OrderStatus{ID: st.ID, Name: st.Name}).Ignore().Exec(ctx)
			if err != nil {
				return err
			}
			inserted += affected(res)
		}

		for _, b := range p.Branches {
			row := &entity.Branch{Key: b.Key, Name: b.Name, IsActive: true}
			created, err := ensure(ctx, tx, row, map[string]any{"key": b.Key})
			if err != nil {
				return err
			}
			inserted += created
		}
		for _, u := range p.Users {
			row := &entity.User{FullName: u.FullName, BranchKey: u.BranchKey}
			created, err := ensure(ctx, tx, row, map[string]any{"full_name": u.FullName})
			if err != nil {
				return err
			}
			inserted += created
		}
		for _, name := range p.OrderTypes {
			created, err := ensure(ctx, tx, &entity.OrderType{Name: name}, map[string]any{"name": name})
			if err != nil {
				return err
			}
			inserted += created
		}

		brands := make(map[string]int64, len(p.Brands))
		for _, name := range p.Brands {
			row := &entity.ProductBrand{Name: name}
			created, err := ensure(ctx, tx, row, map[string]any{"name": name})
			if err != nil {
				return err
			}
			inserted += created
			brands[name] = row.ID
		}

		for _, cat := range p.Categories {
			category := &entity.ProductCategory{Name: cat.Name}
			created, err := ensure(ctx, tx, category, map[string]any{"name": cat.Name})
			if err != nil {
				return err
			}
			inserted += created

			for _, typ := range cat.Types {
				pt := &entity.ProductType{CategoryID: category.ID, Name: typ.Name}
				created, err := ensure(ctx, tx, pt, map[string]any{"category_id": category.ID, "name": typ.Name})
				if err != nil {
					return err
				}
				inserted += created

				for _, prod := range typ.Products {
					brandID, ok := brands[prod.Brand]
					if !ok {
						return errors.New("seed product references unknown brand " + prod.Brand)
					}
					bt := &entity.ProductBrandType{BrandID: brandID, TypeID: pt.ID}
					created, err := ensure(ctx, tx, bt, map[string]any{"brand_id": brandID, "type_id": pt.ID})
					if err != nil {
						return err
					}
					inserted += created

					row := &entity.Product{BrandTypeID: bt.ID, Name: prod.Name, Model: prod.Model}
					created, err = ensure(ctx, tx, row, map[string]any{"brand_type_id": bt.ID, "name": prod.Name})
					if err != nil {
						return err
					}
					inserted += created
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("seeded reference data", zap.Int("inserted", inserted))
	}
	return nil
}

// ensure loads the row matching where into model, inserting model when no
// such row exists. It returns 1 when a row was inserted.
func ensure(ctx context.Context, db bun.IDB, model any, where map[string]any) (int, error) {
	q := db.NewSelect().Model(model)
	for column, value := range where {
		q = q.Where("?TableAlias.? = ?", bun.Ident(column), value)
	}
	err := q.Limit(1).Scan(ctx)
	if err == nil {
		return 0, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if _, err := db.NewInsert().Model(model).Exec(ctx); err != nil {
		return 0, err
	}
	return 1, nil
}

func affected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
