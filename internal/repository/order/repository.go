package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/orderdesk/repository/order")

var (
	// ErrNotFound is returned when an order header is missing.
	ErrNotFound = errors.New("order not found")
	// ErrLineNotFound is returned when a line is missing, belongs to another
	// order, or is already archived where the operation requires it active.
	ErrLineNotFound = errors.New("order line not found")
	// ErrBranchNotFound is returned when a user has no branch.
	ErrBranchNotFound = errors.New("branch not found for user")
)

// LineWriter inserts the lines of one batch over a single connection.
type LineWriter interface {
	// ProductAvailable reports whether the product exists and is not archived.
	ProductAvailable(ctx context.Context, productID int64) (bool, error)
	InsertLine(ctx context.Context, line *entity.OrderLineItem) error
}

// Repository encapsulates read/write access for order headers and lines.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

func fail(span trace.Span, err error, status string) error {
	err = database.Classify(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
	return err
}

// ResolveBranch returns the branch the user belongs to.
func (r *Repository) ResolveBranch(ctx context.Context, userID int64) (int64, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ResolveBranch", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	var branchID int64
	err := branchQuery(r.writer, userID).Scan(ctx, &branchID)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return 0, ErrBranchNotFound
	}
	if err != nil {
		return 0, fail(span, err, "select failed")
	}
	return branchID, nil
}

// CreateOrder inserts a header and fills its generated id.
func (r *Repository) CreateOrder(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.CreateOrder", trace.WithAttributes(
		attribute.Int64("order.branch_id", order.BranchID),
		attribute.Int64("order.type_id", order.OrderTypeID),
	))
	defer span.End()

	if _, err := r.writer.NewInsert().Model(order).Exec(ctx); err != nil {
		return fail(span, err, "insert failed")
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	return nil
}

// OrderExists reports whether a header with the id exists.
func (r *Repository) OrderExists(ctx context.Context, orderID int64) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.OrderExists", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	ok, err := r.writer.NewSelect().Model((*entity.Order)(nil)).Where("op.id = ?", orderID).Exists(ctx)
	if err != nil {
		return false, fail(span, err, "select failed")
	}
	return ok, nil
}

// WithLineBatch runs fn with a LineWriter bound to one pooled connection,
// released when fn returns. Lines are written statement by statement; there
// is no surrounding transaction.
func (r *Repository) WithLineBatch(ctx context.Context, fn func(ctx context.Context, w LineWriter) error) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.WithLineBatch")
	defer span.End()

	err := database.WithConn(ctx, r.writer, func(ctx context.Context, conn bun.IDB) error {
		return fn(ctx, lineWriter{db: conn})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")
	}
	return err
}

type lineWriter struct {
	db bun.IDB
}

func (w lineWriter) ProductAvailable(ctx context.Context, productID int64) (bool, error) {
	ok, err := w.db.NewSelect().
		Model((*entity.Product)(nil)).
		Where("pn.id = ?", productID).
		Where("pn.archived = ?", false).
		Exists(ctx)
	return ok, database.Classify(err)
}

func (w lineWriter) InsertLine(ctx context.Context, line *entity.OrderLineItem) error {
	_, err := w.db.NewInsert().Model(line).Exec(ctx)
	return database.Classify(err)
}

// ApplyLineEdit writes the line quantity and then the header order type in
// one transaction, so a failed attempt leaves neither applied.
func (r *Repository) ApplyLineEdit(ctx context.Context, edit LineEdit) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ApplyLineEdit", trace.WithAttributes(
		attribute.Int64("order.id", edit.OrderID),
		attribute.Int64("order_line.id", edit.ItemID),
	))
	defer span.End()

	err := database.WithTx(ctx, r.writer, func(ctx context.Context, tx bun.Tx) error {
		ok, err := lineInOrderQuery(tx, edit.ItemID, edit.OrderID).Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLineNotFound
		}
		if _, err := lineQuantityQuery(tx, edit).Exec(ctx); err != nil {
			return err
		}
		_, err = headerTypeQuery(tx, edit, time.Now().UTC()).Exec(ctx)
		return err
	})
	if errors.Is(err, ErrLineNotFound) {
		span.SetStatus(codes.Error, "not found")
		return ErrLineNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

func branchQuery(db bun.IDB, userID int64) *bun.SelectQuery {
	return db.NewSelect().
		TableExpr("branches AS b").
		ColumnExpr("b.id").
		Join("JOIN users AS u ON u.branch_key = b.key").
		Where("u.id = ?", userID).
		Limit(1)
}

func lineInOrderQuery(db bun.IDB, itemID, orderID int64) *bun.SelectQuery {
	return db.NewSelect().
		Model((*entity.OrderLineItem)(nil)).
		Where("opi.id = ?", itemID).
		Where("opi.order_id = ?", orderID)
}

func lineQuantityQuery(db bun.IDB, edit LineEdit) *bun.UpdateQuery {
	return db.NewUpdate().
		Model((*entity.OrderLineItem)(nil)).
		Set("quantity = ?", edit.Quantity).
		Where("id = ?", edit.ItemID)
}

func headerTypeQuery(db bun.IDB, edit LineEdit, now time.Time) *bun.UpdateQuery {
	return db.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("order_type_id = ?", edit.OrderTypeID).
		Set("updated_at = ?", now).
		Set("updated_by = ?", edit.UserID).
		Where("id = ?", edit.OrderID)
}

// archiveLineQuery only matches a line that is still active.
func archiveLineQuery(db bun.IDB, itemID, orderID int64) *bun.UpdateQuery {
	return db.NewUpdate().
		Model((*entity.OrderLineItem)(nil)).
		Set("archived = ?", true).
		Where("id = ?", itemID).
		Where("order_id = ?", orderID).
		Where("archived = ?", false)
}

// FindActiveLine loads a non-archived line belonging to orderID.
func (r *Repository) FindActiveLine(ctx context.Context, itemID, orderID int64) (*entity.OrderLineItem, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.FindActiveLine", trace.WithAttributes(attribute.Int64("order_line.id", itemID)))
	defer span.End()

	line := new(entity.OrderLineItem)
	err := r.writer.NewSelect().
		Model(line).
		Where("opi.id = ?", itemID).
		Where("opi.order_id = ?", orderID).
		Where("opi.archived = ?", false).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrLineNotFound
	}
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return line, nil
}

// ArchiveLine flips the archive flag of an active line. It reports false when
// no active line matched, including when a concurrent call archived it first.
func (r *Repository) ArchiveLine(ctx context.Context, itemID, orderID int64) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ArchiveLine", trace.WithAttributes(attribute.Int64("order_line.id", itemID)))
	defer span.End()

	res, err := archiveLineQuery(r.writer, itemID, orderID).Exec(ctx)
	if err != nil {
		return false, fail(span, err, "update failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fail(span, err, "rows affected")
	}
	return n > 0, nil
}

// SetDeadline sets the header deadline; false means no such order.
func (r *Repository) SetDeadline(ctx context.Context, orderID int64, deadline time.Time, userID int64) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.SetDeadline", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	return r.updateHeader(ctx, span, orderID, userID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("deadline = ?", deadline)
	})
}

// SetStatus sets the header status; false means no such order.
func (r *Repository) SetStatus(ctx context.Context, orderID int64, status int16, userID int64) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.SetStatus", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int("order.status", int(status)),
	))
	defer span.End()

	return r.updateHeader(ctx, span, orderID, userID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("status = ?", status)
	})
}

func (r *Repository) updateHeader(ctx context.Context, span trace.Span, orderID, userID int64, set func(*bun.UpdateQuery) *bun.UpdateQuery) (bool, error) {
	q := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Set("updated_by = ?", userID).
		Where("id = ?", orderID)
	res, err := set(q).Exec(ctx)
	if err != nil {
		return false, fail(span, err, "update failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fail(span, err, "rows affected")
	}
	return n > 0, nil
}

// List runs one aggregated listing read.
func (r *Repository) List(ctx context.Context, q ListQuery) ([]ListRow, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List", trace.WithAttributes(
		attribute.Bool("list.recent", q.Recent()),
		attribute.Int("list.page", q.Page),
		attribute.Int("list.limit", q.Limit),
	))
	defer span.End()

	rows := make([]ListRow, 0)
	if err := buildListQuery(r.reader, q).Scan(ctx, &rows); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fail(span, err, "select failed")
	}
	return rows, nil
}

// CountListed counts orders that still have at least one non-archived line.
func (r *Repository) CountListed(ctx context.Context) (int, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.CountListed")
	defer span.End()

	var total int
	if err := buildCountQuery(r.reader).Scan(ctx, &total); err != nil {
		return 0, fail(span, err, "count failed")
	}
	return total, nil
}

// Header loads one header regardless of the state of its lines.
func (r *Repository) Header(ctx context.Context, orderID int64) (*HeaderView, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Header", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	view := new(HeaderView)
	err := r.reader.NewSelect().
		TableExpr("orders AS op").
		ColumnExpr("op.id AS order_id, op.branch_id, op.order_type_id, op.status, op.deadline, op.archived").
		ColumnExpr("op.created_at, op.created_by, op.updated_at, op.updated_by").
		ColumnExpr("b.name AS branch_name, ot.name AS order_type_name, u.full_name AS creator_name").
		Join("JOIN branches AS b ON b.id = op.branch_id").
		Join("JOIN order_types AS ot ON ot.id = op.order_type_id").
		Join("JOIN users AS u ON u.id = op.created_by").
		Where("op.id = ?", orderID).
		Scan(ctx, view)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return view, nil
}

// ActiveLines returns the non-archived lines of an order in insertion order.
func (r *Repository) ActiveLines(ctx context.Context, orderID int64) ([]LineView, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ActiveLines", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	lines := make([]LineView, 0)
	err := lineSelect(r.reader).
		Where("opi.archived = ?", false).
		Where("opi.order_id = ?", orderID).
		OrderExpr("opi.id ASC").
		Scan(ctx, &lines)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fail(span, err, "select failed")
	}
	return lines, nil
}

// Line loads one line, archived or not, with its header context.
func (r *Repository) Line(ctx context.Context, itemID int64) (*LineEditView, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Line", trace.WithAttributes(attribute.Int64("order_line.id", itemID)))
	defer span.End()

	view := new(LineEditView)
	err := lineSelect(r.reader).
		ColumnExpr("op.order_type_id, b.name AS branch_name, u.full_name AS creator_name").
		Join("JOIN orders AS op ON op.id = opi.order_id").
		Join("JOIN branches AS b ON b.id = op.branch_id").
		Join("JOIN users AS u ON u.id = op.created_by").
		Where("opi.id = ?", itemID).
		Scan(ctx, view)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrLineNotFound
	}
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return view, nil
}

func lineSelect(db bun.IDB) *bun.SelectQuery {
	return db.NewSelect().
		TableExpr("order_line_items AS opi").
		ColumnExpr("opi.id AS item_id, opi.order_id, opi.product_id, opi.quantity, opi.unit_price_usd").
		ColumnExpr("opi.status, opi.archived, opi.created_at, opi.created_by").
		ColumnExpr("pn.name AS product_name, pn.model AS product_model").
		Join("JOIN products AS pn ON pn.id = opi.product_id")
}
