package order

import (
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Filter narrows the order listing. Zero values mean the filter is absent.
type Filter struct {
	BranchID    int64
	OrderTypeID int64
	Status      int16
	From        *time.Time
	To          *time.Time
}

// Empty reports whether no optional filter is set.
func (f Filter) Empty() bool {
	return f.BranchID == 0 && f.OrderTypeID == 0 && f.Status == 0 && f.From == nil && f.To == nil
}

// Predicate is one parameterised WHERE condition.
type Predicate struct {
	Query string
	Arg   any
}

// Predicates returns the mandatory archived-line predicate followed by one
// predicate per present filter, in a fixed order.
func (f Filter) Predicates() []Predicate {
	preds := []Predicate{{Query: "opi.archived = ?", Arg: false}}
	if f.BranchID != 0 {
		preds = append(preds, Predicate{Query: "op.branch_id = ?", Arg: f.BranchID})
	}
	if f.OrderTypeID != 0 {
		preds = append(preds, Predicate{Query: "op.order_type_id = ?", Arg: f.OrderTypeID})
	}
	if f.Status != 0 {
		preds = append(preds, Predicate{Query: "op.status = ?", Arg: f.Status})
	}
	if f.From != nil {
		preds = append(preds, Predicate{Query: "op.created_at >= ?", Arg: *f.From})
	}
	if f.To != nil {
		preds = append(preds, Predicate{Query: "op.created_at <= ?", Arg: *f.To})
	}
	return preds
}

// Window is an inclusive, 1-based row range of the ordered result set.
type Window struct {
	Start int
	End   int
}

// Size is the number of rows the window covers.
func (w Window) Size() int {
	return w.End - w.Start + 1
}

// Offset is the zero-based offset of the first row.
func (w Window) Offset() int {
	return w.Start - 1
}

// ListQuery describes one listing read.
type ListQuery struct {
	Filter Filter
	Page   int
	Limit  int
	// RecentWindow caps an unfiltered read to the most recent rows.
	RecentWindow int
	// Paginate forces page-based windows even when no filter is set.
	Paginate bool
}

// Recent reports whether the query takes the unfiltered most-recent path.
func (q ListQuery) Recent() bool {
	return q.Filter.Empty() && !q.Paginate
}

// Window resolves the row range to read. The recent path ignores Page and
// Limit entirely; the paginated path covers [(p-1)*l+1, p*l].
func (q ListQuery) Window() Window {
	if q.Recent() {
		size := q.RecentWindow
		if size < 1 {
			size = 1
		}
		return Window{Start: 1, End: size}
	}
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	return Window{Start: (page-1)*limit + 1, End: page * limit}
}

type listColumn struct {
	expr  string
	alias string
	// grouped columns appear in GROUP BY; the rest must aggregate.
	grouped bool
}

var listColumns = []listColumn{
	{expr: "op.id", alias: "order_id", grouped: true},
	{expr: "op.deadline", alias: "deadline", grouped: true},
	{expr: "op.created_at", alias: "created_at", grouped: true},
	{expr: "op.created_by", alias: "created_by", grouped: true},
	{expr: "op.updated_at", alias: "updated_at", grouped: true},
	{expr: "op.updated_by", alias: "updated_by", grouped: true},
	{expr: "op.status", alias: "status", grouped: true},
	{expr: "b.name", alias: "branch_name", grouped: true},
	{expr: "ot.name", alias: "order_type_name", grouped: true},
	{expr: "u.full_name", alias: "user_name", grouped: true},
	{expr: "SUM(opi.quantity)", alias: "total_quantity"},
}

// daysSinceCreated renders whole calendar days between op.created_at and today.
// It only references grouped columns.
func daysSinceCreated(name dialect.Name) string {
	switch name {
	case dialect.MySQL:
		return "DATEDIFF(CURRENT_DATE, op.created_at)"
	case dialect.SQLite:
		return "CAST(julianday(date('now')) - julianday(date(op.created_at)) AS INTEGER)"
	default:
		return "(CURRENT_DATE - CAST(op.created_at AS DATE))"
	}
}

// listedOrders joins headers to their non-archived lines; every listing read
// and count starts from it.
func listedOrders(db bun.IDB) *bun.SelectQuery {
	return db.NewSelect().
		TableExpr("orders AS op").
		Join("JOIN branches AS b ON b.id = op.branch_id").
		Join("JOIN order_types AS ot ON ot.id = op.order_type_id").
		Join("JOIN users AS u ON u.id = op.created_by").
		Join("JOIN order_line_items AS opi ON opi.order_id = op.id")
}

// buildListQuery renders q as a single aggregated, windowed read.
func buildListQuery(db bun.IDB, q ListQuery) *bun.SelectQuery {
	sel := listedOrders(db)
	for _, col := range listColumns {
		sel = sel.ColumnExpr(col.expr + " AS " + col.alias)
	}
	sel = sel.ColumnExpr(daysSinceCreated(db.Dialect().Name()) + " AS difference")

	for _, p := range q.Filter.Predicates() {
		sel = sel.Where(p.Query, p.Arg)
	}
	for _, col := range listColumns {
		if col.grouped {
			sel = sel.GroupExpr(col.expr)
		}
	}

	w := q.Window()
	return sel.OrderExpr("op.created_at DESC").
		Limit(w.Size()).
		Offset(w.Offset())
}

func buildCountQuery(db bun.IDB) *bun.SelectQuery {
	return listedOrders(db).
		ColumnExpr("COUNT(DISTINCT op.id)").
		Where("opi.archived = ?", false)
}
