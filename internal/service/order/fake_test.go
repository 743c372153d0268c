package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
)

var errDeadlock = database.Classify(&mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})

type memStore struct {
	mu sync.Mutex

	nextOrderID int64
	nextLineID  int64
	userBranch  map[int64]int64
	// products maps id to its archived flag.
	products map[int64]bool
	orders   map[int64]*entity.Order
	lines    map[int64]*entity.OrderLineItem

	conflictsLeft int
	editErr       error
	applyCalls    int
	insertErr     error
	insertErrAt   int
	inserts       int
	batchesOpen   int
	batches       int
	queries       []repo.ListQuery
}

func newMemStore() *memStore {
	return &memStore{
		userBranch: map[int64]int64{1: 10},
		products:   map[int64]bool{100: false, 101: false, 102: false, 200: true},
		orders:     map[int64]*entity.Order{},
		lines:      map[int64]*entity.OrderLineItem{},
	}
}

func (m *memStore) ResolveBranch(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.userBranch[userID]
	if !ok {
		return 0, repo.ErrBranchNotFound
	}
	return b, nil
}

func (m *memStore) CreateOrder(_ context.Context, o *entity.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOrderID++
	o.ID = m.nextOrderID
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memStore) OrderExists(_ context.Context, orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.orders[orderID]
	return ok, nil
}

func (m *memStore) WithLineBatch(ctx context.Context, fn func(ctx context.Context, w repo.LineWriter) error) error {
	m.mu.Lock()
	m.batches++
	m.batchesOpen++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.batchesOpen--
		m.mu.Unlock()
	}()
	return fn(ctx, memWriter{m})
}

type memWriter struct{ m *memStore }

func (w memWriter) ProductAvailable(_ context.Context, productID int64) (bool, error) {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	archived, ok := w.m.products[productID]
	return ok && !archived, nil
}

func (w memWriter) InsertLine(_ context.Context, line *entity.OrderLineItem) error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	w.m.inserts++
	if w.m.insertErr != nil && w.m.inserts == w.m.insertErrAt {
		return w.m.insertErr
	}
	w.m.nextLineID++
	line.ID = w.m.nextLineID
	cp := *line
	w.m.lines[line.ID] = &cp
	return nil
}

// ApplyLineEdit applies both writes or neither.
func (m *memStore) ApplyLineEdit(_ context.Context, edit repo.LineEdit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.editErr != nil {
		return m.editErr
	}
	line, ok := m.lines[edit.ItemID]
	if !ok || line.OrderID != edit.OrderID {
		return repo.ErrLineNotFound
	}
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		return errDeadlock
	}
	line.Quantity = edit.Quantity
	order := m.orders[edit.OrderID]
	order.OrderTypeID = edit.OrderTypeID
	by := edit.UserID
	order.UpdatedBy = &by
	return nil
}

func (m *memStore) FindActiveLine(_ context.Context, itemID, orderID int64) (*entity.OrderLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	line, ok := m.lines[itemID]
	if !ok || line.OrderID != orderID || line.Archived {
		return nil, repo.ErrLineNotFound
	}
	cp := *line
	return &cp, nil
}

func (m *memStore) ArchiveLine(_ context.Context, itemID, orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	line, ok := m.lines[itemID]
	if !ok || line.OrderID != orderID || line.Archived {
		return false, nil
	}
	line.Archived = true
	return true, nil
}

func (m *memStore) SetDeadline(_ context.Context, orderID int64, deadline time.Time, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, nil
	}
	o.Deadline = &deadline
	o.UpdatedBy = &userID
	return true, nil
}

func (m *memStore) SetStatus(_ context.Context, orderID int64, status int16, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, nil
	}
	o.Status = status
	o.UpdatedBy = &userID
	return true, nil
}

// listed mirrors the aggregated listing: orders with at least one active
// line, newest first.
func (m *memStore) listed(f repo.Filter) []repo.ListRow {
	totals := map[int64]int64{}
	for _, l := range m.lines {
		if !l.Archived {
			totals[l.OrderID] += int64(l.Quantity)
		}
	}
	rows := make([]repo.ListRow, 0, len(totals))
	for id, qty := range totals {
		o := m.orders[id]
		if f.BranchID != 0 && o.BranchID != f.BranchID {
			continue
		}
		if f.Status != 0 && o.Status != f.Status {
			continue
		}
		if f.OrderTypeID != 0 && o.OrderTypeID != f.OrderTypeID {
			continue
		}
		rows = append(rows, repo.ListRow{OrderID: id, CreatedAt: o.CreatedAt, Status: o.Status, TotalQuantity: qty})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].OrderID > rows[j].OrderID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows
}

func (m *memStore) List(_ context.Context, q repo.ListQuery) ([]repo.ListRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)

	rows := m.listed(q.Filter)
	w := q.Window()
	if w.Offset() >= len(rows) {
		return []repo.ListRow{}, nil
	}
	end := w.Offset() + w.Size()
	if end > len(rows) {
		end = len(rows)
	}
	return rows[w.Offset():end], nil
}

func (m *memStore) CountListed(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listed(repo.Filter{})), nil
}

func (m *memStore) Header(_ context.Context, orderID int64) (*repo.HeaderView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &repo.HeaderView{
		OrderID:     o.ID,
		BranchID:    o.BranchID,
		OrderTypeID: o.OrderTypeID,
		Status:      o.Status,
		Deadline:    o.Deadline,
		CreatedAt:   o.CreatedAt,
		CreatedBy:   o.CreatedBy,
	}, nil
}

func (m *memStore) ActiveLines(_ context.Context, orderID int64) ([]repo.LineView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]repo.LineView, 0)
	for _, l := range m.lines {
		if l.OrderID == orderID && !l.Archived {
			out = append(out, repo.LineView{ItemID: l.ID, OrderID: l.OrderID, ProductID: l.ProductID, Quantity: l.Quantity, UnitPriceUSD: l.UnitPriceUSD})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (m *memStore) Line(_ context.Context, itemID int64) (*repo.LineEditView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lines[itemID]
	if !ok {
		return nil, repo.ErrLineNotFound
	}
	return &repo.LineEditView{
		LineView:    repo.LineView{ItemID: l.ID, OrderID: l.OrderID, ProductID: l.ProductID, Quantity: l.Quantity, Archived: l.Archived},
		OrderTypeID: m.orders[l.OrderID].OrderTypeID,
	}, nil
}

func (m *memStore) activeLineCount(orderID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.lines {
		if l.OrderID == orderID && !l.Archived {
			n++
		}
	}
	return n
}

type stubCatalog struct{}

func (stubCatalog) Lookups(context.Context) (dto.Lookups, error) {
	return dto.Lookups{Branches: []dto.NamedRef{{ID: 10, Name: "North"}}}, nil
}

func (stubCatalog) OrderTypes(context.Context) ([]dto.NamedRef, error) {
	return []dto.NamedRef{{ID: 1, Name: "Regular"}, {ID: 2, Name: "Urgent"}}, nil
}

func (stubCatalog) NewOrderForm(context.Context) (dto.NewOrderForm, error) {
	return dto.NewOrderForm{OrderTypes: []dto.NamedRef{{ID: 1, Name: "Regular"}}}, nil
}

func (stubCatalog) StatusExists(_ context.Context, status int16) (bool, error) {
	return status >= 1 && status <= 3, nil
}

type published struct {
	key     string
	value   []byte
	headers map[string]string
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key, value []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{key: string(key), value: value, headers: headers})
	return nil
}

func (p *recordingPublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *recordingPublisher) Topic() string { return "orderdesk.orders" }

func (p *recordingPublisher) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.headers[messaging.HeaderEventType])
	}
	return out
}

var errStatement = errors.New("statement failed")
