package order

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc    *Service
	store  *memStore
	pub    *recordingPublisher
	sleeps []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Config{
		Orders: config.Orders{
			RecentWindow:    100,
			DefaultLimit:    100,
			BrowseLimit:     10,
			MaxLimit:        1000,
			MaxEditAttempts: 3,
			EditBackoff:     50 * time.Millisecond,
		},
	}
	cfg.Messaging.Enabled = true

	h := &harness{store: newMemStore(), pub: &recordingPublisher{}}
	svc, err := New(h.store, stubCatalog{}, h.pub, zap.NewNop(), cfg)
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	svc.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	h.svc = svc
	return h
}

func batch(products, qty, usd []string) LineBatch {
	return LineBatch{ProductIDs: products, Quantities: qty, PricesUSD: usd}
}

func (h *harness) createOrder(t *testing.T, products ...string) int64 {
	t.Helper()
	qty := make([]string, len(products))
	usd := make([]string, len(products))
	for i := range products {
		qty[i] = "2"
		usd[i] = "9.99"
	}
	res, err := h.svc.Create(context.Background(), CreateInput{UserID: 1, OrderTypeID: "1", Lines: batch(products, qty, usd)})
	require.NoError(t, err)
	return res.OrderID
}

func TestCreatePersistsEveryValidLine(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:      1,
		OrderTypeID: "2",
		Lines:       batch([]string{"100", "101", "102"}, []string{"1", "2", "3"}, []string{"10", "20.5", "0"}),
	})

	require.NoError(t, err)
	assert.Equal(t, 3, res.Persisted)
	assert.Empty(t, res.Skipped)

	order := h.store.orders[res.OrderID]
	require.NotNil(t, order)
	assert.Equal(t, int64(10), order.BranchID)
	assert.Equal(t, int64(2), order.OrderTypeID)
	assert.Equal(t, entity.OrderStatusOpen, order.Status)
	assert.False(t, order.Archived)

	var quantities []int
	for id := int64(1); id <= 3; id++ {
		line := h.store.lines[id]
		require.NotNil(t, line)
		assert.Equal(t, res.OrderID, line.OrderID)
		assert.Equal(t, entity.LineStatusActive, line.Status)
		quantities = append(quantities, line.Quantity)
	}
	assert.Equal(t, []int{1, 2, 3}, quantities, "lines are written in input order")
	assert.True(t, decimal.RequireFromString("20.5").Equal(h.store.lines[2].UnitPriceUSD))
	assert.Equal(t, 1, h.store.batches)
	assert.Zero(t, h.store.batchesOpen)
	assert.Equal(t, []string{EventOrderCreated}, h.pub.events())
}

func TestCreateSkipsUnavailableProduct(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:      1,
		OrderTypeID: "1",
		Lines:       batch([]string{"100", "200", "101"}, []string{"1", "1", "1"}, []string{"1", "1", "1"}),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Persisted)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 1, res.Skipped[0].Index)
	assert.Equal(t, SkipProductMissing, res.Skipped[0].Reason)
	assert.Equal(t, 2, h.store.activeLineCount(res.OrderID))
}

func TestCreateSkipsInvalidLineInput(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:      1,
		OrderTypeID: "1",
		Lines: batch(
			[]string{"abc", "100", "101", "102", "999", "100"},
			[]string{"1", "0", "x", "1", "1", "4"},
			[]string{"1", "1", "1", "-3", "1", "2.50"},
		),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Persisted)
	reasons := make([]string, 0, len(res.Skipped))
	for _, s := range res.Skipped {
		reasons = append(reasons, s.Reason)
	}
	assert.Equal(t, []string{SkipInvalidProduct, SkipInvalidQuantity, SkipInvalidQuantity, SkipInvalidPrice, SkipProductMissing}, reasons)
}

func TestCreateSplitsCommaSeparatedValues(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:      1,
		OrderTypeID: "1",
		Lines:       batch([]string{"100, 101"}, []string{"1,2"}, []string{"3,4"}),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Persisted)
}

func TestCreateBranchResolutionAbortsBeforeAnyWrite(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:      99,
		OrderTypeID: "1",
		Lines:       batch([]string{"100"}, []string{"1"}, []string{"1"}),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBranchResolution)
	assert.True(t, errorbank.IsKind(err, errorbank.KindUnprocessableEntity))
	assert.Zero(t, res.OrderID)
	assert.Empty(t, h.store.orders)
	assert.Empty(t, h.pub.events())
}

func TestCreateMalformedBatchKeepsHeader(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:      1,
		OrderTypeID: "1",
		Lines:       batch([]string{"100", "101"}, []string{"1"}, []string{"1", "2"}),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedBatch)
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
	require.NotZero(t, res.OrderID, "header is already persisted")
	assert.Contains(t, h.store.orders, res.OrderID)
	assert.Zero(t, h.store.activeLineCount(res.OrderID))
	assert.Zero(t, h.store.batches)
}

func TestCreateRejectsMissingOrderTypeAndEmptyBatch(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Create(context.Background(), CreateInput{UserID: 1, OrderTypeID: "", Lines: batch([]string{"100"}, []string{"1"}, []string{"1"})})
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	_, err = h.svc.Create(context.Background(), CreateInput{UserID: 1, OrderTypeID: "1"})
	assert.ErrorIs(t, err, ErrMalformedBatch)
	assert.Empty(t, h.store.orders)
}

func TestCreateRejectsUnknownOrderTypeBeforeAnyWrite(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:      1,
		OrderTypeID: "999",
		Lines:       batch([]string{"100"}, []string{"1"}, []string{"1"}),
	})

	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
	assert.Equal(t, int64(999), errorbank.From(err).Details()["order_type_id"])
	assert.Zero(t, res.OrderID)
	assert.Empty(t, h.store.orders)
	assert.Empty(t, h.store.lines)
	assert.Empty(t, h.pub.events())
}

func TestCreateStopsOnDataAccessError(t *testing.T) {
	h := newHarness(t)
	h.store.insertErr = database.Classify(errStatement)
	h.store.insertErrAt = 2

	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:      1,
		OrderTypeID: "1",
		Lines:       batch([]string{"100", "101", "102"}, []string{"1", "1", "1"}, []string{"1", "1", "1"}),
	})

	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindInternal))
	assert.ErrorIs(t, err, database.ErrStatement)
	assert.NotZero(t, res.OrderID)
	assert.Equal(t, 1, res.Persisted)
	assert.Equal(t, 2, h.store.inserts, "batch stops at the failing line")
	assert.Zero(t, h.store.batchesOpen, "connection released on failure")
	assert.Empty(t, h.pub.events())
}

func TestAppendLines(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100")

	res, err := h.svc.AppendLines(context.Background(), AppendInput{
		UserID:  1,
		OrderID: orderID,
		Lines:   batch([]string{"101", "200"}, []string{"5", "1"}, []string{"1", "1"}),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Persisted)
	assert.Equal(t, 2, h.store.activeLineCount(orderID))
	assert.Equal(t, []string{EventOrderCreated, EventLinesAppended}, h.pub.events())
}

func TestAppendLinesErrors(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100")

	_, err := h.svc.AppendLines(context.Background(), AppendInput{UserID: 1, OrderID: 404, Lines: batch([]string{"100"}, []string{"1"}, []string{"1"})})
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))

	_, err = h.svc.AppendLines(context.Background(), AppendInput{UserID: 1, OrderID: orderID, Lines: batch([]string{"100", "101"}, []string{"1"}, []string{"1"})})
	assert.ErrorIs(t, err, ErrMalformedBatch)
	assert.Equal(t, 1, h.store.activeLineCount(orderID), "misaligned batch writes nothing")
}

func TestUpdateLineRetriesConflictsUntilApplied(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100")
	h.store.conflictsLeft = 2

	err := h.svc.UpdateLine(context.Background(), LineUpdate{UserID: 1, ItemID: 1, OrderID: orderID, Quantity: 7, OrderTypeID: 2})

	require.NoError(t, err)
	assert.Equal(t, 3, h.store.applyCalls)
	assert.Equal(t, 7, h.store.lines[1].Quantity)
	assert.Equal(t, int64(2), h.store.orders[orderID].OrderTypeID)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, h.sleeps)

	events := h.pub.events()
	assert.Equal(t, []string{EventOrderCreated, EventLineUpdated}, events, "applied once")
}

func TestUpdateLineExhaustedRetriesLeaveStateUnchanged(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100")
	h.store.conflictsLeft = 3

	err := h.svc.UpdateLine(context.Background(), LineUpdate{UserID: 1, ItemID: 1, OrderID: orderID, Quantity: 7, OrderTypeID: 2})

	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindInternal))
	assert.ErrorIs(t, err, database.ErrWriteConflict)
	assert.Contains(t, errorbank.From(err).Reason(), "Deadlock found")
	assert.Equal(t, 3, h.store.applyCalls)
	assert.Equal(t, 2, h.store.lines[1].Quantity)
	assert.Equal(t, int64(1), h.store.orders[orderID].OrderTypeID)
	assert.Len(t, h.sleeps, 2, "no backoff after the final attempt")
}

func TestUpdateLineDoesNotRetryOtherFailures(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100")
	h.store.editErr = database.Classify(errStatement)

	err := h.svc.UpdateLine(context.Background(), LineUpdate{UserID: 1, ItemID: 1, OrderID: orderID, Quantity: 3, OrderTypeID: 1})

	assert.True(t, errorbank.IsKind(err, errorbank.KindInternal))
	assert.Equal(t, 1, h.store.applyCalls)
	assert.Empty(t, h.sleeps)
}

func TestUpdateLineValidationAndNotFound(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100")

	err := h.svc.UpdateLine(context.Background(), LineUpdate{UserID: 1, ItemID: 1, OrderID: orderID, Quantity: 0, OrderTypeID: 1})
	assert.ErrorIs(t, err, ErrLineValidation)
	assert.Zero(t, h.store.applyCalls, "rejected before persistence")

	err = h.svc.UpdateLine(context.Background(), LineUpdate{UserID: 1, ItemID: 1, OrderID: orderID + 1, Quantity: 2, OrderTypeID: 1})
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestUpdateLineRejectsUnknownOrderType(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100")

	err := h.svc.UpdateLine(context.Background(), LineUpdate{UserID: 1, ItemID: 1, OrderID: orderID, Quantity: 4, OrderTypeID: 42})

	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
	assert.Zero(t, h.store.applyCalls)
	assert.Equal(t, int64(1), h.store.orders[orderID].OrderTypeID)
}

func TestArchiveLineTwice(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100", "101")

	require.NoError(t, h.svc.ArchiveLine(context.Background(), 1, 1, orderID))
	err := h.svc.ArchiveLine(context.Background(), 1, 1, orderID)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFoundOrAlreadyArchived)
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
	assert.True(t, h.store.lines[1].Archived)
	assert.False(t, h.store.orders[orderID].Archived, "header untouched")
}

func TestArchiveLineRejectsForeignOrder(t *testing.T) {
	h := newHarness(t)
	first := h.createOrder(t, "100")
	second := h.createOrder(t, "101")

	err := h.svc.ArchiveLine(context.Background(), 1, 1, second)

	assert.ErrorIs(t, err, ErrNotFoundOrAlreadyArchived)
	assert.False(t, h.store.lines[1].Archived)
	assert.NotEqual(t, first, second)
}

func TestFullyArchivedOrderLeavesListingButKeepsDetail(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100")
	require.NoError(t, h.svc.ArchiveLine(context.Background(), 1, 1, orderID))

	page, err := h.svc.Search(context.Background(), SearchInput{})
	require.NoError(t, err)
	assert.Empty(t, page.Data)

	detail, err := h.svc.Detail(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, orderID, detail.Order.OrderID)
	assert.NotNil(t, detail.Lines)
	assert.Empty(t, detail.Lines)

	raw, err := json.Marshal(detail)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"lines":[]`)
}

func TestSearchRecentPathIgnoresPaging(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.createOrder(t, "100")
	}

	page, err := h.svc.Search(context.Background(), SearchInput{Page: 4, Limit: 1})

	require.NoError(t, err)
	assert.Len(t, page.Data, 3)
	require.Len(t, h.store.queries, 1)
	q := h.store.queries[0]
	assert.True(t, q.Recent())
	assert.Equal(t, repo.Window{Start: 1, End: 100}, q.Window())
}

func TestSearchFilteredWindow(t *testing.T) {
	h := newHarness(t)
	base := fixedNow.Add(-30 * 24 * time.Hour)
	for i := 0; i < 25; i++ {
		h.svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		h.createOrder(t, "100")
	}
	h.svc.now = func() time.Time { return fixedNow }

	page, err := h.svc.Search(context.Background(), SearchInput{BranchID: "10", Page: 2, Limit: 10})

	require.NoError(t, err)
	require.Len(t, page.Data, 10)
	// newest first: rows 11..20 are orders 15 down to 6.
	assert.Equal(t, int64(15), page.Data[0].OrderID)
	assert.Equal(t, int64(6), page.Data[9].OrderID)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.Limit)
}

func TestSearchFilterParsing(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Search(context.Background(), SearchInput{BranchID: "north"})
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	_, err = h.svc.Search(context.Background(), SearchInput{From: "03/01/2024"})
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	_, err = h.svc.Search(context.Background(), SearchInput{From: "2024-03-01", To: "2024-03-02", Limit: 5000})
	require.NoError(t, err)
	q := h.store.queries[len(h.store.queries)-1]
	require.NotNil(t, q.Filter.To)
	assert.Equal(t, time.Date(2024, 3, 2, 23, 59, 59, 999999999, time.UTC), *q.Filter.To)
	assert.Equal(t, 1000, q.Limit)
}

func TestBrowseTotals(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 23; i++ {
		h.createOrder(t, "100")
	}

	page, err := h.svc.Browse(context.Background(), 3, 0)

	require.NoError(t, err)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, 23, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Data, 3)
	assert.Equal(t, "North", page.Lookups.Branches[0].Name)
	assert.False(t, h.store.queries[0].Recent())
}

func TestAgeDaysFloors(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(2), ageDays(now, now.Add(-(2*24+3)*time.Hour)))
	assert.Equal(t, int64(0), ageDays(now, now.Add(-23*time.Hour)))
	assert.Equal(t, int64(0), ageDays(now, now.Add(time.Hour)))
}

func TestDetailComputesAge(t *testing.T) {
	h := newHarness(t)
	h.svc.now = func() time.Time { return fixedNow.Add(-(2*24 + 3) * time.Hour) }
	orderID := h.createOrder(t, "100")
	h.svc.now = func() time.Time { return fixedNow }

	detail, err := h.svc.Detail(context.Background(), orderID)

	require.NoError(t, err)
	assert.Equal(t, int64(2), detail.Order.AgeDays)
	assert.Len(t, detail.Lines, 1)

	_, err = h.svc.Detail(context.Background(), 999)
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestGetLine(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100")

	view, err := h.svc.GetLine(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, orderID, view.Line.OrderID)
	assert.Len(t, view.OrderTypes, 2)

	_, err = h.svc.GetLine(context.Background(), 42)
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestSetDeadline(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100")

	require.NoError(t, h.svc.SetDeadline(context.Background(), 1, orderID, "2024-04-01"))
	require.NotNil(t, h.store.orders[orderID].Deadline)
	assert.Equal(t, "2024-04-01", h.store.orders[orderID].Deadline.Format("2006-01-02"))

	err := h.svc.SetDeadline(context.Background(), 1, orderID, "soon")
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	err = h.svc.SetDeadline(context.Background(), 1, 999, "2024-04-01")
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestSetStatus(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100")

	require.NoError(t, h.svc.SetStatus(context.Background(), 1, orderID, 2))
	assert.Equal(t, int16(2), h.store.orders[orderID].Status)

	err := h.svc.SetStatus(context.Background(), 1, orderID, 9)
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	err = h.svc.SetStatus(context.Background(), 1, 999, 2)
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestPublishFailureDoesNotFailWorkflow(t *testing.T) {
	h := newHarness(t)
	h.pub.err = errors.New("broker unavailable")

	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:      1,
		OrderTypeID: "1",
		Lines:       batch([]string{"100"}, []string{"1"}, []string{"1"}),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Persisted)
}

func TestEventPayload(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "100", "101")

	require.Len(t, h.pub.msgs, 1)
	msg := h.pub.msgs[0]
	assert.Equal(t, "order-1", msg.key)

	var ev Event
	require.NoError(t, json.Unmarshal(msg.value, &ev))
	assert.Equal(t, EventOrderCreated, ev.Type)
	assert.Equal(t, orderID, ev.OrderID)
	assert.Equal(t, 2, ev.Lines)
	assert.NotEmpty(t, ev.ID)
	assert.True(t, fixedNow.Equal(ev.OccurredAt))
}
