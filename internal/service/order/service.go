package order

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/orderdesk/service/order")
	serviceMeter  = otel.Meter("github.com/Additional-Code/orderdesk/service/order")
)

// Store is the persistence contract of the order workflows.
type Store interface {
	ResolveBranch(ctx context.Context, userID int64) (int64, error)
	CreateOrder(ctx context.Context, order *entity.Order) error
	OrderExists(ctx context.Context, orderID int64) (bool, error)
	WithLineBatch(ctx context.Context, fn func(ctx context.Context, w repo.LineWriter) error) error
	ApplyLineEdit(ctx context.Context, edit repo.LineEdit) error
	FindActiveLine(ctx context.Context, itemID, orderID int64) (*entity.OrderLineItem, error)
	ArchiveLine(ctx context.Context, itemID, orderID int64) (bool, error)
	SetDeadline(ctx context.Context, orderID int64, deadline time.Time, userID int64) (bool, error)
	SetStatus(ctx context.Context, orderID int64, status int16, userID int64) (bool, error)
	List(ctx context.Context, q repo.ListQuery) ([]repo.ListRow, error)
	CountListed(ctx context.Context) (int, error)
	Header(ctx context.Context, orderID int64) (*repo.HeaderView, error)
	ActiveLines(ctx context.Context, orderID int64) ([]repo.LineView, error)
	Line(ctx context.Context, itemID int64) (*repo.LineEditView, error)
}

// Catalog supplies the reference data rendered next to orders.
type Catalog interface {
	Lookups(ctx context.Context) (dto.Lookups, error)
	OrderTypes(ctx context.Context) ([]dto.NamedRef, error)
	NewOrderForm(ctx context.Context) (dto.NewOrderForm, error)
	StatusExists(ctx context.Context, status int16) (bool, error)
}

// Service runs the order lifecycle workflows.
type Service struct {
	store     Store
	catalog   Catalog
	publisher messaging.Client
	logger    *zap.Logger
	cfg       config.Orders
	publish   bool
	metrics   metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type metrics struct {
	created       metric.Int64Counter
	persisted     metric.Int64Counter
	skipped       metric.Int64Counter
	editAttempts  metric.Int64Counter
	editConflicts metric.Int64Counter
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store     Store
	Catalog   Catalog
	Publisher messaging.Client
	Config    config.Config
	Logger    *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) (*Service, error) {
	return New(p.Store, p.Catalog, p.Publisher, p.Logger, p.Config)
}

// New builds a Service from explicit collaborators.
func New(store Store, catalog Catalog, publisher messaging.Client, logger *zap.Logger, cfg config.Config) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := newMetrics(serviceMeter)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:     store,
		catalog:   catalog,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg.Orders,
		publish:   cfg.Messaging.Enabled,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepContext,
	}, nil
}

func newMetrics(meter metric.Meter) (metrics, error) {
	var (
		m   metrics
		err error
	)
	if m.created, err = meter.Int64Counter("orders.created", metric.WithDescription("Order headers created")); err != nil {
		return m, err
	}
	if m.persisted, err = meter.Int64Counter("orders.lines.persisted", metric.WithDescription("Order lines written by batches")); err != nil {
		return m, err
	}
	if m.skipped, err = meter.Int64Counter("orders.lines.skipped", metric.WithDescription("Batch lines skipped, by reason")); err != nil {
		return m, err
	}
	if m.editAttempts, err = meter.Int64Counter("orders.line_edit.attempts"); err != nil {
		return m, err
	}
	if m.editConflicts, err = meter.Int64Counter("orders.line_edit.conflicts"); err != nil {
		return m, err
	}
	return m, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ageDays is the number of whole days elapsed since createdAt.
func ageDays(now, createdAt time.Time) int64 {
	d := now.Sub(createdAt)
	if d < 0 {
		return 0
	}
	return int64(d / (24 * time.Hour))
}
