package order

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/Additional-Code/orderdesk/internal/database"
)

// recordingConn is a database/sql driver connection that logs every statement
// it receives. EXISTS queries answer with exists; updates report affected rows
// unless the statement contains failOn.
type recordingConn struct {
	mu         sync.Mutex
	statements []string
	exists     bool
	affected   int64
	failOn     string
	failErr    error
}

func (c *recordingConn) record(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements = append(c.statements, query)
}

func (c *recordingConn) log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.statements...)
}

func (c *recordingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements are not supported")
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *recordingConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.record("BEGIN")
	return recordingTx{conn: c}, nil
}

func (c *recordingConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.record(query)
	if c.failOn != "" && strings.Contains(query, c.failOn) {
		return nil, c.failErr
	}
	return driver.RowsAffected(c.affected), nil
}

func (c *recordingConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.record(query)
	return &existsRows{value: c.exists}, nil
}

type recordingTx struct {
	conn *recordingConn
}

func (t recordingTx) Commit() error {
	t.conn.record("COMMIT")
	return nil
}

func (t recordingTx) Rollback() error {
	t.conn.record("ROLLBACK")
	return nil
}

type existsRows struct {
	value bool
	done  bool
}

func (r *existsRows) Columns() []string { return []string{"exists"} }

func (r *existsRows) Close() error { return nil }

func (r *existsRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	dest[0] = r.value
	return nil
}

type recordingConnector struct {
	conn *recordingConn
}

func (c recordingConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }

func (c recordingConnector) Driver() driver.Driver { return recordingDriver(c) }

type recordingDriver recordingConnector

func (d recordingDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func newRecordingRepository(t *testing.T, conn *recordingConn) *Repository {
	t.Helper()
	db := bun.NewDB(sql.OpenDB(recordingConnector{conn: conn}), pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return &Repository{writer: db, reader: db}
}

func TestApplyLineEditCommitsBothUpdatesInOneTransaction(t *testing.T) {
	conn := &recordingConn{exists: true, affected: 1}
	repo := newRecordingRepository(t, conn)

	err := repo.ApplyLineEdit(context.Background(), LineEdit{ItemID: 4, OrderID: 9, Quantity: 7, OrderTypeID: 2, UserID: 5})
	require.NoError(t, err)

	stmts := conn.log()
	require.Len(t, stmts, 5)
	assert.Equal(t, "BEGIN", stmts[0])
	assert.True(t, strings.HasPrefix(stmts[1], "SELECT EXISTS ("), stmts[1])
	assert.Contains(t, stmts[1], "opi.order_id = 9")
	assert.Contains(t, stmts[2], `UPDATE "order_line_items"`)
	assert.Contains(t, stmts[2], "SET quantity = 7")
	assert.Contains(t, stmts[3], `UPDATE "orders"`)
	assert.Contains(t, stmts[3], "order_type_id = 2")
	assert.Contains(t, stmts[3], "updated_by = 5")
	assert.Equal(t, "COMMIT", stmts[4])
}

func TestApplyLineEditRollsBackQuantityWhenHeaderUpdateFails(t *testing.T) {
	conn := &recordingConn{
		exists:   true,
		affected: 1,
		failOn:   `UPDATE "orders"`,
		failErr:  &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"},
	}
	repo := newRecordingRepository(t, conn)

	err := repo.ApplyLineEdit(context.Background(), LineEdit{ItemID: 4, OrderID: 9, Quantity: 7, OrderTypeID: 2, UserID: 5})

	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrWriteConflict)

	stmts := conn.log()
	require.Len(t, stmts, 5)
	assert.Contains(t, stmts[2], "SET quantity = 7")
	assert.Equal(t, "ROLLBACK", stmts[4])
	assert.NotContains(t, stmts, "COMMIT")
}

func TestApplyLineEditMissingLineWritesNothing(t *testing.T) {
	conn := &recordingConn{exists: false, affected: 1}
	repo := newRecordingRepository(t, conn)

	err := repo.ApplyLineEdit(context.Background(), LineEdit{ItemID: 4, OrderID: 9, Quantity: 7, OrderTypeID: 2, UserID: 5})

	assert.ErrorIs(t, err, ErrLineNotFound)
	stmts := conn.log()
	require.Len(t, stmts, 3)
	assert.Equal(t, "ROLLBACK", stmts[2])
	for _, stmt := range stmts {
		assert.NotContains(t, stmt, "UPDATE")
	}
}

func TestArchiveLineReportsWhetherAnActiveLineMatched(t *testing.T) {
	conn := &recordingConn{affected: 1}
	repo := newRecordingRepository(t, conn)

	ok, err := repo.ArchiveLine(context.Background(), 4, 9)
	require.NoError(t, err)
	assert.True(t, ok)

	conn.affected = 0
	ok, err = repo.ArchiveLine(context.Background(), 4, 9)
	require.NoError(t, err)
	assert.False(t, ok, "already archived lines do not match")

	stmts := conn.log()
	require.Len(t, stmts, 2)
	assert.Equal(t, stmts[0], stmts[1])
}

func TestArchiveLineQueryGuardsActiveLines(t *testing.T) {
	query := archiveLineQuery(newRenderDB(t), 4, 9).String()

	assert.Contains(t, query, `UPDATE "order_line_items"`)
	assert.Contains(t, query, "SET archived = TRUE")
	assert.Contains(t, query, "(id = 4)")
	assert.Contains(t, query, "(order_id = 9)")
	assert.Contains(t, query, "(archived = FALSE)")
}

func TestLineEditQueries(t *testing.T) {
	db := newRenderDB(t)
	edit := LineEdit{ItemID: 4, OrderID: 9, Quantity: 3, OrderTypeID: 2, UserID: 5}

	exists := lineInOrderQuery(db, edit.ItemID, edit.OrderID).String()
	assert.Contains(t, exists, "(opi.id = 4)")
	assert.Contains(t, exists, "(opi.order_id = 9)")

	quantity := lineQuantityQuery(db, edit).String()
	assert.Contains(t, quantity, "SET quantity = 3")
	assert.Contains(t, quantity, "(id = 4)")

	header := headerTypeQuery(db, edit, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)).String()
	assert.Contains(t, header, `UPDATE "orders"`)
	assert.Contains(t, header, "order_type_id = 2")
	assert.Contains(t, header, "updated_at = '2024-03-10 12:00:00+00:00'")
	assert.Contains(t, header, "updated_by = 5")
	assert.Contains(t, header, "(id = 9)")
}

func TestBranchQueryJoinsUsersOnBranchKey(t *testing.T) {
	query := branchQuery(newRenderDB(t), 7).String()

	assert.Contains(t, query, "FROM branches AS b")
	assert.Contains(t, query, "JOIN users AS u ON u.branch_key = b.key")
	assert.Contains(t, query, "(u.id = 7)")
	assert.Contains(t, query, "LIMIT 1")
}
