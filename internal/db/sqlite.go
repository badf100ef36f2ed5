// Package db is the persistence gateway. It owns the pooled connection to the
// relational store and exposes exactly two primitives, ExecuteQuery and
// ExecuteProcedure. Every value reaches SQL through named parameters.
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/RichardoC/realty-assistant/internal/config"
	"github.com/RichardoC/realty-assistant/internal/trace"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var errClosed = errors.New("database is closed")

// Params are bound by name; a key "id" fills the "@id" placeholder.
type Params map[string]any

func (p Params) args() []any {
	if len(p) == 0 {
		return nil
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, sql.Named(k, p[k]))
	}
	return args
}

// ScanFunc is called once per result row.
type ScanFunc func(rows *sql.Rows) error

// Result reports rows affected by a write, or rows scanned by a read.
type Result struct {
	RowsAffected int64
	// Out holds values a procedure reports back to its caller.
	Out Params
}

// Executor runs a single parameterized statement. It is implemented by the
// Database itself and by the transaction handed to procedures.
type Executor interface {
	ExecuteQuery(ctx context.Context, op, stmt string, params Params, scan ScanFunc) (Result, error)
}

// Procedure is a named multi-statement unit run inside one transaction.
type Procedure func(ctx context.Context, tx Executor, params Params) (Result, error)

// Health is a snapshot of the connection state.
type Health struct {
	Connected   bool       `json:"connected"`
	MaxOpen     int        `json:"poolSize"`
	Open        int        `json:"open"`
	InUse       int        `json:"inUse"`
	Idle        int        `json:"available"`
	WaitCount   int64      `json:"waitCount"`
	LastQueryAt *time.Time `json:"lastQueryAt,omitempty"`
}

type Database struct {
	cfg    config.DatabaseConfig
	logger *zap.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool

	procMu sync.RWMutex
	procs  map[string]Procedure

	lastQuery atomic.Int64
}

// New opens the pool, applies the schema and validates the connection with a
// trivial round trip.
func New(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Database{
		cfg:    cfg,
		logger: logger.Named("db"),
		procs:  make(map[string]Procedure),
	}
	if _, err := d.conn(ctx); err != nil {
		return nil, err
	}
	d.logger.Info("database initialized", zap.String("path", cfg.Path))
	return d, nil
}

func (d *Database) dsn() string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	if d.cfg.BusyTimeoutMS > 0 {
		q.Set("_busy_timeout", strconv.Itoa(d.cfg.BusyTimeoutMS))
	}
	return "file:" + d.cfg.Path + "?" + q.Encode()
}

// conn returns the live pool, opening it on first use or after a detected
// disconnect.
func (d *Database) conn(ctx context.Context) (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errClosed
	}
	if d.db != nil {
		return d.db, nil
	}

	db, err := sql.Open("sqlite3", d.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if d.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(d.cfg.MaxOpenConns)
	}
	db.SetMaxIdleConns(d.cfg.MaxIdleConns)
	if d.cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(d.cfg.ConnMaxLifetime)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		db.Close()
		return nil, fmt.Errorf("validating connection: %w", err)
	}

	d.db = db
	d.touch()
	return db, nil
}

// dropIfDisconnected discards the pool when err signals a broken connection,
// so the next call reconnects.
func (d *Database) dropIfDisconnected(db *sql.DB, err error) {
	if !errors.Is(err, driver.ErrBadConn) && !errors.Is(err, sql.ErrConnDone) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == db {
		d.logger.Warn("connection lost, will reconnect on next use", zap.Error(err))
		d.db.Close()
		d.db = nil
	}
}

func (d *Database) touch() {
	d.lastQuery.Store(time.Now().UnixNano())
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func run(ctx context.Context, q queryer, stmt string, params Params, scan ScanFunc) (Result, error) {
	args := params.args()
	if scan == nil {
		res, err := q.ExecContext(ctx, stmt, args...)
		if err != nil {
			return Result{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return Result{}, err
		}
		return Result{RowsAffected: n}, nil
	}

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		if err := scan(rows); err != nil {
			return Result{}, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return Result{RowsAffected: n}, nil
}

// ExecuteQuery runs stmt with params. With a nil scan the statement is
// executed and RowsAffected reports the rows written; otherwise scan is called
// for every result row and RowsAffected reports the rows read. op labels the
// statement in logs and errors.
func (d *Database) ExecuteQuery(ctx context.Context, op, stmt string, params Params, scan ScanFunc) (Result, error) {
	db, err := d.conn(ctx)
	if err != nil {
		d.logger.Error("database unavailable", zap.String("op", op), zap.String("request_id", trace.FromContext(ctx)), zap.Error(err))
		return Result{}, apperr.Persistence(op, err)
	}

	start := time.Now()
	res, err := run(ctx, db, stmt, params, scan)
	if err != nil {
		d.dropIfDisconnected(db, err)
		d.logger.Error("query failed", zap.String("op", op), zap.String("request_id", trace.FromContext(ctx)), zap.Error(err))
		return Result{}, apperr.Persistence(op, err)
	}
	d.touch()
	d.logger.Debug("query executed",
		zap.String("op", op),
		zap.Int64("rows", res.RowsAffected),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// RegisterProcedure makes proc callable through ExecuteProcedure. Registering
// the same name twice replaces the earlier procedure.
func (d *Database) RegisterProcedure(name string, proc Procedure) {
	d.procMu.Lock()
	defer d.procMu.Unlock()
	d.procs[name] = proc
}

// ExecuteProcedure runs the named procedure inside a single transaction. Any
// error rolls back every statement the procedure issued.
func (d *Database) ExecuteProcedure(ctx context.Context, name string, params Params) (Result, error) {
	d.procMu.RLock()
	proc, ok := d.procs[name]
	d.procMu.RUnlock()
	if !ok {
		return Result{}, apperr.Persistence(name, fmt.Errorf("unknown procedure %q", name))
	}

	db, err := d.conn(ctx)
	if err != nil {
		return Result{}, apperr.Persistence(name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		d.dropIfDisconnected(db, err)
		return Result{}, apperr.Persistence(name, fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	res, err := proc(ctx, &txExecutor{tx: tx, logger: d.logger}, params)
	if err != nil {
		d.logger.Debug("procedure rolled back", zap.String("procedure", name), zap.String("request_id", trace.FromContext(ctx)), zap.Error(err))
		if apperr.KindOf(err) == apperr.KindInternal {
			return Result{}, apperr.Persistence(name, err)
		}
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		d.dropIfDisconnected(db, err)
		return Result{}, apperr.Persistence(name, fmt.Errorf("committing transaction: %w", err))
	}
	d.touch()
	return res, nil
}

type txExecutor struct {
	tx     *sql.Tx
	logger *zap.Logger
}

func (t *txExecutor) ExecuteQuery(ctx context.Context, op, stmt string, params Params, scan ScanFunc) (Result, error) {
	res, err := run(ctx, t.tx, stmt, params, scan)
	if err != nil {
		t.logger.Error("query failed", zap.String("op", op), zap.String("request_id", trace.FromContext(ctx)), zap.Error(err))
		return Result{}, apperr.Persistence(op, err)
	}
	return res, nil
}

// Ping performs a round trip, reconnecting if needed.
func (d *Database) Ping(ctx context.Context) error {
	var one int
	_, err := d.ExecuteQuery(ctx, "ping", "SELECT 1", nil, func(rows *sql.Rows) error {
		return rows.Scan(&one)
	})
	return err
}

// Health reports the connection flag, pool statistics and the time of the
// last successful query.
func (d *Database) Health() Health {
	d.mu.Lock()
	db := d.db
	d.mu.Unlock()

	h := Health{Connected: db != nil}
	if db != nil {
		st := db.Stats()
		h.MaxOpen = st.MaxOpenConnections
		h.Open = st.OpenConnections
		h.InUse = st.InUse
		h.Idle = st.Idle
		h.WaitCount = st.WaitCount
	}
	if ns := d.lastQuery.Load(); ns > 0 {
		t := time.Unix(0, ns).UTC()
		h.LastQueryAt = &t
	}
	return h
}

// Close releases the pool. Further calls fail with a persistence error.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}
