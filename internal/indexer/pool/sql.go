package pool

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/metrics"
)

// Dialect selects the SQL flavour of an SQLPool.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) placeholders() string {
	if d == DialectPostgres {
		return "$1, $2, $3, $4, $5"
	}
	return "?, ?, ?, ?, ?"
}

func (d Dialect) createTable(table string) string {
	if d == DialectPostgres {
		return fmt.Sprintf(`CREATE TABLE %s (
			field   BYTEA NOT NULL,
			term    BYTEA NOT NULL,
			docnum  BIGINT NOT NULL,
			weight  DOUBLE PRECISION NOT NULL,
			payload BYTEA
		)`, table)
	}
	return fmt.Sprintf(`CREATE TABLE %s (
		field   BLOB NOT NULL,
		term    BLOB NOT NULL,
		docnum  INTEGER NOT NULL,
		weight  REAL NOT NULL,
		payload BLOB
	)`, table)
}

// SQLPool buffers postings in memory and flushes them into a database
// table whenever the budget is exceeded. Draining reads the table back in
// posting order; field and term are stored as raw bytes so the database
// orders them the same way posting.Compare does.
type SQLPool struct {
	base
	ctx     context.Context
	db      *sql.DB
	dialect Dialect
	table   string
	limit   int64
	size    int64
	buf     []posting.Posting
	flushed bool
	state   State

	// sqlite only: the scratch directory and database file owned by the pool.
	dir  string
	file string

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSQLitePool creates a pool backed by a scratch SQLite database in a new
// directory under opts.TempDir.
func NewSQLitePool(ctx context.Context, fields FieldLookup, opts Options) (*SQLPool, error) {
	dir, err := os.MkdirTemp(opts.TempDir, "postingpool-")
	if err != nil {
		return nil, fmt.Errorf("creating pool directory: %w", err)
	}
	file := filepath.Join(dir, "postings.sqlite")
	db, err := sql.Open("sqlite", file+"?_pragma=journal_mode(OFF)&_pragma=synchronous(OFF)")
	if err != nil {
		os.Remove(dir)
		return nil, fmt.Errorf("opening pool database: %w", err)
	}
	db.SetMaxOpenConns(1)

	p := newSQLPool(ctx, fields, db, DialectSQLite, "postings", opts)
	p.dir = dir
	p.file = file
	if err := p.createTable(); err != nil {
		return nil, errors.Join(err, p.finish())
	}
	return p, nil
}

// NewPostgresPool creates a pool backed by a fresh table in db. The table
// is dropped once the pool is drained or cancelled; db stays open.
func NewPostgresPool(ctx context.Context, fields FieldLookup, db *sql.DB, opts Options) (*SQLPool, error) {
	var suffix [6]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return nil, fmt.Errorf("naming pool table: %w", err)
	}
	table := "posting_pool_" + hex.EncodeToString(suffix[:])
	p := newSQLPool(ctx, fields, db, DialectPostgres, table, opts)
	if err := p.createTable(); err != nil {
		return nil, err
	}
	return p, nil
}

func newSQLPool(ctx context.Context, fields FieldLookup, db *sql.DB, dialect Dialect, table string, opts Options) *SQLPool {
	return &SQLPool{
		base:    newBase(fields),
		ctx:     ctx,
		db:      db,
		dialect: dialect,
		table:   table,
		limit:   opts.limit(),
		logger:  logger.WithComponent("pool").With("dialect", string(dialect)),
		metrics: opts.Metrics,
	}
}

func (p *SQLPool) createTable() error {
	if _, err := p.db.ExecContext(p.ctx, p.dialect.createTable(p.table)); err != nil {
		return fmt.Errorf("creating table %s: %w", p.table, err)
	}
	return nil
}

func (p *SQLPool) State() State { return p.state }

// Table returns the name of the pool's table.
func (p *SQLPool) Table() string { return p.table }

func (p *SQLPool) AddPosting(post posting.Posting) error {
	if !p.state.accepting() {
		return closedError(p.state)
	}
	p.buf = append(p.buf, post)
	p.size += int64(post.Size())
	p.state = StateBuffering
	if p.size > p.limit {
		return p.Flush()
	}
	return nil
}

func (p *SQLPool) AddContent(docNum uint32, field, value string, ctx codec.Context) (int, error) {
	if !p.state.accepting() {
		return 0, closedError(p.state)
	}
	return p.addContent(p.AddPosting, docNum, field, value, ctx)
}

// Flush inserts the buffered postings in one transaction.
func (p *SQLPool) Flush() error {
	if len(p.buf) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(p.ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := p.insert(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	p.logger.Debug("flushed postings", "table", p.table, "postings", len(p.buf), "bytes", p.size)
	p.metrics.Spilled(string(p.dialect), p.size)
	clear(p.buf)
	p.buf = p.buf[:0]
	p.size = 0
	p.flushed = true
	p.state = StateSpilled
	return nil
}

func (p *SQLPool) insert(tx *sql.Tx) error {
	stmt, err := tx.PrepareContext(p.ctx, fmt.Sprintf(
		"INSERT INTO %s (field, term, docnum, weight, payload) VALUES (%s)",
		p.table, p.dialect.placeholders(),
	))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()
	for _, post := range p.buf {
		if _, err := stmt.ExecContext(p.ctx,
			[]byte(post.Field), []byte(post.Term), int64(post.DocNum), post.Weight, post.Payload,
		); err != nil {
			return fmt.Errorf("inserting posting %s: %w", post.Key(), err)
		}
	}
	return nil
}

// Drain returns the postings in sorted order. If nothing was ever flushed
// the buffer is sorted in memory; otherwise the remainder is flushed and
// the table is read back with ORDER BY.
func (p *SQLPool) Drain() (posting.Iterator[posting.Posting], error) {
	if !p.state.accepting() {
		return nil, closedError(p.state)
	}
	if !p.flushed {
		slices.SortFunc(p.buf, posting.Compare)
		sorted := p.buf
		p.buf = nil
		p.state = StateDraining
		return posting.OnClose(posting.FromSlice(sorted), p.finish), nil
	}
	if err := p.Flush(); err != nil {
		return nil, errors.Join(err, p.Cancel())
	}
	if _, err := p.db.ExecContext(p.ctx, fmt.Sprintf(
		"CREATE INDEX %s_order ON %s (field, term, docnum)", p.table, p.table,
	)); err != nil {
		return nil, errors.Join(fmt.Errorf("indexing %s: %w", p.table, err), p.Cancel())
	}
	rows, err := p.db.QueryContext(p.ctx, fmt.Sprintf(
		"SELECT field, term, docnum, weight, payload FROM %s ORDER BY field, term, docnum, weight, payload NULLS FIRST",
		p.table,
	))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("reading back %s: %w", p.table, err), p.Cancel())
	}
	p.state = StateDraining
	return posting.OnClose[posting.Posting](&rowIterator{rows: rows}, p.finish), nil
}

func (p *SQLPool) Cancel() error {
	if p.state == StateFinished {
		return nil
	}
	p.buf = nil
	p.size = 0
	return p.finish()
}

// finish drops the table, or for sqlite closes and deletes the scratch
// database and its directory.
func (p *SQLPool) finish() error {
	p.state = StateFinished
	if p.dialect == DialectPostgres {
		if _, err := p.db.ExecContext(context.WithoutCancel(p.ctx), "DROP TABLE IF EXISTS "+p.table); err != nil {
			return fmt.Errorf("dropping %s: %w", p.table, err)
		}
		return nil
	}
	err := p.db.Close()
	if p.file != "" {
		err = errors.Join(err, removeIfExists(p.file))
	}
	if p.dir != "" {
		if rmErr := os.Remove(p.dir); rmErr != nil && !os.IsNotExist(rmErr) {
			p.logger.Debug("pool directory not removed", "dir", p.dir, "error", rmErr)
		}
	}
	return err
}

type rowIterator struct {
	rows    *sql.Rows
	current posting.Posting
	err     error
}

func (it *rowIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		if it.err == nil {
			it.err = it.rows.Err()
		}
		return false
	}
	var (
		field, term, payload []byte
		docNum               int64
		weight               float64
	)
	if err := it.rows.Scan(&field, &term, &docNum, &weight, &payload); err != nil {
		it.err = fmt.Errorf("scanning posting: %w", err)
		return false
	}
	if len(payload) == 0 {
		payload = nil
	}
	it.current = posting.Posting{
		Field:   string(field),
		Term:    string(term),
		DocNum:  uint32(docNum),
		Weight:  weight,
		Payload: payload,
	}
	return true
}

func (it *rowIterator) Item() posting.Posting { return it.current }

func (it *rowIterator) Err() error { return it.err }

func (it *rowIterator) Close() error { return it.rows.Close() }
