package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/farmer-objection-service/internal/metrics"
)

// queryer is the subset of *sql.DB and *sql.Tx the repositories use.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// observed wraps a queryer and records db_query_total and
// db_query_duration_seconds for every statement.
type observed struct {
	q queryer
	m *metrics.Metrics
}

func (o observed) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer o.m.ObserveQuery(query)()
	return o.q.ExecContext(ctx, query, args...)
}

func (o observed) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer o.m.ObserveQuery(query)()
	return o.q.QueryContext(ctx, query, args...)
}

func (o observed) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	defer o.m.ObserveQuery(query)()
	return o.q.QueryRowContext(ctx, query, args...)
}

// inTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func inTx(ctx context.Context, db *sql.DB, m *metrics.Metrics, opts *sql.TxOptions, fn func(q queryer) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(observed{q: tx, m: m}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
