package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/farmer-objection-service/internal/metrics"
	"github.com/iliyamo/farmer-objection-service/internal/model"
)

// ObjectionRepo encapsulates all queries against the objection table.
type ObjectionRepo struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

// NewObjectionRepo constructs an ObjectionRepo. m may be nil.
func NewObjectionRepo(db *sql.DB, m *metrics.Metrics) *ObjectionRepo {
	return &ObjectionRepo{db: db, metrics: m}
}

func (r *ObjectionRepo) conn() queryer { return observed{q: r.db, m: r.metrics} }

const objectionColumns = "id, farmer_id, code, transaction_number, status, created_at, updated_at"

var activeStatusArgs = func() []any {
	out := make([]any, 0, len(model.ActiveStatuses))
	for _, s := range model.ActiveStatuses {
		out = append(out, string(s))
	}
	return out
}()

func scanObjection(row interface{ Scan(...any) error }, o *model.Objection) error {
	return row.Scan(&o.ID, &o.FarmerID, &o.Code, &o.TransactionNumber, &o.Status, &o.CreatedAt, &o.UpdatedAt)
}

// HasActive reports whether the farmer owns a pending or reviewed objection.
func (r *ObjectionRepo) HasActive(ctx context.Context, farmerID uint64) (bool, error) {
	return hasActive(ctx, r.conn(), farmerID, false)
}

func hasActive(ctx context.Context, q queryer, farmerID uint64, lock bool) (bool, error) {
	query := "SELECT COUNT(*) FROM objection WHERE farmer_id = ? AND status IN (" +
		placeholders(len(activeStatusArgs)) + ")"
	if lock {
		query += " FOR UPDATE"
	}
	args := append([]any{farmerID}, activeStatusArgs...)
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreatePending inserts a pending objection for the farmer. The farmer row
// is locked for the duration of the transaction so concurrent submissions
// for the same farmer serialize; the uq_objection_active_farmer key backs
// this up at the storage level. Returns ErrNotFound when the farmer does
// not exist, ErrActiveObjectionExists when an active objection is present
// and ErrDuplicateCode when code is taken.
func (r *ObjectionRepo) CreatePending(ctx context.Context, farmerID uint64, code, transactionNumber string) (model.Objection, error) {
	var out model.Objection
	err := inTx(ctx, r.db, r.metrics, nil, func(q queryer) error {
		// lock the farmer row; concurrent submissions queue here
		var id uint64
		if err := q.QueryRowContext(ctx, "SELECT id FROM farmer WHERE id = ? FOR UPDATE", farmerID).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		active, err := hasActive(ctx, q, farmerID, true)
		if err != nil {
			return err
		}
		if active {
			return ErrActiveObjectionExists
		}

		// new objections always start pending
		res, err := q.ExecContext(ctx,
			"INSERT INTO objection (farmer_id, code, transaction_number, status) VALUES (?, ?, ?, ?)",
			farmerID, code, transactionNumber, string(model.StatusPending))
		if err != nil {
			switch {
			case isDuplicateOn(err, "uq_objection_active_farmer"):
				return ErrActiveObjectionExists
			case isDuplicateOn(err, "uq_objection_code"):
				return ErrDuplicateCode
			}
			return err
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		// re-read for the database-assigned timestamps
		row := q.QueryRowContext(ctx, "SELECT "+objectionColumns+" FROM objection WHERE id = ?", newID)
		return scanObjection(row, &out)
	})
	if err != nil {
		return model.Objection{}, err
	}
	return out, nil
}

// GetByID fetches one objection, or ErrNotFound.
func (r *ObjectionRepo) GetByID(ctx context.Context, id uint64) (model.Objection, error) {
	var o model.Objection
	row := r.conn().QueryRowContext(ctx, "SELECT "+objectionColumns+" FROM objection WHERE id = ?", id)
	if err := scanObjection(row, &o); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Objection{}, ErrNotFound
		}
		return model.Objection{}, err
	}
	return o, nil
}

// ListByFarmer returns every objection of the farmer, newest first.
func (r *ObjectionRepo) ListByFarmer(ctx context.Context, farmerID uint64) ([]model.Objection, error) {
	rows, err := r.conn().QueryContext(ctx,
		"SELECT "+objectionColumns+" FROM objection WHERE farmer_id = ? ORDER BY created_at DESC, id DESC",
		farmerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// empty slice, not nil, so the JSON is []
	out := []model.Objection{}
	for rows.Next() {
		var o model.Objection
		if err := scanObjection(rows, &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateStatus moves an objection from one status to another only if it
// still has status from, and bumps updated_at. When no row matches it
// returns ErrStaleStatus; the caller reloads to find out why.
func (r *ObjectionRepo) UpdateStatus(ctx context.Context, id uint64, from, to model.Status) (model.Objection, error) {
	res, err := r.conn().ExecContext(ctx,
		"UPDATE objection SET status = ?, updated_at = NOW() WHERE id = ? AND status = ?",
		string(to), id, string(from))
	if err != nil {
		return model.Objection{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Objection{}, err
	}
	if n == 0 {
		return model.Objection{}, ErrStaleStatus
	}
	return r.GetByID(ctx, id)
}

// ListActive returns one page of pending/reviewed objections and the total
// number of rows matching the same predicate. Both queries run in one
// read-only transaction so they observe the same snapshot.
func (r *ObjectionRepo) ListActive(ctx context.Context, term string, limit, offset int) ([]model.Objection, int, error) {
	var (
		out   = []model.Objection{}
		total int
	)
	err := r.readPage(ctx, activeListing, term, limit, offset, &total, func(rows *sql.Rows) error {
		var o model.Objection
		if err := scanObjection(rows, &o); err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListArchive returns one page of resolved objections joined with their
// farmer's name, plus the matching total.
func (r *ObjectionRepo) ListArchive(ctx context.Context, term string, limit, offset int) ([]model.ArchivedObjection, int, error) {
	var (
		out   = []model.ArchivedObjection{}
		total int
	)
	err := r.readPage(ctx, archiveListing, term, limit, offset, &total, func(rows *sql.Rows) error {
		var a model.ArchivedObjection
		o := &a.Objection
		if err := rows.Scan(&o.ID, &o.FarmerID, &o.Code, &o.TransactionNumber, &o.Status,
			&o.CreatedAt, &o.UpdatedAt, &a.FirstName, &a.LastName); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *ObjectionRepo) readPage(ctx context.Context, l listing, term string, limit, offset int, total *int, scan func(*sql.Rows) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	return inTx(ctx, r.db, r.metrics, opts, func(q queryer) error {
		countSQL, countArgs := l.countQuery(term)
		if err := q.QueryRowContext(ctx, countSQL, countArgs...).Scan(total); err != nil {
			return err
		}

		pageSQL, pageArgs := l.pageQuery(term, limit, offset)
		rows, err := q.QueryContext(ctx, pageSQL, pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			if err := scan(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}
