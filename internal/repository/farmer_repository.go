package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/farmer-objection-service/internal/metrics"
	"github.com/iliyamo/farmer-objection-service/internal/model"
)

// FarmerRepo encapsulates queries against the farmer table.
type FarmerRepo struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

func NewFarmerRepo(db *sql.DB, m *metrics.Metrics) *FarmerRepo {
	return &FarmerRepo{db: db, metrics: m}
}

func (r *FarmerRepo) conn() queryer { return observed{q: r.db, m: r.metrics} }

const farmerColumns = "id, first_name, last_name, phone, national_id, password_hash, created_at"

func scanFarmer(row *sql.Row) (model.Farmer, error) {
	var f model.Farmer
	err := row.Scan(&f.ID, &f.FirstName, &f.LastName, &f.Phone, &f.NationalID, &f.PasswordHash, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Farmer{}, ErrNotFound
	}
	return f, err
}

// Create inserts the farmer and fills in ID and CreatedAt.
func (r *FarmerRepo) Create(ctx context.Context, f *model.Farmer) error {
	res, err := r.conn().ExecContext(ctx,
		"INSERT INTO farmer (first_name, last_name, phone, national_id, password_hash) VALUES (?, ?, ?, ?, ?)",
		f.FirstName, f.LastName, f.Phone, f.NationalID, f.PasswordHash)
	if err != nil {
		if isDuplicateOn(err, "uq_farmer_national_id") {
			return ErrNationalIDExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	// read back for created_at
	stored, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*f = stored
	return nil
}

// GetByID fetches a farmer by id.
func (r *FarmerRepo) GetByID(ctx context.Context, id uint64) (model.Farmer, error) {
	return scanFarmer(r.conn().QueryRowContext(ctx,
		"SELECT "+farmerColumns+" FROM farmer WHERE id = ? LIMIT 1", id))
}

// GetByNationalID fetches a farmer by national id.
func (r *FarmerRepo) GetByNationalID(ctx context.Context, nationalID string) (model.Farmer, error) {
	return scanFarmer(r.conn().QueryRowContext(ctx,
		"SELECT "+farmerColumns+" FROM farmer WHERE national_id = ? LIMIT 1", nationalID))
}

// GetByNationalIDAndPhone fetches a farmer only when both identifiers match.
func (r *FarmerRepo) GetByNationalIDAndPhone(ctx context.Context, nationalID, phone string) (model.Farmer, error) {
	return scanFarmer(r.conn().QueryRowContext(ctx,
		"SELECT "+farmerColumns+" FROM farmer WHERE national_id = ? AND phone = ? LIMIT 1", nationalID, phone))
}
