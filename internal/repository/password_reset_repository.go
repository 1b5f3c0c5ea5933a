package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/farmer-objection-service/internal/metrics"
	"github.com/iliyamo/farmer-objection-service/internal/model"
)

// PasswordResetRepo persists reset requests. Only hashes of the
// verification code and the reset token are stored.
type PasswordResetRepo struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

func NewPasswordResetRepo(db *sql.DB, m *metrics.Metrics) *PasswordResetRepo {
	return &PasswordResetRepo{db: db, metrics: m}
}

func (r *PasswordResetRepo) conn() queryer { return observed{q: r.db, m: r.metrics} }

// Replace deletes any previous request of the farmer and inserts pr,
// setting its ID.
func (r *PasswordResetRepo) Replace(ctx context.Context, pr *model.PasswordReset) error {
	return inTx(ctx, r.db, r.metrics, nil, func(q queryer) error {
		// at most one request per farmer
		if _, err := q.ExecContext(ctx, "DELETE FROM password_reset WHERE farmer_id = ?", pr.FarmerID); err != nil {
			return err
		}
		res, err := q.ExecContext(ctx,
			`INSERT INTO password_reset (farmer_id, national_id, reset_token, verification_code, created_at, expires_at)
			 VALUES (?, ?, NULL, ?, ?, ?)`,
			pr.FarmerID, pr.NationalID, pr.CodeHash, pr.CreatedAt.UTC(), pr.ExpiresAt.UTC())
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		pr.ID = uint64(id)
		return nil
	})
}

// GetByNationalID returns the farmer's current request, live or expired.
func (r *PasswordResetRepo) GetByNationalID(ctx context.Context, nationalID string) (model.PasswordReset, error) {
	var (
		pr    model.PasswordReset
		token sql.NullString
	)
	err := r.conn().QueryRowContext(ctx,
		`SELECT id, farmer_id, national_id, reset_token, verification_code, failed_attempts, created_at, expires_at
		 FROM password_reset WHERE national_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		nationalID).Scan(&pr.ID, &pr.FarmerID, &pr.NationalID, &token, &pr.CodeHash, &pr.FailedAttempts, &pr.CreatedAt, &pr.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PasswordReset{}, ErrNotFound
		}
		return model.PasswordReset{}, err
	}
	pr.TokenHash = token.String // empty until the code is verified
	return pr, nil
}

// SetToken records the hash of the reset token issued after the code was
// verified.
func (r *PasswordResetRepo) SetToken(ctx context.Context, id uint64, tokenHash string) error {
	res, err := r.conn().ExecContext(ctx, "UPDATE password_reset SET reset_token = ? WHERE id = ?", tokenHash, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

// RecordFailedAttempt counts one wrong verification code against request
// id. When the count reaches limit the request is deleted and exhausted is
// true. A request that no longer exists yields ErrNotFound.
func (r *PasswordResetRepo) RecordFailedAttempt(ctx context.Context, id uint64, limit int) (exhausted bool, err error) {
	err = inTx(ctx, r.db, r.metrics, nil, func(q queryer) error {
		// lock the row so concurrent misses are counted one by one
		var n int
		err := q.QueryRowContext(ctx,
			"SELECT failed_attempts FROM password_reset WHERE id = ? FOR UPDATE", id).Scan(&n)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		n++
		if n >= limit {
			exhausted = true
			_, err = q.ExecContext(ctx, "DELETE FROM password_reset WHERE id = ?", id)
			return err
		}
		_, err = q.ExecContext(ctx, "UPDATE password_reset SET failed_attempts = ? WHERE id = ?", n, id)
		return err
	})
	return exhausted, err
}

// Consume deletes request pr, provided it still carries pr.TokenHash, and
// sets the farmer's new password hash in the same transaction. A request
// that was replaced or consumed in the meantime yields ErrNotFound and
// leaves the password untouched.
func (r *PasswordResetRepo) Consume(ctx context.Context, pr model.PasswordReset, passwordHash string) error {
	return inTx(ctx, r.db, r.metrics, nil, func(q queryer) error {
		// claim the request first; the token check makes a stale read harmless
		res, err := q.ExecContext(ctx,
			"DELETE FROM password_reset WHERE id = ? AND reset_token = ?", pr.ID, pr.TokenHash)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}

		res, err = q.ExecContext(ctx, "UPDATE farmer SET password_hash = ? WHERE id = ?", passwordHash, pr.FarmerID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound // rolls the delete back too
		}
		return nil
	})
}
