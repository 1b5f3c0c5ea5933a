package model

import "time"

// Farmer represents a row of the `farmer` table. NationalID is unique and
// is the login identifier; PasswordHash is a bcrypt hash and never leaves
// the service.
type Farmer struct {
	ID           uint64    // farmer.id
	FirstName    string    // farmer.first_name
	LastName     string    // farmer.last_name
	Phone        string    // farmer.phone
	NationalID   string    // farmer.national_id
	PasswordHash string    // farmer.password_hash
	CreatedAt    time.Time // farmer.created_at
}

// PasswordReset models an entry in the `password_reset` table. At most one
// row exists per farmer. The verification code and the reset token are
// stored as SHA-256 hex digests; TokenHash stays empty until the code has
// been verified.
type PasswordReset struct {
	ID         uint64
	FarmerID   uint64
	NationalID string
	TokenHash  string
	CodeHash   string
	// FailedAttempts counts wrong verification codes; see MaxResetAttempts.
	FailedAttempts int
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// MaxResetAttempts is the number of wrong codes after which a request is
// deleted and the farmer must start over.
const MaxResetAttempts = 5

// Live reports whether the request is still usable at now: not expired
// and not locked by too many wrong codes.
func (r PasswordReset) Live(now time.Time) bool {
	return now.Before(r.ExpiresAt) && r.FailedAttempts < MaxResetAttempts
}
