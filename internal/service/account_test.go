package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/farmer-objection-service/internal/model"
	"github.com/iliyamo/farmer-objection-service/internal/queue"
	"github.com/iliyamo/farmer-objection-service/internal/repository"
	"github.com/iliyamo/farmer-objection-service/internal/utils"
)

const testSecret = "jwt-test-secret"

// memAccounts implements FarmerStore and ResetStore over maps.
type memAccounts struct {
	mu      sync.Mutex
	nextID  uint64
	farmers map[uint64]model.Farmer
	resets  map[uint64]model.PasswordReset // by farmer id
	failErr error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{farmers: map[uint64]model.Farmer{}, resets: map[uint64]model.PasswordReset{}}
}

func (s *memAccounts) Create(_ context.Context, f *model.Farmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	for _, existing := range s.farmers {
		if existing.NationalID == f.NationalID {
			return repository.ErrNationalIDExists
		}
	}
	s.nextID++
	f.ID = s.nextID
	f.CreatedAt = time.Now()
	s.farmers[f.ID] = *f
	return nil
}

func (s *memAccounts) GetByNationalID(_ context.Context, nid string) (model.Farmer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return model.Farmer{}, s.failErr
	}
	for _, f := range s.farmers {
		if f.NationalID == nid {
			return f, nil
		}
	}
	return model.Farmer{}, repository.ErrNotFound
}

func (s *memAccounts) GetByNationalIDAndPhone(ctx context.Context, nid, phone string) (model.Farmer, error) {
	f, err := s.GetByNationalID(ctx, nid)
	if err != nil {
		return f, err
	}
	if f.Phone != phone {
		return model.Farmer{}, repository.ErrNotFound
	}
	return f, nil
}

// resetStore adapts memAccounts to ResetStore; GetByNationalID clashes
// with the farmer lookup otherwise.
type resetStore struct{ *memAccounts }

func (s resetStore) Replace(_ context.Context, pr *model.PasswordReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr.ID = pr.FarmerID*100 + uint64(len(s.resets)) + 1
	s.resets[pr.FarmerID] = *pr
	return nil
}

func (s resetStore) GetByNationalID(_ context.Context, nid string) (model.PasswordReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pr := range s.resets {
		if pr.NationalID == nid {
			return pr, nil
		}
	}
	return model.PasswordReset{}, repository.ErrNotFound
}

func (s resetStore) SetToken(_ context.Context, id uint64, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fid, pr := range s.resets {
		if pr.ID == id {
			pr.TokenHash = tokenHash
			s.resets[fid] = pr
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s resetStore) RecordFailedAttempt(_ context.Context, id uint64, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fid, pr := range s.resets {
		if pr.ID != id {
			continue
		}
		pr.FailedAttempts++
		if pr.FailedAttempts >= limit {
			delete(s.resets, fid)
			return true, nil
		}
		s.resets[fid] = pr
		return false, nil
	}
	return false, repository.ErrNotFound
}

func (s resetStore) Consume(_ context.Context, pr model.PasswordReset, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.resets[pr.FarmerID]
	if !ok || cur.ID != pr.ID || cur.TokenHash != pr.TokenHash {
		return repository.ErrNotFound
	}
	f, ok := s.farmers[pr.FarmerID]
	if !ok {
		return repository.ErrNotFound
	}
	f.PasswordHash = passwordHash
	s.farmers[pr.FarmerID] = f
	delete(s.resets, pr.FarmerID)
	return nil
}

func newAccountService(store *memAccounts, pub Publisher) *AccountService {
	return NewAccountService(AccountConfig{
		JWTSecret:     testSecret,
		AccessTTLMin:  60,
		BcryptCost:    bcrypt.MinCost,
		AdminUsername: "admin",
		AdminPassword: "hunter2",
		ResetTTL:      2 * time.Hour,
	}, store, resetStore{store}, pub, nil)
}

func validRegistration() RegisterInput {
	return RegisterInput{
		FirstName:  "Ali",
		LastName:   "Rezaei",
		Phone:      "09120000000",
		NationalID: "0012345678",
		Password:   "secret1",
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("stores bcrypt hash", func(t *testing.T) {
		store := newMemAccounts()
		f, err := newAccountService(store, nil).Register(ctx, validRegistration())
		require.NoError(t, err)
		assert.NotZero(t, f.ID)
		assert.NotEqual(t, "secret1", f.PasswordHash)
		assert.True(t, utils.VerifyPassword(store.farmers[f.ID].PasswordHash, "secret1"))
	})

	t.Run("duplicate national id", func(t *testing.T) {
		svc := newAccountService(newMemAccounts(), nil)
		_, err := svc.Register(ctx, validRegistration())
		require.NoError(t, err)
		_, err = svc.Register(ctx, validRegistration())
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("validation", func(t *testing.T) {
		in := validRegistration()
		in.FirstName = "   "
		in.Password = "123"
		_, err := newAccountService(newMemAccounts(), nil).Register(ctx, in)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "required", ve.Fields["first_name"])
		assert.Contains(t, ve.Fields["password"], "at least 6")
	})

	t.Run("storage failure", func(t *testing.T) {
		store := newMemAccounts()
		store.failErr = errDB
		_, err := newAccountService(store, nil).Register(ctx, validRegistration())
		assert.ErrorIs(t, err, ErrStorageUnavailable)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	store := newMemAccounts()
	svc := newAccountService(store, nil)
	f, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	res, err := svc.Login(ctx, LoginInput{NationalID: "0012345678", Password: "secret1"})
	require.NoError(t, err)
	require.NotNil(t, res.Farmer)
	assert.Equal(t, FarmerProfile{ID: f.ID, FirstName: "Ali", LastName: "Rezaei"}, *res.Farmer)

	claims, err := utils.ParseAccessToken(testSecret, res.Token)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatUint(f.ID, 10), claims.Subject)
	assert.Equal(t, string(RoleFarmer), claims.Role)

	_, err = svc.Login(ctx, LoginInput{NationalID: "0012345678", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginInput{NationalID: "nobody", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAdminLogin(t *testing.T) {
	ctx := context.Background()
	svc := newAccountService(newMemAccounts(), nil)

	res, err := svc.AdminLogin(ctx, AdminLoginInput{Username: "admin", Password: "hunter2"})
	require.NoError(t, err)
	assert.Nil(t, res.Farmer)
	claims, err := utils.ParseAccessToken(testSecret, res.Token)
	require.NoError(t, err)
	assert.Equal(t, string(RoleAdmin), claims.Role)
	assert.Equal(t, AdminSubject, claims.Subject)

	for _, in := range []AdminLoginInput{
		{Username: "admin", Password: "wrong"},
		{Username: "root", Password: "hunter2"},
	} {
		_, err := svc.AdminLogin(ctx, in)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
}

// codeFrom returns the verification code of the latest reset event.
func codeFrom(t *testing.T, pub *recordingPublisher) string {
	t.Helper()
	events := pub.Events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, queue.QueuePasswordReset, last.Queue)
	return last.Event.(queue.PasswordResetRequestedEvent).Code
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	store := newMemAccounts()
	pub := &recordingPublisher{}
	svc := newAccountService(store, pub)
	f, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	err = svc.ForgotPassword(ctx, ForgotPasswordInput{NationalID: "0012345678", Phone: "0000"})
	assert.ErrorIs(t, err, ErrNotFound, "phone must match too")

	require.NoError(t, svc.ForgotPassword(ctx, ForgotPasswordInput{NationalID: "0012345678", Phone: "09120000000"}))
	code := codeFrom(t, pub)
	assert.Len(t, code, 6)

	stored := store.resets[f.ID]
	assert.NotEqual(t, code, stored.CodeHash, "only the hash is stored")
	assert.Equal(t, utils.HashSecret(code), stored.CodeHash)
	assert.Empty(t, stored.TokenHash)

	err = svc.ResetPassword(ctx, ResetPasswordInput{NationalID: "0012345678", ResetToken: "guess", Password: "newpass1"})
	assert.ErrorIs(t, err, ErrInvalidResetCode, "no token before the code is verified")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = svc.VerifyCode(ctx, VerifyCodeInput{NationalID: "0012345678", Code: wrong})
	assert.ErrorIs(t, err, ErrInvalidResetCode)

	token, err := svc.VerifyCode(ctx, VerifyCodeInput{NationalID: "0012345678", Code: code})
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.Equal(t, utils.HashSecret(token), store.resets[f.ID].TokenHash)

	err = svc.ResetPassword(ctx, ResetPasswordInput{NationalID: "0012345678", ResetToken: token + "x", Password: "newpass1"})
	assert.ErrorIs(t, err, ErrInvalidResetCode)

	require.NoError(t, svc.ResetPassword(ctx, ResetPasswordInput{NationalID: "0012345678", ResetToken: token, Password: "newpass1"}))
	assert.NotContains(t, store.resets, f.ID, "request consumed")

	_, err = svc.Login(ctx, LoginInput{NationalID: "0012345678", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginInput{NationalID: "0012345678", Password: "newpass1"})
	assert.NoError(t, err)

	err = svc.ResetPassword(ctx, ResetPasswordInput{NationalID: "0012345678", ResetToken: token, Password: "again12"})
	assert.ErrorIs(t, err, ErrInvalidResetCode, "token is single use")
}

func TestPasswordResetExpiryAndReplacement(t *testing.T) {
	ctx := context.Background()
	store := newMemAccounts()
	pub := &recordingPublisher{}
	svc := newAccountService(store, pub)
	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	forgot := ForgotPasswordInput{NationalID: "0012345678", Phone: "09120000000"}
	require.NoError(t, svc.ForgotPassword(ctx, forgot))
	oldCode := codeFrom(t, pub)
	require.NoError(t, svc.ForgotPassword(ctx, forgot))
	newCode := codeFrom(t, pub)
	assert.Len(t, store.resets, 1, "a new request replaces the old one")

	if oldCode != newCode {
		_, err = svc.VerifyCode(ctx, VerifyCodeInput{NationalID: "0012345678", Code: oldCode})
		assert.ErrorIs(t, err, ErrInvalidResetCode, "superseded code")
	}

	now = now.Add(2*time.Hour + time.Second)
	_, err = svc.VerifyCode(ctx, VerifyCodeInput{NationalID: "0012345678", Code: newCode})
	assert.ErrorIs(t, err, ErrInvalidResetCode, "expired code")
}

func TestForgotPasswordPublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := newMemAccounts()
	svc := newAccountService(store, &recordingPublisher{Err: errDB})
	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	assert.NoError(t, svc.ForgotPassword(ctx, ForgotPasswordInput{NationalID: "0012345678", Phone: "09120000000"}))
	assert.Len(t, store.resets, 1)
}

func TestVerifyCodeValidation(t *testing.T) {
	svc := newAccountService(newMemAccounts(), nil)
	_, err := svc.VerifyCode(context.Background(), VerifyCodeInput{NationalID: "1", Code: "12ab"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "verification_code")
}

func TestVerifyCodeLocksAfterTooManyMisses(t *testing.T) {
	ctx := context.Background()
	store := newMemAccounts()
	pub := &recordingPublisher{}
	svc := newAccountService(store, pub)
	f, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, ForgotPasswordInput{NationalID: "0012345678", Phone: "09120000000"}))
	code := codeFrom(t, pub)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 1; i < model.MaxResetAttempts; i++ {
		_, err = svc.VerifyCode(ctx, VerifyCodeInput{NationalID: "0012345678", Code: wrong})
		require.ErrorIs(t, err, ErrInvalidResetCode)
		assert.Equal(t, i, store.resets[f.ID].FailedAttempts)
	}
	_, err = svc.VerifyCode(ctx, VerifyCodeInput{NationalID: "0012345678", Code: wrong})
	require.ErrorIs(t, err, ErrInvalidResetCode)
	assert.NotContains(t, store.resets, f.ID, "request dropped at the limit")

	_, err = svc.VerifyCode(ctx, VerifyCodeInput{NationalID: "0012345678", Code: code})
	assert.ErrorIs(t, err, ErrInvalidResetCode, "the right code no longer helps")

	// a fresh request starts a fresh count
	require.NoError(t, svc.ForgotPassword(ctx, ForgotPasswordInput{NationalID: "0012345678", Phone: "09120000000"}))
	_, err = svc.VerifyCode(ctx, VerifyCodeInput{NationalID: "0012345678", Code: codeFrom(t, pub)})
	assert.NoError(t, err)
}

// replacingResets swaps in a newer request between the lookup and the
// consume, as a concurrent ForgotPassword would.
type replacingResets struct {
	resetStore
	once sync.Once
}

func (r *replacingResets) Consume(ctx context.Context, pr model.PasswordReset, hash string) error {
	r.once.Do(func() {
		newer := model.PasswordReset{FarmerID: pr.FarmerID, NationalID: pr.NationalID, CodeHash: "newer",
			CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
		_ = r.resetStore.Replace(ctx, &newer)
	})
	return r.resetStore.Consume(ctx, pr, hash)
}

func TestResetPasswordRejectsReplacedRequest(t *testing.T) {
	ctx := context.Background()
	store := newMemAccounts()
	pub := &recordingPublisher{}
	svc := newAccountService(store, pub)
	f, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, ForgotPasswordInput{NationalID: "0012345678", Phone: "09120000000"}))
	token, err := svc.VerifyCode(ctx, VerifyCodeInput{NationalID: "0012345678", Code: codeFrom(t, pub)})
	require.NoError(t, err)

	svc.resets = &replacingResets{resetStore: resetStore{store}}
	err = svc.ResetPassword(ctx, ResetPasswordInput{NationalID: "0012345678", ResetToken: token, Password: "newpass1"})
	assert.ErrorIs(t, err, ErrInvalidResetCode)

	require.Contains(t, store.resets, f.ID, "the newer request survives")
	assert.Equal(t, "newer", store.resets[f.ID].CodeHash)
	_, err = svc.Login(ctx, LoginInput{NationalID: "0012345678", Password: "secret1"})
	assert.NoError(t, err, "password unchanged")
}
