package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/farmer-objection-service/internal/model"
	"github.com/iliyamo/farmer-objection-service/internal/queue"
	"github.com/iliyamo/farmer-objection-service/internal/repository"
	"github.com/iliyamo/farmer-objection-service/internal/utils"
)

// FarmerStore is implemented by *repository.FarmerRepo.
type FarmerStore interface {
	Create(ctx context.Context, f *model.Farmer) error
	GetByNationalID(ctx context.Context, nationalID string) (model.Farmer, error)
	GetByNationalIDAndPhone(ctx context.Context, nationalID, phone string) (model.Farmer, error)
}

// ResetStore is implemented by *repository.PasswordResetRepo.
type ResetStore interface {
	Replace(ctx context.Context, pr *model.PasswordReset) error
	GetByNationalID(ctx context.Context, nationalID string) (model.PasswordReset, error)
	SetToken(ctx context.Context, id uint64, tokenHash string) error
	RecordFailedAttempt(ctx context.Context, id uint64, limit int) (bool, error)
	Consume(ctx context.Context, pr model.PasswordReset, passwordHash string) error
}

// AccountConfig carries the secrets and lifetimes the account flows need.
type AccountConfig struct {
	JWTSecret     string
	AccessTTLMin  int
	BcryptCost    int
	AdminUsername string
	AdminPassword string
	ResetTTL      time.Duration
}

// AdminSubject is the sub claim of admin tokens.
const AdminSubject = "admin"

// ----- DTOs -----

type RegisterInput struct {
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Phone      string `json:"phone" validate:"required,max=32"`
	NationalID string `json:"national_id" validate:"required,max=32"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
}

type LoginInput struct {
	NationalID string `json:"national_id" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type AdminLoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordInput struct {
	NationalID string `json:"national_id" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
}

type VerifyCodeInput struct {
	NationalID string `json:"national_id" validate:"required"`
	Code       string `json:"verification_code" validate:"required,len=6,numeric"`
}

type ResetPasswordInput struct {
	NationalID string `json:"national_id" validate:"required"`
	ResetToken string `json:"reset_token" validate:"required"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
}

// FarmerProfile is the public part of a farmer returned at login.
type FarmerProfile struct {
	ID        uint64 `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LoginResult struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Farmer    *FarmerProfile `json:"farmer,omitempty"`
}

// AccountService handles registration, both logins and the three step
// password reset (request code, verify code, set password).
type AccountService struct {
	cfg     AccountConfig
	farmers FarmerStore
	resets  ResetStore
	events  Publisher
	log     *zap.Logger
	now     func() time.Time
}

func NewAccountService(cfg AccountConfig, farmers FarmerStore, resets ResetStore, events Publisher, log *zap.Logger) *AccountService {
	if events == nil {
		events = queue.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{cfg: cfg, farmers: farmers, resets: resets, events: events, log: log, now: time.Now}
}

// Register creates a farmer account with a bcrypt password hash.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (model.Farmer, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.NationalID = strings.TrimSpace(in.NationalID)
	if err := Validate(in); err != nil {
		return model.Farmer{}, err
	}

	// bcrypt with the configured cost
	hash, err := utils.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return model.Farmer{}, fmt.Errorf("hash password: %w", err)
	}
	f := model.Farmer{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		NationalID:   in.NationalID,
		PasswordHash: hash,
	}
	if err := s.farmers.Create(ctx, &f); err != nil {
		if errors.Is(err, repository.ErrNationalIDExists) {
			return model.Farmer{}, fmt.Errorf("%w: national id already registered", ErrConflict)
		}
		return model.Farmer{}, storageErr("create farmer", err)
	}
	s.log.Info("farmer registered", zap.Uint64("farmer_id", f.ID))
	return f, nil
}

// Login checks a farmer's national id and password and issues a token
// whose subject is the farmer id.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	if err := Validate(in); err != nil {
		return LoginResult{}, err
	}
	f, err := s.farmers.GetByNationalID(ctx, strings.TrimSpace(in.NationalID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, storageErr("load farmer", err)
	}
	// unknown id and wrong password look the same to the caller
	if !utils.VerifyPassword(f.PasswordHash, in.Password) {
		return LoginResult{}, ErrInvalidCredentials
	}
	tok, err := utils.NewAccessToken(s.cfg.JWTSecret, strconv.FormatUint(f.ID, 10), string(RoleFarmer), s.cfg.AccessTTLMin)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign token: %w", err)
	}
	return LoginResult{
		Token:     tok.Token,
		ExpiresAt: tok.Exp,
		Farmer:    &FarmerProfile{ID: f.ID, FirstName: f.FirstName, LastName: f.LastName},
	}, nil
}

// AdminLogin checks the configured administrator credentials.
func (s *AccountService) AdminLogin(_ context.Context, in AdminLoginInput) (LoginResult, error) {
	if err := Validate(in); err != nil {
		return LoginResult{}, err
	}
	// Evaluate both so timing does not reveal which one was wrong.
	userOK := utils.EqualConstantTime(in.Username, s.cfg.AdminUsername)
	passOK := utils.EqualConstantTime(in.Password, s.cfg.AdminPassword)
	if !userOK || !passOK {
		return LoginResult{}, ErrInvalidCredentials
	}
	tok, err := utils.NewAccessToken(s.cfg.JWTSecret, AdminSubject, string(RoleAdmin), s.cfg.AccessTTLMin)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign token: %w", err)
	}
	return LoginResult{Token: tok.Token, ExpiresAt: tok.Exp}, nil
}

// ForgotPassword starts a reset for the farmer matching both national id
// and phone. Any earlier request of that farmer is discarded. The code is
// delivered through the farmer.password_reset event, never in the response.
func (s *AccountService) ForgotPassword(ctx context.Context, in ForgotPasswordInput) error {
	if err := Validate(in); err != nil {
		return err
	}
	f, err := s.farmers.GetByNationalIDAndPhone(ctx, strings.TrimSpace(in.NationalID), strings.TrimSpace(in.Phone))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("farmer: %w", ErrNotFound)
		}
		return storageErr("load farmer", err)
	}

	code, err := utils.NewVerificationCode()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}
	now := s.now().UTC().Truncate(time.Second)
	pr := model.PasswordReset{
		FarmerID:   f.ID,
		NationalID: f.NationalID,
		CodeHash:   utils.HashSecret(code),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.ResetTTL),
	}
	if err := s.resets.Replace(ctx, &pr); err != nil {
		return storageErr("store password reset", err)
	}

	ev := queue.PasswordResetRequestedEvent{
		FarmerID:    f.ID,
		NationalID:  f.NationalID,
		Phone:       f.Phone,
		Code:        code,
		ExpiresAt:   pr.ExpiresAt.Format(time.RFC3339),
		RequestedAt: now.Format(time.RFC3339),
	}
	// the reset is stored; a broker outage only delays delivery
	if err := s.events.Publish(ctx, queue.QueuePasswordReset, ev); err != nil {
		s.log.Warn("publish event failed", zap.String("queue", queue.QueuePasswordReset), zap.Error(err))
	}
	s.log.Info("password reset requested", zap.Uint64("farmer_id", f.ID))
	return nil
}

// VerifyCode exchanges a live verification code for a reset token. Only
// the token's hash is kept.
func (s *AccountService) VerifyCode(ctx context.Context, in VerifyCodeInput) (string, error) {
	if err := Validate(in); err != nil {
		return "", err
	}
	pr, err := s.liveReset(ctx, in.NationalID)
	if err != nil {
		return "", err
	}
	if !utils.EqualConstantTime(utils.HashSecret(in.Code), pr.CodeHash) {
		// every miss counts against the request, whichever IP it came from
		exhausted, err := s.resets.RecordFailedAttempt(ctx, pr.ID, model.MaxResetAttempts)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return "", storageErr("record failed attempt", err)
		case exhausted:
			s.log.Warn("password reset locked after wrong codes", zap.Uint64("farmer_id", pr.FarmerID))
		}
		return "", ErrInvalidResetCode
	}

	token, err := utils.NewResetToken()
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.resets.SetToken(ctx, pr.ID, utils.HashSecret(token)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidResetCode
		}
		return "", storageErr("store reset token", err)
	}
	return token, nil
}

// ResetPassword sets a new password if the reset token matches a live
// request, and consumes the request.
func (s *AccountService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := Validate(in); err != nil {
		return err
	}
	pr, err := s.liveReset(ctx, in.NationalID)
	if err != nil {
		return err
	}
	if pr.TokenHash == "" || !utils.EqualConstantTime(utils.HashSecret(in.ResetToken), pr.TokenHash) {
		return ErrInvalidResetCode
	}

	hash, err := utils.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	// Consume re-checks the token so a request replaced since liveReset
	// cannot be used
	if err := s.resets.Consume(ctx, pr, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetCode
		}
		return storageErr("reset password", err)
	}
	s.log.Info("password reset completed", zap.Uint64("farmer_id", pr.FarmerID))
	return nil
}

func (s *AccountService) liveReset(ctx context.Context, nationalID string) (model.PasswordReset, error) {
	pr, err := s.resets.GetByNationalID(ctx, strings.TrimSpace(nationalID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PasswordReset{}, ErrInvalidResetCode
		}
		return model.PasswordReset{}, storageErr("load password reset", err)
	}
	if !pr.Live(s.now()) {
		return model.PasswordReset{}, ErrInvalidResetCode
	}
	return pr, nil
}
