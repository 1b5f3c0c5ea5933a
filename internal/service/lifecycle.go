package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/iliyamo/farmer-objection-service/internal/model"
	"github.com/iliyamo/farmer-objection-service/internal/queue"
	"github.com/iliyamo/farmer-objection-service/internal/repository"
)

// Role is the authenticated role claim of the caller.
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleAdmin  Role = "admin"
)

// maxCodeAttempts bounds the insert retries on OBJ-#### collisions.
const maxCodeAttempts = 5

const maxTransactionNumberLen = 64

// ObjectionStore is the storage the lifecycle manager and the query engine
// read and write through. *repository.ObjectionRepo implements it.
type ObjectionStore interface {
	HasActive(ctx context.Context, farmerID uint64) (bool, error)
	CreatePending(ctx context.Context, farmerID uint64, code, transactionNumber string) (model.Objection, error)
	GetByID(ctx context.Context, id uint64) (model.Objection, error)
	ListByFarmer(ctx context.Context, farmerID uint64) ([]model.Objection, error)
	UpdateStatus(ctx context.Context, id uint64, from, to model.Status) (model.Objection, error)
	ListActive(ctx context.Context, term string, limit, offset int) ([]model.Objection, int, error)
	ListArchive(ctx context.Context, term string, limit, offset int) ([]model.ArchivedObjection, int, error)
}

// Publisher delivers domain events. Implementations live in package queue.
type Publisher interface {
	Publish(ctx context.Context, queueName string, event any) error
}

// LifecycleManager enforces the one-active-objection-per-farmer rule,
// generates objection codes and drives status transitions.
type LifecycleManager struct {
	store  ObjectionStore
	events Publisher
	log    *zap.Logger
	codes  func() (string, error)
	now    func() time.Time
}

type LifecycleOption func(*LifecycleManager)

// WithCodeGenerator replaces the random OBJ-#### generator.
func WithCodeGenerator(fn func() (string, error)) LifecycleOption {
	return func(m *LifecycleManager) { m.codes = fn }
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) LifecycleOption {
	return func(m *LifecycleManager) { m.now = now }
}

func NewLifecycleManager(store ObjectionStore, events Publisher, log *zap.Logger, opts ...LifecycleOption) *LifecycleManager {
	if events == nil {
		events = queue.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &LifecycleManager{
		store:  store,
		events: events,
		log:    log,
		codes:  RandomObjectionCode,
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// RandomObjectionCode returns OBJ- followed by a number in [1000, 9999].
func RandomObjectionCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("OBJ-%d", 1000+n.Int64()), nil
}

// CanSubmit reports whether the farmer has no pending or reviewed objection.
func (m *LifecycleManager) CanSubmit(ctx context.Context, farmerID uint64) (bool, error) {
	active, err := m.store.HasActive(ctx, farmerID)
	if err != nil {
		return false, storageErr("check active objection", err)
	}
	return !active, nil
}

// Submit creates a pending objection. It returns ErrConflict when the
// farmer already has an active one, including when a concurrent submission
// commits first.
func (m *LifecycleManager) Submit(ctx context.Context, farmerID uint64, transactionNumber string) (model.Objection, error) {
	transactionNumber = strings.TrimSpace(transactionNumber)
	switch {
	case transactionNumber == "":
		return model.Objection{}, newValidationError("transaction_number", "required")
	case utf8.RuneCountInString(transactionNumber) > maxTransactionNumberLen:
		return model.Objection{}, newValidationError("transaction_number",
			fmt.Sprintf("must be at most %d characters", maxTransactionNumberLen))
	}

	// fast path; CreatePending re-checks under the farmer row lock
	ok, err := m.CanSubmit(ctx, farmerID)
	if err != nil {
		return model.Objection{}, err
	}
	if !ok {
		return model.Objection{}, ErrConflict
	}

	var lastErr error
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := m.codes()
		if err != nil {
			return model.Objection{}, fmt.Errorf("generate objection code: %w", err)
		}
		o, err := m.store.CreatePending(ctx, farmerID, code, transactionNumber)
		switch {
		case err == nil:
			m.publish(ctx, queue.QueueObjectionSubmitted, queue.ObjectionSubmittedEvent{
				ObjectionID:       o.ID,
				FarmerID:          o.FarmerID,
				Code:              o.Code,
				TransactionNumber: o.TransactionNumber,
				SubmittedAt:       m.now().UTC().Format(time.RFC3339),
			})
			return o, nil
		case errors.Is(err, repository.ErrActiveObjectionExists):
			return model.Objection{}, ErrConflict
		case errors.Is(err, repository.ErrNotFound):
			return model.Objection{}, fmt.Errorf("farmer %d: %w", farmerID, ErrNotFound)
		// code taken by another objection, draw again
		case errors.Is(err, repository.ErrDuplicateCode):
			m.log.Debug("objection code collision", zap.String("code", code), zap.Int("attempt", attempt))
			lastErr = err
			continue
		default:
			return model.Objection{}, storageErr("create objection", err)
		}
	}
	return model.Objection{}, storageErr("create objection",
		fmt.Errorf("no free code after %d attempts: %w", maxCodeAttempts, lastErr))
}

// ListForFarmer returns all of the farmer's objections, newest first.
func (m *LifecycleManager) ListForFarmer(ctx context.Context, farmerID uint64) ([]model.Objection, error) {
	out, err := m.store.ListByFarmer(ctx, farmerID)
	if err != nil {
		return nil, storageErr("list farmer objections", err)
	}
	return out, nil
}

// Transition moves objection id to target. Only admins may call it, and
// only the edges allowed by model.CanTransition succeed. The write is a
// compare-and-set on the status that was read; if another transition wins
// in between, the objection is reloaded and the edge checked again.
func (m *LifecycleManager) Transition(ctx context.Context, id uint64, target model.Status, role Role) (model.Objection, error) {
	if role != RoleAdmin {
		return model.Objection{}, ErrForbidden
	}
	if !target.Valid() {
		return model.Objection{}, newValidationError("status", "unknown status")
	}

	for {
		cur, err := m.store.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.Objection{}, fmt.Errorf("objection %d: %w", id, ErrNotFound)
			}
			return model.Objection{}, storageErr("load objection", err)
		}
		if !model.CanTransition(cur.Status, target) {
			return model.Objection{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, target)
		}

		// CAS on the status we just read
		updated, err := m.store.UpdateStatus(ctx, id, cur.Status, target)
		if errors.Is(err, repository.ErrStaleStatus) {
			// Status moved forward under us. Every edge is forward-only,
			// so the retry terminates.
			if ctx.Err() != nil {
				return model.Objection{}, storageErr("update objection status", ctx.Err())
			}
			continue
		}
		if err != nil {
			return model.Objection{}, storageErr("update objection status", err)
		}

		m.publish(ctx, queue.QueueObjectionStatusChanged, queue.ObjectionStatusChangedEvent{
			ObjectionID: updated.ID,
			FarmerID:    updated.FarmerID,
			Code:        updated.Code,
			From:        string(cur.Status),
			To:          string(updated.Status),
			ChangedAt:   m.now().UTC().Format(time.RFC3339),
		})
		return updated, nil
	}
}

// Review moves a pending objection to reviewed.
func (m *LifecycleManager) Review(ctx context.Context, id uint64, role Role) (model.Objection, error) {
	return m.Transition(ctx, id, model.StatusReviewed, role)
}

// Resolve moves a pending or reviewed objection to resolved.
func (m *LifecycleManager) Resolve(ctx context.Context, id uint64, role Role) (model.Objection, error) {
	return m.Transition(ctx, id, model.StatusResolved, role)
}

// publish is best effort; a broker outage must not fail the request.
func (m *LifecycleManager) publish(ctx context.Context, queueName string, event any) {
	if err := m.events.Publish(ctx, queueName, event); err != nil {
		m.log.Warn("publish event failed", zap.String("queue", queueName), zap.Error(err))
	}
}
