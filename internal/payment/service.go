package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"campusops/internal/metrics"
	"campusops/internal/store"
)

// Service is the only write path for payments. Every write re-derives status
// and remaining amount.
type Service struct {
	repo    Repository
	timeout time.Duration
	retries int
}

// NewService creates a payment service.
func NewService(repo Repository, storeTimeout time.Duration) *Service {
	return &Service{repo: repo, timeout: storeTimeout, retries: 3}
}

// Create persists a new payment.
func (s *Service) Create(ctx context.Context, in NewPayment, now time.Time) (Payment, error) {
	p := Payment{
		ID:          uuid.NewString(),
		IdentityRef: in.IdentityRef,
		Amount:      in.Amount,
		PaidAmount:  in.PaidAmount,
		DueDate:     in.DueDate,
		Note:        in.Note,
	}
	if err := p.validate(); err != nil {
		return Payment{}, err
	}
	p = p.derived(now)
	created, err := store.Do(ctx, s.timeout, func(ctx context.Context) (Payment, error) {
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return Payment{}, err
	}
	metrics.DerivedWrites.WithLabelValues("payment", string(created.Status)).Inc()
	return created, nil
}

// Get returns a payment as stored.
func (s *Service) Get(ctx context.Context, id string) (Payment, error) {
	return store.Do(ctx, s.timeout, func(ctx context.Context) (Payment, error) {
		return s.repo.Get(ctx, id)
	})
}

// ListByIdentity returns an identity's payments ordered by due date.
func (s *Service) ListByIdentity(ctx context.Context, identityRef string) ([]Payment, error) {
	return store.Do(ctx, s.timeout, func(ctx context.Context) ([]Payment, error) {
		return s.repo.ListByIdentity(ctx, identityRef)
	})
}

// Update applies patch.
func (s *Service) Update(ctx context.Context, id string, patch Patch, now time.Time) (Payment, error) {
	return s.modify(ctx, id, now, func(p *Payment) error {
		if patch.Amount != nil {
			p.Amount = *patch.Amount
		}
		if patch.PaidAmount != nil {
			p.PaidAmount = *patch.PaidAmount
		}
		if patch.DueDate != nil {
			p.DueDate = *patch.DueDate
		}
		if patch.Note != nil {
			p.Note = *patch.Note
		}
		return nil
	})
}

// Pay records an instalment.
func (s *Service) Pay(ctx context.Context, id string, amount int64, now time.Time) (Payment, error) {
	if amount <= 0 {
		return Payment{}, errors.Join(ErrInvalid, errors.New("instalment must be positive"))
	}
	return s.modify(ctx, id, now, func(p *Payment) error {
		p.PaidAmount += amount
		return nil
	})
}

// Refresh rewrites payments that have become overdue since their last write.
// It returns how many rows changed.
func (s *Service) Refresh(ctx context.Context, now time.Time) (int, error) {
	stale, err := store.Do(ctx, s.timeout, func(ctx context.Context) ([]Payment, error) {
		return s.repo.ListStale(ctx, now)
	})
	if err != nil {
		return 0, fmt.Errorf("list stale payments: %w", err)
	}
	n := 0
	for _, p := range stale {
		if _, err := s.modify(ctx, p.ID, now, func(*Payment) error { return nil }); err != nil {
			log.Printf("refresh payment %s: %v", p.ID, err)
			continue
		}
		n++
	}
	return n, nil
}

// modify runs a read-derive-write cycle, retrying when another writer bumped
// the version in between.
func (s *Service) modify(ctx context.Context, id string, now time.Time, apply func(*Payment) error) (Payment, error) {
	for attempt := 0; ; attempt++ {
		cur, err := s.Get(ctx, id)
		if err != nil {
			return Payment{}, err
		}
		next := cur
		if err := apply(&next); err != nil {
			return Payment{}, err
		}
		if err := next.validate(); err != nil {
			return Payment{}, err
		}
		next = next.derived(now)
		saved, err := store.Do(ctx, s.timeout, func(ctx context.Context) (Payment, error) {
			return s.repo.Update(ctx, next)
		})
		if errors.Is(err, store.ErrConflict) && attempt+1 < s.retries {
			continue
		}
		if err != nil {
			return Payment{}, err
		}
		metrics.DerivedWrites.WithLabelValues("payment", string(saved.Status)).Inc()
		return saved, nil
	}
}
