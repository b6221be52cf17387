package borrowing

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

// Service is the only write path for borrowings.
type Service struct {
	repo    Repository
	timeout time.Duration
	retries int
}

// NewService creates a borrowing service.
func NewService(repo Repository, storeTimeout time.Duration) *Service {
	return &Service{repo: repo, timeout: storeTimeout, retries: 3}
}

// Create records a new loan.
func (s *Service) Create(ctx context.Context, in NewBorrowing, now time.Time) (Borrowing, error) {
	b := Borrowing{
		ID:          uuid.NewString(),
		IdentityRef: in.IdentityRef,
		ItemRef:     in.ItemRef,
		BorrowDate:  in.BorrowDate,
		DueDate:     in.DueDate,
		Note:        in.Note,
	}
	if b.BorrowDate.IsZero() {
		b.BorrowDate = now
	}
	if err := b.validate(); err != nil {
		return Borrowing{}, err
	}
	b = b.derived(now)
	created, err := store.Do(ctx, s.timeout, func(ctx context.Context) (Borrowing, error) {
		return s.repo.Create(ctx, b)
	})
	if err != nil {
		return Borrowing{}, err
	}
	metrics.DerivedWrites.WithLabelValues("borrowing", string(created.Status)).Inc()
	return created, nil
}

// Get returns a loan as stored.
func (s *Service) Get(ctx context.Context, id string) (Borrowing, error) {
	return store.Do(ctx, s.timeout, func(ctx context.Context) (Borrowing, error) {
		return s.repo.Get(ctx, id)
	})
}

// ListByIdentity returns an identity's loans, newest first.
func (s *Service) ListByIdentity(ctx context.Context, identityRef string) ([]Borrowing, error) {
	return store.Do(ctx, s.timeout, func(ctx context.Context) ([]Borrowing, error) {
		return s.repo.ListByIdentity(ctx, identityRef)
	})
}

// Update applies patch.
func (s *Service) Update(ctx context.Context, id string, patch Patch, now time.Time) (Borrowing, error) {
	return s.modify(ctx, id, now, func(b *Borrowing) error {
		if patch.DueDate != nil {
			b.DueDate = *patch.DueDate
		}
		if patch.ReturnDate != nil {
			b.ReturnDate = patch.ReturnDate
		}
		if patch.Note != nil {
			b.Note = *patch.Note
		}
		return nil
	})
}

// Return marks the item as handed back at now.
func (s *Service) Return(ctx context.Context, id string, now time.Time) (Borrowing, error) {
	return s.modify(ctx, id, now, func(b *Borrowing) error {
		if b.ReturnDate != nil {
			return ErrAlreadyReturned
		}
		at := now
		b.ReturnDate = &at
		return nil
	})
}

// Refresh rewrites loans that have become overdue since their last write.
func (s *Service) Refresh(ctx context.Context, now time.Time) (int, error) {
	stale, err := store.Do(ctx, s.timeout, func(ctx context.Context) ([]Borrowing, error) {
		return s.repo.ListStale(ctx, now)
	})
	if err != nil {
		return 0, fmt.Errorf("list stale borrowings: %w", err)
	}
	n := 0
	for _, b := range stale {
		if _, err := s.modify(ctx, b.ID, now, func(*Borrowing) error { return nil }); err != nil {
			log.Printf("refresh borrowing %s: %v", b.ID, err)
			continue
		}
		n++
	}
	return n, nil
}

func (s *Service) modify(ctx context.Context, id string, now time.Time, apply func(*Borrowing) error) (Borrowing, error) {
	for attempt := 0; ; attempt++ {
		cur, err := s.Get(ctx, id)
		if err != nil {
			return Borrowing{}, err
		}
		next := cur
		if err := apply(&next); err != nil {
			return Borrowing{}, err
		}
		if err := next.validate(); err != nil {
			return Borrowing{}, err
		}
		next = next.derived(now)
		saved, err := store.Do(ctx, s.timeout, func(ctx context.Context) (Borrowing, error) {
			return s.repo.Update(ctx, next)
		})
		if errors.Is(err, store.ErrConflict) && attempt+1 < s.retries {
			continue
		}
		if err != nil {
			return Borrowing{}, err
		}
		metrics.DerivedWrites.WithLabelValues("borrowing", string(saved.Status)).Inc()
		return saved, nil
	}
}
