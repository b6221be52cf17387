package token

import (
	"context"
	"sort"
	"sync"
	"time"

	"campusops/internal/store"
)

// MemoryStore is a mutex-guarded token store for dev/testing. It enforces the
// same uniqueness rules as the Postgres schema.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]Token
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]Token)}
}

func (s *MemoryStore) Insert(ctx context.Context, t Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.Code]; ok {
		return ErrCodeTaken
	}
	if t.Active {
		for _, existing := range s.tokens {
			if existing.Active && existing.OccurrenceRef == t.OccurrenceRef {
				return ErrActiveExists
			}
		}
	}
	s.tokens[t.Code] = t
	return nil
}

func (s *MemoryStore) FindByCode(ctx context.Context, code string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[code]
	if !ok {
		return Token{}, store.ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) Active(ctx context.Context, occurrenceRef string, now time.Time) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.OccurrenceRef == occurrenceRef && t.Active && t.ExpiresAt.After(now) {
			return t, nil
		}
	}
	return Token{}, store.ErrNotFound
}

func (s *MemoryStore) DeactivateStale(ctx context.Context, occurrenceRef string, now time.Time) (int64, error) {
	return s.deactivate(ctx, func(t Token) bool {
		return t.OccurrenceRef == occurrenceRef && !t.ExpiresAt.After(now)
	})
}

func (s *MemoryStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.deactivate(ctx, func(t Token) bool {
		return !t.ExpiresAt.After(now)
	})
}

func (s *MemoryStore) deactivate(ctx context.Context, match func(Token) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for code, t := range s.tokens {
		if t.Active && match(t) {
			t.Active = false
			s.tokens[code] = t
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ExpiringBetween(ctx context.Context, from, to time.Time) ([]Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Token
	for _, t := range s.tokens {
		if !t.ExpiresAt.Before(from) && t.ExpiresAt.Before(to) {
			res = append(res, t)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].ExpiresAt.Equal(res[j].ExpiresAt) {
			return res[i].ExpiresAt.Before(res[j].ExpiresAt)
		}
		return res[i].Code < res[j].Code
	})
	return res, nil
}
