// Package token mints and stores the short-lived codes students scan to
// record attendance for a lecture occurrence.
package token

import (
	"context"
	"errors"
	"time"
)

// Token is a scannable attendance code bound to one concrete meeting.
type Token struct {
	Code          string    `json:"code"`
	OccurrenceRef string    `json:"occurrence_ref"`
	DepartmentRef string    `json:"department_ref"`
	YearLevel     int       `json:"year_level"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Active        bool      `json:"active"`
	IssuerRef     string    `json:"issuer_ref"`
}

// ValidAt reports whether the token may be scanned at now.
func (t Token) ValidAt(now time.Time) bool {
	return t.Active && !now.After(t.ExpiresAt)
}

var (
	// ErrCodeTaken means the code value was issued before. Issuers regenerate.
	ErrCodeTaken = errors.New("token: code already issued")
	// ErrActiveExists means the occurrence already holds an active token.
	ErrActiveExists = errors.New("token: occurrence already has an active token")
	// ErrIssuanceCollision is returned by Issue when a concurrent issuance for
	// the same occurrence won the race.
	ErrIssuanceCollision = errors.New("token: concurrent issuance for occurrence")
	// ErrCodeSpaceExhausted is returned when every regeneration attempt collided.
	ErrCodeSpaceExhausted = errors.New("token: could not generate an unused code")
)

// Store persists tokens. Implementations enforce code uniqueness and at most
// one active token per occurrence, reporting violations as ErrCodeTaken and
// ErrActiveExists. Lookups that match nothing return store.ErrNotFound.
type Store interface {
	Insert(ctx context.Context, t Token) error
	FindByCode(ctx context.Context, code string) (Token, error)
	// Active returns the occurrence's active token whose expiry is after now.
	Active(ctx context.Context, occurrenceRef string, now time.Time) (Token, error)
	// DeactivateStale flips active tokens of one occurrence that expired at or before now.
	DeactivateStale(ctx context.Context, occurrenceRef string, now time.Time) (int64, error)
	// DeactivateExpired flips every active token that expired at or before now.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	// ExpiringBetween lists tokens with from <= expires_at < to, oldest expiry first.
	ExpiringBetween(ctx context.Context, from, to time.Time) ([]Token, error)
}
