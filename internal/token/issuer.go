package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusops/internal/metrics"
	"campusops/internal/schedule"
	"campusops/internal/store"
)

// Issuer mints tokens for occurrences. It only creates: retiring older tokens
// is the renewal engine's job.
type Issuer struct {
	store     Store
	loc       *time.Location
	newCode   CodeFunc
	attempts  int
	issuerRef string
	timeout   time.Duration
}

// IssuerOptions configures an Issuer.
type IssuerOptions struct {
	Location  *time.Location
	Code      CodeFunc
	Attempts  int
	IssuerRef string
	Timeout   time.Duration
}

// NewIssuer creates an issuer backed by s.
func NewIssuer(s Store, opts IssuerOptions) *Issuer {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Code == nil {
		opts.Code = RandomCode(8)
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}
	if opts.IssuerRef == "" {
		opts.IssuerRef = "system"
	}
	return &Issuer{
		store:     s,
		loc:       opts.Location,
		newCode:   opts.Code,
		attempts:  opts.Attempts,
		issuerRef: opts.IssuerRef,
		timeout:   opts.Timeout,
	}
}

// Issue persists a fresh active token for the upcoming meeting of occ. The
// token expires when that meeting ends.
func (i *Issuer) Issue(ctx context.Context, occ schedule.Occurrence, now time.Time) (Token, error) {
	return i.IssueAs(ctx, occ, now, i.issuerRef)
}

// IssueAs is Issue with an explicit issuer reference, used for on-demand
// issuance by a named administrator.
func (i *Issuer) IssueAs(ctx context.Context, occ schedule.Occurrence, now time.Time, issuerRef string) (Token, error) {
	if err := occ.Validate(); err != nil {
		return Token{}, err
	}
	meeting := occ.NextMeeting(now, i.loc)
	tok := Token{
		OccurrenceRef: occ.ID,
		DepartmentRef: occ.DepartmentRef,
		YearLevel:     occ.YearLevel,
		IssuedAt:      now,
		ExpiresAt:     meeting.End,
		Active:        true,
		IssuerRef:     issuerRef,
	}

	for attempt := 0; attempt < i.attempts; attempt++ {
		code, err := i.newCode()
		if err != nil {
			return Token{}, err
		}
		tok.Code = code

		err = store.Exec(ctx, i.timeout, func(ctx context.Context) error {
			return i.store.Insert(ctx, tok)
		})
		switch {
		case err == nil:
			metrics.TokensIssued.Inc()
			return tok, nil
		case errors.Is(err, ErrCodeTaken):
			metrics.CodeCollisions.Inc()
			continue
		case errors.Is(err, ErrActiveExists):
			return Token{}, fmt.Errorf("%w: %s", ErrIssuanceCollision, occ.ID)
		default:
			return Token{}, fmt.Errorf("insert token for %s: %w", occ.ID, err)
		}
	}
	return Token{}, fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, i.attempts)
}
