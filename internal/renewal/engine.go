// Package renewal keeps a live attendance token in place for every occurrence
// that is about to meet.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"campusops/internal/metrics"
	"campusops/internal/schedule"
	"campusops/internal/store"
	"campusops/internal/token"
)

// Cadence names a renewal trigger.
type Cadence string

const (
	// Daily covers every occurrence meeting on the current calendar day.
	Daily Cadence = "daily"
	// Hourly covers occurrences starting within the lookahead window.
	Hourly Cadence = "hourly"
)

// ParseCadence validates a cadence name.
func ParseCadence(s string) (Cadence, error) {
	switch Cadence(s) {
	case Daily, Hourly:
		return Cadence(s), nil
	}
	return "", fmt.Errorf("unknown cadence %q", s)
}

// Result lists the occurrences a pass visited. Failed holds occurrences whose
// store calls errored; they are retried on the next pass.
type Result struct {
	Renewed []string `json:"renewed"`
	Skipped []string `json:"skipped"`
	Failed  []string `json:"failed,omitempty"`
}

// Engine runs renewal passes.
type Engine struct {
	occurrences schedule.Repository
	tokens      token.Store
	issuer      *token.Issuer
	loc         *time.Location
	lookahead   time.Duration
	timeout     time.Duration
}

// Options configures an Engine.
type Options struct {
	Location     *time.Location
	Lookahead    time.Duration
	StoreTimeout time.Duration
}

// NewEngine wires an engine.
func NewEngine(occ schedule.Repository, tokens token.Store, issuer *token.Issuer, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = time.Hour
	}
	return &Engine{
		occurrences: occ,
		tokens:      tokens,
		issuer:      issuer,
		loc:         opts.Location,
		lookahead:   opts.Lookahead,
		timeout:     opts.StoreTimeout,
	}
}

// Horizon is the latest meeting start a pass of cadence c considers due.
func (e *Engine) Horizon(c Cadence, now time.Time) time.Time {
	if c == Daily {
		return schedule.Day(now, e.loc).AddDate(0, 0, 1)
	}
	return now.Add(e.lookahead)
}

// Renew makes sure every occurrence whose next meeting starts before the
// cadence horizon holds an active, unexpired token. Re-running with the same
// now issues nothing new. A failure on one occurrence is logged and the pass
// continues.
func (e *Engine) Renew(ctx context.Context, c Cadence, now time.Time) (Result, error) {
	res := Result{Renewed: []string{}, Skipped: []string{}}
	occs, err := store.Do(ctx, e.timeout, func(ctx context.Context) ([]schedule.Occurrence, error) {
		return e.occurrences.ListPublished(ctx)
	})
	if err != nil {
		return res, fmt.Errorf("list occurrences: %w", err)
	}

	horizon := e.Horizon(c, now)
	issuerRef := "scheduler:" + string(c)
	for _, occ := range occs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if occ.NextMeeting(now, e.loc).Start.After(horizon) {
			continue
		}

		_, issued, err := e.ensure(ctx, occ, now, issuerRef)
		switch {
		case err == nil && issued:
			res.Renewed = append(res.Renewed, occ.ID)
			metrics.RenewalOutcomes.WithLabelValues(string(c), "renewed").Inc()
		case err == nil, errors.Is(err, token.ErrIssuanceCollision):
			res.Skipped = append(res.Skipped, occ.ID)
			metrics.RenewalOutcomes.WithLabelValues(string(c), "skipped").Inc()
		default:
			if errors.Is(err, store.ErrTimeout) {
				metrics.StoreTimeouts.WithLabelValues("renew").Inc()
			}
			log.Printf("renewal %s: occurrence %s: %v", c, occ.ID, err)
			res.Failed = append(res.Failed, occ.ID)
			metrics.RenewalOutcomes.WithLabelValues(string(c), "failed").Inc()
		}
	}
	return res, nil
}

// RenewOccurrence is the on-demand path for a single occurrence. It returns
// the live token and whether this call minted it.
func (e *Engine) RenewOccurrence(ctx context.Context, occurrenceID string, now time.Time, issuerRef string) (token.Token, bool, error) {
	occ, err := store.Do(ctx, e.timeout, func(ctx context.Context) (schedule.Occurrence, error) {
		return e.occurrences.Get(ctx, occurrenceID)
	})
	if err != nil {
		return token.Token{}, false, err
	}
	tok, issued, err := e.ensure(ctx, occ, now, issuerRef)
	if errors.Is(err, token.ErrIssuanceCollision) {
		tok, err = e.active(ctx, occ.ID, now)
		return tok, false, err
	}
	return tok, issued, err
}

// Current returns the live token of an occurrence without issuing.
func (e *Engine) Current(ctx context.Context, occurrenceID string, now time.Time) (token.Token, error) {
	return e.active(ctx, occurrenceID, now)
}

// Expiring lists tokens whose expiry falls in [from, to), active or not.
func (e *Engine) Expiring(ctx context.Context, from, to time.Time) ([]token.Token, error) {
	return store.Do(ctx, e.timeout, func(ctx context.Context) ([]token.Token, error) {
		return e.tokens.ExpiringBetween(ctx, from, to)
	})
}

// Sweep retires every token whose expiry has passed.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := store.Do(ctx, e.timeout, func(ctx context.Context) (int64, error) {
		return e.tokens.DeactivateExpired(ctx, now)
	})
	if err != nil {
		return 0, fmt.Errorf("deactivate expired: %w", err)
	}
	metrics.TokensDeactivated.Add(float64(n))
	return n, nil
}

// ensure is the single authoritative "live token exists" check followed by
// issuance. A concurrent winner surfaces as token.ErrIssuanceCollision.
func (e *Engine) ensure(ctx context.Context, occ schedule.Occurrence, now time.Time, issuerRef string) (token.Token, bool, error) {
	existing, err := e.active(ctx, occ.ID, now)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return token.Token{}, false, err
	}

	err = store.Exec(ctx, e.timeout, func(ctx context.Context) error {
		n, err := e.tokens.DeactivateStale(ctx, occ.ID, now)
		metrics.TokensDeactivated.Add(float64(n))
		return err
	})
	if err != nil {
		return token.Token{}, false, fmt.Errorf("retire stale tokens: %w", err)
	}

	tok, err := e.issuer.IssueAs(ctx, occ, now, issuerRef)
	if err != nil {
		return token.Token{}, false, err
	}
	return tok, true, nil
}

func (e *Engine) active(ctx context.Context, occurrenceID string, now time.Time) (token.Token, error) {
	return store.Do(ctx, e.timeout, func(ctx context.Context) (token.Token, error) {
		return e.tokens.Active(ctx, occurrenceID, now)
	})
}
