// Package attendance records presence from token scans and manual entries.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"campusops/internal/metrics"
	"campusops/internal/schedule"
	"campusops/internal/store"
	"campusops/internal/token"
)

// Service validates scans against tokens and writes the attendance ledger.
type Service struct {
	ledger      Ledger
	tokens      token.Store
	occurrences schedule.Repository
	loc         *time.Location
	grace       time.Duration
	minInterval time.Duration
	timeout     time.Duration
}

// Options configures a Service.
type Options struct {
	Location     *time.Location
	Grace        time.Duration
	MinInterval  time.Duration
	StoreTimeout time.Duration
}

// NewService wires the scan handler.
func NewService(ledger Ledger, tokens token.Store, occ schedule.Repository, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Grace <= 0 {
		opts.Grace = 15 * time.Minute
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = 5 * time.Minute
	}
	return &Service{
		ledger:      ledger,
		tokens:      tokens,
		occurrences: occ,
		loc:         opts.Location,
		grace:       opts.Grace,
		minInterval: opts.MinInterval,
		timeout:     opts.StoreTimeout,
	}
}

// ScanResult is the outcome of an accepted scan.
type ScanResult struct {
	Record     Record `json:"record"`
	CheckedOut bool   `json:"checked_out"`
}

// Scan checks code against the token store and records a check-in for who,
// or a check-out when who already checked in long enough ago.
func (s *Service) Scan(ctx context.Context, code string, who Identity, now time.Time) (ScanResult, error) {
	res, err := s.scan(ctx, code, who, now)
	outcome := "checked_in"
	switch {
	case err == nil && res.CheckedOut:
		outcome = "checked_out"
	case err != nil && CodeOf(err) != "":
		outcome = string(CodeOf(err))
	case errors.Is(err, store.ErrTimeout):
		outcome = "timeout"
		metrics.StoreTimeouts.WithLabelValues("scan").Inc()
	case err != nil:
		outcome = "error"
		log.Printf("scan by %s: %v", who.Ref, err)
	}
	metrics.ScanOutcomes.WithLabelValues(outcome).Inc()
	return res, err
}

func (s *Service) scan(ctx context.Context, code string, who Identity, now time.Time) (ScanResult, error) {
	tok, err := store.Do(ctx, s.timeout, func(ctx context.Context) (token.Token, error) {
		return s.tokens.FindByCode(ctx, code)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ScanResult{}, ErrInvalidCode
	}
	if err != nil {
		return ScanResult{}, fmt.Errorf("find token: %w", err)
	}
	if !tok.ValidAt(now) {
		return ScanResult{}, ErrTokenExpired
	}
	if tok.DepartmentRef != who.DepartmentRef || tok.YearLevel != who.YearLevel {
		return ScanResult{}, ErrNotEntitled
	}

	occ, err := store.Do(ctx, s.timeout, func(ctx context.Context) (schedule.Occurrence, error) {
		return s.occurrences.Get(ctx, tok.OccurrenceRef)
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("load occurrence %s: %w", tok.OccurrenceRef, err)
	}
	// Same meeting the issuer resolved when it minted the token.
	start := occ.NextMeeting(tok.IssuedAt, s.loc).Start

	occRef := tok.OccurrenceRef
	rec := Record{
		ID:            uuid.NewString(),
		IdentityRef:   who.Ref,
		Date:          schedule.Day(now, s.loc),
		OccurrenceRef: &occRef,
		CheckInTime:   now,
		Status:        StatusFor(start, now, s.grace),
		Source:        SourceScan,
	}
	saved, err := store.Do(ctx, s.timeout, func(ctx context.Context) (Record, error) {
		return s.ledger.Insert(ctx, rec)
	})
	if err == nil {
		return ScanResult{Record: saved}, nil
	}
	if !errors.Is(err, ErrRecordExists) {
		return ScanResult{}, fmt.Errorf("insert record: %w", err)
	}
	return s.checkOut(ctx, rec.Key(), now)
}

// checkOut handles a scan for a key that already has a record.
func (s *Service) checkOut(ctx context.Context, key Key, now time.Time) (ScanResult, error) {
	existing, err := store.Do(ctx, s.timeout, func(ctx context.Context) (Record, error) {
		return s.ledger.Get(ctx, key)
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("load record: %w", err)
	}
	if existing.CheckInTime.IsZero() || now.Sub(existing.CheckInTime) <= s.minInterval {
		return ScanResult{}, ErrDuplicateScan
	}
	if existing.CheckOutTime != nil && now.Sub(*existing.CheckOutTime) <= s.minInterval {
		return ScanResult{}, ErrDuplicateScan
	}

	ok, err := store.Do(ctx, s.timeout, func(ctx context.Context) (bool, error) {
		return s.ledger.SetCheckOut(ctx, existing.ID, existing.CheckOutTime, now)
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("set check-out: %w", err)
	}
	if !ok {
		// a concurrent scan checked out first
		return ScanResult{}, ErrDuplicateScan
	}
	existing.CheckOutTime = &now
	return ScanResult{Record: existing, CheckedOut: true}, nil
}

// ManualEntry is an administrator-recorded attendance line.
type ManualEntry struct {
	IdentityRef   string    `json:"identity_ref"`
	Date          string    `json:"date"`
	OccurrenceRef *string   `json:"occurrence_ref,omitempty"`
	Status        Status    `json:"status"`
	CheckInTime   time.Time `json:"check_in_time"`
}

// ErrInvalidEntry wraps validation failures of manual entries.
var ErrInvalidEntry = errors.New("attendance: invalid entry")

// RecordManual inserts a manual record. Unlike scans, it may record absent.
func (s *Service) RecordManual(ctx context.Context, e ManualEntry, now time.Time) (Record, error) {
	if e.IdentityRef == "" {
		return Record{}, fmt.Errorf("%w: identity_ref required", ErrInvalidEntry)
	}
	if !e.Status.Valid() {
		return Record{}, fmt.Errorf("%w: unknown status %q", ErrInvalidEntry, e.Status)
	}
	day := schedule.Day(now, s.loc)
	if e.Date != "" {
		d, err := time.ParseInLocation(dayLayout, e.Date, s.loc)
		if err != nil {
			return Record{}, fmt.Errorf("%w: date: %v", ErrInvalidEntry, err)
		}
		day = d
	}
	if e.OccurrenceRef != nil && *e.OccurrenceRef == "" {
		e.OccurrenceRef = nil
	}
	if e.CheckInTime.IsZero() {
		e.CheckInTime = now
	}
	rec := Record{
		ID:            uuid.NewString(),
		IdentityRef:   e.IdentityRef,
		Date:          day,
		OccurrenceRef: e.OccurrenceRef,
		CheckInTime:   e.CheckInTime,
		Status:        e.Status,
		Source:        SourceManual,
	}
	return store.Do(ctx, s.timeout, func(ctx context.Context) (Record, error) {
		return s.ledger.Insert(ctx, rec)
	})
}

// History lists an identity's records between two calendar days, inclusive.
func (s *Service) History(ctx context.Context, identityRef string, from, to time.Time) ([]Record, error) {
	from, to = schedule.Day(from, s.loc), schedule.Day(to, s.loc)
	if to.Before(from) {
		from, to = to, from
	}
	return store.Do(ctx, s.timeout, func(ctx context.Context) ([]Record, error) {
		return s.ledger.ListByIdentity(ctx, identityRef, from, to)
	})
}
