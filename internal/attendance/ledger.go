package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campusops/internal/store"
)

// Ledger stores attendance records with at most one record per Key.
type Ledger interface {
	// Insert writes a new record, returning ErrRecordExists when the key is taken.
	Insert(ctx context.Context, r Record) (Record, error)
	// Get returns the record for key or store.ErrNotFound.
	Get(ctx context.Context, key Key) (Record, error)
	// SetCheckOut sets check_out_time to at if it still equals prev. It
	// reports false when another writer changed it first.
	SetCheckOut(ctx context.Context, id string, prev *time.Time, at time.Time) (bool, error)
	// ListByIdentity returns records with from <= date <= to, newest first.
	ListByIdentity(ctx context.Context, identityRef string, from, to time.Time) ([]Record, error)
}

const dayLayout = "2006-01-02"

// PostgresLedger persists attendance in Postgres.
type PostgresLedger struct {
	db  *sql.DB
	loc *time.Location
}

// NewPostgresLedger creates a ledger. Dates are read back as midnight in loc.
func NewPostgresLedger(db *sql.DB, loc *time.Location) *PostgresLedger {
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresLedger{db: db, loc: loc}
}

const recordColumns = `id, identity_ref, day, occurrence_ref, check_in_time, check_out_time, status, source, created_at`

// Insert writes a new record.
func (l *PostgresLedger) Insert(ctx context.Context, r Record) (Record, error) {
	row := l.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, identity_ref, day, occurrence_ref, check_in_time, check_out_time, status, source)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, r.ID, r.IdentityRef, r.Date.Format(dayLayout), r.OccurrenceRef, r.CheckInTime, r.CheckOutTime, string(r.Status), string(r.Source))
	if err := row.Scan(&r.CreatedAt); err != nil {
		if _, ok := store.UniqueViolation(err); ok {
			return Record{}, ErrRecordExists
		}
		return Record{}, err
	}
	return r, nil
}

// Get returns a single record by key.
func (l *PostgresLedger) Get(ctx context.Context, key Key) (Record, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE identity_ref = $1 AND day = $2::date AND COALESCE(occurrence_ref, '') = $3
	`, key.IdentityRef, key.Date.Format(dayLayout), key.OccurrenceRef)
	rec, err := l.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, store.ErrNotFound
	}
	return rec, err
}

// SetCheckOut conditionally updates check_out_time.
func (l *PostgresLedger) SetCheckOut(ctx context.Context, id string, prev *time.Time, at time.Time) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		UPDATE attendance_records SET check_out_time = $3
		WHERE id = $1 AND check_out_time IS NOT DISTINCT FROM $2
	`, id, prev, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListByIdentity returns an identity's records for a date range.
func (l *PostgresLedger) ListByIdentity(ctx context.Context, identityRef string, from, to time.Time) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE identity_ref = $1 AND day BETWEEN $2::date AND $3::date
		ORDER BY day DESC, check_in_time DESC
	`, identityRef, from.Format(dayLayout), to.Format(dayLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := l.scan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (l *PostgresLedger) scan(row rowScanner) (Record, error) {
	var r Record
	var day time.Time
	var occ sql.NullString
	var checkOut sql.NullTime
	var status, source string
	if err := row.Scan(&r.ID, &r.IdentityRef, &day, &occ, &r.CheckInTime, &checkOut, &status, &source, &r.CreatedAt); err != nil {
		return Record{}, err
	}
	y, m, d := day.Date()
	r.Date = time.Date(y, m, d, 0, 0, 0, 0, l.loc)
	if occ.Valid {
		r.OccurrenceRef = &occ.String
	}
	if checkOut.Valid {
		r.CheckOutTime = &checkOut.Time
	}
	r.Status = Status(status)
	r.Source = Source(source)
	return r, nil
}
