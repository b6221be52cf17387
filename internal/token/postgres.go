package token

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campusops/internal/store"
)

const (
	codeConstraint   = "attendance_tokens_pkey"
	activeConstraint = "attendance_tokens_one_active"
)

// PostgresStore persists tokens in the attendance_tokens table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a token store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tokenColumns = `code, occurrence_ref, department_ref, year_level, issued_at, expires_at, active, issuer_ref`

// Insert writes a new token. Constraint violations map to ErrCodeTaken and ErrActiveExists.
func (s *PostgresStore) Insert(ctx context.Context, t Token) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_tokens (`+tokenColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, t.Code, t.OccurrenceRef, t.DepartmentRef, t.YearLevel, t.IssuedAt, t.ExpiresAt, t.Active, t.IssuerRef)
	if name, ok := store.UniqueViolation(err); ok {
		switch name {
		case activeConstraint:
			return ErrActiveExists
		case codeConstraint:
			return ErrCodeTaken
		}
	}
	return err
}

// FindByCode returns the token with the given code, active or not.
func (s *PostgresStore) FindByCode(ctx context.Context, code string) (Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+tokenColumns+` FROM attendance_tokens WHERE code = $1
	`, code)
	return scanToken(row)
}

// Active returns the live token for an occurrence.
func (s *PostgresStore) Active(ctx context.Context, occurrenceRef string, now time.Time) (Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+tokenColumns+` FROM attendance_tokens
		WHERE occurrence_ref = $1 AND active AND expires_at > $2
		ORDER BY issued_at DESC
		LIMIT 1
	`, occurrenceRef, now)
	return scanToken(row)
}

// DeactivateStale retires expired-but-active tokens of one occurrence.
func (s *PostgresStore) DeactivateStale(ctx context.Context, occurrenceRef string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance_tokens SET active = FALSE
		WHERE occurrence_ref = $1 AND active AND expires_at <= $2
	`, occurrenceRef, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeactivateExpired retires every expired-but-active token.
func (s *PostgresStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance_tokens SET active = FALSE
		WHERE active AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpiringBetween lists tokens by expiry range.
func (s *PostgresStore) ExpiringBetween(ctx context.Context, from, to time.Time) ([]Token, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tokenColumns+` FROM attendance_tokens
		WHERE expires_at >= $1 AND expires_at < $2
		ORDER BY expires_at, code
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (Token, error) {
	var t Token
	err := row.Scan(&t.Code, &t.OccurrenceRef, &t.DepartmentRef, &t.YearLevel, &t.IssuedAt, &t.ExpiresAt, &t.Active, &t.IssuerRef)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, store.ErrNotFound
	}
	return t, err
}
