package payment

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"campusops/internal/derive"
	"campusops/internal/store"
)

// Repository persists payments. Update is conditional on Version and bumps it.
type Repository interface {
	Create(ctx context.Context, p Payment) (Payment, error)
	Get(ctx context.Context, id string) (Payment, error)
	Update(ctx context.Context, p Payment) (Payment, error)
	ListByIdentity(ctx context.Context, identityRef string) ([]Payment, error)
	// ListStale returns unpaid payments due before t whose stored status is
	// not yet overdue.
	ListStale(ctx context.Context, t time.Time) ([]Payment, error)
}

// PostgresRepository stores payments in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const columns = `id, identity_ref, amount, paid_amount, remaining_amount, due_date, status, note, version, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, p Payment) (Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO payments (id, identity_ref, amount, paid_amount, remaining_amount, due_date, status, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+columns,
		p.ID, p.IdentityRef, p.Amount, p.PaidAmount, p.RemainingAmount, p.DueDate, string(p.Status), p.Note)
	return scan(row)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM payments WHERE id = $1`, id)
	p, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, store.ErrNotFound
	}
	return p, err
}

func (r *PostgresRepository) Update(ctx context.Context, p Payment) (Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE payments
		SET amount = $3, paid_amount = $4, remaining_amount = $5, due_date = $6, status = $7, note = $8,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING `+columns,
		p.ID, p.Version, p.Amount, p.PaidAmount, p.RemainingAmount, p.DueDate, string(p.Status), p.Note)
	updated, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, store.ErrConflict
	}
	return updated, err
}

func (r *PostgresRepository) ListByIdentity(ctx context.Context, identityRef string) ([]Payment, error) {
	return r.list(ctx, `SELECT `+columns+` FROM payments WHERE identity_ref = $1 ORDER BY due_date, id`, identityRef)
}

func (r *PostgresRepository) ListStale(ctx context.Context, t time.Time) ([]Payment, error) {
	return r.list(ctx, `
		SELECT `+columns+` FROM payments
		WHERE paid_amount = 0 AND amount > 0 AND due_date < $1 AND status <> $2
		ORDER BY due_date, id
	`, t, string(derive.PaymentOverdue))
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Payment
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (Payment, error) {
	var p Payment
	var status string
	err := row.Scan(&p.ID, &p.IdentityRef, &p.Amount, &p.PaidAmount, &p.RemainingAmount, &p.DueDate,
		&status, &p.Note, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	p.Status = derive.PaymentStatus(status)
	return p, err
}

// MemoryRepository keeps payments in memory for dev and tests.
type MemoryRepository struct {
	mu       sync.Mutex
	payments map[string]Payment
	now      func() time.Time
}

// NewMemoryRepository creates an empty repo.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{payments: make(map[string]Payment), now: time.Now}
}

func (r *MemoryRepository) Create(ctx context.Context, p Payment) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; ok {
		return Payment{}, errors.New("payment: duplicate id")
	}
	p.Version = 1
	p.CreatedAt = r.now().UTC()
	p.UpdatedAt = p.CreatedAt
	r.payments[p.ID] = p
	return p, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return Payment{}, store.ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) Update(ctx context.Context, p Payment) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.payments[p.ID]
	if !ok || cur.Version != p.Version {
		return Payment{}, store.ErrConflict
	}
	p.Version++
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = r.now().UTC()
	r.payments[p.ID] = p
	return p, nil
}

func (r *MemoryRepository) ListByIdentity(ctx context.Context, identityRef string) ([]Payment, error) {
	return r.filter(ctx, func(p Payment) bool { return p.IdentityRef == identityRef })
}

func (r *MemoryRepository) ListStale(ctx context.Context, t time.Time) ([]Payment, error) {
	return r.filter(ctx, func(p Payment) bool {
		return p.PaidAmount == 0 && p.Amount > 0 && p.DueDate.Before(t) && p.Status != derive.PaymentOverdue
	})
}

func (r *MemoryRepository) filter(ctx context.Context, keep func(Payment) bool) ([]Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Payment
	for _, p := range r.payments {
		if keep(p) {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].DueDate.Equal(res[j].DueDate) {
			return res[i].DueDate.Before(res[j].DueDate)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}
