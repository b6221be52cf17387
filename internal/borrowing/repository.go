package borrowing

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

// Repository persists borrowings. Update is conditional on Version and bumps it.
type Repository interface {
	Create(ctx context.Context, b Borrowing) (Borrowing, error)
	Get(ctx context.Context, id string) (Borrowing, error)
	Update(ctx context.Context, b Borrowing) (Borrowing, error)
	ListByIdentity(ctx context.Context, identityRef string) ([]Borrowing, error)
	// ListStale returns unreturned loans due before t still stored as active.
	ListStale(ctx context.Context, t time.Time) ([]Borrowing, error)
}

// PostgresRepository stores borrowings in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const columns = `id, identity_ref, item_ref, borrow_date, due_date, return_date, status, note, version, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, b Borrowing) (Borrowing, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO borrowings (id, identity_ref, item_ref, borrow_date, due_date, return_date, status, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+columns,
		b.ID, b.IdentityRef, b.ItemRef, b.BorrowDate, b.DueDate, b.ReturnDate, string(b.Status), b.Note)
	return scan(row)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Borrowing, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM borrowings WHERE id = $1`, id)
	b, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Borrowing{}, store.ErrNotFound
	}
	return b, err
}

func (r *PostgresRepository) Update(ctx context.Context, b Borrowing) (Borrowing, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE borrowings
		SET due_date = $3, return_date = $4, status = $5, note = $6,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING `+columns,
		b.ID, b.Version, b.DueDate, b.ReturnDate, string(b.Status), b.Note)
	updated, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Borrowing{}, store.ErrConflict
	}
	return updated, err
}

func (r *PostgresRepository) ListByIdentity(ctx context.Context, identityRef string) ([]Borrowing, error) {
	return r.list(ctx, `SELECT `+columns+` FROM borrowings WHERE identity_ref = $1 ORDER BY borrow_date DESC, id`, identityRef)
}

func (r *PostgresRepository) ListStale(ctx context.Context, t time.Time) ([]Borrowing, error) {
	return r.list(ctx, `
		SELECT `+columns+` FROM borrowings
		WHERE return_date IS NULL AND due_date < $1 AND status = $2
		ORDER BY due_date, id
	`, t, string(derive.BorrowingActive))
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Borrowing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Borrowing
	for rows.Next() {
		b, err := scan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (Borrowing, error) {
	var b Borrowing
	var status string
	var returned sql.NullTime
	err := row.Scan(&b.ID, &b.IdentityRef, &b.ItemRef, &b.BorrowDate, &b.DueDate, &returned,
		&status, &b.Note, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if returned.Valid {
		b.ReturnDate = &returned.Time
	}
	b.Status = derive.BorrowingStatus(status)
	return b, err
}

// MemoryRepository keeps borrowings in memory for dev and tests.
type MemoryRepository struct {
	mu    sync.Mutex
	loans map[string]Borrowing
	now   func() time.Time
}

// NewMemoryRepository creates an empty repo.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{loans: make(map[string]Borrowing), now: time.Now}
}

func (r *MemoryRepository) Create(ctx context.Context, b Borrowing) (Borrowing, error) {
	if err := ctx.Err(); err != nil {
		return Borrowing{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loans[b.ID]; ok {
		return Borrowing{}, errors.New("borrowing: duplicate id")
	}
	b.Version = 1
	b.CreatedAt = r.now().UTC()
	b.UpdatedAt = b.CreatedAt
	r.loans[b.ID] = b
	return b, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (Borrowing, error) {
	if err := ctx.Err(); err != nil {
		return Borrowing{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.loans[id]
	if !ok {
		return Borrowing{}, store.ErrNotFound
	}
	return b, nil
}

func (r *MemoryRepository) Update(ctx context.Context, b Borrowing) (Borrowing, error) {
	if err := ctx.Err(); err != nil {
		return Borrowing{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.loans[b.ID]
	if !ok || cur.Version != b.Version {
		return Borrowing{}, store.ErrConflict
	}
	// identity, item and borrow date are fixed at creation
	b.IdentityRef, b.ItemRef, b.BorrowDate = cur.IdentityRef, cur.ItemRef, cur.BorrowDate
	b.Version++
	b.CreatedAt = cur.CreatedAt
	b.UpdatedAt = r.now().UTC()
	r.loans[b.ID] = b
	return b, nil
}

func (r *MemoryRepository) ListByIdentity(ctx context.Context, identityRef string) ([]Borrowing, error) {
	res, err := r.filter(ctx, func(b Borrowing) bool { return b.IdentityRef == identityRef })
	sort.SliceStable(res, func(i, j int) bool { return res[i].BorrowDate.After(res[j].BorrowDate) })
	return res, err
}

func (r *MemoryRepository) ListStale(ctx context.Context, t time.Time) ([]Borrowing, error) {
	return r.filter(ctx, func(b Borrowing) bool {
		return b.ReturnDate == nil && b.DueDate.Before(t) && b.Status == derive.BorrowingActive
	})
}

func (r *MemoryRepository) filter(ctx context.Context, keep func(Borrowing) bool) ([]Borrowing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Borrowing
	for _, b := range r.loans {
		if keep(b) {
			res = append(res, b)
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
