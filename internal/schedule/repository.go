package schedule

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"campusops/internal/store"
)

// Repository reads the published timetable. The core never writes it.
type Repository interface {
	Get(ctx context.Context, id string) (Occurrence, error)
	ListPublished(ctx context.Context) ([]Occurrence, error)
}

// PostgresRepository reads occurrences from Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const occurrenceColumns = `id, course_ref, department_ref, year_level, day_of_week, start_minute, end_minute, room`

// Get returns a single published occurrence.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Occurrence, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+occurrenceColumns+`
		FROM schedule_occurrences WHERE id = $1 AND published
	`, id)
	o, err := scanOccurrence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Occurrence{}, store.ErrNotFound
	}
	return o, err
}

// ListPublished returns every published occurrence.
func (r *PostgresRepository) ListPublished(ctx context.Context) ([]Occurrence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+occurrenceColumns+`
		FROM schedule_occurrences WHERE published
		ORDER BY day_of_week, start_minute, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Occurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOccurrence(row rowScanner) (Occurrence, error) {
	var o Occurrence
	var weekday, start, end int
	if err := row.Scan(&o.ID, &o.CourseRef, &o.DepartmentRef, &o.YearLevel, &weekday, &start, &end, &o.Room); err != nil {
		return Occurrence{}, err
	}
	o.Weekday = time.Weekday(weekday)
	o.Start = TimeOfDay(start)
	o.End = TimeOfDay(end)
	return o, nil
}

// MemoryRepository is an in-process timetable for dev/testing.
type MemoryRepository struct {
	mu   sync.RWMutex
	occs map[string]Occurrence
}

// NewMemoryRepository creates a repository seeded with occs.
func NewMemoryRepository(occs ...Occurrence) *MemoryRepository {
	r := &MemoryRepository{occs: make(map[string]Occurrence)}
	for _, o := range occs {
		r.occs[o.ID] = o
	}
	return r
}

// Put adds or replaces an occurrence.
func (r *MemoryRepository) Put(o Occurrence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.occs[o.ID] = o
}

// Get returns a single occurrence.
func (r *MemoryRepository) Get(_ context.Context, id string) (Occurrence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.occs[id]
	if !ok {
		return Occurrence{}, store.ErrNotFound
	}
	return o, nil
}

// ListPublished returns all occurrences ordered like the Postgres query.
func (r *MemoryRepository) ListPublished(_ context.Context) ([]Occurrence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Occurrence, 0, len(r.occs))
	for _, o := range r.occs {
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Weekday != res[j].Weekday {
			return res[i].Weekday < res[j].Weekday
		}
		if res[i].Start != res[j].Start {
			return res[i].Start < res[j].Start
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}
