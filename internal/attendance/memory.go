package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"campusops/internal/store"
)

// MemoryLedger is an in-process ledger for dev and tests. It enforces the same
// key uniqueness as attendance_records_key.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[Key]Record
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[Key]Record)}
}

func (l *MemoryLedger) Insert(ctx context.Context, r Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k := r.Key()
	if _, ok := l.records[k]; ok {
		return Record{}, ErrRecordExists
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	l.records[k] = r
	return r, nil
}

func (l *MemoryLedger) Get(ctx context.Context, key Key) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[key]
	if !ok {
		return Record{}, store.ErrNotFound
	}
	return r, nil
}

func (l *MemoryLedger) SetCheckOut(ctx context.Context, id string, prev *time.Time, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, r := range l.records {
		if r.ID != id {
			continue
		}
		if !sameTime(r.CheckOutTime, prev) {
			return false, nil
		}
		out := at
		r.CheckOutTime = &out
		l.records[k] = r
		return true, nil
	}
	return false, nil
}

func (l *MemoryLedger) ListByIdentity(ctx context.Context, identityRef string, from, to time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var res []Record
	for _, r := range l.records {
		if r.IdentityRef == identityRef && !r.Date.Before(from) && !r.Date.After(to) {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Date.Equal(res[j].Date) {
			return res[i].Date.After(res[j].Date)
		}
		return res[i].CheckInTime.After(res[j].CheckInTime)
	})
	return res, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
