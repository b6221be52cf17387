package renewal

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusops/internal/schedule"
	"campusops/internal/store"
	"campusops/internal/token"
)

// 2026-10-20 is a Tuesday.
func at(day, hour, minute int) time.Time {
	return time.Date(2026, 10, day, hour, minute, 0, 0, time.UTC)
}

func occ(id string, wd time.Weekday, start, end int) schedule.Occurrence {
	return schedule.Occurrence{
		ID:            id,
		CourseRef:     id,
		DepartmentRef: "cs",
		YearLevel:     2,
		Weekday:       wd,
		Start:         schedule.TimeOfDay(start * 60),
		End:           schedule.TimeOfDay(end * 60),
		Room:          "A1",
	}
}

type fixture struct {
	tokens *token.MemoryStore
	occs   *schedule.MemoryRepository
	engine *Engine
}

func newFixture(t *testing.T, occs ...schedule.Occurrence) fixture {
	t.Helper()
	tokens := token.NewMemoryStore()
	repo := schedule.NewMemoryRepository(occs...)
	issuer := token.NewIssuer(tokens, token.IssuerOptions{Code: token.RandomCode(12)})
	return fixture{
		tokens: tokens,
		occs:   repo,
		engine: NewEngine(repo, tokens, issuer, Options{Lookahead: time.Hour, StoreTimeout: time.Second}),
	}
}

func defaultOccurrences() []schedule.Occurrence {
	return []schedule.Occurrence{
		occ("tue-morning", time.Tuesday, 9, 11),
		occ("tue-evening", time.Tuesday, 20, 22),
		occ("wed-morning", time.Wednesday, 9, 11),
	}
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func TestRenew_DailyCoversTodaysOccurrences(t *testing.T) {
	f := newFixture(t, defaultOccurrences()...)
	ctx := context.Background()
	now := at(20, 7, 0)

	res, err := f.engine.Renew(ctx, Daily, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"tue-evening", "tue-morning"}, sorted(res.Renewed))
	assert.Empty(t, res.Skipped)
	assert.Empty(t, res.Failed)

	for _, id := range res.Renewed {
		tok, err := f.tokens.Active(ctx, id, now)
		require.NoError(t, err)
		assert.Equal(t, "scheduler:daily", tok.IssuerRef)
	}
	_, err = f.tokens.Active(ctx, "wed-morning", now)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRenew_IdempotentForSameInstant(t *testing.T) {
	f := newFixture(t, defaultOccurrences()...)
	ctx := context.Background()
	now := at(20, 7, 0)

	_, err := f.engine.Renew(ctx, Daily, now)
	require.NoError(t, err)

	res, err := f.engine.Renew(ctx, Daily, now)
	require.NoError(t, err)
	assert.Empty(t, res.Renewed)
	assert.Equal(t, []string{"tue-evening", "tue-morning"}, sorted(res.Skipped))

	all, err := f.tokens.ExpiringBetween(ctx, at(1, 0, 0), at(31, 0, 0))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRenew_HourlyOnlyLooksAhead(t *testing.T) {
	f := newFixture(t, defaultOccurrences()...)

	res, err := f.engine.Renew(context.Background(), Hourly, at(20, 8, 30))
	require.NoError(t, err)
	assert.Equal(t, []string{"tue-morning"}, res.Renewed)
}

func TestRenew_InProgressMeetingIsDue(t *testing.T) {
	f := newFixture(t, defaultOccurrences()...)

	res, err := f.engine.Renew(context.Background(), Hourly, at(20, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"tue-morning"}, res.Renewed)
}

func TestRenew_ReplacesStaleToken(t *testing.T) {
	f := newFixture(t, defaultOccurrences()...)
	ctx := context.Background()
	require.NoError(t, f.tokens.Insert(ctx, token.Token{
		Code: "LASTWEEK", OccurrenceRef: "tue-morning", Active: true, ExpiresAt: at(13, 11, 0),
	}))

	res, err := f.engine.Renew(ctx, Hourly, at(20, 8, 30))
	require.NoError(t, err)
	assert.Equal(t, []string{"tue-morning"}, res.Renewed)

	old, err := f.tokens.FindByCode(ctx, "LASTWEEK")
	require.NoError(t, err)
	assert.False(t, old.Active)

	live, err := f.tokens.Active(ctx, "tue-morning", at(20, 8, 30))
	require.NoError(t, err)
	assert.Equal(t, at(20, 11, 0), live.ExpiresAt)
}

func TestRenew_ConcurrentPassesIssueOncePerOccurrence(t *testing.T) {
	f := newFixture(t, defaultOccurrences()...)
	ctx := context.Background()
	now := at(20, 7, 0)

	const passes = 8
	results := make([]Result, passes)
	var wg sync.WaitGroup
	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cadence := Daily
			if i%2 == 1 {
				cadence = Hourly
			}
			res, err := f.engine.Renew(ctx, cadence, now)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	renewed := map[string]int{}
	for _, r := range results {
		assert.Empty(t, r.Failed)
		for _, id := range r.Renewed {
			renewed[id]++
		}
	}
	assert.Equal(t, map[string]int{"tue-morning": 1, "tue-evening": 1}, renewed)

	all, err := f.tokens.ExpiringBetween(ctx, at(1, 0, 0), at(31, 0, 0))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// slowStore blocks Active lookups for one occurrence until the context ends.
type slowStore struct {
	*token.MemoryStore
	slow string
}

func (s slowStore) Active(ctx context.Context, occurrenceRef string, now time.Time) (token.Token, error) {
	if occurrenceRef == s.slow {
		<-ctx.Done()
		return token.Token{}, ctx.Err()
	}
	return s.MemoryStore.Active(ctx, occurrenceRef, now)
}

func TestRenew_TimeoutOnOneOccurrenceDoesNotAbortPass(t *testing.T) {
	tokens := slowStore{MemoryStore: token.NewMemoryStore(), slow: "tue-morning"}
	repo := schedule.NewMemoryRepository(defaultOccurrences()...)
	issuer := token.NewIssuer(tokens, token.IssuerOptions{})
	engine := NewEngine(repo, tokens, issuer, Options{StoreTimeout: 20 * time.Millisecond})

	res, err := engine.Renew(context.Background(), Daily, at(20, 7, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"tue-morning"}, res.Failed)
	assert.Equal(t, []string{"tue-evening"}, res.Renewed)
}

func TestRenew_CancelledContextStops(t *testing.T) {
	f := newFixture(t, defaultOccurrences()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Renew(ctx, Daily, at(20, 7, 0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenewOccurrence_ReturnsExistingOrMints(t *testing.T) {
	f := newFixture(t, defaultOccurrences()...)
	ctx := context.Background()

	first, issued, err := f.engine.RenewOccurrence(ctx, "wed-morning", at(20, 12, 0), "admin-7")
	require.NoError(t, err)
	assert.True(t, issued)
	assert.Equal(t, "admin-7", first.IssuerRef)
	assert.Equal(t, at(21, 11, 0), first.ExpiresAt)

	again, issued, err := f.engine.RenewOccurrence(ctx, "wed-morning", at(20, 12, 5), "admin-8")
	require.NoError(t, err)
	assert.False(t, issued)
	assert.Equal(t, first.Code, again.Code)

	_, _, err = f.engine.RenewOccurrence(ctx, "missing", at(20, 12, 0), "admin-7")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSweep(t *testing.T) {
	f := newFixture(t, defaultOccurrences()...)
	ctx := context.Background()
	_, err := f.engine.Renew(ctx, Daily, at(20, 7, 0))
	require.NoError(t, err)

	n, err := f.engine.Sweep(ctx, at(20, 12, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.engine.Current(ctx, "tue-evening", at(20, 12, 0))
	assert.NoError(t, err)

	// retired tokens stay listed by expiry
	toks, err := f.engine.Expiring(ctx, at(20, 0, 0), at(21, 0, 0))
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, "tue-morning", toks[0].OccurrenceRef)
	assert.False(t, toks[0].Active)
	assert.True(t, toks[1].Active)
}

func TestParseCadence(t *testing.T) {
	c, err := ParseCadence("hourly")
	require.NoError(t, err)
	assert.Equal(t, Hourly, c)

	_, err = ParseCadence("weekly")
	assert.Error(t, err)
}
