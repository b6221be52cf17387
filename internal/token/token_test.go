package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusops/internal/schedule"
	"campusops/internal/store"
)

// 2026-10-20 is a Tuesday.
func at(day, hour, minute int) time.Time {
	return time.Date(2026, 10, day, hour, minute, 0, 0, time.UTC)
}

func lecture() schedule.Occurrence {
	return schedule.Occurrence{
		ID:            "cs101-tue",
		CourseRef:     "cs101",
		DepartmentRef: "cs",
		YearLevel:     1,
		Weekday:       time.Tuesday,
		Start:         9 * 60,
		End:           11 * 60,
		Room:          "B12",
	}
}

// fixedCodes hands out codes in order, then fails.
func fixedCodes(codes ...string) CodeFunc {
	i := 0
	return func() (string, error) {
		if i >= len(codes) {
			return "", errors.New("out of codes")
		}
		c := codes[i]
		i++
		return c, nil
	}
}

func TestRandomCode(t *testing.T) {
	gen := RandomCode(10)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := gen()
		require.NoError(t, err)
		assert.Len(t, code, 10)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(alphabet, r), "unexpected symbol %q", r)
		}
		seen[code] = true
	}
	assert.Len(t, seen, 200)
}

func TestIssue_SameDayExpiresAtMeetingEnd(t *testing.T) {
	s := NewMemoryStore()
	iss := NewIssuer(s, IssuerOptions{Code: fixedCodes("AAAA")})

	tok, err := iss.Issue(context.Background(), lecture(), at(20, 8, 0))
	require.NoError(t, err)
	assert.Equal(t, "AAAA", tok.Code)
	assert.Equal(t, at(20, 11, 0), tok.ExpiresAt)
	assert.Equal(t, at(20, 8, 0), tok.IssuedAt)
	assert.Equal(t, "cs", tok.DepartmentRef)
	assert.Equal(t, 1, tok.YearLevel)
	assert.True(t, tok.Active)
	assert.Equal(t, "system", tok.IssuerRef)

	stored, err := s.FindByCode(context.Background(), "AAAA")
	require.NoError(t, err)
	assert.Equal(t, tok, stored)
}

func TestIssue_AfterMeetingTargetsNextWeekday(t *testing.T) {
	iss := NewIssuer(NewMemoryStore(), IssuerOptions{Code: fixedCodes("AAAA")})

	// Wednesday: the next Tuesday is 2026-10-27.
	tok, err := iss.Issue(context.Background(), lecture(), at(21, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, at(27, 11, 0), tok.ExpiresAt)
}

func TestIssue_RegeneratesOnCodeCollision(t *testing.T) {
	s := NewMemoryStore()
	other := lecture()
	other.ID = "math-tue"
	require.NoError(t, s.Insert(context.Background(), Token{Code: "TAKEN", OccurrenceRef: other.ID, Active: true, ExpiresAt: at(20, 11, 0)}))

	iss := NewIssuer(s, IssuerOptions{Code: fixedCodes("TAKEN", "FRESH")})
	tok, err := iss.Issue(context.Background(), lecture(), at(20, 8, 0))
	require.NoError(t, err)
	assert.Equal(t, "FRESH", tok.Code)

	kept, err := s.FindByCode(context.Background(), "TAKEN")
	require.NoError(t, err)
	assert.Equal(t, "math-tue", kept.OccurrenceRef, "collision must not overwrite the earlier token")
}

func TestIssue_GivesUpAfterAttempts(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Insert(context.Background(), Token{Code: "SAME", OccurrenceRef: "other"}))

	iss := NewIssuer(s, IssuerOptions{Attempts: 3, Code: func() (string, error) { return "SAME", nil }})
	_, err := iss.Issue(context.Background(), lecture(), at(20, 8, 0))
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
}

func TestIssue_ActiveTokenExistsIsCollision(t *testing.T) {
	s := NewMemoryStore()
	iss := NewIssuer(s, IssuerOptions{Code: fixedCodes("ONE", "TWO")})

	_, err := iss.Issue(context.Background(), lecture(), at(20, 8, 0))
	require.NoError(t, err)

	_, err = iss.Issue(context.Background(), lecture(), at(20, 8, 0))
	assert.ErrorIs(t, err, ErrIssuanceCollision)
}

func TestIssue_RejectsIncompleteOccurrence(t *testing.T) {
	occ := lecture()
	occ.Room = ""
	iss := NewIssuer(NewMemoryStore(), IssuerOptions{Code: fixedCodes("AAAA")})

	_, err := iss.Issue(context.Background(), occ, at(20, 8, 0))
	assert.ErrorIs(t, err, schedule.ErrIncomplete)
}

func TestIssue_DoesNotRetireOlderTokens(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, Token{Code: "OLD", OccurrenceRef: "cs101-tue", Active: false, ExpiresAt: at(13, 11, 0)}))

	iss := NewIssuer(s, IssuerOptions{Code: fixedCodes("NEW")})
	_, err := iss.Issue(ctx, lecture(), at(20, 8, 0))
	require.NoError(t, err)

	old, err := s.FindByCode(ctx, "OLD")
	require.NoError(t, err)
	assert.Equal(t, at(13, 11, 0), old.ExpiresAt, "expired tokens are retained")
}

func TestValidAt_TuesdayMidnightScenario(t *testing.T) {
	tok := Token{Active: true, ExpiresAt: at(20, 23, 59)}

	assert.True(t, tok.ValidAt(at(20, 23, 59)))
	assert.False(t, tok.ValidAt(at(21, 0, 5)))

	tok.Active = false
	assert.False(t, tok.ValidAt(at(20, 10, 0)))
}

func TestMemoryStore_ActiveAndStale(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Insert(ctx, Token{Code: "A", OccurrenceRef: "o1", Active: true, ExpiresAt: at(20, 11, 0)}))

	got, err := s.Active(ctx, "o1", at(20, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, "A", got.Code)

	_, err = s.Active(ctx, "o1", at(20, 11, 0))
	assert.ErrorIs(t, err, store.ErrNotFound, "a token is not live at its expiry instant")

	err = s.Insert(ctx, Token{Code: "B", OccurrenceRef: "o1", Active: true, ExpiresAt: at(27, 11, 0)})
	assert.ErrorIs(t, err, ErrActiveExists, "stale active tokens still block until retired")

	n, err := s.DeactivateStale(ctx, "o1", at(20, 11, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.Insert(ctx, Token{Code: "B", OccurrenceRef: "o1", Active: true, ExpiresAt: at(27, 11, 0)}))
}

func TestMemoryStore_DeactivateExpiredAndRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Insert(ctx, Token{Code: "A", OccurrenceRef: "o1", Active: true, ExpiresAt: at(20, 11, 0)}))
	require.NoError(t, s.Insert(ctx, Token{Code: "B", OccurrenceRef: "o2", Active: true, ExpiresAt: at(20, 13, 0)}))
	require.NoError(t, s.Insert(ctx, Token{Code: "C", OccurrenceRef: "o3", Active: true, ExpiresAt: at(21, 9, 0)}))

	n, err := s.DeactivateExpired(ctx, at(20, 12, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := s.ExpiringBetween(ctx, at(20, 0, 0), at(21, 0, 0))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].Code)
	assert.False(t, list[0].Active)
	assert.Equal(t, "B", list[1].Code)
	assert.True(t, list[1].Active)
}
