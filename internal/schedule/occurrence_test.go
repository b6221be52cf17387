package schedule

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusops/internal/store"
)

func tuesdayLecture() Occurrence {
	return Occurrence{
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

// 2026-10-20 is a Tuesday.
func at(day, hour, minute int) time.Time {
	return time.Date(2026, 10, day, hour, minute, 0, 0, time.UTC)
}

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in   string
		want TimeOfDay
		ok   bool
	}{
		{"09:00", 540, true},
		{"23:59", 1439, true},
		{"24:00", 1440, true},
		{"24:01", 0, false},
		{"12:60", 0, false},
		{"noon", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tc.in)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.in, got.String())
		})
	}
}

func TestNextMeeting_SameDayBeforeStart(t *testing.T) {
	m := tuesdayLecture().NextMeeting(at(20, 7, 0), time.UTC)
	assert.Equal(t, at(20, 9, 0), m.Start)
	assert.Equal(t, at(20, 11, 0), m.End)
}

func TestNextMeeting_InProgress(t *testing.T) {
	m := tuesdayLecture().NextMeeting(at(20, 10, 30), time.UTC)
	assert.Equal(t, at(20, 11, 0), m.End)
}

func TestNextMeeting_AfterEndMovesToNextWeek(t *testing.T) {
	m := tuesdayLecture().NextMeeting(at(20, 11, 0), time.UTC)
	assert.Equal(t, at(27, 9, 0), m.Start)
	assert.Equal(t, at(27, 11, 0), m.End)
}

func TestNextMeeting_FromOtherWeekday(t *testing.T) {
	// Sunday 2026-10-18
	m := tuesdayLecture().NextMeeting(at(18, 12, 0), time.UTC)
	assert.Equal(t, at(20, 9, 0), m.Start)
}

func TestNextMeeting_EndOfDay(t *testing.T) {
	o := tuesdayLecture()
	o.End = 1440
	m := o.NextMeeting(at(20, 23, 0), time.UTC)
	assert.Equal(t, at(21, 0, 0), m.End)
}

func TestNextMeeting_RespectsLocation(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	// 2026-10-20 06:30 UTC is 09:30 Tuesday in EAT.
	m := tuesdayLecture().NextMeeting(at(20, 6, 30), loc)
	assert.True(t, m.End.Equal(at(20, 8, 0)))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, tuesdayLecture().Validate())

	noRoom := tuesdayLecture()
	noRoom.Room = ""
	assert.ErrorIs(t, noRoom.Validate(), ErrIncomplete)

	inverted := tuesdayLecture()
	inverted.End = inverted.Start
	assert.ErrorIs(t, inverted.Validate(), ErrIncomplete)

	noDept := tuesdayLecture()
	noDept.DepartmentRef = ""
	assert.ErrorIs(t, noDept.Validate(), ErrIncomplete)
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	mon := tuesdayLecture()
	mon.ID = "cs101-mon"
	mon.Weekday = time.Monday
	repo := NewMemoryRepository(tuesdayLecture(), mon)

	got, err := repo.Get(ctx, "cs101-tue")
	require.NoError(t, err)
	assert.Equal(t, "B12", got.Room)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	all, err := repo.ListPublished(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "cs101-mon", all[0].ID)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timetable.json")
	body := `[{"id":"cs101-tue","course_ref":"cs101","department_ref":"cs","year_level":1,"day":"Tuesday","start":"09:00","end":"11:00","room":"B12"}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	occs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, tuesdayLecture(), occs[0])
}

func TestLoadFile_RejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timetable.json")
	body := `[{"id":"x","department_ref":"cs","year_level":1,"day":"friday","start":"09:00","end":"11:00"}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrIncomplete)
}
