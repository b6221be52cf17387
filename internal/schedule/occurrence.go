package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
// 1440 means end of day.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (24h). "24:00" is accepted as end of day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On returns the instant this time of day falls on the calendar day of d.
func (t TimeOfDay) On(d time.Time) time.Time {
	y, mo, day := d.Date()
	return time.Date(y, mo, day, 0, int(t), 0, 0, d.Location())
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Occurrence is one recurring lecture slot of the published timetable.
type Occurrence struct {
	ID            string       `json:"id"`
	CourseRef     string       `json:"course_ref"`
	DepartmentRef string       `json:"department_ref"`
	YearLevel     int          `json:"year_level"`
	Weekday       time.Weekday `json:"weekday"`
	Start         TimeOfDay    `json:"start"`
	End           TimeOfDay    `json:"end"`
	Room          string       `json:"room"`
}

// Meeting is one concrete sitting of an occurrence.
type Meeting struct {
	OccurrenceID string
	Start        time.Time
	End          time.Time
}

// ErrIncomplete is returned by Validate for occurrences missing the fields
// token issuance depends on.
var ErrIncomplete = errors.New("schedule: occurrence is not fully resolved")

// Validate checks that the occurrence carries everything needed to mint a token.
func (o Occurrence) Validate() error {
	switch {
	case o.ID == "":
		return fmt.Errorf("%w: missing id", ErrIncomplete)
	case o.DepartmentRef == "":
		return fmt.Errorf("%w: %s has no department", ErrIncomplete, o.ID)
	case o.YearLevel <= 0:
		return fmt.Errorf("%w: %s has no year level", ErrIncomplete, o.ID)
	case o.Room == "":
		return fmt.Errorf("%w: %s has no room", ErrIncomplete, o.ID)
	case o.Weekday < time.Sunday || o.Weekday > time.Saturday:
		return fmt.Errorf("%w: %s has invalid weekday %d", ErrIncomplete, o.ID, o.Weekday)
	case o.Start < 0 || o.End > 1440 || o.End <= o.Start:
		return fmt.Errorf("%w: %s has invalid time bounds %s-%s", ErrIncomplete, o.ID, o.Start, o.End)
	}
	return nil
}

// Day truncates t to midnight of its calendar day in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// StartOn returns the scheduled start on the calendar day of day.
func (o Occurrence) StartOn(day time.Time) time.Time {
	return o.Start.On(day)
}

// NextMeeting returns the first meeting of o that has not ended at now: the
// current one if it is in progress, today's if it is still ahead, otherwise the
// one on the next matching weekday.
func (o Occurrence) NextMeeting(now time.Time, loc *time.Location) Meeting {
	today := Day(now, loc)
	for i := 0; i <= 7; i++ {
		d := today.AddDate(0, 0, i)
		if d.Weekday() != o.Weekday {
			continue
		}
		end := o.End.On(d)
		if now.Before(end) {
			return Meeting{OccurrenceID: o.ID, Start: o.Start.On(d), End: end}
		}
	}
	// unreachable for a valid weekday: within eight days the weekday recurs
	// with an end after now.
	d := today.AddDate(0, 0, 7)
	return Meeting{OccurrenceID: o.ID, Start: o.Start.On(d), End: o.End.On(d)}
}
