package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

type seedOccurrence struct {
	ID            string    `json:"id"`
	CourseRef     string    `json:"course_ref"`
	DepartmentRef string    `json:"department_ref"`
	YearLevel     int       `json:"year_level"`
	Day           string    `json:"day"`
	Start         TimeOfDay `json:"start"`
	End           TimeOfDay `json:"end"`
	Room          string    `json:"room"`
}

// LoadFile reads a JSON timetable used to seed the memory backend:
//
//	[{"id":"cs101-tue","department_ref":"cs","year_level":1,"day":"tuesday","start":"09:00","end":"11:00","room":"B12"}]
func LoadFile(path string) ([]Occurrence, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seeds []seedOccurrence
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	out := make([]Occurrence, 0, len(seeds))
	for _, s := range seeds {
		wd, err := ParseWeekday(s.Day)
		if err != nil {
			return nil, fmt.Errorf("occurrence %s: %w", s.ID, err)
		}
		o := Occurrence{
			ID:            s.ID,
			CourseRef:     s.CourseRef,
			DepartmentRef: s.DepartmentRef,
			YearLevel:     s.YearLevel,
			Weekday:       wd,
			Start:         s.Start,
			End:           s.End,
			Room:          s.Room,
		}
		if err := o.Validate(); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// ParseWeekday accepts English day names, case-insensitive.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
