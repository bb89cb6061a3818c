package calendar

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/casebook/internal/apperr"
)

// feedEvent is the on-disk shape of an event. Times are kept as strings so
// both quoted (JSON) and bare (YAML) timestamps decode the same way.
type feedEvent struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Attendee string `yaml:"attendee"`
}

type feed struct {
	Events []feedEvent `yaml:"events"`
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// File reads events from a YAML or JSON feed exported from a calendar.
// Times without an offset are read in the tenant location.
type File struct {
	path string
	loc  *time.Location
}

// NewFile creates a feed provider for path.
func NewFile(path string, loc *time.Location) *File {
	if loc == nil {
		loc = time.UTC
	}
	return &File{path: path, loc: loc}
}

// ListEvents implements Provider. A missing or unreadable feed is a systemic
// failure; a malformed single event is returned as-is and rejected later by
// Event.Validate.
func (f *File) ListEvents(ctx context.Context, r DateRange) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, apperr.Systemic("calendar: read feed", err)
	}
	var fd feed
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return nil, apperr.Systemic("calendar: decode feed", err)
	}

	events := make([]Event, 0, len(fd.Events))
	for _, fe := range fd.Events {
		e := Event{
			ExternalID:    strings.TrimSpace(fe.ID),
			Title:         fe.Title,
			AttendeeEmail: strings.TrimSpace(fe.Attendee),
		}
		// Unparseable times stay zero and fail validation downstream.
		e.Start, e.AllDay, _ = f.parseTime(fe.Start)
		e.End, _, _ = f.parseTime(fe.End)
		events = append(events, e)
	}
	return filter(events, r), nil
}

// parseTime accepts RFC 3339, local date-times, and bare dates. A bare date
// is an all-day event placed at local midnight.
func (f *File) parseTime(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, f.loc); err == nil {
			return t, false, nil
		}
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, f.loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("calendar: unrecognised time %q", s)
}
