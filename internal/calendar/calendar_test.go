package calendar

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/casebook/internal/apperr"
)

func TestCandidateName(t *testing.T) {
	cases := map[string]string{
		"Chris Balabanick Appointment":        "Chris Balabanick",
		"Intake - Maria Garcia":               "Maria Garcia",
		"John Best (telehealth) 3:00-3:50pm":  "John Best",
		"Session w/ Mary-Jane O'Neil [video]": "Mary-Jane O'Neil",
		"Therapy: Ana Lopez #4":               "Ana Lopez",
		"Follow-up with Sam Lee 10am":         "Sam Lee",
		"Appointment":                         "",
		"Staff Meeting":                       "Staff Meeting",
	}
	for title, want := range cases {
		if got := CandidateName(title); got != want {
			t.Errorf("CandidateName(%q) = %q, want %q", title, got, want)
		}
	}
}

func TestEventValidate(t *testing.T) {
	start := time.Date(2024, 4, 17, 10, 0, 0, 0, time.UTC)
	ok := Event{ExternalID: "g1", Title: "x", Start: start, End: start.Add(time.Hour)}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid event: %v", err)
	}
	if err := (Event{Title: "x", Start: start}).Validate(); err == nil {
		t.Error("missing id should fail")
	}
	if err := (Event{ExternalID: "g1"}).Validate(); err == nil {
		t.Error("missing start should fail")
	}
	if err := (Event{ExternalID: "g1", Start: start, End: start.Add(-time.Hour)}).Validate(); err == nil {
		t.Error("end before start should fail")
	}
}

func TestEventDuration(t *testing.T) {
	start := time.Date(2024, 4, 17, 10, 0, 0, 0, time.UTC)
	def := 50 * time.Minute
	if d := (Event{Start: start, End: start.Add(time.Hour)}).Duration(def); d != time.Hour {
		t.Errorf("duration = %v", d)
	}
	if d := (Event{Start: start}).Duration(def); d != def {
		t.Errorf("missing end duration = %v", d)
	}
	if d := (Event{Start: start, End: start}).Duration(def); d != def {
		t.Errorf("zero-length duration = %v", d)
	}
}

func TestDateRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	r := DateRange{From: from, To: to}
	if !r.Contains(from) || r.Contains(to) || r.Contains(from.Add(-time.Second)) {
		t.Error("range must be half-open")
	}
	if !(DateRange{}).Contains(time.Now()) {
		t.Error("zero range must be unbounded")
	}
	if err := (DateRange{From: to, To: from}).Validate(); err == nil {
		t.Error("inverted range should fail")
	}
}

func TestMemory_FiltersAndSorts(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2024, 4, day, 9, 0, 0, 0, time.UTC) }
	m := NewMemory(
		Event{ExternalID: "b", Start: d(18)},
		Event{ExternalID: "a", Start: d(17)},
		Event{ExternalID: "c", Start: d(30)},
	)
	got, err := m.ListEvents(context.Background(), DateRange{From: d(1), To: d(20)})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(got) != 2 || got[0].ExternalID != "a" || got[1].ExternalID != "b" {
		t.Errorf("events = %+v", got)
	}
}

func TestFile_ReadsYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "feed.yaml")
	if err := os.WriteFile(yml, []byte(`events:
  - id: g1
    title: Chris Balabanick Appointment
    start: 2024-04-17
  - id: g2
    title: John Best
    start: 2024-12-05T09:00:00-05:00
    end: 2024-12-05T09:50:00-05:00
    attendee: john@example.com
  - id: g3
    title: Broken
    start: not a date
`), 0o644); err != nil {
		t.Fatal(err)
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	events, err := NewFile(yml, loc).ListEvents(context.Background(), DateRange{})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}
	// The unparseable event sorts first with a zero start and fails validation.
	if events[0].ExternalID != "g3" || events[0].Validate() == nil {
		t.Errorf("broken event = %+v", events[0])
	}
	g1 := events[1]
	if !g1.AllDay || !g1.Start.Equal(time.Date(2024, 4, 17, 0, 0, 0, 0, loc)) {
		t.Errorf("g1 = %+v", g1)
	}
	g2 := events[2]
	if g2.Duration(0) != 50*time.Minute || g2.AttendeeEmail != "john@example.com" {
		t.Errorf("g2 = %+v", g2)
	}

	js := filepath.Join(dir, "feed.json")
	if err := os.WriteFile(js, []byte(`{"events":[{"id":"j1","title":"Ana Lopez","start":"2024-05-01T10:00:00Z"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	events, err = NewFile(js, time.UTC).ListEvents(context.Background(), DateRange{})
	if err != nil {
		t.Fatalf("ListEvents json: %v", err)
	}
	if len(events) != 1 || events[0].ExternalID != "j1" || events[0].Start.Hour() != 10 {
		t.Errorf("json events = %+v", events)
	}
}

func TestFile_MissingFeedIsSystemic(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "nope.yaml"), nil).ListEvents(context.Background(), DateRange{})
	if !errors.Is(err, apperr.ErrSystemic) {
		t.Errorf("err = %v, want systemic", err)
	}
}
