package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/models"
)

func validator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func extract(t *testing.T, name, text string) Fields {
	t.Helper()
	out, err := NewHeuristic().Extract(context.Background(), Input{Name: name, Text: []byte(text)})
	if err != nil {
		t.Fatalf("Extract(%s): %v", name, err)
	}
	f, err := validator(t).Decode(out)
	if err != nil {
		t.Fatalf("Decode(%s): %v (raw %s)", name, err, out)
	}
	return f
}

func TestHeuristic_FileNameCarriesNameAndDate(t *testing.T) {
	f := extract(t, "John Best 12-5-2024.md", "Client was engaged today.\n")
	if f.CandidateName != "John Best" {
		t.Errorf("name = %q", f.CandidateName)
	}
	want := time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC)
	if f.DateHint == nil || f.DateHint.HasTime || !f.DateHint.At.Equal(want) {
		t.Errorf("hint = %+v", f.DateHint)
	}
	if f.Kind != models.KindDocument {
		t.Errorf("kind = %s", f.Kind)
	}
}

func TestHeuristic_SnakeCaseProgressNote(t *testing.T) {
	f := extract(t, "uploads/maria_garcia_progress_note_2024-03-07.txt", "Session went well.")
	if f.CandidateName != "maria garcia" {
		t.Errorf("name = %q", f.CandidateName)
	}
	if f.DateHint == nil || f.DateHint.At.Format(time.DateOnly) != "2024-03-07" {
		t.Errorf("hint = %+v", f.DateHint)
	}
	if f.Kind != models.KindProgressNote {
		t.Errorf("kind = %s", f.Kind)
	}
}

func TestHeuristic_HeaderFieldsWin(t *testing.T) {
	text := "Client: Chris Smith\nDate of service: 4/17/24\nSession: s-42\n\nNotes #anxiety\n"
	f := extract(t, "scan0001.txt", text)
	if f.CandidateName != "Chris Smith" || f.SessionRef != "s-42" {
		t.Errorf("fields = %+v", f)
	}
	if f.DateHint == nil || f.DateHint.At.Format(time.DateOnly) != "2024-04-17" {
		t.Errorf("hint = %+v", f.DateHint)
	}
	if len(f.Themes) != 1 || f.Themes[0] != "anxiety" {
		t.Errorf("themes = %v", f.Themes)
	}
}

func TestHeuristic_FrontmatterTimestamp(t *testing.T) {
	text := "---\nclient: Ana Lopez\ndate: \"2024-05-01T15:30:00-04:00\"\nkind: progress_note\n---\nbody\n"
	f := extract(t, "note.md", text)
	if f.DateHint == nil || !f.DateHint.HasTime || f.DateHint.At.Hour() != 19 {
		t.Errorf("hint = %+v", f.DateHint)
	}
	if f.Kind != models.KindProgressNote {
		t.Errorf("kind = %s", f.Kind)
	}
}

func TestHeuristic_WeakFileNames(t *testing.T) {
	f := extract(t, "scan0001.pdf.txt", "nothing useful here")
	if f.CandidateName != "" || f.DateHint != nil {
		t.Errorf("fields = %+v", f)
	}
	f = extract(t, "notes 13-45-2024.md", "Date: sometime last week\n")
	if f.DateHint != nil {
		t.Errorf("impossible date accepted: %+v", f.DateHint)
	}
}

func TestHeuristic_RejectsCorruptInput(t *testing.T) {
	h := NewHeuristic()
	for name, text := range map[string][]byte{
		"binary.md": {0xff, 0xfe, 0x00, 0x81},
		"empty.md":  []byte("  \n\t"),
	} {
		_, err := h.Extract(context.Background(), Input{Name: name, Text: text})
		if !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("%s: err = %v, want invalid input", name, err)
		}
	}
}

func TestDecode_RejectsUntrustedOutput(t *testing.T) {
	v := validator(t)
	bad := []string{
		`not json`,
		`[]`,
		`{"candidate_name": 42}`,
		`{"date_hint": "yesterday"}`,
		`{"date_hint": "2024-02-30"}`,
		`{"kind": "invoice"}`,
		`{"themes": "anxiety"}`,
	}
	for _, raw := range bad {
		if _, err := v.Decode([]byte(raw)); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("Decode(%s) err = %v, want invalid input", raw, err)
		}
	}

	f, err := v.Decode([]byte(`{"candidate_name":" John Best ","date_hint":"2024-12-05","extra":true}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.CandidateName != "John Best" || f.DateHint == nil || f.Kind != models.KindDocument {
		t.Errorf("fields = %+v", f)
	}
}
