package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/models"
	"github.com/starford/casebook/internal/parser"
)

var (
	isoDateRe = regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})\b`)
	usDateRe  = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{4}|\d{2})\b`)
	noiseRe   = regexp.MustCompile(`(?i)\b(progress|notes?|session|therapy|intake|doc|document|scan(ned)?|summary|report|final|copy|draft|signed|pdf|txt|md)\b`)
	noteRe    = regexp.MustCompile(`(?i)\b(progress[ _-]?notes?|soap|session[ _-]?notes?)\b`)
)

var longDateLayouts = []string{"January 2, 2006", "Jan 2, 2006", "2 January 2006", "Monday, January 2, 2006"}

var (
	nameKeys    = []string{"client", "client name", "patient", "name"}
	dateKeys    = []string{"date", "date of service", "session date", "dos"}
	sessionKeys = []string{"session", "session id", "session_id"}
	kindKeys    = []string{"kind", "type"}
)

// Heuristic extracts hints locally from frontmatter, labelled header lines,
// and the file name ("John Best 12-5-2024.md").
type Heuristic struct{}

// NewHeuristic returns the local extractor.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Extract implements Service.
func (h *Heuristic) Extract(ctx context.Context, in Input) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !utf8.Valid(in.Text) {
		return nil, fmt.Errorf("extract: %s: %w: not valid UTF-8 text", in.Name, apperr.ErrInvalidInput)
	}
	if len(bytes.TrimSpace(in.Text)) == 0 {
		return nil, fmt.Errorf("extract: %s: %w: empty document", in.Name, apperr.ErrInvalidInput)
	}

	doc, err := parser.Parse(in.Text)
	if err != nil {
		return nil, fmt.Errorf("extract: %s: %w", in.Name, err)
	}

	stem := strings.TrimSuffix(filepath.Base(in.Name), filepath.Ext(in.Name))
	stem = strings.ReplaceAll(stem, "_", " ")
	nameDate, rest := findDate(stem)

	out := raw{
		CandidateName: doc.Value(nameKeys...),
		SessionRef:    doc.Value(sessionKeys...),
		Themes:        doc.Themes,
	}
	if out.CandidateName == "" {
		out.CandidateName = nameFromStem(rest)
	}

	switch v := doc.Value(dateKeys...); {
	case v != "":
		out.DateHint = normalizeDate(v)
	case nameDate != "":
		out.DateHint = nameDate
	default:
		out.DateHint, _ = findDate(doc.Title)
	}

	switch k := strings.ToLower(doc.Value(kindKeys...)); {
	case k == string(models.KindDocument) || k == string(models.KindProgressNote):
		out.Kind = k
	case noteRe.MatchString(stem) || noteRe.MatchString(doc.Title):
		out.Kind = string(models.KindProgressNote)
	default:
		out.Kind = string(models.KindDocument)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("extract: %s: %w", in.Name, err)
	}
	return data, nil
}

// normalizeDate turns a free-form date into the ISO form the schema accepts.
// RFC 3339 timestamps pass through. Unrecognised dates are dropped: the
// record is still ingested and lands in the review queue.
func normalizeDate(v string) string {
	if _, err := time.Parse(time.RFC3339, v); err == nil {
		return v
	}
	if iso, _ := findDate(v); iso != "" {
		return iso
	}
	for _, layout := range longDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return ""
}

// findDate locates the first plausible calendar date in s, either
// year-first or month-first (US order), and returns it as YYYY-MM-DD along
// with s minus the match.
func findDate(s string) (string, string) {
	if loc := isoDateRe.FindStringSubmatchIndex(s); loc != nil {
		y, m, d := atoi(s[loc[2]:loc[3]]), atoi(s[loc[4]:loc[5]]), atoi(s[loc[6]:loc[7]])
		if iso, ok := civilDate(y, m, d); ok {
			return iso, s[:loc[0]] + " " + s[loc[1]:]
		}
	}
	for _, loc := range usDateRe.FindAllStringSubmatchIndex(s, -1) {
		m, d, y := atoi(s[loc[2]:loc[3]]), atoi(s[loc[4]:loc[5]]), atoi(s[loc[6]:loc[7]])
		if y < 100 {
			y += 2000
		}
		if iso, ok := civilDate(y, m, d); ok {
			return iso, s[:loc[0]] + " " + s[loc[1]:]
		}
	}
	return "", s
}

func civilDate(y, m, d int) (string, bool) {
	if m < 1 || m > 12 || d < 1 || y < 1900 || y > 2200 {
		return "", false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return "", false
	}
	return t.Format(time.DateOnly), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// nameFromStem strips document words and numbers from a file name stem.
// Stems without spaces use hyphens as separators ("john-best-notes"). A
// single remaining word is too weak to name a client and yields "".
func nameFromStem(stem string) string {
	if !strings.ContainsAny(strings.TrimSpace(stem), " ") {
		stem = strings.ReplaceAll(stem, "-", " ")
	}
	stem = noiseRe.ReplaceAllString(stem, " ")
	var words []string
	for _, f := range strings.FieldsFunc(stem, func(r rune) bool {
		return r == ' ' || r == '.' || r == ',' || r == '(' || r == ')' || r == '[' || r == ']'
	}) {
		f = strings.Trim(f, "-")
		if f == "" || strings.ContainsAny(f, "0123456789") {
			continue
		}
		words = append(words, f)
	}
	if len(words) < 2 {
		return ""
	}
	return strings.Join(words, " ")
}
