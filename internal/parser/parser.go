// Package parser splits uploaded documents into frontmatter, labelled header
// fields, themes, and body text.
package parser

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	tagRe   = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	fieldRe = regexp.MustCompile(`^\s*(?:\*\*)?([A-Za-z][A-Za-z ]{0,30}?)(?:\*\*)?\s*:\s*(.+?)\s*$`)
)

// headerScanLines bounds how far into the body labelled fields are looked for.
const headerScanLines = 15

// Document is a parsed upload.
type Document struct {
	Frontmatter map[string]any
	// Fields holds "Label: value" lines from the top of the body, keyed by
	// the lower-cased label.
	Fields map[string]string
	Body   string
	Title  string
	Themes []string
}

// Parse extracts frontmatter, header fields, themes and title from raw text.
func Parse(data []byte) (*Document, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	return &Document{
		Frontmatter: fm,
		Fields:      extractFields(body),
		Body:        body,
		Title:       deriveTitle(fm, body),
		Themes:      extractThemes(body, fm),
	}, nil
}

// Value returns the first non-empty value for any of keys, looking in the
// frontmatter first and then in the header fields.
func (d *Document) Value(keys ...string) string {
	for _, k := range keys {
		if v, ok := d.Frontmatter[k]; ok {
			if s := scalar(v); s != "" {
				return s
			}
		}
	}
	for _, k := range keys {
		if v := d.Fields[k]; v != "" {
			return v
		}
	}
	return ""
}

// scalar renders a frontmatter value. yaml.v3 keeps timestamps as strings
// when decoding into any, so dates arrive here verbatim.
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. Without frontmatter the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Broken frontmatter is common in hand-edited uploads; keep the text.
		return nil, string(data), nil
	}
	return fm, body, nil
}

// extractFields collects "Label: value" lines near the top of the body.
func extractFields(body string) map[string]string {
	out := make(map[string]string)
	for i, line := range strings.Split(body, "\n") {
		if i >= headerScanLines {
			break
		}
		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(m[1]))
		if _, dup := out[key]; !dup {
			out[key] = strings.TrimSpace(m[2])
		}
	}
	return out
}

// extractThemes collects #tags from the body and the frontmatter "themes" or
// "tags" lists.
func extractThemes(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, key := range []string{"themes", "tags"} {
		if list, ok := fm[key].([]any); ok {
			for _, item := range list {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		}
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise the first non-empty line.
func deriveTitle(fm map[string]any, body string) string {
	if t, ok := fm["title"].(string); ok && t != "" {
		return t
	}
	first := ""
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
		if first == "" && trimmed != "" {
			first = trimmed
		}
	}
	return first
}
