package resolver

import (
	"fmt"
	"regexp"
	"strings"
)

// defaultIgnorePatterns match calendar titles and names that never denote a
// client: generic blocks, reminders, and holidays/observances. Words that are
// also surnames only match anywhere as part of an unambiguous phrase.
var defaultIgnorePatterns = []string{
	`^[^\p{L}]*$`,
	`@`,
	`\b(lunch|breakfast|dinner|busy|blocked|time block|tentative|available|availability)\b`,
	`\b(on hold|hold (for|time|slot)|(coffee|lunch) break)\b`,
	`\b(out of office|ooo|pto|vacation|day off|sick (day|leave)|(annual|parental|maternity|paternity|on) leave)\b`,
	`\b(reminder|remind|to ?do|deadline|due (date|by)|follow[- ]up|renew\w*|invoice|billing|paperwork|documentation|(session|case|progress) notes)\b`,
	`\b(staff|team|meeting|supervision|consult(ation)? call|training|webinar|conference|workshop|ceu|seminar|retreat)\b`,
	`\b((doctor|dentist)'?s? (appointment|appt|visit)|haircut|birthday|anniversary|school pickup|pick ?up|drop ?off)\b`,
	`\b(cancel+ed|cancel+ation|no[- ]show|rescheduled?)\b`,
	`\b(christmas (eve|day|party|break)|thanksgiving|easter (sunday|monday|break)|new year'?s?|independence day|fourth of july|memorial day|labou?r day|juneteenth|veterans day|halloween|valentine'?s day)\b`,
	`\b(martin luther king|presidents'? day|columbus day|indigenous peoples'? day|mother'?s day|father'?s day|good friday)\b`,
	`\b(hanukkah|chanukah|passover|yom kippur|rosh hashanah|ramadan|eid (al|ul)[- ]\w+|diwali|lunar new year|kwanzaa)\b`,
	// Surname-like words only when they make up the whole title.
	`^[^\p{L}]*((happy|merry|the|my|office)\s+)*` +
		`(hold|break|leave|sick|holidays?|due|notes|admin|doctor|dentist|gym|coffee|christmas|xmas|easter|valentine'?s?|eid|mlk)` +
		`('?s)?(\s+(eve|day|weekend|party|break|closed|off|time|block|call|visit|appointment|appt))*[^\p{L}]*$`,
}

// Blacklist rejects raw names that match non-client patterns.
type Blacklist struct {
	patterns []*regexp.Regexp
}

// NewBlacklist compiles the default patterns plus any extra ones.
func NewBlacklist(extra ...string) (*Blacklist, error) {
	b := &Blacklist{}
	for _, p := range append(append([]string{}, defaultIgnorePatterns...), extra...) {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("resolver: compile ignore pattern %q: %w", p, err)
		}
		b.patterns = append(b.patterns, re)
	}
	return b, nil
}

// Match returns the first pattern that matches raw, or "" if none does.
func (b *Blacklist) Match(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, re := range b.patterns {
		if re.MatchString(raw) {
			return re.String()
		}
	}
	return ""
}
