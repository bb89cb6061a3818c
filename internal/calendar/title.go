package calendar

import (
	"regexp"
	"strings"
)

var (
	bracketedRe  = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\{[^}]*\}`)
	emailRe      = regexp.MustCompile(`\S+@\S+`)
	timeRangeRe  = regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s*(am|pm)?\s*[-–]\s*\d{1,2}(:\d{2})?\s*(am|pm)?\b`)
	clockRe      = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s*(am|pm)?\b|\b\d{1,2}\s*(am|pm)\b`)
	withRe       = regexp.MustCompile(`(?i)(^|\s)w/\s*`)
	separatorRe  = regexp.MustCompile(`\s+[-–—|]\s+|[|:]`)
	sessionRe    = regexp.MustCompile(`(?i)\b(appointment|appt|session|therapy|psychotherapy|counseling|counselling|intake|follow[- ]?up|consult|consultation|telehealth|virtual|video|zoom|in[- ]person|visit|initial|individual|couples?|family|eval|evaluation|assessment|with|recurring)\b`)
	numberListRe = regexp.MustCompile(`#\d+|\b\d+(st|nd|rd|th)?\b`)
)

// CandidateName strips scheduling noise from an event title and returns the
// remainder, which is usually the client's name: "Chris Balabanick
// Appointment" becomes "Chris Balabanick". The result may be empty.
func CandidateName(title string) string {
	s := bracketedRe.ReplaceAllString(title, " ")
	s = emailRe.ReplaceAllString(s, " ")
	s = timeRangeRe.ReplaceAllString(s, " ")
	s = clockRe.ReplaceAllString(s, " ")
	s = withRe.ReplaceAllString(s, " ")
	s = separatorRe.ReplaceAllString(s, " ")
	s = sessionRe.ReplaceAllString(s, " ")
	s = numberListRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
