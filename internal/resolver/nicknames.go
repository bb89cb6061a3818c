package resolver

import (
	"sort"
	"strings"
)

// nicknameGroups lists first-name equivalence classes keyed by a canonical
// form. A variant may appear in more than one group.
var nicknameGroups = map[string][]string{
	"abigail":     {"abby", "abbie", "gail"},
	"alexander":   {"alex", "al", "xander", "sasha"},
	"alexandra":   {"alex", "alexa", "lexi", "sandra", "sasha"},
	"andrew":      {"andy", "drew"},
	"anthony":     {"tony", "ant"},
	"benjamin":    {"ben", "benny", "benji"},
	"catherine":   {"cathy", "cat", "kate", "katie", "kathy", "katherine", "kathryn"},
	"charles":     {"charlie", "chuck", "chas"},
	"christina":   {"chris", "tina", "christine", "chrissy", "kristina", "kristine"},
	"christopher": {"chris", "kit", "topher", "cris"},
	"daniel":      {"dan", "danny"},
	"david":       {"dave", "davey"},
	"deborah":     {"debbie", "deb", "debra"},
	"edward":      {"ed", "eddie", "ted", "ned"},
	"elizabeth":   {"liz", "lizzie", "beth", "betsy", "eliza", "libby", "betty"},
	"frederick":   {"fred", "freddie"},
	"gregory":     {"greg"},
	"jacob":       {"jake"},
	"james":       {"jim", "jimmy", "jamie"},
	"jennifer":    {"jen", "jenny", "jenn"},
	"jessica":     {"jess", "jessie"},
	"john":        {"jack", "johnny", "jon"},
	"jonathan":    {"jon", "jonny", "nathan"},
	"joseph":      {"joe", "joey"},
	"joshua":      {"josh"},
	"katherine":   {"kate", "katie", "kathy", "kat", "kathryn", "catherine"},
	"kenneth":     {"ken", "kenny"},
	"lawrence":    {"larry"},
	"margaret":    {"maggie", "meg", "peggy", "marge"},
	"matthew":     {"matt", "matty"},
	"michael":     {"mike", "mikey", "mick"},
	"nicholas":    {"nick", "nicky"},
	"patricia":    {"pat", "patty", "trish", "tricia"},
	"patrick":     {"pat", "paddy"},
	"rebecca":     {"becky", "becca"},
	"richard":     {"rick", "ricky", "rich", "dick"},
	"robert":      {"rob", "bob", "bobby", "robbie", "bert"},
	"samantha":    {"sam", "sammy"},
	"samuel":      {"sam", "sammy"},
	"stephanie":   {"steph", "stephie"},
	"stephen":     {"steve", "stevie", "steven"},
	"susan":       {"sue", "susie", "suzy"},
	"theodore":    {"theo", "ted", "teddy"},
	"thomas":      {"tom", "tommy"},
	"timothy":     {"tim", "timmy"},
	"victoria":    {"vicky", "tori", "vic"},
	"william":     {"will", "bill", "billy", "liam", "willy"},
	"zachary":     {"zach", "zack"},
}

// Nicknames maps a first name to the equivalence classes it belongs to.
// It is built once and never mutated.
type Nicknames struct {
	classes map[string][]string
}

// DefaultNicknames is the built-in equivalence table.
var DefaultNicknames = NewNicknames(nicknameGroups)

// NewNicknames builds the lookup table from canonical → variants groups.
func NewNicknames(groups map[string][]string) *Nicknames {
	classes := make(map[string][]string)
	add := func(name, class string) {
		for _, c := range classes[name] {
			if c == class {
				return
			}
		}
		classes[name] = append(classes[name], class)
	}
	for canonical, variants := range groups {
		canonical = strings.ToLower(strings.TrimSpace(canonical))
		add(canonical, canonical)
		for _, v := range variants {
			add(strings.ToLower(strings.TrimSpace(v)), canonical)
		}
	}
	for name := range classes {
		sort.Strings(classes[name])
	}
	return &Nicknames{classes: classes}
}

// Classes returns the sorted equivalence classes of a first name. A name that
// is in no group forms a class of its own.
func (n *Nicknames) Classes(first string) []string {
	if n != nil {
		if cs, ok := n.classes[first]; ok {
			return cs
		}
	}
	return []string{first}
}

// Keys returns the sorted equivalence keys of a normalized name: one per
// class of the first token, joined with the remaining tokens.
func (n *Nicknames) Keys(normalized string) []string {
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return nil
	}
	rest := strings.Join(tokens[1:], " ")
	classes := n.Classes(tokens[0])
	keys := make([]string, 0, len(classes))
	for _, c := range classes {
		if rest == "" {
			keys = append(keys, c)
			continue
		}
		keys = append(keys, c+" "+rest)
	}
	return keys
}
