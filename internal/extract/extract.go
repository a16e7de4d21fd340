// Package extract pulls the few values the rotator needs out of admin UI
// pages. The UI has no machine-readable API, so extraction is a set of fixed
// textual patterns kept behind the Extractor interface.
package extract

import (
	"regexp"
	"strconv"
)

// Pattern names one fixed extraction.
type Pattern int

const (
	// Token captures the hidden anti-forgery token of the login form.
	Token Pattern = iota
	// SelectedMap captures the selected option of the map selection control.
	SelectedMap
	// ChangeConfirmed matches the phrase shown when a map change was accepted.
	ChangeConfirmed
	// LoginForm matches the login form marker. Presence only.
	LoginForm
	// PlayerCount captures "current/capacity" from the current rules list.
	PlayerCount
)

func (p Pattern) String() string {
	switch p {
	case Token:
		return "token"
	case SelectedMap:
		return "selected-map"
	case ChangeConfirmed:
		return "change-confirmed"
	case LoginForm:
		return "login-form"
	case PlayerCount:
		return "player-count"
	}
	return "pattern(" + strconv.Itoa(int(p)) + ")"
}

// ConfirmationPhrase is the text the change page shows after accepting a
// map change request.
const ConfirmationPhrase = "Changing the game. This could take a little while..."

// Extractor finds patterns in page bodies. Absence is a normal outcome.
type Extractor interface {
	// Find returns the first capture of p in body, and whether p matched.
	Find(body string, p Pattern) (string, bool)
	// Contains reports whether p occurs in body.
	Contains(body string, p Pattern) bool
}

// RegexExtractor is the default Extractor.
type RegexExtractor struct {
	patterns map[Pattern]*regexp.Regexp
}

var defaultPatterns = map[Pattern]*regexp.Regexp{
	Token:           regexp.MustCompile(`name="token"\s+value="([^"]*)"`),
	SelectedMap:     regexp.MustCompile(`<select id="map" name="map">[\s\S]*?<option value="([^"]*)" selected="selected">`),
	ChangeConfirmed: regexp.MustCompile(regexp.QuoteMeta(ConfirmationPhrase)),
	LoginForm:       regexp.MustCompile(`<form id="loginform"`),
	PlayerCount:     regexp.MustCompile(`<dl id="currentRules">[\s\S]*?<dd>(\d+)/(\d+)</dd>`),
}

// NewRegexExtractor returns an extractor using the stock patterns.
func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{patterns: defaultPatterns}
}

// withPattern returns a copy of e with p replaced by re. The first capture
// group of re, if any, is what Find returns.
func (e *RegexExtractor) withPattern(p Pattern, re *regexp.Regexp) *RegexExtractor {
	patterns := make(map[Pattern]*regexp.Regexp, len(e.patterns)+1)
	for k, v := range e.patterns {
		patterns[k] = v
	}
	patterns[p] = re
	return &RegexExtractor{patterns: patterns}
}

// Find implements Extractor. A pattern without a capture group yields the
// whole match.
func (e *RegexExtractor) Find(body string, p Pattern) (string, bool) {
	re, ok := e.patterns[p]
	if !ok {
		return "", false
	}
	m := re.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	if len(m) > 1 {
		return m[1], true
	}
	return m[0], true
}

// Contains implements Extractor.
func (e *RegexExtractor) Contains(body string, p Pattern) bool {
	re, ok := e.patterns[p]
	return ok && re.MatchString(body)
}

// Players parses the player count of an info page body. It returns -1 when
// the marker is missing or not a number.
func Players(e Extractor, body string) int {
	raw, ok := e.Find(body, PlayerCount)
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
