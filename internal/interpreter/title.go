package interpreter

import (
	"regexp"
	"strings"
)

var (
	commandPrefixRe = regexp.MustCompile(`(?i)^\s*(?:remind\s+me(?:\s+to\b)?|todo:|idea:|task:)\s*`)
	leadingToRe     = regexp.MustCompile(`(?i)^to\s+`)
	spaceRe         = regexp.MustCompile(`\s+`)

	datePhraseRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:\bat\s*|@\s*)\d{1,2}(?::\d{2})?(?:\s*[ap]\.?m\b\.?)?`),
		regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*[ap]\.?m\b\.?`),
		regexp.MustCompile(`(?i)\b(?:tomorrow|today)(?:\s+(?:morning|afternoon|evening|night|noon))?\b`),
		regexp.MustCompile(`(?i)\b(?:on|next|this)\s+(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)(?:\s+(?:morning|afternoon|evening|night))?\b`),
		regexp.MustCompile(`(?i)\bin\s+\d+\s*(?:minutes?|mins?|hours?|hrs?|h|days?)\b`),
		regexp.MustCompile(`(?i)\b(?:this|in\s+the|at)\s+(?:morning|afternoon|evening|night|noon)\b`),
		regexp.MustCompile(`(?i)\btonight\b`),
	}
)

// ExtractTitle strips command prefixes and date/time phrases from text and
// returns what is left. It returns "" when nothing remains.
func ExtractTitle(text string) string {
	title := commandPrefixRe.ReplaceAllString(text, "")
	for _, re := range datePhraseRes {
		title = re.ReplaceAllString(title, " ")
	}
	title = spaceRe.ReplaceAllString(title, " ")
	title = strings.TrimSpace(title)
	title = leadingToRe.ReplaceAllString(title, "")
	return strings.Trim(title, " ,;-")
}

// stripPhrase removes a calendar phrase from title, matching it case- and
// whitespace-insensitively. The title is kept when nothing would remain.
func stripPhrase(title, phrase string) string {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return title
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile(`(?i)(?:^|\s)(?:on\s+|by\s+)?` + strings.Join(words, `\s+`) + `\b`)
	if err != nil {
		return title
	}
	stripped := spaceRe.ReplaceAllString(re.ReplaceAllString(title, " "), " ")
	stripped = strings.Trim(strings.ReplaceAll(stripped, " ,", ","), " ,;-")
	if stripped == "" {
		return title
	}
	return stripped
}
