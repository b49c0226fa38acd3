package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTitle(t *testing.T) {
	tests := map[string]string{
		"idea: build a newsletter app":          "build a newsletter app",
		"remind me tomorrow to send the deck":   "send the deck",
		"remind me to call mom at 3pm":          "call mom",
		"todo: file taxes on friday":            "file taxes",
		"Task: Review PR @ 4:30pm":              "Review PR",
		"pay rent in 3 days":                    "pay rent",
		"stretch in 20 minutes":                 "stretch",
		"call dad tonight":                      "call dad",
		"gym next monday 7am":                   "gym",
		"water plants this evening":             "water plants",
		"tomorrow morning check the oven, then": "check the oven, then",
		"remind me tomorrow":                    "",
		"todo:":                                 "",
		"drinks on friday evening":              "drinks",
		"dinner at 7 in the evening":            "dinner",
		"lunch with sam at noon":                "lunch with sam",
		"buy night cream":                       "buy night cream",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractTitle(in), in)
	}
}

func TestStripPhrase(t *testing.T) {
	tests := []struct {
		title, phrase, want string
	}{
		{"pay rent in 2 weeks", "in 2 weeks", "pay rent"},
		{"Renew licence Jan 20", "jan 20", "Renew licence"},
		{"renew licence on jan  20, urgent", "jan 20", "renew licence, urgent"},
		{"jan 20", "jan 20", "jan 20"},
		{"call janet", "jan", "call janet"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripPhrase(tt.title, tt.phrase), tt.title)
	}
}
