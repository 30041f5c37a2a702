package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"only whitespace", " \n\t\r\f ", ""},
		{"hyphen across newline", "gesta-\ntion", "gestation"},
		{"hyphen across newline with indent", "gesta-\n   tion period", "gestation period"},
		{"hyphen then space", "gesta- tion", "gestation"},
		{"non breaking space", "Tdap\u00a0booster", "Tdap booster"},
		{"control characters", "a\tb\rc\fd", "a b c d"},
		{"paragraphs fold", "First paragraph.\n\n\n\nSecond paragraph.", "First paragraph. Second paragraph."},
		{"single newline folds", "line one\nline two", "line one line two"},
		{"whitespace runs", "  too    many   spaces  ", "too many spaces"},
		{"numeric range kept", "ages 11 - 12 years", "ages 11 - 12 years"},
		{"compound word kept", "well-known fact", "well-known fact"},
		{"repeated breaks", "pregn- - ancy", "pregnancy"},
		{"repeated breaks across lines", "x-\n-\ny", "xy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"gesta-\ntion and pregn- ancy",
		"a- b- c",
		"Tdap booster\r\nevery ten\tyears.\n\n\nAdults only.",
		"- leading hyphen\n- list item",
		"word-\n\n\nnext",
		"x -\ny",
		"a- - b",
		"pregn- - ancy",
		"x-\n-\ny",
		"a- -- b",
		"multi   spaced -- dashes",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}
