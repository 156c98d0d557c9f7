package granola

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercases and trims",
			input: "  Weekly Sync  ",
			want:  "weekly sync",
		},
		{
			name:  "strips punctuation",
			input: "1:1 with Sam - Granola",
			want:  "11 with sam granola",
		},
		{
			name:  "collapses whitespace runs",
			input: "design\t\treview   meeting",
			want:  "design review meeting",
		},
		{
			name:  "punctuation-only becomes empty",
			input: "!!! ---",
			want:  "",
		},
		{
			name:  "empty stays empty",
			input: "",
			want:  "",
		},
		{
			name:  "non-ascii letters are stripped like punctuation",
			input: "Café Planning",
			want:  "caf planning",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			assert.Equal(t, tt.want, got)

			// Normalizing twice must not change the result.
			assert.Equal(t, got, Normalize(got))
		})
	}
}

func TestTitlesMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{
			name: "exact match",
			a:    "Weekly Sync",
			b:    "Weekly Sync",
			want: true,
		},
		{
			name: "case and punctuation insensitive",
			a:    "weekly sync!",
			b:    "Weekly Sync",
			want: true,
		},
		{
			name: "containment after normalization",
			a:    "1:1 with Sam",
			b:    "1:1 with Sam - Granola",
			want: true,
		},
		{
			name: "small typo stays above threshold",
			a:    "weekly team sync",
			b:    "weekly team synk",
			want: true,
		},
		{
			name: "unrelated titles",
			a:    "Standup",
			b:    "Design Review",
			want: false,
		},
		{
			name: "empty never matches",
			a:    "",
			b:    "Weekly Sync",
			want: false,
		},
		{
			name: "both empty never match",
			a:    "",
			b:    "",
			want: false,
		},
		{
			name: "punctuation-only never matches",
			a:    "???",
			b:    "???",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TitlesMatch(tt.a, tt.b))

			// Matching is symmetric.
			assert.Equal(t, tt.want, TitlesMatch(tt.b, tt.a))
		})
	}
}

func TestDiceCoefficient(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "weekly sync", b: "weekly sync", want: 1},
		{name: "classic night nacht", a: "night", b: "nacht", want: 0.25},
		{name: "disjoint", a: "abc", b: "xyz", want: 0},
		{name: "single rune has no bigrams", a: "a", b: "abc", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, diceCoefficient(tt.a, tt.b), 1e-9)
		})
	}
}

func TestDiceCoefficientRepeatedBigrams(t *testing.T) {
	// "aaa" has bigrams {aa: 2}, "aa" has {aa: 1}; the shared count is
	// capped by the smaller multiset.
	got := diceCoefficient("aaa", "aa")
	assert.InDelta(t, 1.0/1.5, got, 1e-9)
}
