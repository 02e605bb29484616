package bookfreq

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	require.NotEmpty(t, Version())
}

func TestTopWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want []WordCount
	}{
		{
			name: "empty text",
			text: "",
			n:    DefaultTopN,
			want: []WordCount{},
		},
		{
			name: "only short words",
			text: "the cat sat on the mat",
			n:    DefaultTopN,
			want: []WordCount{},
		},
		{
			name: "case folding",
			text: "Whale whale WHALE",
			n:    DefaultTopN,
			want: []WordCount{{"whale", 3}},
		},
		{
			name: "higher count first, ties in first-seen order",
			text: "this boat sank near this dock",
			n:    DefaultTopN,
			want: []WordCount{{"this", 2}, {"boat", 1}, {"sank", 1}, {"near", 1}, {"dock", 1}},
		},
		{
			name: "digits and underscores split words",
			text: "abcd1efgh snake_case_word 2024abcd",
			n:    DefaultTopN,
			want: []WordCount{{"abcd", 2}, {"efgh", 1}, {"snake", 1}, {"case", 1}, {"word", 1}},
		},
		{
			name: "punctuation and apostrophes split words",
			text: "don't-stop, won't stop; STOP!",
			n:    DefaultTopN,
			want: []WordCount{{"stop", 3}},
		},
		{
			name: "non-ascii letters separate runs",
			text: "naïveté café résumé",
			n:    DefaultTopN,
			want: []WordCount{},
		},
		{
			name: "limit applied after sorting",
			text: "aaaa bbbb bbbb cccc cccc cccc",
			n:    2,
			want: []WordCount{{"cccc", 3}, {"bbbb", 2}},
		},
		{
			name: "zero limit",
			text: "aaaa bbbb",
			n:    0,
			want: []WordCount{},
		},
		{
			name: "negative limit",
			text: "aaaa bbbb",
			n:    -3,
			want: []WordCount{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, TopWords(tt.text, tt.n))
		})
	}
}

func TestTopWordsDeterministic(t *testing.T) {
	text := "zulu yank xray whiskey victor uniform tango sierra romeo quebec papa oscar"
	first := TopWords(text, DefaultTopN)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, TopWords(text, DefaultTopN))
	}
	require.Equal(t, "zulu", first[0].Word)
}

func TestTopWordsInvariants(t *testing.T) {
	content, err := os.ReadFile("testdata/sample_book.txt")
	require.NoError(t, err)

	for _, n := range []int{1, 3, DefaultTopN, 100} {
		words := TopWords(string(content), n)
		require.LessOrEqual(t, len(words), n)
		for i, w := range words {
			require.GreaterOrEqual(t, w.Count, 1)
			require.GreaterOrEqual(t, len(w.Word), MinWordLength)
			for _, r := range w.Word {
				require.True(t, r >= 'a' && r <= 'z', "unexpected rune %q in %q", r, w.Word)
			}
			if i > 0 {
				require.GreaterOrEqual(t, words[i-1].Count, w.Count)
			}
		}
	}
}

func TestTopWordsSampleBook(t *testing.T) {
	content, err := os.ReadFile("testdata/sample_book.txt")
	require.NoError(t, err)

	want := []WordCount{
		{"whale", 13},
		{"ebook", 5},
		{"road", 5},
		{"sailors", 5},
		{"water", 4},
		{"project", 3},
		{"gutenberg", 3},
		{"chapter", 2},
		{"watched", 2},
		{"cold", 2},
	}
	require.Equal(t, want, TopWords(string(content), DefaultTopN))
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"marker on its own line", "Some preamble\nTitle: Moby Dick\nmore text", "Moby Dick", true},
		{"no marker", "no marker here", "", false},
		{"empty text", "", "", false},
		{"no space after marker", "Title:Moby Dick", "Moby Dick", true},
		{"tabs and trailing spaces", "Title:\t\t Moby Dick  \t\nAuthor: Melville", "Moby Dick", true},
		{"windows line endings", "Title: Moby Dick\r\nAuthor: Melville\r\n", "Moby Dick", true},
		{"first marker wins", "Title: First\nTitle: Second", "First", true},
		{"marker inside a line", "Book Title: Emma\n", "Emma", true},
		{"marker is case-sensitive", "TITLE: Moby Dick\ntitle: moby dick", "", false},
		{"blank remainder", "Title:   \nMoby Dick", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractTitle(tt.text)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAnalyze(t *testing.T) {
	content, err := os.ReadFile("testdata/sample_book.txt")
	require.NoError(t, err)

	a := Analyze(string(content), 3)
	require.True(t, a.HasTitle)
	require.Equal(t, "The Whale Road", a.Title)
	require.Len(t, a.Words, 3)
	require.Equal(t, "whale", a.Words[0].Word)

	a = Analyze(strings.Repeat("plain text without marker ", 3), DefaultTopN)
	require.False(t, a.HasTitle)
	require.Empty(t, a.Title)
	require.Equal(t, []WordCount{{"plain", 3}, {"text", 3}, {"without", 3}, {"marker", 3}}, a.Words)
}
