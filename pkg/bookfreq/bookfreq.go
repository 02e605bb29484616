package bookfreq

import (
	"regexp"
	"slices"
	"strings"
)

// Version returns the current version of the package.
func Version() string { return "0.2.0" }

// DefaultTopN is the number of words kept when the caller has no preference.
const DefaultTopN = 10

// MinWordLength is the shortest letter run counted as a word.
const MinWordLength = 4

// WordCount is a word and the number of times it occurs in a document.
type WordCount struct {
	Word  string
	Count int
}

// Analysis is the result of analyzing one document.
type Analysis struct {
	Title    string
	HasTitle bool
	Words    []WordCount
}

var (
	// Only ASCII letters form words; digits, underscores and anything else split them.
	reWord  = regexp.MustCompile(`[a-z]+`)
	reTitle = regexp.MustCompile(`Title:[ \t]*([^\n]*)`)
)

// Analyze extracts the title and the n most frequent words of text.
func Analyze(text string, n int) Analysis {
	title, ok := ExtractTitle(text)
	return Analysis{
		Title:    title,
		HasTitle: ok,
		Words:    TopWords(text, n),
	}
}

// TopWords returns the n most frequent words of text, most frequent first.
// Text is lowercased before tokenizing, so "Whale" and "whale" are the same word.
// Words with equal counts keep the order in which they first appear.
func TopWords(text string, n int) []WordCount {
	counts := countWords(text)
	if n <= 0 {
		return []WordCount{}
	}

	slices.SortStableFunc(counts, func(a, b WordCount) int {
		return b.Count - a.Count
	})

	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// countWords counts qualifying words in order of first occurrence.
func countWords(text string) []WordCount {
	counts := []WordCount{}
	index := make(map[string]int)

	for _, w := range reWord.FindAllString(strings.ToLower(text), -1) {
		if len(w) < MinWordLength {
			continue
		}
		if i, ok := index[w]; ok {
			counts[i].Count++
			continue
		}
		index[w] = len(counts)
		counts = append(counts, WordCount{Word: w, Count: 1})
	}
	return counts
}

// ExtractTitle returns the text following the first "Title:" marker, up to the end
// of that line. The marker is case-sensitive. It reports false when there is no
// marker or nothing but whitespace follows it. The title is never taken from
// the line after the marker, even when the marker's own line is blank.
func ExtractTitle(text string) (string, bool) {
	m := reTitle.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	title := strings.TrimSpace(m[1])
	if title == "" {
		return "", false
	}
	return title, true
}
