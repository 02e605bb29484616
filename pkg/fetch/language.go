package fetch

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
)

// languageSample is how much leading text is inspected. Project Gutenberg
// headers are English regardless of the book, so the sample starts after them.
const languageSample = 4096

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Languages the detector chooses from; these cover the bulk of Project Gutenberg.
var candidateLanguages = []lingua.Language{
	lingua.English,
	lingua.French,
	lingua.German,
	lingua.Spanish,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Dutch,
	lingua.Finnish,
	lingua.Swedish,
	lingua.Latin,
}

func languageDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(candidateLanguages...).
			WithLowAccuracyMode().
			Build()
	})
	return detector
}

// DetectLanguage returns the ISO 639-1 code of the language text is most likely
// written in, or "" when it cannot tell.
func DetectLanguage(text string) string {
	sample := languageSampleOf(text)
	if strings.TrimSpace(sample) == "" {
		return ""
	}
	lang, ok := languageDetector().DetectLanguageOf(sample)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

// languageSampleOf skips a Project Gutenberg start banner when present and
// returns at most languageSample bytes, cut on a rune boundary.
func languageSampleOf(text string) string {
	const startMarker = "*** START OF"
	if i := strings.Index(text, startMarker); i >= 0 {
		rest := text[i:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			text = rest[nl+1:]
		}
	}
	if len(text) <= languageSample {
		return text
	}
	cut := languageSample
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
