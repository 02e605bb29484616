package db

// Book is a stored document, identified by its title.
type Book struct {
	Title string
}

// FrequencyEntry is one word count row belonging to a book.
type FrequencyEntry struct {
	Title string
	Word  string
	Freq  int
}

// WordFreq is a word and its count, as saved and returned for a title.
type WordFreq struct {
	Word string
	Freq int
}

// MaxEntries is the most rows GetBook returns for a title.
const MaxEntries = 10
