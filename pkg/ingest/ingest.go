package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/japaniel/bookfreq/pkg/bookfreq"
	"github.com/japaniel/bookfreq/pkg/db"
	"github.com/japaniel/bookfreq/pkg/fetch"
)

// DefaultFallbackTitle is stored when a document has no title of its own.
const DefaultFallbackTitle = "Unknown Title"

// Source retrieves documents. *fetch.Fetcher implements it.
type Source interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Document, error)
}

// Store persists word counts by title. *db.Repository implements it.
type Store interface {
	SaveBook(ctx context.Context, title string, entries []db.WordFreq) error
}

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	// SubmitCtx attempts to enqueue a job but returns promptly if ctx is canceled.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Result is the outcome of ingesting one document.
type Result struct {
	URL      string
	Title    string
	Language string
	Words    []bookfreq.WordCount
	Err      error
}

// Ingester fetches documents, counts their words and stores the counts by title.
type Ingester struct {
	Source Source
	Store  Store

	// TopN is how many words are kept per document.
	TopN int
	// FallbackTitle is used when neither the text nor the page names a title.
	FallbackTitle string
	// Logger is used for informational messages. nil means no logging.
	Logger *slog.Logger
	// OnProgress is called after each document of IngestAll with the number finished so far.
	OnProgress func(done, total int)

	// Concurrency settings
	Workers int

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewIngester creates a new Ingester.
func NewIngester(src Source, store Store) *Ingester {
	return &Ingester{
		Source:        src,
		Store:         store,
		TopN:          bookfreq.DefaultTopN,
		FallbackTitle: DefaultFallbackTitle,
		Workers:       4,
	}
}

func (ig *Ingester) logger() *slog.Logger {
	if ig.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return ig.Logger
}

// ChooseTitle picks the stored title: the text's "Title:" line, then hint, then fallback.
func ChooseTitle(a bookfreq.Analysis, hint, fallback string) string {
	if a.HasTitle {
		return a.Title
	}
	if hint != "" {
		return hint
	}
	return fallback
}

// ToEntries converts analyzer output into repository entries.
func ToEntries(words []bookfreq.WordCount) []db.WordFreq {
	entries := make([]db.WordFreq, len(words))
	for i, w := range words {
		entries[i] = db.WordFreq{Word: w.Word, Freq: w.Count}
	}
	return entries
}

// FromEntries converts repository entries back into word counts.
func FromEntries(entries []db.WordFreq) []bookfreq.WordCount {
	words := make([]bookfreq.WordCount, len(entries))
	for i, e := range entries {
		words[i] = bookfreq.WordCount{Word: e.Word, Count: e.Freq}
	}
	return words
}

// IngestText analyzes text, stores its top words and returns what was stored.
// titleHint is used when the text has no "Title:" line.
func (ig *Ingester) IngestText(ctx context.Context, text, titleHint string) (Result, error) {
	analysis := bookfreq.Analyze(text, ig.TopN)
	title := ChooseTitle(analysis, titleHint, ig.FallbackTitle)
	ig.logger().Debug("extracted title", "title", title, "from_text", analysis.HasTitle)

	res := Result{Title: title, Words: analysis.Words}
	if err := ig.Store.SaveBook(ctx, title, ToEntries(analysis.Words)); err != nil {
		res.Err = err
		return res, err
	}
	ig.logger().Info("saved book", "title", title, "words", len(analysis.Words))
	return res, nil
}

// IngestURL fetches rawURL, then analyzes and stores it like IngestText.
func (ig *Ingester) IngestURL(ctx context.Context, rawURL string) (Result, error) {
	ig.logger().Info("fetching", "url", rawURL)
	doc, err := ig.Source.Fetch(ctx, rawURL)
	if err != nil {
		return Result{URL: rawURL, Err: err}, err
	}
	if doc.Language != "" && doc.Language != "en" {
		ig.logger().Warn("document is not English; only ASCII words are counted",
			"url", rawURL, "language", doc.Language)
	}

	res, err := ig.IngestText(ctx, doc.Text, doc.HTMLTitle)
	res.URL = rawURL
	res.Language = doc.Language
	return res, err
}

// ErrNotProcessed marks results of documents that were never attempted because
// the batch stopped early.
var ErrNotProcessed = errors.New("not processed")

// IngestAll ingests urls concurrently and returns one Result per URL, in input order.
// Per-document failures are reported in Result.Err; the returned error is only set
// when the batch itself could not run to completion.
func (ig *Ingester) IngestAll(ctx context.Context, urls []string) ([]Result, error) {
	results := make([]Result, len(urls))
	for i, u := range urls {
		results[i] = Result{URL: u, Err: ErrNotProcessed}
	}
	if len(urls) == 0 {
		return results, nil
	}

	workers := ig.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(urls) {
		workers = len(urls)
	}
	var wp WorkerPoolInterface
	if ig.PoolFactory != nil {
		wp = ig.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	wp.Start(poolCtx)

	var (
		mu       sync.Mutex
		finished int
	)

	var batchErr error
Loop:
	for i, u := range urls {
		idx, rawURL := i, u
		job := func(ctx context.Context) error {
			res, err := ig.IngestURL(ctx, rawURL)
			if err != nil {
				ig.logger().Error("ingest failed", "url", rawURL, "error", err)
			}

			mu.Lock()
			results[idx] = res
			finished++
			done := finished
			mu.Unlock()

			if ig.OnProgress != nil {
				ig.OnProgress(done, len(urls))
			}
			return err
		}

		// Submit job to the worker pool but remain responsive to context cancellation.
		if err := wp.SubmitCtx(poolCtx, job); err != nil {
			batchErr = fmt.Errorf("submit %s: %w", rawURL, err)
			// Stop in-flight jobs so the pool shuts down promptly.
			cancel()
			break Loop
		}
	}

	// Close waits for the workers, so no job touches results after this point.
	wp.Close()

	mu.Lock()
	defer mu.Unlock()
	if batchErr == nil {
		if err := ctx.Err(); err != nil {
			batchErr = err
		} else if finished < len(urls) {
			batchErr = ErrNotProcessed
		}
	}
	return results, batchErr
}
