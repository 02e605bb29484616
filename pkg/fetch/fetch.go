package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Options configures a Fetcher.
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
	UserAgent          string
	// DetectLanguage fills Document.Language with a best-effort guess.
	DetectLanguage bool
}

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 20 * 1024 * 1024
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timeout:        DefaultTimeout,
		MaxBodyBytes:   DefaultMaxBodyBytes,
		UserAgent:      DefaultUserAgent,
		DetectLanguage: true,
	}
}

// Document is a fetched document reduced to plain text.
type Document struct {
	URL         string
	ContentType string
	Text        string
	// HTMLTitle is the page title of HTML documents, empty for plain text.
	HTMLTitle string
	// Language is an ISO 639-1 code, empty when unknown or detection is disabled.
	Language string
}

// FetchError reports a document that could not be retrieved or decoded.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves documents over HTTP(S).
type Fetcher struct {
	client *http.Client
	opts   Options
}

// New creates a Fetcher. Zero values in opts fall back to DefaultOptions.
func New(opts Options) *Fetcher {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
	}
	return &Fetcher{
		client: &http.Client{Timeout: opts.Timeout, Transport: transport},
		opts:   opts,
	}
}

// Fetch downloads rawURL and returns its text. HTML pages are reduced to their
// readable article text. All failures are returned as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	fail := func(err error) (*Document, error) {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fail(fmt.Errorf("invalid url: %w", err))
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fail(fmt.Errorf("unsupported url scheme %q", parsedURL.Scheme))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fail(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/plain,text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("unexpected status %s", resp.Status))
	}

	limit := f.opts.MaxBodyBytes
	if resp.ContentLength > limit {
		return fail(fmt.Errorf("content-length %d exceeds limit of %d bytes", resp.ContentLength, limit))
	}
	// Read one byte past the limit to tell "exactly at limit" from "truncated".
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return fail(fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > limit {
		return fail(fmt.Errorf("body exceeds limit of %d bytes", limit))
	}

	doc := &Document{
		URL:         rawURL,
		ContentType: resp.Header.Get("Content-Type"),
	}

	if isHTML(doc.ContentType, body) {
		text, title, err := extractHTML(body, parsedURL)
		if err != nil {
			return fail(err)
		}
		doc.Text = text
		doc.HTMLTitle = title
	} else {
		text, err := DecodeText(body)
		if err != nil {
			return fail(err)
		}
		doc.Text = text
	}

	if f.opts.DetectLanguage {
		doc.Language = DetectLanguage(doc.Text)
	}
	return doc, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText validates body as UTF-8 and strips a leading byte order mark.
func DecodeText(body []byte) (string, error) {
	body = bytes.TrimPrefix(body, utf8BOM)
	if !utf8.Valid(body) {
		return "", fmt.Errorf("body is not valid UTF-8")
	}
	return string(body), nil
}

// isHTML reports whether the response looks like an HTML page.
func isHTML(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "html") {
		return true
	}
	if ct != "" && !strings.HasPrefix(ct, "application/octet-stream") {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(body), "text/html")
}
