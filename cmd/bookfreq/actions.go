package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/japaniel/bookfreq/internal/config"
	"github.com/japaniel/bookfreq/internal/logging"
	"github.com/japaniel/bookfreq/pkg/bookfreq"
	"github.com/japaniel/bookfreq/pkg/db"
	"github.com/japaniel/bookfreq/pkg/fetch"
	"github.com/japaniel/bookfreq/pkg/ingest"
)

const (
	formatText = "text"
	formatYAML = "yaml"
)

// state is shared by the commands once the global flags are applied.
type state struct {
	cfg    *config.Config
	logger *slog.Logger
	format string
}

func (s *state) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if v := c.String("db"); v != "" {
		cfg.Storage.Path = v
	}
	if v := c.String("driver"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.App.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("Invalid configuration: %v", err), 2)
	}

	format := strings.ToLower(c.String("format"))
	if format != formatText && format != formatYAML {
		return cli.Exit(fmt.Sprintf("Unknown output format %q (want text or yaml)", format), 2)
	}

	logger, err := logging.New(cfg.App.LogLevel, cfg.App.LogFormat, c.App.ErrWriter)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	s.cfg = cfg
	s.logger = logger
	s.format = format
	return nil
}

// openRepository opens the configured database and ensures its schema.
func (s *state) openRepository(c *cli.Context) (*db.Repository, error) {
	repo, err := db.Open(db.Options{
		Driver:      s.cfg.Storage.Driver,
		Path:        s.cfg.Storage.Path,
		BusyTimeout: s.cfg.BusyTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := repo.InitSchema(c.Context); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	s.logger.Debug("database ready", "path", repo.Path(), "driver", s.cfg.Storage.Driver)
	return repo, nil
}

func (s *state) newIngester(src ingest.Source, store ingest.Store) *ingest.Ingester {
	ig := ingest.NewIngester(src, store)
	ig.TopN = s.cfg.Analysis.TopN
	ig.FallbackTitle = s.cfg.Analysis.FallbackTitle
	ig.Workers = s.cfg.Fetch.Workers
	ig.Logger = s.logger
	return ig
}

func (s *state) initAction(c *cli.Context) error {
	repo, err := s.openRepository(c)
	if err != nil {
		return err
	}
	defer repo.Close()

	fmt.Fprintf(c.App.Writer, "Database initialized at %s\n", repo.Path())
	return nil
}

func (s *state) fetchAction(c *cli.Context) error {
	var urls []string
	for _, u := range append(c.StringSlice("url"), c.Args().Slice()...) {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return cli.Exit("Please enter a book URL.", 2)
	}

	repo, err := s.openRepository(c)
	if err != nil {
		return err
	}
	defer repo.Close()

	fetcher := fetch.New(fetch.Options{
		Timeout:            s.cfg.FetchTimeout(),
		MaxBodyBytes:       s.cfg.Fetch.MaxBodyBytes,
		InsecureSkipVerify: s.cfg.Fetch.InsecureSkipVerify || c.Bool("insecure"),
		UserAgent:          s.cfg.Fetch.UserAgent,
		DetectLanguage:     s.cfg.Fetch.DetectLanguage,
	})
	ig := s.newIngester(fetcher, repo)
	if c.IsSet("workers") {
		ig.Workers = c.Int("workers")
	}

	if len(urls) == 1 {
		res, err := ig.IngestURL(c.Context, urls[0])
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to fetch or process book.\n%v", err), 1)
		}
		return s.render(c.App.Writer, []bookOutput{resultOutput(res)})
	}

	ig.OnProgress = func(done, total int) {
		s.logger.Info("progress", "done", done, "total", total)
	}
	results, batchErr := ig.IngestAll(c.Context, urls)

	var out []bookOutput
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(c.App.ErrWriter, "Failed to fetch or process book %s: %v\n", res.URL, res.Err)
			continue
		}
		out = append(out, resultOutput(res))
	}
	if err := s.render(c.App.Writer, out); err != nil {
		return err
	}
	if batchErr != nil {
		return cli.Exit(fmt.Sprintf("Batch stopped: %v", batchErr), 1)
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d books failed", failed, len(urls)), 1)
	}
	return nil
}

func (s *state) lookupAction(c *cli.Context) error {
	title := c.String("title")
	if title == "" {
		title = strings.Join(c.Args().Slice(), " ")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return cli.Exit("Please enter a book title.", 2)
	}

	repo, err := s.openRepository(c)
	if err != nil {
		return err
	}
	defer repo.Close()

	entries, found, err := repo.GetBook(c.Context, title)
	if err != nil {
		return fmt.Errorf("failed to look up book: %w", err)
	}
	if !found {
		return cli.Exit("Book not found in local database.", 1)
	}
	return s.render(c.App.Writer, []bookOutput{{Title: title, Words: wordOutputs(ingest.FromEntries(entries))}})
}

func (s *state) analyzeAction(c *cli.Context) error {
	text, err := readDocument(c, c.String("file"))
	if err != nil {
		return err
	}

	if !c.Bool("save") {
		analysis := bookfreq.Analyze(text, s.cfg.Analysis.TopN)
		title := ingest.ChooseTitle(analysis, "", s.cfg.Analysis.FallbackTitle)
		s.logger.Debug("extracted title", "title", title, "from_text", analysis.HasTitle)
		return s.render(c.App.Writer, []bookOutput{{Title: title, Words: wordOutputs(analysis.Words)}})
	}

	repo, err := s.openRepository(c)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Local files have no remote source.
	ig := s.newIngester(nil, repo)
	res, err := ig.IngestText(c.Context, text, "")
	if err != nil {
		return fmt.Errorf("failed to save book: %w", err)
	}
	return s.render(c.App.Writer, []bookOutput{resultOutput(res)})
}

func (s *state) listAction(c *cli.Context) error {
	repo, err := s.openRepository(c)
	if err != nil {
		return err
	}
	defer repo.Close()

	titles, err := repo.ListTitles(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list books: %w", err)
	}

	if s.format == formatYAML {
		return writeYAML(c.App.Writer, map[string][]string{"titles": titles})
	}
	if len(titles) == 0 {
		fmt.Fprintln(c.App.Writer, "No books stored")
		return nil
	}
	for _, t := range titles {
		fmt.Fprintln(c.App.Writer, t)
	}
	fmt.Fprintf(c.App.Writer, "\nTotal: %d books\n", len(titles))
	return nil
}

func readDocument(c *cli.Context, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(c.App.Reader)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	text, err := fetch.DecodeText(data)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return text, nil
}

type wordOutput struct {
	Word  string `yaml:"word"`
	Count int    `yaml:"count"`
}

type bookOutput struct {
	Title    string       `yaml:"title"`
	URL      string       `yaml:"url,omitempty"`
	Language string       `yaml:"language,omitempty"`
	Words    []wordOutput `yaml:"words"`
}

func wordOutputs(words []bookfreq.WordCount) []wordOutput {
	out := make([]wordOutput, len(words))
	for i, w := range words {
		out[i] = wordOutput{Word: w.Word, Count: w.Count}
	}
	return out
}

func resultOutput(res ingest.Result) bookOutput {
	return bookOutput{
		Title:    res.Title,
		URL:      res.URL,
		Language: res.Language,
		Words:    wordOutputs(res.Words),
	}
}

func (s *state) render(w io.Writer, books []bookOutput) error {
	if s.format == formatYAML {
		if len(books) == 1 {
			return writeYAML(w, books[0])
		}
		return writeYAML(w, books)
	}
	for i, b := range books {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeText(w, b)
	}
	return nil
}

// writeText prints the heading with the number of words actually listed.
func writeText(w io.Writer, b bookOutput) {
	fmt.Fprintf(w, "Top %d Words in '%s':\n\n", len(b.Words), b.Title)
	for _, word := range b.Words {
		fmt.Fprintf(w, "%s: %d\n", word.Word, word.Count)
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write yaml: %w", err)
	}
	return enc.Close()
}
