package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/japaniel/bookfreq/pkg/bookfreq"
)

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes the command line in args and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := newApp(stdin, stdout, stderr)
	err := app.RunContext(ctx, args)
	if err == nil {
		return 0
	}

	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		if msg := exitErr.Error(); msg != "" {
			fmt.Fprintln(stderr, msg)
		}
		return exitErr.ExitCode()
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	st := &state{}

	return &cli.App{
		Name:      "bookfreq",
		Usage:     "count the most frequent words of books and look them up by title",
		Version:   bookfreq.Version(),
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		// Errors are reported by run.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
			&cli.StringFlag{Name: "db", Usage: "path to the SQLite database"},
			&cli.StringFlag{Name: "driver", Usage: "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "format", Value: formatText, Usage: "output format: text or yaml"},
		},
		Before: st.setup,
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "create the database schema",
				Action: st.initAction,
			},
			{
				Name:      "fetch",
				Usage:     "download books, count their words and store the result",
				ArgsUsage: "[URL...]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "url", Aliases: []string{"u"}, Usage: "book URL (repeatable)"},
					&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "concurrent downloads"},
					&cli.BoolFlag{Name: "insecure", Usage: "skip TLS certificate verification"},
				},
				Action: st.fetchAction,
			},
			{
				Name:      "lookup",
				Usage:     "show the stored top words of a book",
				ArgsUsage: "[TITLE]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "book title"},
				},
				Action: st.lookupAction,
			},
			{
				Name:  "analyze",
				Usage: "count the words of a local file without network access",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "text file, or - for stdin"},
					&cli.BoolFlag{Name: "save", Usage: "store the result in the database"},
				},
				Action: st.analyzeAction,
			},
			{
				Name:   "list",
				Usage:  "list stored book titles",
				Action: st.listAction,
			},
		},
	}
}
