package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"

	"github.com/MYH-Projet/dirhamy/internal/amqp"
	"github.com/MYH-Projet/dirhamy/internal/budget"
	"github.com/MYH-Projet/dirhamy/internal/cli"
	"github.com/MYH-Projet/dirhamy/internal/config"
	"github.com/MYH-Projet/dirhamy/internal/core"
	"github.com/MYH-Projet/dirhamy/internal/ledger"
	"github.com/MYH-Projet/dirhamy/internal/log"
	"github.com/MYH-Projet/dirhamy/internal/storage"
)

// As a short lived CLI it is fine to keep the global options in package
// variables.
var (
	userID = flag.String("user", os.Getenv("LEDGER_USER"), "Owner of the accounts and categories being operated on")
	plain  = flag.Bool("plain", false, "Print raw markdown instead of rendering it for the terminal")
)

// app holds the services one subcommand invocation works with.
type app struct {
	cfg       *config.Config
	logger    *log.Logger
	repo      *storage.SQLiteRepository
	publisher *amqp.Client
	ledger    *ledger.Service
	budget    *budget.Aggregator
}

// openApp loads configuration and opens the store. Logs go to stderr so they
// never mix with command output.
func openApp() (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{
		Level:     level,
		Component: log.ComponentCLI,
		Handler:   slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	})
	log.SetDefault(logger)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger database %q: %w", cfg.SQLiteDBPath, err)
	}

	a := &app{cfg: cfg, logger: logger, repo: repo}
	a.publisher = cli.InitAMQP(logger, cfg)
	a.ledger = cli.NewLedger(repo, a.publisher)
	a.budget = budget.NewAggregator(repo, budget.WithPageSize(cfg.SweepPageSize))
	return a, nil
}

func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("Closing ledger database failed", log.FieldError, err)
	}
}

// withApp opens the app, runs fn and maps its error to an exit status.
func withApp(fn func(*app) error) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(a); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, core.ErrValidation) {
		return subcommands.ExitUsageError
	}
	return subcommands.ExitFailure
}

// owner returns the -user flag or an error when it is missing.
func owner() (string, error) {
	u := strings.TrimSpace(*userID)
	if u == "" {
		return "", fmt.Errorf("%w: -user (or LEDGER_USER) is required", core.ErrValidation)
	}
	return u, nil
}

// parseAmount reads a positive decimal amount such as "12.34" or "12,34".
func parseAmount(s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("amount %q: %w", s, err)
	}
	return core.Money{Cents: cents}, nil
}

// parseLimit is parseAmount that also accepts a zero limit written as zero
// digits with at most one separator.
func parseLimit(s string) (core.Money, error) {
	d := strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if strings.Contains(d, "0") && strings.Trim(d, "0.") == "" && strings.Count(d, ".") <= 1 {
		return core.Money{}, nil
	}
	return parseAmount(s)
}

// parseTime accepts RFC 3339 timestamps and plain dates (midnight UTC). An
// empty string yields the zero time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q must be RFC 3339 or YYYY-MM-DD", core.ErrInvalidTimestamp, s)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// printMarkdown renders md for the terminal, or prints it as is with -plain
// or when rendering fails.
func printMarkdown(md string) {
	if !*plain {
		if out, err := glamour.Render(md, "auto"); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}

// table builds a markdown table.
type table struct {
	b strings.Builder
}

func newTable(headers ...string) *table {
	t := &table{}
	t.row(headers...)
	seps := make([]string, len(headers))
	for i := range seps {
		seps[i] = "---"
	}
	t.row(seps...)
	return t
}

func (t *table) row(cells ...string) {
	t.b.WriteString("| ")
	t.b.WriteString(strings.Join(cells, " | "))
	t.b.WriteString(" |\n")
}

func (t *table) String() string { return t.b.String() }
