// Command cardreport lists a day's attendances with their card state and
// flags the ones that need attention. It never writes to the database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"session-cards/internal/config"
	"session-cards/internal/period"
	"session-cards/internal/report"
	"session-cards/internal/storage"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, time.Now); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, now func() time.Time) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("cardreport", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var sel period.Selection
	sel.Bind(fs, false)
	jsonOut := fs.Bool("json", false, "Print the report as JSON")
	dbPath := fs.String("db", cfg.DBPath, "Path to database file (or PostgreSQL DSN)")
	driver := fs.String("driver", cfg.DBDriver, "Database driver: sqlite or postgres")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	loc, err := config.Location(cfg.Timezone)
	if err != nil {
		return err
	}
	at := now()
	yesterday, err := period.DaysAgo(at, 1, loc)
	if err != nil {
		return err
	}
	r, err := sel.Resolve(at, loc, yesterday)
	if err != nil {
		return err
	}
	drv, err := storage.ParseDriver(*driver)
	if err != nil {
		return err
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	db, err := storage.Open(ctx, drv, *dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rep, err := report.Build(ctx, db, r, at)
	if err != nil {
		return err
	}
	if *jsonOut {
		return rep.WriteJSON(stdout)
	}
	return rep.WriteText(stdout, loc)
}
