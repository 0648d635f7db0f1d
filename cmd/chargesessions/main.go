// Command chargesessions links unlinked attendances to their member's active
// session card and debits cards for sessions that already took place.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"session-cards/internal/charging"
	"session-cards/internal/config"
	"session-cards/internal/console"
	"session-cards/internal/logging"
	"session-cards/internal/period"
	"session-cards/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, time.Now)
	stop()
	if err != nil {
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

	fs := flag.NewFlagSet("chargesessions", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var sel period.Selection
	sel.Bind(fs, true)
	dryRun := fs.Bool("dry-run", false, "Show what would be linked and charged without changing anything")
	noLink := fs.Bool("no-link", false, "Only charge attendances that already have a card")
	jsonOut := fs.Bool("json", false, "Print the run summary as JSON")
	dbPath := fs.String("db", cfg.DBPath, "Path to database file (or PostgreSQL DSN)")
	driver := fs.String("driver", cfg.DBDriver, "Database driver: sqlite or postgres")
	logFile := fs.String("log-file", cfg.LogFile, "Append log lines to this file")
	timeout := fs.Duration("timeout", cfg.Timeout, "Abort a run after this long (0 disables)")
	interval := fs.Duration("interval", 0, "Repeat the run at this interval until interrupted")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if *interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}

	loc, err := config.Location(cfg.Timezone)
	if err != nil {
		return err
	}
	// Reject bad range flags before touching the database.
	if _, err := sel.Resolve(now(), loc, period.All()); err != nil {
		return err
	}
	drv, err := storage.ParseDriver(*driver)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New("chargesessions: ", *logFile, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	db, err := storage.Open(ctx, drv, *dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	j := &job{
		service: charging.NewService(db, logger, now),
		sel:     sel,
		loc:     loc,
		now:     now,
		dryRun:  *dryRun,
		noLink:  *noLink,
		timeout: *timeout,
		json:    *jsonOut,
		out:     console.New(stdout),
	}

	if *interval == 0 {
		return j.run(ctx)
	}
	return loop(ctx, j, *interval, logger)
}

// job is one configured charging run.
type job struct {
	service *charging.Service
	sel     period.Selection
	loc     *time.Location
	now     func() time.Time
	dryRun  bool
	noLink  bool
	timeout time.Duration
	json    bool
	out     *console.Printer
}

func (j *job) run(ctx context.Context) error {
	// Relative selections such as -days-ago move with the clock.
	r, err := j.sel.Resolve(j.now(), j.loc, period.All())
	if err != nil {
		return err
	}

	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	sum, err := j.service.Run(ctx, charging.Options{Range: r, DryRun: j.dryRun, SkipLinking: j.noLink})
	if sum != nil {
		if j.json {
			if werr := sum.WriteJSON(j.out.Writer()); werr != nil {
				return werr
			}
		} else {
			sum.WriteText(j.out, j.loc)
		}
	}
	return err
}

// loop repeats the job until ctx is cancelled. Failed runs are logged and
// retried on the next tick.
func loop(ctx context.Context, j *job, every time.Duration, logger *log.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if err := j.run(ctx); err != nil && ctx.Err() == nil {
			logger.Printf("run failed: %v", err)
		}
		select {
		case <-ctx.Done():
			logger.Printf("stopping: %v", context.Cause(ctx))
			return nil
		case <-ticker.C:
		}
	}
}
