// Command addcard issues a session card, creating the member when needed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"session-cards/internal/config"
	"session-cards/internal/models"
	"session-cards/internal/period"
	"session-cards/internal/storage"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("addcard", flag.ContinueOnError)
	fs.SetOutput(stderr)

	email := fs.String("email", "", "Member email")
	firstName := fs.String("first", "", "First name (new members only)")
	lastName := fs.String("last", "", "Last name (new members only)")
	cardType := fs.String("type", "", "Card type (default \"<sessions>-Sessie Kaart\")")
	sessions := fs.Int("sessions", 10, "Total sessions on the card")
	used := fs.Int("used", 0, "Sessions already used")
	trial := fs.Bool("trial", false, "Issue a trial card")
	purchased := fs.String("purchased", "", "Purchase date YYYY-MM-DD (default today)")
	expires := fs.String("expires", "", "Expiry date YYYY-MM-DD (optional)")
	notes := fs.String("notes", "", "Free-form notes")
	dbPath := fs.String("db", cfg.DBPath, "Path to database file (or PostgreSQL DSN)")
	driver := fs.String("driver", cfg.DBDriver, "Database driver: sqlite or postgres")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*email) == "" {
		fmt.Fprintln(stdout, "Usage: addcard -email <email> [-first <name>] [-last <name>] [-sessions <n>] [-used <n>] [-trial] [-db <db_path>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: email")
	}

	card := models.SessionCard{
		CardType:      strings.TrimSpace(*cardType),
		TotalSessions: *sessions,
		SessionsUsed:  *used,
		IsTrial:       *trial,
		Notes:         *notes,
	}
	if card.CardType == "" {
		card.CardType = fmt.Sprintf("%d-Sessie Kaart", *sessions)
	}
	if *purchased != "" || *expires != "" {
		loc, err := config.Location(cfg.Timezone)
		if err != nil {
			return err
		}
		if *purchased != "" {
			if card.PurchasedDate, err = period.ParseDate(*purchased, loc); err != nil {
				return err
			}
		}
		if *expires != "" {
			expiry, err := period.ParseDate(*expires, loc)
			if err != nil {
				return err
			}
			card.ExpiryDate = &expiry
		}
	}

	drv, err := storage.ParseDriver(*driver)
	if err != nil {
		return err
	}
	db, err := storage.Open(ctx, drv, *dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	member, err := findOrCreateMember(ctx, db, *email, *firstName, *lastName, stdout)
	if err != nil {
		return err
	}

	card.MemberID = member.ID
	issued, err := db.CreateCard(ctx, card)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}

	fmt.Fprintf(stdout, "Card %d (%s) issued to %s: %d/%d sessions used, status %s\n",
		issued.ID, issued.Label(), member.FullName(), issued.SessionsUsed, issued.TotalSessions, issued.Status)
	if issued.ExpiryDate != nil {
		fmt.Fprintf(stdout, "Expires %s\n", issued.ExpiryDate.Format(period.DateLayout))
	}
	if active, err := db.ActiveCardForMember(ctx, member.ID); err == nil && active.ID != issued.ID {
		fmt.Fprintf(stdout, "Note: card %d (%s) stays the active card used for charging\n", active.ID, active.Label())
	}
	return nil
}

// findOrCreateMember looks the member up by email and creates it when
// missing. A member created concurrently by another process is reused.
func findOrCreateMember(ctx context.Context, db *storage.DB, email, first, last string, stdout io.Writer) (*models.Member, error) {
	member, err := db.GetMemberByEmail(ctx, email)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up member: %w", err)
	}

	member, err = db.CreateMember(ctx, email, first, last)
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return db.GetMemberByEmail(ctx, email)
	case err != nil:
		return nil, fmt.Errorf("failed to create member: %w", err)
	}
	fmt.Fprintf(stdout, "Member %s created with ID %d\n", member.Email, member.ID)
	return member, nil
}
