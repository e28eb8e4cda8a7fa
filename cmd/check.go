package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/gmailnotifier/internal/config"
	"github.com/teemow/gmailnotifier/internal/gmail"
	"github.com/teemow/gmailnotifier/internal/google"
	"github.com/teemow/gmailnotifier/internal/store"
)

func newCheckCmd() *cobra.Command {
	var (
		configPath string
		email      string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the notification check once for a single mailbox",
		Long: `Run the same check the Pub/Sub push endpoint runs, once, from the
command line: search the mailbox for messages matching the stored query
that arrived since the last recorded run, then advance the marker.

The user must have completed the OAuth flow and stored a query first.
With --dry-run the marker is left untouched, so the next scheduled check
sees the same messages again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !strings.Contains(email, "@") {
				return fmt.Errorf("invalid email address: %s", email)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// The check only needs the OAuth client credentials and the
			// store; scheduler settings may be absent.
			if cfg.Google.ClientID == "" {
				cfg.Google.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
			}
			if cfg.Google.ClientSecret == "" {
				cfg.Google.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
			}
			if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
				return fmt.Errorf("google.client_id and google.client_secret are required (config file or GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET)")
			}

			return runCheck(cfg, email, dryRun)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file path (default: ~/.gmailnotifier/config.toml)")
	cmd.Flags().StringVar(&email, "email", "", "Email address of the mailbox to check")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report matches without advancing the last-run marker")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runCheck(cfg config.Config, email string, dryRun bool) error {
	ctx := context.Background()

	st, err := buildStore(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		_ = st.Close()
	}()

	token, err := st.GetCredential(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no authorization on file for %s; complete the OAuth flow via /oauth2init first", email)
		}
		return fmt.Errorf("failed to load credential: %w", err)
	}

	stored, err := st.GetQuery(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("No search query stored for %s; nothing to check", email)
			return nil
		}
		return fmt.Errorf("failed to load query: %w", err)
	}

	var since time.Time
	if lastRun, err := st.GetLastRun(ctx, email); err == nil {
		since = lastRun
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load last-run marker: %w", err)
	}

	// The redirect URL is not used for token refresh, but the client
	// constructor requires one.
	redirectURL := cfg.Google.RedirectURL
	if redirectURL == "" {
		redirectURL = "http://localhost" + config.DefaultListenAddr + "/oauth2callback"
	}

	oauthClient, err := google.NewClient(cfg.Google.ClientID, cfg.Google.ClientSecret, redirectURL)
	if err != nil {
		return fmt.Errorf("failed to create OAuth client: %w", err)
	}

	client, err := gmail.NewClient(ctx, oauthClient.TokenSource(ctx, token))
	if err != nil {
		return fmt.Errorf("failed to create Gmail client: %w", err)
	}

	start := time.Now()
	msgs, err := client.SearchSince(ctx, stored.Query, since)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	for i, m := range msgs {
		log.Printf("Message %d: %v", i+1, m.Id)
	}
	if since.IsZero() {
		log.Printf("Found %d messages matching %q (first check)", len(msgs), stored.Query)
	} else {
		log.Printf("Found %d messages matching %q since %v", len(msgs), stored.Query, since.Format(time.RFC3339))
	}

	if dryRun {
		log.Printf("Dry run; last-run marker left at %v", since.Format(time.RFC3339))
		return nil
	}

	if err := st.SaveLastRun(ctx, email, start); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}
