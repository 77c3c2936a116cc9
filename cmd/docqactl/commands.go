package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/docqa/internal/auth"
	"github.com/nikhilbhutani/docqa/internal/config"
	"github.com/nikhilbhutani/docqa/internal/document"
	"github.com/nikhilbhutani/docqa/internal/identity"
	"github.com/nikhilbhutani/docqa/internal/models"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Upload and index local files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		files := make([]document.File, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			files = append(files, document.File{Name: filepath.Base(path), Data: data})
		}

		report := a.Documents.UploadAll(ctx, files)
		out := cmd.OutOrStdout()
		for _, r := range report.Results {
			if r.Success {
				fmt.Fprintf(out, "ok    %s -> %s (%d chunks)\n", r.Filename, r.DocumentID, r.Chunks)
			} else {
				fmt.Fprintf(out, "fail  %s: %s\n", r.Filename, r.Error)
			}
		}
		if report.Status == models.BatchFailure {
			return errors.New("no file was ingested")
		}
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.Pipeline.Ask(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, resp.Content)
		fmt.Fprintf(out, "\nconfidence: %.2f\n", resp.Confidence)
		for i, src := range resp.Sources {
			fmt.Fprintf(out, "[%d] %s #%d\n", i+1, document.StripIDPrefix(src.DocumentID), src.Position)
		}
		return nil
	},
}

var clearIndexForce bool

var clearIndexCmd = &cobra.Command{
	Use:   "clear-index",
	Short: "Remove every vector from the index",
	Long:  "Removes every stored vector. Document records and files are kept; use reindex to rebuild them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Index.Count(ctx)
		if err != nil {
			return err
		}
		if !clearIndexForce {
			return fmt.Errorf("index holds %d vectors; pass --force to remove them", n)
		}
		if err := a.Index.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d vectors\n", n)
		return nil
	},
}

var sessionsUser string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List a user's chat sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		summaries, err := a.Sessions.List(ctx, sessionsUser)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, s := range summaries {
			fmt.Fprintf(out, "%s  %s  %3d  %s\n", s.ID, s.CreatedAt, s.MessageCount, s.Name)
		}
		return nil
	},
}

var reindexNow bool

var reindexCmd = &cobra.Command{
	Use:   "reindex <document-id>...",
	Short: "Rebuild the vectors of stored documents",
	Long:  "Queues a re-index task per document when Redis is configured, or re-indexes inline with --now or without Redis.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		for _, id := range args {
			if a.Queue != nil && !reindexNow {
				if err := a.Queue.EnqueueDocumentReindex(ctx, id); err != nil {
					return fmt.Errorf("enqueue %s: %w", id, err)
				}
				fmt.Fprintf(out, "queued %s\n", id)
				continue
			}
			n, err := a.Documents.Reindex(ctx, id)
			if err != nil {
				return fmt.Errorf("reindex %s: %w", id, err)
			}
			fmt.Fprintf(out, "reindexed %s (%d chunks)\n", id, n)
		}
		return nil
	},
}

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a bearer token with JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		tok, err := auth.NewJWTMiddleware(cfg.Auth.JWTSecret).Issue(tokenSubject, tokenRole, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	clearIndexCmd.Flags().BoolVar(&clearIndexForce, "force", false, "actually remove the vectors")
	sessionsCmd.Flags().StringVar(&sessionsUser, "user", models.AnonymousUserID, "owner of the sessions")
	reindexCmd.Flags().BoolVar(&reindexNow, "now", false, "re-index inline instead of queueing")
	tokenCmd.Flags().StringVar(&tokenSubject, "sub", "", "token subject (user id)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", identity.RoleAdmin, "role claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.MarkFlagRequired("sub")
}
