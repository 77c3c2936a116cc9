package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/docqa/internal/app"
	"github.com/nikhilbhutani/docqa/internal/config"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "docqactl",
	Short: "Maintenance tool for the document Q&A service",
	Long: `docqactl works directly against the configured vector index, session
store and document storage, using the same environment variables as the API
server (a .env file in the working directory is loaded when present).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log component activity to stderr")
	rootCmd.AddCommand(ingestCmd, askCmd, clearIndexCmd, sessionsCmd, reindexCmd, tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// openApp loads the configuration and connects the components.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}
