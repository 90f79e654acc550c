package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/apexai/apex/internal/config"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "apex",
	Short: "Customer feedback analysis: classify, store and summarize feedback",
	Long: `apex classifies customer feedback (text, links, reels, images, videos)
with a generative model, stores the results and serves dashboard figures
over HTTP and MCP.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(
		startCmd,
		stopCmd,
		statusCmd,
		signupCmd,
		signinCmd,
		signoutCmd,
		whoamiCmd,
		analyzeCmd,
		feedbackCmd,
		simulateCmd,
		dashboardCmd,
		summaryCmd,
		configCmd,
	)
}

func main() {
	loadDotEnv()
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// loadDotEnv reads ./.env into the environment. Variables already set win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		printWarning("could not read .env: %v", err)
	}
}

func setupLogging(cfg config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()})))
}
