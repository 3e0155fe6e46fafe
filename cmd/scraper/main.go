package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/post-scraper/internal/config"
	"github.com/user/post-scraper/pkg/logger"
)

var (
	cfg     *config.Config
	log     *zap.Logger
	envFile string
)

var rootCmd = &cobra.Command{
	Use:           "scraper",
	Short:         "Concurrent listing and post scraper",
	Long:          "Fetches each site's listing page, follows the post links it finds and writes every post's title, body and URL as JSON.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(envFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		l, err := logger.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file with configuration")
	rootCmd.AddCommand(runCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
