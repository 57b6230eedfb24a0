package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/loopyluu007/anime-ai/internal/config"
	"github.com/loopyluu007/anime-ai/internal/infra"
	"github.com/loopyluu007/anime-ai/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "anime-ai",
	Short: "Anime AI generation API",
	Long: `anime-ai accepts script, image and video generation tasks, runs them
against the configured providers and streams progress to websocket clients.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		embedded, _ := cmd.Flags().GetBool("embedded-worker")
		return runServe(cmd.Context(), embedded)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a standalone asynq worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|status|version|redo|reset]",
	Short: "Run Postgres task store migrations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := "up"
		if len(args) == 1 {
			command = args[0]
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := infra.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
		return store.Migrate(cfg.Store.DatabaseURL, command, log)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	serveCmd.Flags().Bool("embedded-worker", true, "process the asynq queue inside the server process")
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}
