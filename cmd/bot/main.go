package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"jokebot/internal/app"
	"jokebot/internal/config"
	logx "jokebot/pkg/logx"
)

var (
	cfgPath string
	envPath string
)

var rootCmd = &cobra.Command{
	Use:           "jokebot",
	Short:         "Reply to Reddit comments and mentions with jokes from Trello boards",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return run(ctx)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config and print the task plan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager(cfgPath, envPath).Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config ok: %s\n", cfgPath)
		fmt.Fprintf(out, "comments stream: every %s (main loop)\n", config.Interval(cfg.Rates.Comments))
		for _, g := range app.Plan(cfg) {
			fmt.Fprintf(out, "group every %s: %v\n", g.Interval, g.Names())
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config (json or yaml)")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file", ".env", "dotenv file with credentials (optional)")
	rootCmd.AddCommand(checkCmd)
}

func run(ctx context.Context) error {
	cfgm := config.NewManager(cfgPath, envPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxBackups: cfg.Logging.File.MaxBackups,
		},
	})
	defer logs.Close()
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log.Info("config loaded", logx.String("path", cfgm.Path()), logx.Bool("dry_run", cfg.Reddit.DryRun))

	bot, err := app.Open(ctx, cfg, cfgm, log)
	if err != nil {
		log.Error("startup failed", logx.Err(err))
		return err
	}
	return bot.Run(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
