package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/padherd/internal/app"
	"github.com/MrSnakeDoc/padherd/internal/config"
	"github.com/MrSnakeDoc/padherd/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller manager (default)",
	Long: `Start the controller manager, the hot-plug monitor and the control API, and run
until interrupted. Drivers swapped out during the run are restored on exit.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
