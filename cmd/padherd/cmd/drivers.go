package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/padherd/internal/app"
	"github.com/MrSnakeDoc/padherd/internal/config"
	"github.com/MrSnakeDoc/padherd/internal/logger"
)

var driversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "Inspect and restore swapped-out controller drivers",
}

var driversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List controllers whose driver is owed a restoration",
	Args:  cobra.NoArgs,
	RunE:  runDriversList,
}

var driversResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Reinstall every driver recorded in the driver store",
	Long: `Reinstall the drivers recorded in the driver store. Use this after padherd was
killed while a controller was suspended. Do not run it next to a live daemon.`,
	Args: cobra.NoArgs,
	RunE: runDriversResume,
}

func init() {
	driversCmd.AddCommand(driversListCmd, driversResumeCmd)
	rootCmd.AddCommand(driversCmd)
}

func runDriversList(cmd *cobra.Command, args []string) error {
	pending, err := app.PendingDrivers(config.Load())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(pending) == 0 {
		fmt.Fprintln(out, "No drivers pending.")
		return nil
	}

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintln(out, "Drivers owed a restoration:")
	for _, id := range ids {
		fmt.Fprintf(out, "  - %s -> %s\n", id, pending[id])
	}
	return nil
}

func runDriversResume(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	left, err := app.ResumeDrivers(cfg, log)
	if err != nil {
		return err
	}
	if left > 0 {
		return fmt.Errorf("%d drivers could not be restored", left)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All drivers restored.")
	return nil
}
