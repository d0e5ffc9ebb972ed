package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/padherd/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "padherd",
	Short: "Game controller lifecycle and target arbitration daemon",
	Long: `padherd watches game controllers come and go, picks the one whose input is
forwarded, hides the others from other readers and keeps the virtual controller
on the first player slot.

Configuration comes from PADHERD_* environment variables.

Examples:
  padherd                      # run the daemon
  padherd drivers list         # show controllers left without their driver
  padherd drivers resume       # give those controllers their driver back`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDaemon,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
