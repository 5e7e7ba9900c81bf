package main

import (
	"context"
	"errors"
	"os"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/srg/tp357/internal/tp357"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Query commands are generated from the
// mode table so that a new mode needs no CLI change.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tp357",
		Short: "Query TP357 thermo-hygrometers",
		Long: `Read ThermoPro TP357 Bluetooth thermo-hygrometers:

- Listen to live advertisements (temperature, humidity, battery)
- Download the stored day, week or year history over GATT
- Save results to CSV files or an incrementally appended SQLite database
- Forward readings to an MQTT broker`,
		Version: formatVersion(version),
		// Silence Cobra's "Error:" prefix - main() prints clean errors
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("config", "", "YAML configuration file")
	root.Flags().BoolP("version", "v", false, "Show version information")

	root.AddCommand(newScanCmd())
	for _, mode := range tp357.Modes() {
		root.AddCommand(newQueryCmd(mode))
	}
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		printUserError(os.Stderr, err)
		os.Exit(1)
	}
}
