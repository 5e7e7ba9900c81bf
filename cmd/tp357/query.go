package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/tp357/internal/devicefactory"
	"github.com/srg/tp357/internal/store"
	"github.com/srg/tp357/internal/tp357"
)

// now stamps CSV file names. Overridden in tests.
var now = time.Now

func newQueryCmd(mode tp357.Mode) *cobra.Command {
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s [ADDRESS...]", mode),
		Short: fmt.Sprintf("Download the %s", mode.Help()),
		Long: fmt.Sprintf(`Download the %s stored on TP357 devices.

Each ADDRESS is queried in turn. Without an address the first TP357 heard
advertising is queried. Transient connection failures are retried; a
timeout or an empty answer is not.`, mode.Help()),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, mode, args)
		},
	}

	cmd.Flags().Duration("wait", 60*time.Second, "Time allowed for one history download (0 waits indefinitely)")
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().Bool("csv", false, "Save each query to a CSV file")
	cmd.Flags().String("csv-dir", ".", "Directory for CSV files")
	cmd.Flags().String("sqlite", "", fmt.Sprintf("Create or append the readings to table '%s' of this SQLite database", mode))
	cmd.Flags().Int("retries", 3, "Attempts after a transient connection failure")
	cmd.Flags().String("mqtt", "", "Publish readings to this MQTT broker (e.g. tcp://localhost:1883)")
	return cmd
}

func runQuery(cmd *cobra.Command, mode tp357.Mode, addresses []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	saveCSV, _ := cmd.Flags().GetBool("csv")
	csvDir, _ := cmd.Flags().GetString("csv-dir")

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	sinks, err := openSinks(commandContext(cmd), cfg, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()

	adapter, err := devicefactory.NewAdapter(logger)
	if err != nil {
		return fmt.Errorf("failed to open BLE adapter: %w", err)
	}
	defer func() { _ = adapter.Close() }()

	var progress atomic.Pointer[ProgressPrinter]
	opts := cfg.ClientOptions()
	opts.Now = now
	opts.OnStateChange = func(_, to tp357.State) {
		if p := progress.Load(); p != nil {
			p.SetPhase(to.String())
		}
	}
	client := tp357.NewClient(adapter, nil, opts, logger)
	errOut := cmd.ErrOrStderr()

	out := cmd.OutOrStdout()
	ctx, cancel := withInterrupt(commandContext(cmd), out, "query")
	defer cancel()

	if len(addresses) == 0 {
		addresses = []string{""}
	}
	for _, address := range addresses {
		if address == "" {
			fmt.Fprintf(out, "Querying first advertising TP357 with mode '%s'\n", mode)
		} else {
			fmt.Fprintf(out, "Querying TP357 %s with mode '%s'\n", address, mode)
		}

		if isTerminal(errOut) {
			p := NewProgressPrinter(errOut, fmt.Sprintf("Downloading %s history", mode), "connecting")
			p.Start()
			progress.Store(p)
		}
		h, err := client.History(ctx, address, mode)
		if p := progress.Swap(nil); p != nil {
			p.Stop()
		}
		if err != nil {
			return err
		}

		w := newHistoryWriter(out, cfg.OutputFormat, mode)
		for _, r := range h.Readings {
			if err := w.Write(r); err != nil {
				return err
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if saveCSV {
			fp, err := writeCSVFile(csvDir, h)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved %s\n", fp)
		}
		if err := sinks.History(ctx, out, h); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVFile(dir string, h tp357.History) (string, error) {
	fp := filepath.Join(dir, store.CSVFileName(h.Address, h.Mode, now()))
	f, err := os.Create(fp)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", fp, err)
	}
	if err := store.WriteCSV(f, h.Mode, h.Readings); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write %s: %w", fp, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", fp, err)
	}
	return fp, nil
}

