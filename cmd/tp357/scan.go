package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/tp357/internal/devicefactory"
	"github.com/srg/tp357/internal/tp357"
)

const scanCommandName = "scan"

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   scanCommandName,
		Short: "Listen to TP357 advertisements",
		Long: `Listen to the readings TP357 devices broadcast in their advertisements
and print each one as it arrives.

The scan runs until --wait elapses or Ctrl+C is pressed. Readings can be
appended to the 'adv' table of a SQLite database and forwarded to MQTT.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}

	cmd.Flags().Duration("wait", 0, "Scan duration (0 scans until Ctrl+C)")
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().String("sqlite", "", "Append readings to the 'adv' table of this SQLite database")
	cmd.Flags().String("mqtt", "", "Publish readings to this MQTT broker (e.g. tcp://localhost:1883)")
	cmd.Flags().String("name", tp357.DefaultNameFilter, "Local name substring identifying TP357 devices")
	cmd.Flags().StringSlice("allow", nil, "Only show devices with these addresses")
	cmd.Flags().StringSlice("block", nil, "Hide devices with these addresses")
	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

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

	opts := cfg.ClientOptions()
	opts.Scan.AllowList, _ = cmd.Flags().GetStringSlice("allow")
	opts.Scan.BlockList, _ = cmd.Flags().GetStringSlice("block")
	client := tp357.NewClient(adapter, nil, opts, logger)

	out := cmd.OutOrStdout()
	ctx, cancel := withInterrupt(commandContext(cmd), out, "scan")
	defer cancel()
	if cfg.ScanWait > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.ScanWait)
		defer cancel()
	}

	w := newLiveWriter(out, cfg.OutputFormat)
	err = client.Advertisements(ctx, func(r tp357.Reading) error {
		if err := w.Write(r); err != nil {
			return err
		}
		return sinks.Advertisement(ctx, r)
	})
	if err != nil {
		logger.WithError(err).Error("scan failed")
		return err
	}

	seen := client.Scanner().Seen()
	logger.WithField("devices", len(seen)).Info("Scan finished")
	for _, r := range seen {
		logger.WithFields(logrus.Fields{
			"address": r.Address,
			"temp":    r.TemperatureCelsius,
			"hum_rh":  r.HumidityPercent,
		}).Debug("Last reading")
	}
	return w.Flush()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
