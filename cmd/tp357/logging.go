package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/tp357/pkg/config"
)

// loadConfig reads --config and applies the command's explicitly set flags
// over it, then builds the logger from --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("format") {
		cfg.OutputFormat, _ = flags.GetString("format")
	}
	if flags.Changed("sqlite") {
		cfg.SQLitePath, _ = flags.GetString("sqlite")
	}
	if flags.Changed("mqtt") {
		cfg.MQTT.Broker, _ = flags.GetString("mqtt")
	}
	if flags.Changed("retries") {
		cfg.Retries, _ = flags.GetInt("retries")
	}
	if flags.Changed("name") {
		cfg.NameFilter, _ = flags.GetString("name")
	}
	if flags.Changed("wait") {
		wait, _ := flags.GetDuration("wait")
		if cmd.Name() == scanCommandName {
			cfg.ScanWait = wait
		} else {
			cfg.QueryTimeout = wait
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
