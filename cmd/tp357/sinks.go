package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/srg/tp357/internal/publish"
	"github.com/srg/tp357/internal/store"
	"github.com/srg/tp357/internal/tp357"
	"github.com/srg/tp357/pkg/config"
)

// sinks are the optional destinations of readings besides stdout.
type sinks struct {
	store     *store.Store
	publisher *publish.Publisher
	logger    *logrus.Logger
}

func openSinks(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*sinks, error) {
	s := &sinks{logger: logger}

	if cfg.SQLitePath != "" {
		st, err := store.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite DB '%s': %w", cfg.SQLitePath, err)
		}
		s.store = st
	}

	if cfg.MQTT.Broker != "" {
		p := publish.New(cfg.PublishOptions(), logger)
		if err := p.Connect(ctx); err != nil {
			s.Close()
			return nil, err
		}
		s.publisher = p
	}
	return s, nil
}

// Advertisement stores and publishes one advertisement reading.
func (s *sinks) Advertisement(ctx context.Context, r tp357.Reading) error {
	if s.store != nil {
		if err := s.store.AppendAdvertisement(ctx, r); err != nil {
			return err
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, tp357.AdvertisementSource, r); err != nil {
			return err
		}
	}
	return nil
}

// History appends a history result to its mode table, reporting what was
// written, and publishes it.
func (s *sinks) History(ctx context.Context, out io.Writer, h tp357.History) error {
	if s.store != nil {
		res, err := s.store.Append(ctx, string(h.Mode), h.Address, h.Readings)
		if err != nil {
			return fmt.Errorf("failed to save to sqlite DB '%s': %w", s.store.Path(), err)
		}
		fmt.Fprintln(out, res.Message(s.store.Path()))
	}
	if s.publisher != nil {
		if err := s.publisher.PublishAll(ctx, h); err != nil {
			return err
		}
		s.logger.WithFields(logrus.Fields{
			"address":  h.Address,
			"mode":     h.Mode,
			"readings": len(h.Readings),
		}).Info("History published")
	}
	return nil
}

func (s *sinks) Close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close sqlite DB")
		}
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
}
