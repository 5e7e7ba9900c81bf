// Package publish forwards TP357 readings to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/tp357/internal/tp357"
)

// DefaultTopicPrefix roots every topic.
const DefaultTopicPrefix = "tp357"

// Options configures a Publisher.
type Options struct {
	Broker         string
	ClientID       string
	TopicPrefix    string
	QoS            byte
	Retain         bool
	PublishTimeout time.Duration
}

// Topic returns the topic a reading from address is published on:
// <prefix>/<address without colons>/<source>.
func Topic(prefix, address, source string) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return fmt.Sprintf("%s/%s/%s",
		strings.TrimSuffix(prefix, "/"),
		strings.ToUpper(strings.ReplaceAll(address, ":", "")),
		source)
}

// Payload is the JSON document published for one reading.
func Payload(r tp357.Reading) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal reading: %w", err)
	}
	return data, nil
}

// Publisher publishes readings over one MQTT client.
type Publisher struct {
	client mqtt.Client
	opts   Options
	logger *logrus.Logger

	stopOnce sync.Once
}

// New creates a publisher for opts.Broker. Call Connect before publishing.
func New(opts Options, logger *logrus.Logger) *Publisher {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("tp357-%d", time.Now().UnixNano())
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetOnConnectHandler(func(mqtt.Client) {
		logger.WithField("broker", opts.Broker).Info("MQTT connected")
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	return NewWithClient(mqtt.NewClient(co), opts, logger)
}

// NewWithClient wraps an existing client.
func NewWithClient(client mqtt.Client, opts Options, logger *logrus.Logger) *Publisher {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	return &Publisher{client: client, opts: opts, logger: logger}
}

// Connect waits for the broker connection, respecting ctx.
func (p *Publisher) Connect(ctx context.Context) error {
	if p.client.IsConnected() {
		return nil
	}
	if err := wait(ctx, p.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", p.opts.Broker, err)
	}
	return nil
}

// Publish sends r to its topic. Advertisement readings go to the adv
// source; history readings pass their mode as source.
func (p *Publisher) Publish(ctx context.Context, source string, r tp357.Reading) error {
	payload, err := Payload(r)
	if err != nil {
		return err
	}
	topic := Topic(p.opts.TopicPrefix, r.Address, source)

	ctx, cancel := context.WithTimeout(ctx, p.opts.PublishTimeout)
	defer cancel()

	if err := wait(ctx, p.client.Publish(topic, p.opts.QoS, p.opts.Retain, payload)); err != nil {
		p.logger.WithFields(logrus.Fields{
			"topic": topic,
			"error": err,
		}).Error("Failed to publish reading")
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.logger.WithField("topic", topic).Debug("Published reading")
	return nil
}

// PublishAll publishes every reading of a history query.
func (p *Publisher) PublishAll(ctx context.Context, h tp357.History) error {
	for _, r := range h.Readings {
		if r.Address == "" {
			r.Address = h.Address
		}
		if err := p.Publish(ctx, string(h.Mode), r); err != nil {
			return err
		}
	}
	return nil
}

// Close disconnects from the broker. Safe to call more than once.
func (p *Publisher) Close() {
	p.stopOnce.Do(func() {
		p.client.Disconnect(250)
	})
}

// wait blocks on token until it completes or ctx is done.
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
