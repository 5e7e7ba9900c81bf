package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/srg/tp357/internal/tp357"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mqtt.Client
	mock.Mock
}

func (m *mockClient) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *mockClient) Connect() mqtt.Token {
	return m.Called().Get(0).(mqtt.Token)
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return m.Called(topic, qos, retained, payload).Get(0).(mqtt.Token)
}

func (m *mockClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

// token is a completed, or never completing, mqtt.Token.
type token struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *token {
	t := &token{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *token {
	return &token{done: make(chan struct{})}
}

func (t *token) Wait() bool { <-t.done; return true }
func (t *token) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *token) Done() <-chan struct{} { return t.done }
func (t *token) Error() error          { return t.err }

func reading() tp357.Reading {
	rssi, batt := -60, 100
	return tp357.Reading{
		Timestamp:          time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC),
		Address:            "aa:bb:cc:dd:ee:ff",
		RSSI:               &rssi,
		HumidityPercent:    47,
		TemperatureCelsius: 21.5,
		BatteryPercent:     &batt,
	}
}

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix, address, source, expected string
	}{
		{"tp357", "AA:BB:CC:DD:EE:FF", "adv", "tp357/AABBCCDDEEFF/adv"},
		{"home/sensors/", "aa:bb:cc:dd:ee:ff", "day", "home/sensors/AABBCCDDEEFF/day"},
		{"", "AA:BB:CC:DD:EE:FF", "week", "tp357/AABBCCDDEEFF/week"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, Topic(tt.prefix, tt.address, tt.source))
		})
	}
}

func TestPayload(t *testing.T) {
	data, err := Payload(reading())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"time": "2024-03-10T12:30:00Z",
		"address": "aa:bb:cc:dd:ee:ff",
		"rssi": -60,
		"hum_rh": 47,
		"temp": 21.5,
		"batt": 100
	}`, string(data))
}

func TestPublish(t *testing.T) {
	client := &mockClient{}
	client.On("Publish", "tp357/AABBCCDDEEFF/adv", byte(1), true, mock.Anything).Return(doneToken(nil)).Once()

	p := NewWithClient(client, Options{TopicPrefix: "tp357", QoS: 1, Retain: true}, nil)
	require.NoError(t, p.Publish(context.Background(), tp357.AdvertisementSource, reading()))

	client.AssertExpectations(t)
	payload := client.Calls[0].Arguments.Get(3).([]byte)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, 21.5, decoded["temp"])
}

func TestPublish_Errors(t *testing.T) {
	t.Run("broker error", func(t *testing.T) {
		client := &mockClient{}
		client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(doneToken(errors.New("not connected")))

		p := NewWithClient(client, Options{}, nil)
		err := p.Publish(context.Background(), "adv", reading())
		assert.ErrorContains(t, err, "not connected")
	})

	t.Run("timeout", func(t *testing.T) {
		client := &mockClient{}
		client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(pendingToken())

		p := NewWithClient(client, Options{PublishTimeout: 20 * time.Millisecond}, nil)
		err := p.Publish(context.Background(), "adv", reading())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestPublishAll_FillsAddress(t *testing.T) {
	client := &mockClient{}
	client.On("Publish", "tp357/AABBCCDDEEFF/day", byte(0), false, mock.Anything).Return(doneToken(nil)).Times(2)

	readings := []tp357.Reading{
		{Timestamp: time.Unix(0, 0), HumidityPercent: 40, TemperatureCelsius: 20},
		{Timestamp: time.Unix(60, 0), HumidityPercent: 41, TemperatureCelsius: 20.1},
	}
	p := NewWithClient(client, Options{}, nil)
	require.NoError(t, p.PublishAll(context.Background(), tp357.History{
		Address:  "AA:BB:CC:DD:EE:FF",
		Mode:     tp357.ModeDay,
		Readings: readings,
	}))
	client.AssertExpectations(t)
}

func TestConnectAndClose(t *testing.T) {
	client := &mockClient{}
	client.On("IsConnected").Return(false).Once()
	client.On("Connect").Return(doneToken(nil)).Once()
	client.On("Disconnect", uint(250)).Return().Once()

	p := NewWithClient(client, Options{Broker: "tcp://localhost:1883"}, nil)
	require.NoError(t, p.Connect(context.Background()))
	p.Close()
	p.Close()
	client.AssertExpectations(t)
}
