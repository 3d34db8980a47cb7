package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

type token struct {
	err error
}

func (t *token) Wait() bool                     { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Error() error                   { return t.err }
func (t *token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu   sync.Mutex
	err  error
	sent []message
}

func (f *fakeClient) Connect() paho_mqtt.Token { return &token{err: f.err} }

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho_mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	f.sent = append(f.sent, message{topic: topic, retained: retained, payload: data})
	return &token{err: f.err}
}

func (f *fakeClient) topics() []string {
	var out []string
	for _, m := range f.sent {
		out = append(out, m.topic)
	}
	return out
}

func summaryNotification(kwh float64) model.Notification {
	start := time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)
	return model.Notification{
		Kind: model.KindDailySummary,
		Summaries: []model.DeviceSummary{{
			DeviceID:   "Shelly-3EM Main",
			DeviceName: "Main",
			Window:     model.Window{Start: start, End: start.AddDate(0, 0, 1)},
			TotalKWh:   kwh,
			TotalCost:  kwh * 0.3,
			Currency:   "EUR",
		}},
	}
}

func TestPublishSummary(t *testing.T) {
	client := &fakeClient{}
	svc := New(client, "")

	require.NoError(t, svc.Publish(context.Background(), summaryNotification(12.3456)))

	assert.Equal(t, []string{
		"homeassistant/sensor/shelly_3em_main_daily_summary/config",
		"homeassistant/sensor/shelly_3em_main_daily_summary/state",
	}, client.topics())

	var reg model.RegisterMessage
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &reg))
	assert.Equal(t, "kWh", reg.UnitOfMeasurement)
	assert.Equal(t, "Main daily summary", reg.Name)
	assert.True(t, client.sent[0].retained)

	var state model.SummaryState
	require.NoError(t, json.Unmarshal(client.sent[1].payload, &state))
	assert.Equal(t, "12.346", state.TotalKWh)
	assert.Equal(t, "3.70", state.TotalCost)
	assert.Equal(t, "2026-01-30T00:00:00Z", state.Start)
}

func TestPublishSkipsUnchangedState(t *testing.T) {
	client := &fakeClient{}
	svc := New(client, "ha")

	require.NoError(t, svc.Publish(context.Background(), summaryNotification(1)))
	require.NoError(t, svc.Publish(context.Background(), summaryNotification(1)))
	assert.Len(t, client.sent, 2, "config once, state once")

	require.NoError(t, svc.Publish(context.Background(), summaryNotification(2)))
	assert.Len(t, client.sent, 3)
}

func TestPublishAlert(t *testing.T) {
	client := &fakeClient{}
	svc := New(client, "")

	require.NoError(t, svc.Publish(context.Background(), model.Notification{Kind: model.KindAlert, Text: "limit"}))
	require.Len(t, client.sent, 1)
	assert.Equal(t, "homeassistant/sensor/shelly_energy/alert", client.sent[0].topic)
	assert.Equal(t, "limit", string(client.sent[0].payload))
}

func TestPublishError(t *testing.T) {
	client := &fakeClient{err: errors.New("broker gone")}
	svc := New(client, "")

	assert.Error(t, svc.Publish(context.Background(), summaryNotification(1)))
	assert.Error(t, svc.Connect())
}

func TestRegisterDevice(t *testing.T) {
	client := &fakeClient{}
	svc := New(client, "")

	require.NoError(t, svc.RegisterDevice(model.Device{Key: "plug", Name: "Fridge"}))
	require.NoError(t, svc.RegisterDevice(model.Device{Key: "plug", Name: "Fridge"}))
	assert.Len(t, client.sent, 3)
}
