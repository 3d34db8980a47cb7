package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/money"
)

func identifier(name string) string {
	return strings.Replace(slug.Make(name), "-", "_", -1)
}

// Publish pushes the summaries of n as retained sensor states, one sensor per
// device and notification kind. Alerts go to a plain text topic.
func (s *service) Publish(ctx context.Context, n model.Notification) error {
	if n.Kind == model.KindAlert {
		topic := fmt.Sprintf("%s/sensor/shelly_energy/alert", s.prefix)
		return wait(s.client.Publish(topic, 1, false, n.Text), 10*time.Second)
	}

	for _, summary := range n.Summaries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.registerSensor(summary.DeviceID, summary.DeviceName, n.Kind); err != nil {
			return err
		}
		state := model.SummaryState{
			TotalKWh:  money.Format(summary.TotalKWh, 3),
			TotalCost: money.Format(summary.TotalCost, 2),
			Currency:  summary.Currency,
			Start:     summary.Window.Start.Format(time.RFC3339),
			End:       summary.Window.End.Format(time.RFC3339),
		}
		if err := s.publishState(sensorID(summary.DeviceID, n.Kind), state); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) RegisterDevice(device model.Device) error {
	for _, kind := range []model.NotificationKind{model.KindDailySummary, model.KindMonthlySummary, model.KindLive} {
		if err := s.registerSensor(device.Key, device.DisplayName(), kind); err != nil {
			return err
		}
	}
	return nil
}

func sensorID(deviceID string, kind model.NotificationKind) string {
	return identifier(deviceID + " " + kind.String())
}

func (s *service) registerSensor(deviceID, name string, kind model.NotificationKind) error {
	id := sensorID(deviceID, kind)
	if _, exists := s.configured.Load(id); exists {
		return nil
	}
	payload, err := json.Marshal(s.registerMsg(deviceID, name, kind))
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/sensor/%s/config", s.prefix, id)
	if err := wait(s.client.Publish(topic, 1, true, payload), 5*time.Second); err != nil {
		return err
	}
	s.configured.Store(id, struct{}{})
	s.logger.Info("configured sensor", zap.String("device", deviceID), zap.String("sensor", id))
	return nil
}

func (s *service) publishState(id string, state model.SummaryState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if !s.shouldUpdate(id, string(payload)) {
		return nil
	}
	topic := fmt.Sprintf("%s/sensor/%s/state", s.prefix, id)
	if err := wait(s.client.Publish(topic, 0, true, payload), 10*time.Second); err != nil {
		s.states.Delete(id)
		return err
	}
	return nil
}

// shouldUpdate reports whether value differs from the last state sent for id.
func (s *service) shouldUpdate(id, value string) bool {
	old, exists := s.states.Load(id)
	if exists && old.(string) == value {
		return false
	}
	s.states.Store(id, value)
	return true
}

func (s *service) registerMsg(deviceID, name string, kind model.NotificationKind) model.RegisterMessage {
	id := sensorID(deviceID, kind)
	device := identifier(deviceID)
	return model.RegisterMessage{
		Tilda:             fmt.Sprintf("%s/sensor/%s", s.prefix, id),
		Name:              fmt.Sprintf("%s %s", name, strings.ReplaceAll(kind.String(), "_", " ")),
		ID:                id,
		StateTopic:        "~/state",
		UnitOfMeasurement: "kWh",
		DeviceClass:       "energy",
		Device: model.RegisterDevice{
			Name:         name,
			Identifiers:  []string{device},
			Model:        "Shelly",
			Manufacturer: "Shelly",
		},
	}
}
