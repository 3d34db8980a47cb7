package model

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// RegisterMessage is the Home Assistant discovery payload for one summary sensor.
type RegisterMessage struct {
	Tilda             string         `json:"~"`
	Name              string         `json:"name"`
	ID                string         `json:"unique_id"`
	StateTopic        string         `json:"state_topic"`
	UnitOfMeasurement string         `json:"unit_of_measurement,omitempty"`
	DeviceClass       string         `json:"device_class,omitempty"`
	Device            RegisterDevice `json:"device"`
}

// SummaryState is the retained state published for a summary sensor.
type SummaryState struct {
	TotalKWh  string `json:"total_kwh"`
	TotalCost string `json:"total_cost"`
	Currency  string `json:"currency"`
	Start     string `json:"start"`
	End       string `json:"end"`
}
