package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/energy"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/mqtt"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/notify"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/pricing"
)

var ErrNoDevices = errors.New("no devices configured")

const (
	BackendCSV      = "csv"
	BackendPostgres = "postgres"
)

type Config struct {
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"INFO"`
	DataDir          string        `env:"DATA_DIR" envDefault:"data"`
	Timezone         string        `env:"TIMEZONE" envDefault:"Local"`
	DevicesFile      string        `env:"DEVICES_FILE" envDefault:"devices.yaml"`
	HTTPAddr         string        `env:"HTTP_ADDR" envDefault:"127.0.0.1:8765"`
	LiveInterval     time.Duration `env:"LIVE_INTERVAL" envDefault:"10s"`
	MaxSampleGap     time.Duration `env:"MAX_SAMPLE_GAP" envDefault:"15m"`
	Backend          string        `env:"STORE_BACKEND" envDefault:"csv"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	MigrationsFolder string        `env:"MIGRATIONS_FOLDER" envDefault:"migrations"`
	Retention        time.Duration `env:"RETENTION" envDefault:"8760h"`

	Pricing pricing.Config `envPrefix:"PRICE_"`
	Notify  notify.Config  `envPrefix:"NOTIFY_"`
	MQTT    mqtt.Config    `envPrefix:"MQTT_"`

	Devices []model.Device
	Alerts  []notify.AlertRule
	loc     *time.Location
}

// File is the layout of the devices file.
type File struct {
	Devices []model.Device     `yaml:"devices"`
	Alerts  []notify.AlertRule `yaml:"alerts"`
	Pricing *pricing.Config    `yaml:"pricing"`
}

// Load reads the environment and the devices file it points to. Pricing from
// the file overrides the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}
	if err := cfg.loadFile(cfg.DevicesFile); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("devices file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("devices file %s: %w", path, err)
	}
	c.Devices = f.Devices
	c.Alerts = f.Alerts
	if f.Pricing != nil {
		c.Pricing = *f.Pricing
	}
	return nil
}

func (c *Config) validate() error {
	if len(c.Devices) == 0 {
		return ErrNoDevices
	}
	for i, d := range c.Devices {
		if d.Key == "" {
			return fmt.Errorf("device %d: missing key", i+1)
		}
		if d.Phases == 0 {
			c.Devices[i].Phases = 3
		}
	}
	if dups := lo.FindDuplicatesBy(c.Devices, func(d model.Device) string { return d.Key }); len(dups) > 0 {
		return fmt.Errorf("duplicate device key %q", dups[0].Key)
	}
	switch c.Backend {
	case BackendCSV, BackendPostgres:
	default:
		return fmt.Errorf("unknown store backend %q", c.Backend)
	}
	if c.Backend == BackendPostgres && c.DatabaseURL == "" {
		return errors.New("postgres backend needs DATABASE_URL")
	}
	if c.MaxSampleGap <= 0 {
		c.MaxSampleGap = energy.DefaultMaxGap
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	c.loc = loc
	return nil
}

func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}
