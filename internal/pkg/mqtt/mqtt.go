package mqtt

import (
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Client is the part of the paho client the sink uses.
type Client interface {
	Connect() paho_mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho_mqtt.Token
}

type Config struct {
	Host     string `env:"HOST"`
	Username string `env:"USER"`
	Password string `env:"PASS"`
	ClientID string `env:"CLIENT_ID" envDefault:"shelly-energy-analyzer"`
	Prefix   string `env:"PREFIX" envDefault:"homeassistant"`
}

func (c Config) Enabled() bool {
	return c.Host != ""
}

// NewClient builds a paho client for cfg without connecting it.
func NewClient(cfg Config) paho_mqtt.Client {
	opts := paho_mqtt.NewClientOptions().
		AddBroker(cfg.Host).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	return paho_mqtt.NewClient(opts)
}

type service struct {
	client     Client
	prefix     string
	logger     *zap.Logger
	configured sync.Map
	states     sync.Map
}

func New(client Client, prefix string) *service {
	if prefix == "" {
		prefix = "homeassistant"
	}
	return &service{
		client: client,
		prefix: prefix,
		logger: zap.L(),
	}
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(time.Second * 5)
	if res {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}

func wait(token paho_mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return errors.New("publish timed out")
	}
	return token.Error()
}
