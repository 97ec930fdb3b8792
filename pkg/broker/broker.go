package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string

	// MaxRetries e MaxElapsed limitano i tentativi di connessione.
	MaxRetries int
	MaxElapsed time.Duration
}

func (c *Config) addr() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

func clientOptions(cfg *Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.addr())
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	return opts
}

// NewConn connects to the broker, retrying with exponential backoff, and
// disconnects when ctx is cancelled.
func NewConn(ctx context.Context, cfg *Config, log *slog.Logger) (mqtt.Client, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := clientOptions(cfg)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.MaxElapsed
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 5
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Warn("mqtt connect failed", "broker", cfg.addr(), "error", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.Info("connected to mqtt broker", "broker", cfg.addr())

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		log.Info("mqtt connection closed")
	}()

	return client, nil
}

func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}
