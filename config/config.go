package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
)

type LookupFunc func(key string) (string, bool)

const (
	BackendMemory   = "memory"
	BackendRabbitMQ = "rabbitmq"
	BackendNATS     = "nats"
	BackendKafka    = "kafka"
)

type Config struct {
	Backend       string
	URL           string
	Brokers       []string
	QueueName     string
	ExchangeName  string
	ExchangeKind  string
	ClientName    string
	ConnTimeout   time.Duration
	Durable       bool
	ExpectBinary  bool
	TypedPayloads bool
}

// Options converts the configuration to provider options.
func (c Config) Options() cbroker.Options {
	return cbroker.Options{
		QueueName:     c.QueueName,
		ExchangeName:  c.ExchangeName,
		URL:           c.URL,
		Brokers:       c.Brokers,
		ClientName:    c.ClientName,
		ConnTimeout:   c.ConnTimeout,
		ExchangeKind:  c.ExchangeKind,
		Durable:       c.Durable,
		ExpectBinary:  c.ExpectBinary,
		TypedPayloads: c.TypedPayloads,
	}
}

func LoadFromEnv(lookup LookupFunc) (Config, error) {
	cfg := Config{Backend: BackendMemory}

	var ok bool
	if cfg.QueueName, ok = lookup("PROVIDER_QUEUE"); !ok || cfg.QueueName == "" {
		return Config{}, errors.New("PROVIDER_QUEUE is required")
	}
	if cfg.ExchangeName, ok = lookup("PROVIDER_EXCHANGE"); !ok || cfg.ExchangeName == "" {
		return Config{}, errors.New("PROVIDER_EXCHANGE is required")
	}

	if v, ok := lookup("PROVIDER_BACKEND"); ok && v != "" {
		cfg.Backend = strings.ToLower(v)
	}

	switch cfg.Backend {
	case BackendMemory, BackendRabbitMQ, BackendNATS, BackendKafka:
	default:
		return Config{}, fmt.Errorf("PROVIDER_BACKEND %q is not supported", cfg.Backend)
	}

	cfg.URL, _ = lookup("PROVIDER_URL")
	cfg.ExchangeKind, _ = lookup("PROVIDER_EXCHANGE_KIND")
	cfg.ClientName, _ = lookup("PROVIDER_CLIENT_NAME")

	if v, ok := lookup("PROVIDER_BROKERS"); ok {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Brokers = append(cfg.Brokers, b)
			}
		}
	}

	// Transport specific requirements.
	switch cfg.Backend {
	case BackendRabbitMQ, BackendNATS:
		if cfg.URL == "" {
			return Config{}, fmt.Errorf("PROVIDER_URL is required for %s", cfg.Backend)
		}
	case BackendKafka:
		if len(cfg.Brokers) == 0 {
			return Config{}, errors.New("PROVIDER_BROKERS is required for kafka")
		}
	}

	if v, ok := lookup("PROVIDER_CONN_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("PROVIDER_CONN_TIMEOUT: %w", err)
		}
		cfg.ConnTimeout = d
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{"PROVIDER_DURABLE", &cfg.Durable},
		{"PROVIDER_EXPECT_BINARY", &cfg.ExpectBinary},
		{"PROVIDER_TYPED_PAYLOADS", &cfg.TypedPayloads},
	}
	for _, f := range flags {
		v, ok := lookup(f.key)
		if !ok || v == "" {
			continue
		}

		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = b
	}

	return cfg, nil
}
