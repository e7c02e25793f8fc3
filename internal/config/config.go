package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env string `yaml:"env"`

	HTTP struct {
		Addr string `yaml:"addr"` // ":7080"
	} `yaml:"http"`

	// Storage selects the persistence store backend: "memory" or "mysql".
	Storage string `yaml:"storage"`

	MySQL struct {
		DSN          string        `yaml:"dsn"`
		MaxOpenConns int           `yaml:"max_open_conns"`
		MaxIdleConns int           `yaml:"max_idle_conns"`
		ConnMaxLife  time.Duration `yaml:"conn_max_life"`
		ConnMaxIdle  time.Duration `yaml:"conn_max_idle"`
	} `yaml:"mysql"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		Database int    `yaml:"database"`
	} `yaml:"redis"`

	// RequestTimeout bounds each store call made on behalf of one send.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	SendQueueSize  int           `yaml:"send_queue_size"`

	Breaker struct {
		Threshold int           `yaml:"threshold"`
		Window    time.Duration `yaml:"window"`
		OpenFor   time.Duration `yaml:"open_for"`
	} `yaml:"breaker"`

	History struct {
		DefaultLimit int `yaml:"default_limit"`
		MaxLimit     int `yaml:"max_limit"`
	} `yaml:"history"`

	Client struct {
		ServerURL      string        `yaml:"server_url"`
		Username       string        `yaml:"username"`
		AckTimeout     time.Duration `yaml:"ack_timeout"`
		TypingDebounce time.Duration `yaml:"typing_debounce"`
		MaxReconnects  int           `yaml:"max_reconnects"`
		ReconnectBase  time.Duration `yaml:"reconnect_base"`
		ReconnectCap   time.Duration `yaml:"reconnect_cap"`
		HealthInterval time.Duration `yaml:"health_interval"`
	} `yaml:"client"`
}

// Load supports comma-separated config files: "-c common.yml,relayd.yml"
func Load(pathList string) (*Config, error) {
	if strings.TrimSpace(pathList) == "" {
		return nil, errors.New("config path required (e.g. -c ./config.yml or -c common.yml,relayd.yml)")
	}
	var c Config
	paths := strings.Split(pathList, ",")
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}
	c.ApplyDefaults()
	return &c, nil
}

func (c *Config) ApplyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":7080"
	}
	if c.Storage == "" {
		c.Storage = "memory"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.Breaker.Threshold <= 0 {
		c.Breaker.Threshold = 5
	}
	if c.Breaker.Window <= 0 {
		c.Breaker.Window = 10 * time.Second
	}
	if c.Breaker.OpenFor <= 0 {
		c.Breaker.OpenFor = 5 * time.Second
	}
	if c.History.DefaultLimit <= 0 {
		c.History.DefaultLimit = 50
	}
	if c.History.MaxLimit <= 0 {
		c.History.MaxLimit = 500
	}
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = "ws://127.0.0.1:7080/ws"
	}
	if c.Client.AckTimeout == 0 {
		c.Client.AckTimeout = 10 * time.Second
	}
	if c.Client.TypingDebounce == 0 {
		c.Client.TypingDebounce = time.Second
	}
	if c.Client.MaxReconnects <= 0 {
		c.Client.MaxReconnects = 5
	}
	if c.Client.ReconnectBase <= 0 {
		c.Client.ReconnectBase = 500 * time.Millisecond
	}
	if c.Client.ReconnectCap <= 0 {
		c.Client.ReconnectCap = 8 * time.Second
	}
	if c.Client.HealthInterval <= 0 {
		c.Client.HealthInterval = 30 * time.Second
	}
}
