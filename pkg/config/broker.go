// Package config loads the broker's subscriber configuration from TOML.
//
// The file groups webhook subscribers by the pool event that triggers them:
//
//	[borrow.subscribers.dns]
//	post = "http://dns-svc/hooks/borrow"
//	mustSuceed = true
//	async = false
//
// Groups default to empty and unknown keys are ignored, so an older broker
// can read a newer config file.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Subscriber describes a single webhook endpoint notified on pool events.
type Subscriber struct {
	// Post is the URL the event payload is POSTed to.
	Post string `toml:"post"`

	// MustSucceed marks the subscriber as required: if its notification
	// fails, the whole operation fails. The TOML key keeps the historical
	// "mustSuceed" spelling for compatibility with existing config files.
	MustSucceed bool `toml:"mustSuceed"`

	// Async marks a must-succeed subscriber that acknowledges the POST
	// immediately and reports completion through a polled status endpoint.
	Async bool `toml:"async"`
}

// SubscriberGroup holds the subscribers for one event kind, keyed by name.
type SubscriberGroup struct {
	Subscribers map[string]Subscriber `toml:"subscribers"`
}

// Config is the full broker subscriber configuration.
type Config struct {
	Borrow SubscriberGroup `toml:"borrow"`
	Return SubscriberGroup `toml:"return"`
	Submit SubscriberGroup `toml:"submit"`
}

// Default returns an empty configuration: no subscribers for any event kind.
func Default() *Config {
	cfg := &Config{}
	cfg.normalize()
	return cfg
}

// Parse decodes a TOML document into a Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse subscriber config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// Load reads and parses the TOML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subscriber config: %w", err)
	}
	return Parse(data)
}

// normalize replaces nil subscriber maps with empty ones so callers can
// range over groups without nil checks.
func (c *Config) normalize() {
	for _, g := range []*SubscriberGroup{&c.Borrow, &c.Return, &c.Submit} {
		if g.Subscribers == nil {
			g.Subscribers = make(map[string]Subscriber)
		}
	}
}
