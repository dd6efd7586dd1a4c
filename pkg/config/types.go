package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent lumina configuration stored as config.toml
// in the .lumina/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Client  ClientConfig  `toml:"client"`
	Chat    ChatConfig    `toml:"chat"`
	Session SessionConfig `toml:"session"`
	Events  EventsConfig  `toml:"events"`
}

// ClientConfig holds settings for connecting to the inference server.
// Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// ChatConfig holds the model and sampling settings used by "lumina chat".
type ChatConfig struct {
	Model      string `toml:"model,omitempty"`
	TitleModel string `toml:"title_model,omitempty"`

	// Temperature and TopP are pointers so an explicit 0 survives a round trip.
	Temperature *float64 `toml:"temperature,omitempty"`
	TopP        *float64 `toml:"top_p,omitempty"`

	// MaxTokens of 0 leaves the limit to the server.
	MaxTokens uint `toml:"max_tokens,omitempty"`

	// Timeout bounds a single exchange, as a Go duration string ("5m").
	Timeout string `toml:"timeout,omitempty"`
}

// SessionConfig remembers where the last chat session left off.
type SessionConfig struct {
	LastAgentID string `toml:"last_agent_id,omitempty"`
	LastChatID  string `toml:"last_chat_id,omitempty"`
}

// EventsConfig holds exchange event publishing settings.
// Publishing is disabled while KafkaBrokers is empty.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// Brokers splits the comma separated broker list, dropping empty entries.
func (e EventsConfig) Brokers() []string {
	return SplitBrokers(e.KafkaBrokers)
}

// SplitBrokers splits a comma separated broker list, dropping empty entries.
func SplitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// TimeoutDuration parses Timeout. An empty or zero timeout returns 0.
func (c ChatConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid chat.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid chat.timeout: %s is negative", c.Timeout)
	}
	return d, nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"chat.model": {
		get: func(c *Config) string { return c.Chat.Model },
		set: func(c *Config, v string) error { c.Chat.Model = v; return nil },
	},
	"chat.title_model": {
		get: func(c *Config) string { return c.Chat.TitleModel },
		set: func(c *Config, v string) error { c.Chat.TitleModel = v; return nil },
	},
	"chat.temperature": {
		get: func(c *Config) string { return formatFloat(c.Chat.Temperature) },
		set: func(c *Config, v string) error {
			f, err := parseFloat("chat.temperature", v, 0, 2)
			if err != nil {
				return err
			}
			c.Chat.Temperature = f
			return nil
		},
	},
	"chat.max_tokens": {
		get: func(c *Config) string {
			if c.Chat.MaxTokens == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Chat.MaxTokens), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for chat.max_tokens: %w", err)
			}
			c.Chat.MaxTokens = uint(n)
			return nil
		},
	},
	"chat.top_p": {
		get: func(c *Config) string { return formatFloat(c.Chat.TopP) },
		set: func(c *Config, v string) error {
			f, err := parseFloat("chat.top_p", v, 0, 1)
			if err != nil {
				return err
			}
			c.Chat.TopP = f
			return nil
		},
	},
	"chat.timeout": {
		get: func(c *Config) string { return c.Chat.Timeout },
		set: func(c *Config, v string) error {
			prev := c.Chat.Timeout
			c.Chat.Timeout = v
			if _, err := c.Chat.TimeoutDuration(); err != nil {
				c.Chat.Timeout = prev
				return err
			}
			return nil
		},
	},
	"session.last_agent_id": {
		get: func(c *Config) string { return c.Session.LastAgentID },
		set: func(c *Config, v string) error { c.Session.LastAgentID = v; return nil },
	},
	"session.last_chat_id": {
		get: func(c *Config) string { return c.Session.LastChatID },
		set: func(c *Config, v string) error { c.Session.LastChatID = v; return nil },
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// parseFloat parses v into a bounded float. An empty value clears the setting.
func parseFloat(key, v string, lo, hi float64) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if f < lo || f > hi {
		return nil, fmt.Errorf("invalid value for %s: %v is outside [%v, %v]", key, f, lo, hi)
	}
	return &f, nil
}

// Float64 returns a pointer to f.
func Float64(f float64) *float64 {
	return &f
}
