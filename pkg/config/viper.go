package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/lumina/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the LUMINA_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (LUMINA_CLIENT_API_TARGET, LUMINA_CHAT_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: LUMINA_CHAT_MODEL, LUMINA_EVENTS_KAFKA_BROKERS, etc.
	v.SetEnvPrefix("LUMINA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper resolves the effective Config from v, honoring the full
// flag > env > file > default precedence chain.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Version: v.GetInt("version"),
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
		Chat: ChatConfig{
			Model:      v.GetString("chat.model"),
			TitleModel: v.GetString("chat.title_model"),
			MaxTokens:  v.GetUint("chat.max_tokens"),
			Timeout:    v.GetString("chat.timeout"),
		},
		Session: SessionConfig{
			LastAgentID: v.GetString("session.last_agent_id"),
			LastChatID:  v.GetString("session.last_chat_id"),
		},
		Events: EventsConfig{
			KafkaBrokers: v.GetString("events.kafka_brokers"),
			KafkaTopic:   v.GetString("events.kafka_topic"),
		},
	}

	var err error
	if cfg.Chat.Temperature, err = parseFloat("chat.temperature", v.GetString("chat.temperature"), 0, 2); err != nil {
		return nil, err
	}
	if cfg.Chat.TopP, err = parseFloat("chat.top_p", v.GetString("chat.top_p"), 0, 1); err != nil {
		return nil, err
	}

	if _, err := cfg.Chat.TimeoutDuration(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)

	// Chat
	v.SetDefault("chat.model", d.Chat.Model)
	v.SetDefault("chat.title_model", d.Chat.TitleModel)
	v.SetDefault("chat.temperature", formatFloat(d.Chat.Temperature))
	v.SetDefault("chat.max_tokens", d.Chat.MaxTokens)
	v.SetDefault("chat.top_p", formatFloat(d.Chat.TopP))
	v.SetDefault("chat.timeout", d.Chat.Timeout)

	// Session
	v.SetDefault("session.last_agent_id", d.Session.LastAgentID)
	v.SetDefault("session.last_chat_id", d.Session.LastChatID)

	// Events
	v.SetDefault("events.kafka_brokers", d.Events.KafkaBrokers)
	v.SetDefault("events.kafka_topic", d.Events.KafkaTopic)
}
