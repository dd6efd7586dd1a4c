package config

const (
	defaultClientAPITarget = "http://localhost:6999"

	defaultChatTimeout = "10m"

	defaultKafkaTopic = "lumina.exchanges"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
//
// chat.model is left empty: lumina then uses whichever model the server
// reports as loaded. chat.title_model falls back to the chat model.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Chat: ChatConfig{
			Timeout: defaultChatTimeout,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
