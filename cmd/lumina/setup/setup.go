// Package setup resolves the configuration, logger and server client shared
// by lumina commands.
package setup

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/config"
	"github.com/papercomputeco/lumina/pkg/eventstream"
	"github.com/papercomputeco/lumina/pkg/eventstream/kafka"
	"github.com/papercomputeco/lumina/pkg/eventstream/nop"
	"github.com/papercomputeco/lumina/pkg/logger"
)

// Persistent flags registered by the root command.
const (
	FlagConfigDir = "config-dir"
	FlagDebug     = "debug"
	FlagLogFile   = "log-file"
)

// Flags is the lumina flag registry.
var Flags = config.FlagSet{
	config.FlagAPITarget: {
		Name:        "api-target",
		Shorthand:   "a",
		ViperKey:    "client.api_target",
		Description: "Inference server URL",
	},
	config.FlagModel: {
		Name:        "model",
		Shorthand:   "m",
		ViperKey:    "chat.model",
		Description: "Model to chat with (default: the model loaded on the server)",
	},
	config.FlagTitleModel: {
		Name:        "title-model",
		ViperKey:    "chat.title_model",
		Description: "Model used to title new chats (default: the chat model)",
	},
	config.FlagTemperature: {
		Name:        "temperature",
		Shorthand:   "t",
		ViperKey:    "chat.temperature",
		Description: "Sampling temperature, 0 to 2 (default: server default)",
	},
	config.FlagMaxTokens: {
		Name:        "max-tokens",
		ViperKey:    "chat.max_tokens",
		Description: "Maximum tokens per reply, 0 for the server default",
	},
	config.FlagTopP: {
		Name:        "top-p",
		ViperKey:    "chat.top_p",
		Description: "Nucleus sampling probability, 0 to 1 (default: server default)",
	},
	config.FlagTimeout: {
		Name:        "timeout",
		ViperKey:    "chat.timeout",
		Description: "Maximum duration of a single exchange, 0 for none",
	},
	config.FlagKafkaBrokers: {
		Name:        "kafka-brokers",
		ViperKey:    "events.kafka_brokers",
		Description: "Comma separated Kafka brokers to publish exchange events to",
	},
	config.FlagKafkaTopic: {
		Name:        "kafka-topic",
		ViperKey:    "events.kafka_topic",
		Description: "Kafka topic for exchange events",
	},
}

// ErrNoModel is returned when no model is configured and none is loaded.
var ErrNoModel = errors.New(`no model loaded: pass --model, set chat.model, or run "lumina models load <model>"`)

// Env is the resolved environment of a command.
type Env struct {
	Config   *config.Config
	Configer *config.Configer
	Logger   *zap.Logger
	Client   *client.Client

	logFile *os.File
}

// Load resolves configuration for cmd with flag > env > file > default
// precedence. registryKeys names the registry flags cmd registered on top of
// the persistent --api-target.
func Load(cmd *cobra.Command, registryKeys []string, opts ...client.Option) (*Env, error) {
	configDir, _ := cmd.Flags().GetString(FlagConfigDir)
	debug, _ := cmd.Flags().GetBool(FlagDebug)
	logPath, _ := cmd.Flags().GetString(FlagLogFile)

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, Flags, append([]string{config.FlagAPITarget}, registryKeys...))

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	env := &Env{Config: cfg, Configer: cfger}
	env.Logger, env.logFile, err = newLogger(debug, logPath)
	if err != nil {
		return nil, err
	}

	clientOpts := append([]client.Option{client.WithLogger(env.Logger)}, opts...)
	env.Client, err = client.New(cfg.Client.APITarget, clientOpts...)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Logger.Debug("environment loaded",
		zap.String("api_target", env.Client.BaseURL()),
		zap.String("config", cfger.GetTarget()),
	)

	return env, nil
}

// newLogger returns the console logger, teed into a JSON log file at Debug
// when path is set.
func newLogger(debug bool, path string) (*zap.Logger, *os.File, error) {
	console := logger.NewLogger(debug)
	if path == "" {
		return console, nil, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithJSON(true),
		logger.WithDebug(true),
		logger.WithCaller(true),
		logger.WithWriter(f),
	)
	return logger.Multi(console, file), f, nil
}

// Close flushes the logger and closes the log file.
func (e *Env) Close() {
	_ = e.Logger.Sync()
	if e.logFile != nil {
		_ = e.logFile.Close()
	}
}

// Publisher returns the Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func (e *Env) Publisher() (eventstream.Publisher, error) {
	brokers := e.Config.Events.Brokers()
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   e.Config.Events.KafkaTopic,
	}, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	return p, nil
}

// ResolveModel returns model, or the model loaded on the server when model
// is empty.
func (e *Env) ResolveModel(ctx context.Context, model string) (string, error) {
	if model != "" {
		return model, nil
	}

	status, err := e.Client.ModelStatus(ctx)
	if err != nil {
		return "", fmt.Errorf("getting model status: %w", err)
	}
	if !status.Loaded || status.CurrentModel == nil || *status.CurrentModel == "" {
		return "", ErrNoModel
	}
	return *status.CurrentModel, nil
}

// Run loads the environment for cmd, runs fn with the command context and
// closes the environment afterwards.
func Run(cmd *cobra.Command, registryKeys []string, fn func(ctx context.Context, env *Env) error) error {
	env, err := Load(cmd, registryKeys)
	if err != nil {
		return err
	}
	defer env.Close()

	return fn(cmd.Context(), env)
}

// Describe turns err into a message fit for the terminal, hinting at the
// server address when it could not be reached.
func (e *Env) Describe(err error) error {
	if client.IsTransport(err) {
		return fmt.Errorf("%w\n\nIs the inference server running at %s?", err, e.Client.BaseURL())
	}
	return err
}
