// Package config loads petfood-agent settings from defaults, an optional YAML
// file, PETFOOD_* environment variables and command-line flags.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-go-golems/petfood-agent/pkg/inference/openai"
	"github.com/go-go-golems/petfood-agent/pkg/logging"
	"github.com/go-go-golems/petfood-agent/pkg/persistence/chatstore"
	"github.com/go-go-golems/petfood-agent/pkg/petdata"
	"github.com/go-go-golems/petfood-agent/pkg/redisstream"
	"github.com/go-go-golems/petfood-agent/pkg/session"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "PETFOOD"

const (
	ProviderOpenAI = "openai"
	ProviderEcho   = "echo"
)

// Config represents the complete petfood-agent configuration
type Config struct {
	Server  ServerConfig         `mapstructure:"server"`
	Session SessionConfig        `mapstructure:"session"`
	Engine  EngineConfig         `mapstructure:"engine"`
	PetData petdata.Settings     `mapstructure:"petdata"`
	Redis   redisstream.Settings `mapstructure:"redis"`
	Store   StoreConfig          `mapstructure:"store"`
	Events  EventsConfig         `mapstructure:"events"`
	Logging logging.Settings     `mapstructure:"logging"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	// GenerationTimeout bounds one generation (0 = no deadline)
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
}

// SessionConfig controls the session store
type SessionConfig struct {
	Shards int `mapstructure:"shards"`
	// TombstoneTTL is how long an ended session id stays refused (0 = forever)
	TombstoneTTL              time.Duration `mapstructure:"tombstone_ttl"`
	TombstoneEvictionInterval time.Duration `mapstructure:"tombstone_eviction_interval"`
}

// EngineConfig selects and configures the inference engine
type EngineConfig struct {
	// Provider is "openai" or "echo"
	Provider        string `mapstructure:"provider"`
	openai.Settings `mapstructure:",squash"`
	// EchoChunkDelay slows down the echo engine, useful for streaming demos
	EchoChunkDelay time.Duration `mapstructure:"echo_chunk_delay"`
}

// StoreConfig controls the turn transcript store
type StoreConfig struct {
	// TurnsDSN is a sqlite DSN; empty keeps transcripts in memory
	TurnsDSN string `mapstructure:"turns_dsn"`
	// MemoryTurnLimit bounds the in-memory transcript
	MemoryTurnLimit int `mapstructure:"memory_turn_limit"`
}

// EventsConfig controls the websocket lifecycle feed
type EventsConfig struct {
	WebsocketEnabled bool `mapstructure:"websocket_enabled"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8000",
			ShutdownTimeout:   30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Shards:                    session.DefaultShards,
			TombstoneTTL:              24 * time.Hour,
			TombstoneEvictionInterval: 10 * time.Minute,
		},
		Engine: EngineConfig{
			Provider: ProviderOpenAI,
			Settings: openai.Settings{
				Model:             openai.DefaultModel,
				SystemPrompt:      openai.DefaultSystemPrompt,
				MaxToolIterations: openai.DefaultMaxToolIterations,
			},
		},
		PetData: petdata.DefaultSettings(),
		Redis:   redisstream.DefaultSettings(),
		Store:   StoreConfig{MemoryTurnLimit: chatstore.DefaultMemoryTurnLimit},
		Logging: logging.DefaultSettings(),
	}
}

// SetDefaults registers defaults for every key so env variables bind to them
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("server.generation_timeout", d.Server.GenerationTimeout)

	v.SetDefault("session.shards", d.Session.Shards)
	v.SetDefault("session.tombstone_ttl", d.Session.TombstoneTTL)
	v.SetDefault("session.tombstone_eviction_interval", d.Session.TombstoneEvictionInterval)

	v.SetDefault("engine.provider", d.Engine.Provider)
	v.SetDefault("engine.model", d.Engine.Model)
	v.SetDefault("engine.base_url", d.Engine.BaseURL)
	v.SetDefault("engine.api_key", d.Engine.APIKey)
	v.SetDefault("engine.system_prompt", d.Engine.SystemPrompt)
	v.SetDefault("engine.max_tool_iterations", d.Engine.MaxToolIterations)
	v.SetDefault("engine.temperature", d.Engine.Temperature)
	v.SetDefault("engine.echo_chunk_delay", d.Engine.EchoChunkDelay)

	v.SetDefault("petdata.pets_url", d.PetData.PetsURL)
	v.SetDefault("petdata.foods_url", d.PetData.FoodsURL)
	v.SetDefault("petdata.timeout", d.PetData.Timeout)
	v.SetDefault("petdata.retry_max", d.PetData.RetryMax)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.group", d.Redis.Group)
	v.SetDefault("redis.consumer", d.Redis.Consumer)
	v.SetDefault("redis.topic", d.Redis.Topic)

	v.SetDefault("store.turns_dsn", d.Store.TurnsDSN)
	v.SetDefault("store.memory_turn_limit", d.Store.MemoryTurnLimit)
	v.SetDefault("events.websocket_enabled", d.Events.WebsocketEnabled)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.caller", d.Logging.Caller)
}

// New builds a viper instance with defaults, environment binding and, when
// configFile is non-empty, the YAML file loaded.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("engine.api_key", EnvPrefix+"_ENGINE_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, errors.Wrap(err, "bind api key env")
	}
	if err := v.BindEnv("server.addr", EnvPrefix+"_SERVER_ADDR", "PORT"); err != nil {
		return nil, errors.Wrap(err, "bind addr env")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", configFile)
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.Server.Addr = normalizeAddr(cfg.Server.Addr)
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// normalizeAddr turns a bare port such as "8000" (the PORT convention) into a
// listen address.
func normalizeAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.Contains(addr, ":") {
		return addr
	}
	if _, err := strconv.Atoi(addr); err != nil {
		return addr
	}
	return ":" + addr
}
