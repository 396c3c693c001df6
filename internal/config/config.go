package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Narrator NarratorConfig
	Game     GameConfig
	Log      LogConfig
}

// ServerConfig holds HTTP/websocket listener configuration
type ServerConfig struct {
	Addr string `envconfig:"SERVER_ADDR" default:":8080"`
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// NarratorConfig holds configuration for the generative narrator client
type NarratorConfig struct {
	APIKey      string        `envconfig:"NARRATOR_API_KEY"`
	BaseURL     string        `envconfig:"NARRATOR_BASE_URL"`
	Model       string        `envconfig:"NARRATOR_MODEL" default:"gpt-4o-mini"`
	Temperature float32       `envconfig:"NARRATOR_TEMPERATURE" default:"0.7"`
	Timeout     time.Duration `envconfig:"NARRATOR_TIMEOUT" default:"120s"`
}

// GameConfig holds gameplay coordination settings
type GameConfig struct {
	// TurnTimeout is the per-actor deadline before the turn is force-advanced
	TurnTimeout time.Duration `envconfig:"TURN_TIMEOUT" default:"5m"`

	// TurnAttempts is how many failed pipeline submissions an actor gets
	// before the turn is forfeited
	TurnAttempts int `envconfig:"TURN_ATTEMPTS" default:"3"`

	// ValidationRetries bounds correction round-trips to the narrator per action
	ValidationRetries int `envconfig:"VALIDATION_RETRIES" default:"3"`

	// MaxParticipants caps the number of players in one session
	MaxParticipants int `envconfig:"MAX_PARTICIPANTS" default:"6"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
