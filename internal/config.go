package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=8080"`
	HealthPort           int           `env:"HEALTH_PORT,default=9090"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	CommandBufferSize    int           `env:"COMMAND_BUFFER_SIZE,default=1024"`
	OutboundBufferSize   int           `env:"OUTBOUND_BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s"`
	QueueWarnPercent     int           `env:"QUEUE_WARN_PERCENT,default=80"`
	MinMessageLength     int           `env:"MIN_MESSAGE_LENGTH,default=3"`
	ModerationEnabled    bool          `env:"MODERATION_ENABLED,default=false"`
	CharReplacement      string        `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
	ArgonMemoryKB        uint32        `env:"ARGON_MEMORY_KB,default=65536"`
	ArgonIterations      uint32        `env:"ARGON_ITERATIONS,default=3"`
}

// LoadConfig reads an optional .env file then the process environment.
// Variables already set in the environment win over the file.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// A missing file is fine, everything has a default
		_ = godotenv.Load(f)
	}

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if config.MinMessageLength < 1 {
		return Config{}, fmt.Errorf("MIN_MESSAGE_LENGTH must be positive, got %d", config.MinMessageLength)
	}
	if config.CommandBufferSize < 1 || config.OutboundBufferSize < 1 || config.ConnectionBufferSize < 1 {
		return Config{}, fmt.Errorf("buffer sizes must be positive")
	}
	return config, nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
