package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Game      GameConfig      `mapstructure:"game"`
	Cards     CardsConfig     `mapstructure:"cards"`
	Security  SecurityConfig  `mapstructure:"security"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress string        `mapstructure:"http_address"`
	RPCAddress  string        `mapstructure:"rpc_address"`
	GRPCAddress string        `mapstructure:"grpc_address"`
	PublicURL   string        `mapstructure:"public_url"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	Heartbeat   time.Duration `mapstructure:"heartbeat"`
	SendBuffer  int           `mapstructure:"send_buffer"`
}

type GameConfig struct {
	WinScore          int           `mapstructure:"win_score"`
	HandSize          int           `mapstructure:"hand_size"`
	JudgeRestartDelay time.Duration `mapstructure:"judge_restart_delay"`
	EmptyRoomGrace    time.Duration `mapstructure:"empty_room_grace"`
	MaxRooms          int           `mapstructure:"max_rooms"`
}

type CardsConfig struct {
	Path string `mapstructure:"path"`
}

type SecurityConfig struct {
	Argon2 Argon2Config `mapstructure:"argon2"`
}

// Argon2Config holds the parameters used to hash room passwords.
type Argon2Config struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
}

type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":3000")
	v.SetDefault("server.rpc_address", "127.0.0.1:3001")
	v.SetDefault("server.grpc_address", "127.0.0.1:3002")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_limit", 4096)
	v.SetDefault("server.heartbeat", 30*time.Second)
	v.SetDefault("server.send_buffer", 32)

	v.SetDefault("game.win_score", 10)
	v.SetDefault("game.hand_size", 5)
	v.SetDefault("game.judge_restart_delay", time.Second)
	v.SetDefault("game.empty_room_grace", 30*time.Second)
	v.SetDefault("game.max_rooms", 10000)

	v.SetDefault("cards.path", "cards.json")

	v.SetDefault("security.argon2.memory", 19*1024)
	v.SetDefault("security.argon2.iterations", 2)
	v.SetDefault("security.argon2.parallelism", 1)

	v.SetDefault("ratelimit.per_second", 10)
	v.SetDefault("ratelimit.burst", 20)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "cardserver")

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path (a directory) or, when file is set, that
// exact file. A missing config.yaml is not an error: defaults and CARDSERVER_*
// environment variables still apply.
func LoadConfig(path, file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CARDSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(path)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Game.WinScore < 1 {
		return fmt.Errorf("game.win_score must be positive, got %d", c.Game.WinScore)
	}
	if c.Game.HandSize < 1 {
		return fmt.Errorf("game.hand_size must be positive, got %d", c.Game.HandSize)
	}
	if c.Game.JudgeRestartDelay < 0 || c.Game.EmptyRoomGrace < 0 {
		return errors.New("game delays must not be negative")
	}
	switch c.Database.Driver {
	case "memory", "gorm", "postgres":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst < 1 {
		return errors.New("ratelimit.per_second and ratelimit.burst must be positive")
	}
	return nil
}
