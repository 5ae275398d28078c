package config

import (
	"time"

	"github.com/fieldlab/arena-server/internal/core"
)

// ChannelSettings configures the single channel this process hosts by
// default. More channels can be created at runtime through the admin API.
type ChannelSettings struct {
	Name      string   `mapstructure:"name" yaml:"name"`
	Group     string   `mapstructure:"group" yaml:"group"`
	MaxRooms  int      `mapstructure:"max_rooms" yaml:"max_rooms"`
	EntryRoom string   `mapstructure:"entry_room" yaml:"entry_room"`
	ACM       core.ACM `mapstructure:"acm" yaml:"acm"`
}

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
	LogConsole bool   `mapstructure:"log_console" yaml:"log_console"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	Channel ChannelSettings     `mapstructure:"channel" yaml:"channel"`
	Games   map[string][]string `mapstructure:"games" yaml:"games"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogConsole:        true,
		DatabasePath:      "arena.db",
		JWTIssuer:         "arena-server",
		JWTAudience:       "arena-clients",
		JWTTTL:            24 * time.Hour,
		Channel: ChannelSettings{
			Name:      "arena",
			Group:     "arena",
			EntryRoom: "waiting",
			ACM: core.ACM{
				PlayerConnect:    true,
				PlayerDisconnect: true,
				StageUpdate:      true,
			},
		},
	}
}
