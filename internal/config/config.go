package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	// PresenceGrace is the debounce window between a disconnect and the
	// offline broadcast; reconnects inside it do not flap presence.
	PresenceGrace  time.Duration `mapstructure:"presence_grace" yaml:"presence_grace"`
	StorageTimeout time.Duration `mapstructure:"storage_timeout" yaml:"storage_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "pulse.db",
		LogLevel:          "info",
		JWTSecret:         "change-me",
		JWTIssuer:         "pulse",
		JWTAudience:       "pulse",
		JWTTTL:            24 * time.Hour,
		PresenceGrace:     5 * time.Second,
		StorageTimeout:    3 * time.Second,
	}
}
