package config

import "time"

const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Config is the full portal configuration
type Config struct {
	Mode    string        `mapstructure:"mode"` // production or development
	API     APIConfig     `mapstructure:"api"`
	Session SessionConfig `mapstructure:"session"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Events  EventsConfig  `mapstructure:"events"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// IsDevelopment reports whether the development origin should be used
func (c *Config) IsDevelopment() bool {
	return c.Mode == ModeDevelopment
}

// APIConfig locates the backend
type APIConfig struct {
	Origin    string        `mapstructure:"origin"`     // Absolute origin used in production
	DevOrigin string        `mapstructure:"dev_origin"` // Origin used in development mode
	Prefix    string        `mapstructure:"prefix"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	VerifyBeforeUse bool   `mapstructure:"verify_before_use"`
	Refresh         bool   `mapstructure:"refresh"`
	VerifyEndpoint  string `mapstructure:"verify_endpoint"`
}

// StoreConfig selects where the access token is persisted
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // file, redis or memory
	Dir     string `mapstructure:"dir"`
	Profile string `mapstructure:"profile"`
	Key     string `mapstructure:"key"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// EventsConfig selects where session events go
type EventsConfig struct {
	Backend string `mapstructure:"backend"` // none, memory or redis
	Topic   string `mapstructure:"topic"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig drives the development API server
type ServerConfig struct {
	Listen      string            `mapstructure:"listen"`
	Secret      string            `mapstructure:"secret"`
	AccessTTL   time.Duration     `mapstructure:"access_ttl"`
	RefreshTTL  time.Duration     `mapstructure:"refresh_ttl"`
	Environment string            `mapstructure:"environment"`
	Users       map[string]string `mapstructure:"users"` // username to password
}
