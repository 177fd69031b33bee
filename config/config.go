package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/layer-3/portal/core"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Load reads configuration from defaults, an optional config file, the .env
// file and PORTAL_* environment variables, in increasing precedence.
func Load(configFile string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	setupViperConfig(v, configFile)
	bindEnvironmentVariables(v)

	config, err := readAndUnmarshalConfig(v)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warnln("Failed to load .env file")
	}
}

func setupViperConfig(v *viper.Viper, configFile string) {
	v.SetConfigName("portal")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "portal"))
	}

	if len(configFile) > 0 {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func bindEnvironmentVariables(v *viper.Viper) {
	// API_URL is the name build pipelines already use for the origin
	_ = v.BindEnv("api.origin", "PORTAL_API_ORIGIN", "API_URL")
	_ = v.BindEnv("api.dev_origin", "PORTAL_API_DEV_ORIGIN")
	_ = v.BindEnv("mode", "PORTAL_MODE")

	_ = v.BindEnv("redis.url", "PORTAL_REDIS_URL", "REDIS_URL")

	_ = v.BindEnv("server.secret", "PORTAL_SERVER_SECRET", "SECRET_KEY")
	_ = v.BindEnv("server.environment", "PORTAL_SERVER_ENVIRONMENT", "ENVIRONMENT")

	_ = v.BindEnv("logging.level", "PORTAL_LOGGING_LEVEL")
	_ = v.BindEnv("logging.format", "PORTAL_LOGGING_FORMAT")
}

func readAndUnmarshalConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	logrus.WithField("file", v.ConfigFileUsed()).Debugln("Loaded configuration")
	return &config, nil
}

// Validate checks the choices that can only be made from a fixed set
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeProduction, ModeDevelopment:
	default:
		return fmt.Errorf("%w: unknown mode %q", core.ErrConfiguration, c.Mode)
	}

	switch c.Store.Backend {
	case "file", "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("%w: redis store needs redis.url", core.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", core.ErrConfiguration, c.Store.Backend)
	}

	switch c.Events.Backend {
	case "none", "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("%w: redis events need redis.url", core.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown events backend %q", core.ErrConfiguration, c.Events.Backend)
	}

	return nil
}

// SetupLogging applies the logging section to the standard logrus logger
func SetupLogging(config *Config) error {
	level, err := logrus.ParseLevel(config.Logging.Level)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}
	logrus.SetLevel(level)

	switch strings.ToLower(config.Logging.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logrus.WithField("format", config.Logging.Format).Warnln("Unknown log format")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeProduction)

	// API defaults
	v.SetDefault("api.origin", "")
	v.SetDefault("api.dev_origin", "http://127.0.0.1:8000")
	v.SetDefault("api.prefix", "/api")
	v.SetDefault("api.timeout", "30s")

	// Session defaults
	v.SetDefault("session.verify_before_use", true)
	v.SetDefault("session.refresh", true)
	v.SetDefault("session.verify_endpoint", "/hello")

	// Credential store defaults
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.dir", defaultStoreDir())
	// empty means one profile per API host
	v.SetDefault("store.profile", "")
	v.SetDefault("store.key", "jwt")

	v.SetDefault("redis.url", "")

	v.SetDefault("events.backend", "none")
	v.SetDefault("events.topic", "portal.session")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Development server defaults
	v.SetDefault("server.listen", "127.0.0.1:8000")
	v.SetDefault("server.secret", "")
	v.SetDefault("server.access_ttl", "15m")
	v.SetDefault("server.refresh_ttl", "168h")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.users", map[string]string{"alice": "secret"})
}

func defaultStoreDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "portal")
}
