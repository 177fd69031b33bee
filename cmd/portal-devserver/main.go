package main

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/portal/adapters/events"
	"github.com/layer-3/portal/adapters/store"
	"github.com/layer-3/portal/adapters/tokenizer"
	"github.com/layer-3/portal/config"
	"github.com/layer-3/portal/ports"
	"github.com/layer-3/portal/service"
	transport "github.com/layer-3/portal/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "portal-devserver",
	Short: "Run the reference API server",
	Long: `Run the reference API server.

It issues HS256 access tokens on POST /api/token, rotates them through an
HttpOnly refresh cookie on POST /api/refresh and guards /api/hello and
/api/predict with bearer authentication.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file (optional)")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.SetupLogging(cfg); err != nil {
		return err
	}
	log := logrus.StandardLogger()

	secret := []byte(cfg.Server.Secret)
	if len(secret) == 0 {
		log.Warnln("server.secret is not set, generating a temporary key; tokens will not survive a restart")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate secret: %w", err)
		}
	}

	var revocations ports.RevocationStore = store.NewMemoryRevocationStore()
	var publisher ports.EventPublisher = events.Discard{}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse redis URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		revocations = store.NewRedisRevocationStore(redisClient)

		if cfg.Events.Backend == "redis" {
			bus, err := events.NewRedisStreamBus(redisClient, "", events.NewLogrusAdapter(log))
			if err != nil {
				return err
			}
			defer bus.Close()
			publisher = events.NewWatermillPublisher(bus, cfg.Events.Topic)
		}
	}

	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(secret),
		revocations,
		publisher,
		service.WithAccessTTL(cfg.Server.AccessTTL),
		service.WithRefreshTTL(cfg.Server.RefreshTTL),
		service.WithLogger(log),
	)
	for name, pass := range cfg.Server.Users {
		if err := authService.AddUser(name, pass); err != nil {
			return fmt.Errorf("failed to add user %q: %w", name, err)
		}
	}

	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	router := transport.SetupRouter(authService, transport.Config{
		Prefix: cfg.API.Prefix,
		Info: transport.Info{
			AppName:     "portal",
			Version:     version,
			Environment: cfg.Server.Environment,
		},
		SecureCookie: cfg.Server.Environment == "production",
		Logger:       log,
	})

	log.WithFields(logrus.Fields{
		"listen": cfg.Server.Listen,
		"users":  len(cfg.Server.Users),
	}).Infoln("Starting API server")

	return router.Run(cfg.Server.Listen)
}

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
