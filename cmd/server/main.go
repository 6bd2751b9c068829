package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"signal-sessions/configs"
	"signal-sessions/registry"
	"signal-sessions/relay"
	"signal-sessions/server"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logger = logrus.New()
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Signal session server with pre-key pools and a message relay",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is fine
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	def := configs.Default()
	flags := cmd.PersistentFlags()
	flags.String("listen", def.ListenAddr, "HTTP listen address")
	flags.Uint32("device-id", def.DeviceID, "device id used for every user")
	flags.Bool("pool", def.PoolEnabled, "serve bundles from a pre-key pool")
	flags.Int("pool-size", def.PoolSize, "bundles kept per user")
	flags.Int("min-pool-size", def.MinPoolSize, "refill when fewer bundles remain")
	flags.String("id-policy", def.IDPolicy, "pre-key id policy: random or sequential")
	flags.String("redis", def.RedisAddr, "redis address for the mailbox; in-memory when empty")
	flags.String("log-level", def.LogLevel, "logrus level")
	flags.String("log-format", def.LogFormat, "text or json")

	viper.SetEnvPrefix("signal")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		logger.Fatalf("Error binding flags: %v", err)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	return cmd
}

func loadConfig() (configs.Config, error) {
	cfg := configs.Default()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func initLog(cfg configs.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := initLog(cfg); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mailbox relay.Mailbox = relay.NewMemoryMailbox()
	if cfg.RedisAddr != "" {
		mailbox, err = relay.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		logger.Infof("Queueing offline messages in redis at %s", cfg.RedisAddr)
	}

	reg, err := registry.New(cfg, registry.WithLogger(logger))
	if err != nil {
		return err
	}
	defer reg.Close()

	s := server.NewServer(ctx, reg, mailbox, logger)
	defer s.Close()

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server running on %s (websocket at %s)", cfg.ListenAddr, configs.WebSocketPath)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error starting server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Closing server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), configs.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
