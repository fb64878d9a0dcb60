package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlops-eval/typedb-driver/src/config"
	"github.com/mlops-eval/typedb-driver/src/connection"
	"github.com/mlops-eval/typedb-driver/src/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// GlobalFlags holds the flags shared by every command
type GlobalFlags struct {
	Address  string
	LogLevel string
	Timeout  time.Duration
}

var globalFlags GlobalFlags

var rootCmd = &cobra.Command{
	Use:           "typedb",
	Short:         "Command line client for a TypeDB server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if globalFlags.Address != "" {
			return os.Setenv("TYPEDB_ADDRESS", globalFlags.Address)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Address, "address", "", "server address (default: $TYPEDB_ADDRESS)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "", "log level (default: $LOG_LEVEL or info)")
	rootCmd.PersistentFlags().DurationVar(&globalFlags.Timeout, "timeout", 30*time.Second, "timeout of the whole command")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(databasesCmd)
	rootCmd.AddCommand(queryCmd)
}

func loadConfig() (config.GlobalConfig, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return config.GlobalConfig{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg config.Interface) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	levelName := cfg.GetLogLevel()
	if globalFlags.LogLevel != "" {
		levelName = globalFlags.LogLevel
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		logger.WithField("level", levelName).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// serveMetrics exposes the driver metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithField("error", err.Error()).Error("Metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.WithField("address", addr).Info("Serving metrics")
}

// withClient connects to the server, runs fn and closes the client. The
// context passed to fn is cancelled on SIGINT or SIGTERM.
func withClient(fn func(ctx context.Context, client *connection.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, globalFlags.Timeout)
	defer cancel()

	registry := prometheus.NewRegistry()
	if addr := cfg.GetMetricsAddr(); addr != "" {
		serveMetrics(ctx, addr, registry, logger)
	}

	client, err := connection.NewClient(cfg, logger, stream.NewMetrics(registry))
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.WithField("error", err.Error()).Warn("Failed to close client")
		}
	}()

	return fn(ctx, client)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
