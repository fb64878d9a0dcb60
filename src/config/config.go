package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DEFAULT_LOG_LEVEL         = "info"
	DEFAULT_BATCH_SIZE        = 50
	DEFAULT_DISPATCH_INTERVAL = 3 * time.Millisecond
	DEFAULT_PULSE_INTERVAL    = 5 * time.Second
	DEFAULT_QUEUE_WARN_DEPTH  = 1000
)

// Interface is what the driver reads from its configuration.
type Interface interface {
	GetLogLevel() string
	GetMetricsAddr() string
	GetGrpcConfig() *GrpcConfig
	GetStreamConfig() *StreamConfig
}

type GlobalConfig struct {
	logLevel     string
	metricsAddr  string
	grpcConfig   *GrpcConfig
	streamConfig *StreamConfig
}

type GrpcConfig struct {
	serverAddr string
	batchSize  int32
}

// StreamConfig holds the timings of the transaction multiplexer and the
// session keep-alive.
type StreamConfig struct {
	dispatchInterval time.Duration
	pulseInterval    time.Duration
	queueWarnDepth   int
}

// NewConfig reads the configuration from the environment, after loading a
// .env file when one exists.
func NewConfig() (GlobalConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return GlobalConfig{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	serverAddr := os.Getenv("TYPEDB_ADDRESS")
	if serverAddr == "" {
		return GlobalConfig{}, fmt.Errorf("TYPEDB_ADDRESS environment variable is required")
	}

	cfg := DefaultConfig(serverAddr)

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.logLevel = logLevel
	}
	cfg.metricsAddr = os.Getenv("METRICS_ADDR")

	if batchSizeStr := os.Getenv("BATCH_SIZE"); batchSizeStr != "" {
		batchSize, err := strconv.ParseInt(batchSizeStr, 10, 32)
		if err != nil {
			return GlobalConfig{}, fmt.Errorf("BATCH_SIZE must be a valid integer: %w", err)
		}
		if batchSize < 1 {
			return GlobalConfig{}, fmt.Errorf("BATCH_SIZE must be at least 1, was %d", batchSize)
		}
		cfg.grpcConfig.batchSize = int32(batchSize)
	}

	dispatchInterval, err := durationMillis("DISPATCH_INTERVAL_MS", DEFAULT_DISPATCH_INTERVAL)
	if err != nil {
		return GlobalConfig{}, err
	}
	cfg.streamConfig.dispatchInterval = dispatchInterval

	pulseInterval, err := durationMillis("SESSION_PULSE_INTERVAL_MS", DEFAULT_PULSE_INTERVAL)
	if err != nil {
		return GlobalConfig{}, err
	}
	cfg.streamConfig.pulseInterval = pulseInterval

	if depthStr := os.Getenv("QUEUE_WARN_DEPTH"); depthStr != "" {
		depth, err := strconv.Atoi(depthStr)
		if err != nil {
			return GlobalConfig{}, fmt.Errorf("QUEUE_WARN_DEPTH must be a valid integer: %w", err)
		}
		cfg.streamConfig.queueWarnDepth = depth
	}

	return cfg, nil
}

// DefaultConfig returns the default configuration for a server at
// serverAddr.
func DefaultConfig(serverAddr string) GlobalConfig {
	return GlobalConfig{
		logLevel:     DEFAULT_LOG_LEVEL,
		grpcConfig:   NewGrpcConfig(serverAddr, DEFAULT_BATCH_SIZE),
		streamConfig: NewStreamConfig(DEFAULT_DISPATCH_INTERVAL, DEFAULT_PULSE_INTERVAL, DEFAULT_QUEUE_WARN_DEPTH),
	}
}

func NewGrpcConfig(serverAddr string, batchSize int32) *GrpcConfig {
	return &GrpcConfig{serverAddr: serverAddr, batchSize: batchSize}
}

func NewStreamConfig(dispatchInterval, pulseInterval time.Duration, queueWarnDepth int) *StreamConfig {
	return &StreamConfig{
		dispatchInterval: dispatchInterval,
		pulseInterval:    pulseInterval,
		queueWarnDepth:   queueWarnDepth,
	}
}

func durationMillis(name string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", name, err)
	}
	if ms < 1 {
		return 0, fmt.Errorf("%s must be at least 1, was %d", name, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// GlobalConfig getters
func (c GlobalConfig) GetLogLevel() string {
	return c.logLevel
}

func (c GlobalConfig) GetMetricsAddr() string {
	return c.metricsAddr
}

func (c GlobalConfig) GetGrpcConfig() *GrpcConfig {
	return c.grpcConfig
}

func (c GlobalConfig) GetStreamConfig() *StreamConfig {
	return c.streamConfig
}

// GrpcConfig getters
func (g GrpcConfig) GetServerAddr() string {
	return g.serverAddr
}

func (g GrpcConfig) GetBatchSize() int32 {
	return g.batchSize
}

// StreamConfig getters
func (s StreamConfig) GetDispatchInterval() time.Duration {
	return s.dispatchInterval
}

func (s StreamConfig) GetPulseInterval() time.Duration {
	return s.pulseInterval
}

func (s StreamConfig) GetQueueWarnDepth() int {
	return s.queueWarnDepth
}
