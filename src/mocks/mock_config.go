package mocks

import (
	"time"

	"github.com/mlops-eval/typedb-driver/src/config"
)

// MockConfig is a simple implementation of config.Interface for testing
type MockConfig struct {
	ServerAddr       string
	DispatchInterval time.Duration
	PulseInterval    time.Duration
	QueueWarnDepth   int
	BatchSize        int32
}

func (m *MockConfig) GetLogLevel() string {
	return "info"
}

func (m *MockConfig) GetMetricsAddr() string {
	return ""
}

func (m *MockConfig) GetGrpcConfig() *config.GrpcConfig {
	batchSize := int32(config.DEFAULT_BATCH_SIZE)
	if m.BatchSize > 0 {
		batchSize = m.BatchSize
	}
	return config.NewGrpcConfig(m.ServerAddr, batchSize)
}

func (m *MockConfig) GetStreamConfig() *config.StreamConfig {
	def := config.DefaultConfig(m.ServerAddr).GetStreamConfig()
	dispatch, pulse, depth := def.GetDispatchInterval(), def.GetPulseInterval(), def.GetQueueWarnDepth()
	if m.DispatchInterval > 0 {
		dispatch = m.DispatchInterval
	}
	if m.PulseInterval > 0 {
		pulse = m.PulseInterval
	}
	if m.QueueWarnDepth > 0 {
		depth = m.QueueWarnDepth
	}
	return config.NewStreamConfig(dispatch, pulse, depth)
}
