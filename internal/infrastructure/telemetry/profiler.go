package telemetry

import (
	"errors"
	"fmt"
	"os"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/config"
)

// ErrProfilerAddress is returned when profiling is on without a server address
var ErrProfilerAddress = errors.New("telemetry: pyroscope address is required when profiling is enabled")

// profileTypes covers the CPU and heap views plus goroutines, which is what
// the sync worker's fan-out is usually investigated with.
var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
}

func startProfiler(cfg config.TelemetryConfig, logger *zap.Logger) (*pyroscope.Profiler, error) {
	if cfg.PyroscopeAddress == "" {
		return nil, ErrProfilerAddress
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.PyroscopeAddress,
		Logger:          pyroscopeLogger{logger: logger.Named("pyroscope")},
		Tags:            profileTags(),
		ProfileTypes:    profileTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	logger.Info("Pyroscope profiler started", zap.String("server_address", cfg.PyroscopeAddress))
	return profiler, nil
}

func profileTags() map[string]string {
	tags := map[string]string{}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		tags["hostname"] = hostname
	}
	if pod := os.Getenv("POD_NAME"); pod != "" {
		tags["pod"] = pod
	}
	return tags
}

// pyroscopeLogger adapts zap to pyroscope.Logger
type pyroscopeLogger struct {
	logger *zap.Logger
}

func (l pyroscopeLogger) Infof(format string, args ...any) {
	l.logger.Sugar().Infof(format, args...)
}

func (l pyroscopeLogger) Debugf(format string, args ...any) {
	l.logger.Sugar().Debugf(format, args...)
}

func (l pyroscopeLogger) Errorf(format string, args ...any) {
	l.logger.Sugar().Errorf(format, args...)
}
