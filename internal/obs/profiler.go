package obs

import (
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// ProfilerConfig configures continuous profiling. An empty ServerAddress disables it.
type ProfilerConfig struct {
	ApplicationName string
	ServerAddress   string
	Tags            map[string]string
}

// StartProfiler starts pyroscope when configured. The returned stop func is never nil.
func StartProfiler(cfg ProfilerConfig) (func(), error) {
	if cfg.ServerAddress == "" {
		return func() {}, nil
	}
	name := cfg.ApplicationName
	if name == "" {
		name = "tracker"
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: name,
		ServerAddress:   cfg.ServerAddress,
		Tags:            cfg.Tags,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return func() {}, errors.Wrap(err, "start pyroscope")
	}
	logs.Infof("profiler started, server: %s", cfg.ServerAddress)
	return func() {
		_ = profiler.Stop()
	}, nil
}

// profilerLogger routes pyroscope chatter to debug level.
type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Debugf(format, args...) }
func (profilerLogger) Debugf(format string, args ...interface{}) { logs.Debugf(format, args...) }
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
