package deadletter

import (
	"time"

	"tracker/pkg/exception"

	"github.com/yanun0323/errors"
)

const (
	defaultSegmentMaxBytes int64 = 64 << 20
	defaultQueueSize             = 1024
	defaultBufferSize            = 64 * 1024
	defaultFilePrefix            = "deadletter"
	defaultFlushInterval         = time.Second

	fileSuffix = ".dlq"
)

var defaultSegmentMaxDuration = time.Hour

// Config controls where and how failed writes are spilled to disk.
type Config struct {
	Dir                string
	SegmentMaxBytes    int64
	SegmentMaxDuration time.Duration
	QueueSize          int
	BufferSize         int
	FilePrefix         string
	FlushInterval      time.Duration
}

// DefaultConfig returns the baseline configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		SegmentMaxBytes:    defaultSegmentMaxBytes,
		SegmentMaxDuration: defaultSegmentMaxDuration,
		QueueSize:          defaultQueueSize,
		BufferSize:         defaultBufferSize,
		FilePrefix:         defaultFilePrefix,
		FlushInterval:      defaultFlushInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = defaultFlushInterval
	}
	return c
}

func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "deadletter: Dir is empty")
	}
	if c.SegmentMaxBytes <= 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "deadletter: SegmentMaxBytes must be > 0")
	}
	if c.QueueSize <= 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "deadletter: QueueSize must be > 0")
	}
	if c.BufferSize <= 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "deadletter: BufferSize must be > 0")
	}
	if c.FlushInterval < 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "deadletter: FlushInterval must be >= 0")
	}
	return nil
}
