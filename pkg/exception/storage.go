package exception

import "github.com/yanun0323/errors"

// Storage errors
var (
	ErrStorageUnknownBackend = errors.New("storage: unknown backend")
	ErrStorageEmptyKey       = errors.New("storage: empty key")
	ErrStorageEmptyNamespace = errors.New("storage: empty namespace")
	ErrStorageClosed         = errors.New("storage: closed")
)

// Dead-letter errors
var (
	ErrDeadLetterQueueFull   = errors.New("deadletter: queue full")
	ErrDeadLetterClosed      = errors.New("deadletter: writer closed")
	ErrDeadLetterNotStarted  = errors.New("deadletter: writer not started")
	ErrDeadLetterTooLarge    = errors.New("deadletter: record too large")
	ErrDeadLetterBadMagic    = errors.New("deadletter: invalid magic")
	ErrDeadLetterBadVersion  = errors.New("deadletter: unsupported record version")
	ErrDeadLetterBadChecksum = errors.New("deadletter: checksum mismatch")
)
