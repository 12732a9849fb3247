package exception

import "github.com/yanun0323/errors"

// Sink errors
var (
	ErrSinkUnresolvedEntity = errors.New("sink: unresolved entity address")
	ErrSinkInvalidTimestamp = errors.New("sink: invalid block timestamp")
	ErrSinkSerialize        = errors.New("sink: serialize record")
	ErrSinkStore            = errors.New("sink: store write")
)
