package exception

import "github.com/yanun0323/errors"

// Feed errors
var (
	ErrFeedMalformedEnvelope = errors.New("feed: malformed envelope")
	ErrFeedMissingAddress    = errors.New("feed: listing without address")
	ErrFeedConnectionClosed  = errors.New("feed: connection closed")
	ErrFeedEmptyURL          = errors.New("feed: empty url")
)
