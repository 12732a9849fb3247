package websocket

import "time"

// MessageType is the frame opcode as reported by the transport.
type MessageType uint8

const (
	MessageText   MessageType = 1
	MessageBinary MessageType = 2
)

// CloseCode is sent in the close frame when a session ends.
type CloseCode uint16

const (
	CloseNormal    CloseCode = 1000
	CloseGoingAway CloseCode = 1001
)

// Backoff computes the wait before the next dial. Min == Max gives a fixed delay.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	// Jitter is a fraction of the delay in [0, 1].
	Jitter float64
}
