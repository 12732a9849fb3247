package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"tracker/internal/obs"
	"tracker/pkg/exception"
	"tracker/pkg/websocket"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// State is the connection state of the supervisor.
type State uint32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// SessionRunner runs one connection to completion.
type SessionRunner interface {
	Run(ctx context.Context, conn websocket.Conn) Outcome
}

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration)

// SupervisorConfig configures the reconnect loop.
type SupervisorConfig struct {
	Dialer        websocket.Dialer
	Session       SessionRunner
	Backoff       websocket.Backoff
	Sleep         Sleeper
	Metrics       *obs.Metrics
	OnStateChange func(State)
}

// Supervisor keeps a session running, redialing after every disconnect.
type Supervisor struct {
	cfg   SupervisorConfig
	state atomic.Uint32
}

// NewSupervisor validates cfg. A zero Backoff becomes the fixed reconnect delay.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Dialer == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "supervisor dialer")
	}
	if cfg.Session == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "supervisor session")
	}
	if cfg.Backoff == (websocket.Backoff{}) {
		cfg.Backoff = websocket.FixedBackoff(websocket.DefaultReconnectDelay)
	}
	if cfg.Sleep == nil {
		cfg.Sleep = SleepContext
	}
	return &Supervisor{cfg: cfg}, nil
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Run loops until ctx is cancelled and then returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateDisconnected)

	attempt := 0
	for ctx.Err() == nil {
		s.setState(StateConnecting)
		conn, err := s.cfg.Dialer.Dial(ctx)
		if err != nil {
			s.setState(StateDisconnected)
			if ctx.Err() != nil {
				return nil
			}
			s.cfg.Metrics.IncDialFailure()
			attempt++
			wait := s.cfg.Backoff.Next(attempt)
			logs.Errorf("dial feed (attempt %d), retry in %s, err: %+v", attempt, wait, err)
			s.cfg.Sleep(ctx, wait)
			continue
		}

		attempt = 0
		s.setState(StateConnected)
		s.cfg.Metrics.IncSession()
		logs.Info("feed connected")

		out := s.cfg.Session.Run(ctx, conn)
		_ = conn.Close(websocket.CloseNormal, "session_end")
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil
		}

		attempt++
		wait := s.cfg.Backoff.Next(attempt)
		if out.Err != nil {
			logs.Errorf("session ended (%s) after %d messages, reconnect in %s, err: %+v", out.Reason, out.Received, wait, out.Err)
		} else {
			logs.Infof("session ended (%s) after %d messages, reconnect in %s", out.Reason, out.Received, wait)
		}
		s.cfg.Sleep(ctx, wait)
	}
	return nil
}

func (s *Supervisor) setState(next State) {
	prev := State(s.state.Swap(uint32(next)))
	if prev != next && s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(next)
	}
}

// SleepContext blocks for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
