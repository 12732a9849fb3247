package ingest

import (
	"context"

	"tracker/internal/feed"
	"tracker/internal/obs"
	"tracker/pkg/exception"
	"tracker/pkg/websocket"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// RecordSink persists normalized transaction records.
type RecordSink interface {
	Store(ctx context.Context, record feed.Record) error
}

// Reason tells why a session ended.
type Reason uint8

const (
	// ReasonClosed means the connection was closed or a read failed.
	ReasonClosed Reason = iota
	// ReasonEnvelopeFault means an inbound frame was not a JSON object.
	ReasonEnvelopeFault
	// ReasonSendFailed means an outbound directive could not be written.
	ReasonSendFailed
	// ReasonCanceled means the caller's context was cancelled.
	ReasonCanceled
)

func (r Reason) String() string {
	switch r {
	case ReasonClosed:
		return "closed"
	case ReasonEnvelopeFault:
		return "envelope_fault"
	case ReasonSendFailed:
		return "send_failed"
	case ReasonCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Outcome describes how a session ended. Received counts inbound data frames.
type Outcome struct {
	Reason   Reason
	Err      error
	Received int
}

// SessionConfig wires a session to the shared registry and the sink.
type SessionConfig struct {
	Registry *Registry
	Batcher  feed.Batcher
	Sink     RecordSink
	Metrics  *obs.Metrics
}

// Session drives one connection: it subscribes, re-subscribes known entities
// and dispatches inbound events in arrival order.
type Session struct {
	registry *Registry
	batcher  feed.Batcher
	sink     RecordSink
	metrics  *obs.Metrics
}

// NewSession validates cfg and builds a session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Registry == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "session registry")
	}
	if cfg.Sink == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "session sink")
	}
	return &Session{
		registry: cfg.Registry,
		batcher:  feed.NewBatcher(cfg.Batcher.Size),
		sink:     cfg.Sink,
		metrics:  cfg.Metrics,
	}, nil
}

// Run blocks until conn fails, an envelope fault occurs, a send fails or ctx
// is cancelled. Cancelling ctx closes conn so a pending read returns.
func (s *Session) Run(ctx context.Context, conn websocket.Conn) Outcome {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close(websocket.CloseGoingAway, "shutdown")
	})
	defer stop()

	if err := s.send(ctx, conn, feed.NewListingRequest()); err != nil {
		return s.ended(ctx, ReasonSendFailed, err, 0)
	}

	known := s.registry.Snapshot()
	for _, req := range s.batcher.BuildRequests(known) {
		if err := s.send(ctx, conn, req); err != nil {
			return s.ended(ctx, ReasonSendFailed, err, 0)
		}
	}
	if len(known) > 0 {
		logs.Infof("resubscribed %d entities", len(known))
	}

	received := 0
	for {
		msgType, payload, err := conn.Read(ctx)
		if err != nil {
			return s.ended(ctx, ReasonClosed, err, received)
		}
		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}
		received++
		s.metrics.IncMessage()

		env, err := feed.DecodeEnvelope(payload)
		if err != nil {
			s.metrics.IncDrop(obs.DropEnvelope)
			logs.Warnf("drop envelope, err: %+v, payload: %s", err, payload)
			return s.ended(ctx, ReasonEnvelopeFault, err, received)
		}

		switch env.Type {
		case feed.TypeTokenNewListingData:
			if err := s.handleListing(ctx, conn, env.Data); err != nil {
				return s.ended(ctx, ReasonSendFailed, err, received)
			}
		case feed.TypeTxsData:
			s.handleTxs(ctx, env.Data)
		}
	}
}

// handleListing registers a newly listed entity and subscribes to its
// transactions. Only a failed send is returned.
func (s *Session) handleListing(ctx context.Context, conn websocket.Conn, data any) error {
	address, err := feed.ListingAddress(data)
	if err != nil {
		s.metrics.IncDrop(obs.DropListing)
		logs.Warnf("drop listing, err: %+v, data: %s", err, logs.Json(data))
		return nil
	}

	if !s.registry.InsertIfAbsent(address) {
		s.metrics.IncListing(true)
		return nil
	}
	s.metrics.IncListing(false)
	logs.Infof("new listing: %s", address)

	for _, req := range s.batcher.BuildRequests([]string{address}) {
		if err := s.send(ctx, conn, req); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handleTxs(ctx context.Context, data any) {
	res := Normalize(data)
	if !res.OK() {
		s.metrics.IncDrop(obs.DropNormalize)
		logs.Warnf("drop transaction (%s), err: %+v, data: %s", res.Kind, res.Err, res.Raw)
		return
	}
	if err := s.sink.Store(ctx, res.Record); err != nil {
		logs.Errorf("store transaction, err: %+v, record: %s", err, logs.Json(res.Record))
	}
}

func (s *Session) send(ctx context.Context, conn websocket.Conn, req feed.Request) error {
	payload, err := req.Encode()
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return errors.Wrapf(err, "send %s", req.Type)
	}
	if req.Type == feed.TypeSubscribeTxs {
		s.metrics.IncSubscribeRequest()
	}
	return nil
}

func (s *Session) ended(ctx context.Context, reason Reason, err error, received int) Outcome {
	if ctx.Err() != nil {
		reason = ReasonCanceled
	}
	return Outcome{Reason: reason, Err: err, Received: received}
}
