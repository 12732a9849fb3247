package obs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
)

// DropReason classifies why an inbound message or record was not persisted.
type DropReason uint8

const (
	DropEnvelope DropReason = iota
	DropListing
	DropNormalize
	DropUnresolvedEntity
	DropInvalidTimestamp
	DropSerialize
	DropStore
	dropReasonCount
)

func (r DropReason) String() string {
	switch r {
	case DropEnvelope:
		return "envelope"
	case DropListing:
		return "listing"
	case DropNormalize:
		return "normalize"
	case DropUnresolvedEntity:
		return "unresolved_entity"
	case DropInvalidTimestamp:
		return "invalid_timestamp"
	case DropSerialize:
		return "serialize"
	case DropStore:
		return "store"
	default:
		return "unknown"
	}
}

// Metrics collects lightweight ingestion counters and store latency.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	messages          uint64
	listings          uint64
	duplicateListings uint64
	subscribeRequests uint64
	stored            uint64
	deadLettered      uint64
	sessions          uint64
	dialFailures      uint64
	drops             [dropReasonCount]uint64

	storeLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Messages          uint64            `json:"messages"`
	Listings          uint64            `json:"listings"`
	DuplicateListings uint64            `json:"duplicateListings"`
	SubscribeRequests uint64            `json:"subscribeRequests"`
	Stored            uint64            `json:"stored"`
	DeadLettered      uint64            `json:"deadLettered"`
	Sessions          uint64            `json:"sessions"`
	DialFailures      uint64            `json:"dialFailures"`
	Drops             map[string]uint64 `json:"drops"`
	StoreLatency      LatencySnapshot   `json:"storeLatency"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncMessage() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.messages, 1)
}

// IncListing records a new listing; duplicate reports whether the entity was already known.
func (m *Metrics) IncListing(duplicate bool) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.listings, 1)
	if duplicate {
		atomic.AddUint64(&m.duplicateListings, 1)
	}
}

func (m *Metrics) IncSubscribeRequest() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.subscribeRequests, 1)
}

// ObserveStored records a successful write and how long it took.
func (m *Metrics) ObserveStored(d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.stored, 1)
	m.storeLatency.Observe(d)
}

func (m *Metrics) IncDeadLettered() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.deadLettered, 1)
}

func (m *Metrics) IncSession() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.sessions, 1)
}

func (m *Metrics) IncDialFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.dialFailures, 1)
}

// IncDrop increments the drop counter for reason.
func (m *Metrics) IncDrop(reason DropReason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.drops) {
		atomic.AddUint64(&m.drops[idx], 1)
	}
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	drops := make(map[string]uint64)
	for i := range m.drops {
		if v := atomic.LoadUint64(&m.drops[i]); v > 0 {
			drops[DropReason(i).String()] = v
		}
	}
	return Snapshot{
		Messages:          atomic.LoadUint64(&m.messages),
		Listings:          atomic.LoadUint64(&m.listings),
		DuplicateListings: atomic.LoadUint64(&m.duplicateListings),
		SubscribeRequests: atomic.LoadUint64(&m.subscribeRequests),
		Stored:            atomic.LoadUint64(&m.stored),
		DeadLettered:      atomic.LoadUint64(&m.deadLettered),
		Sessions:          atomic.LoadUint64(&m.sessions),
		DialFailures:      atomic.LoadUint64(&m.dialFailures),
		Drops:             drops,
		StoreLatency:      m.storeLatency.Snapshot(),
	}
}

// LogEvery logs a snapshot every interval until ctx is done.
func (m *Metrics) LogEvery(ctx context.Context, interval time.Duration) error {
	if m == nil || interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s := m.Snapshot()
			logs.Infof("stats: messages=%d listings=%d dup=%d subscribe=%d stored=%d deadletter=%d sessions=%d dial_failures=%d drops=%v store_avg=%s",
				s.Messages, s.Listings, s.DuplicateListings, s.SubscribeRequests, s.Stored, s.DeadLettered,
				s.Sessions, s.DialFailures, s.Drops, s.StoreLatency.Avg)
		}
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
