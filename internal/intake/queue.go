// Package intake is the queue between order producers and the matching
// engine. Producers on any goroutine submit raw records; the single matching
// goroutine pulls them, cancels ahead of orders.
package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gleipnir/internal/common"
	"gleipnir/internal/poll"

	"github.com/gammazero/deque"
)

const DefaultCapacity = 1 << 16

var (
	ErrIntakeFull     = errors.New("intake full")
	ErrClosed         = errors.New("intake terminated")
	ErrShortRecord    = errors.New("record too short")
	ErrUnknownProcess = errors.New("unknown processing kind")
	ErrMissingPeer    = errors.New("oco order without its peer")
	ErrUnknownPolicy  = errors.New("unknown termination policy")
)

// Policy decides when a submitted terminate record reaches the consumer.
type Policy int

const (
	// Terminate once everything submitted before it has been consumed.
	DrainThenTerminate Policy = iota
	// Terminate on the next pull, abandoning whatever is still queued.
	TerminateFirst
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "drain-then-terminate":
		return DrainThenTerminate, nil
	case "", "terminate-first":
		return TerminateFirst, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownPolicy)
}

func (p Policy) String() string {
	if p == DrainThenTerminate {
		return "drain-then-terminate"
	}
	return "terminate-first"
}

type Config struct {
	// Maximum number of queued records over both lanes.
	Capacity int
	MinWait  time.Duration
	MaxWait  time.Duration
	Policy   Policy
}

type Queue struct {
	mu      sync.Mutex
	cancels deque.Deque[common.Record]
	orders  deque.Deque[common.Record]
	// Set once a terminate record was submitted.
	closed bool
	// Set when the terminate record jumps the queue.
	terminateNow bool

	capacity int
	policy   Policy

	// Consumer side only.
	poller *poll.Poller
}

func New(cfg Config) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	return &Queue{
		capacity: cfg.Capacity,
		policy:   cfg.Policy,
		poller:   poll.New(cfg.MinWait, cfg.MaxWait),
	}
}

// Submit validates and enqueues a record. An OCO record needs its sell leg as
// peer; both legs are queued together. The buffers are copied.
func (q *Queue) Submit(order, peer []byte) error {
	if len(order) < common.RecordSize {
		return fmt.Errorf("%d bytes: %w", len(order), ErrShortRecord)
	}
	var record common.Record
	copy(record[:], order)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	switch process := record.Process(); process {
	case common.ProcessCancel:
		if err := q.reserve(1); err != nil {
			return err
		}
		q.cancels.PushBack(record)

	case common.ProcessOrder:
		if err := q.reserve(1); err != nil {
			return err
		}
		q.orders.PushBack(record)

	case common.ProcessOCO:
		if len(peer) < common.RecordSize || common.ProcessOf(peer) != common.ProcessOCO {
			return fmt.Errorf("order %s: %w", common.FormatID(record.ID()), ErrMissingPeer)
		}
		var sell common.Record
		copy(sell[:], peer)
		if err := q.reserve(2); err != nil {
			return err
		}
		q.orders.PushBack(record)
		q.orders.PushBack(sell)

	case common.ProcessTerminate:
		q.closed = true
		if q.policy == TerminateFirst {
			q.terminateNow = true
		} else {
			q.orders.PushBack(record)
		}

	default:
		return fmt.Errorf("%v: %w", process, ErrUnknownProcess)
	}
	return nil
}

// reserve checks there is room for n more records. Callers hold mu.
func (q *Queue) reserve(n int) error {
	if q.cancels.Len()+q.orders.Len()+n > q.capacity {
		return ErrIntakeFull
	}
	return nil
}

// Len is the number of queued records over both lanes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancels.Len() + q.orders.Len()
}

func (q *Queue) tryNext() (common.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case q.terminateNow:
		var record common.Record
		record.SetProcess(common.ProcessTerminate)
		return record, true
	case q.cancels.Len() > 0:
		return q.cancels.PopFront(), true
	case q.orders.Len() > 0:
		return q.orders.PopFront(), true
	}
	return common.Record{}, false
}

func (q *Queue) tryNextOrder() (common.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.orders.Len() > 0 {
		return q.orders.PopFront(), true
	}
	return common.Record{}, false
}

// NextOrder blocks until a record is available or ctx is done.
func (q *Queue) NextOrder(ctx context.Context) (common.Record, error) {
	return q.next(ctx, q.tryNext)
}

// NextOcoPeer blocks until the next record of the order lane, which is the
// sell leg following an OCO buy leg.
func (q *Queue) NextOcoPeer(ctx context.Context) (common.Record, error) {
	return q.next(ctx, q.tryNextOrder)
}

func (q *Queue) next(ctx context.Context, try func() (common.Record, bool)) (common.Record, error) {
	for {
		if record, ok := try(); ok {
			q.poller.Reset()
			return record, nil
		}
		if err := q.poller.Wait(ctx); err != nil {
			return common.Record{}, err
		}
	}
}
