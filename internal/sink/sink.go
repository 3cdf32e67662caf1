// Package sink collects what the matching engine reports and hands it to
// handlers on a goroutine of its own, so slow consumers never hold up
// matching.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gleipnir/internal/common"
	"gleipnir/internal/poll"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog/log"
)

type EventKind uint8

const (
	EventExecution EventKind = iota + 1
	EventCancellation
)

// Event is either an execution or a cancellation, as told by Kind.
type Event struct {
	Kind         EventKind
	Execution    common.Execution
	Cancellation common.Cancellation
}

// Handler consumes events in the order the engine reported them. Close is
// called once the sink terminated and every event was handled.
type Handler interface {
	Handle(ctx context.Context, events []Event) error
	Close() error
}

type Config struct {
	MinWait time.Duration
	MaxWait time.Duration
	// Largest batch passed to a handler at once.
	BatchSize int
}

// Sink is an unbounded buffer between the engine and the handlers. It
// implements the engine's reporter.
type Sink struct {
	mu         sync.Mutex
	events     deque.Deque[Event]
	terminated bool

	batchSize int
	poller    *poll.Poller
}

func New(cfg Config) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1024
	}
	return &Sink{
		batchSize: cfg.BatchSize,
		poller:    poll.New(cfg.MinWait, cfg.MaxWait),
	}
}

func (s *Sink) Executed(execution common.Execution) {
	s.push(Event{Kind: EventExecution, Execution: execution})
}

func (s *Sink) Canceled(cancellation common.Cancellation) {
	s.push(Event{Kind: EventCancellation, Cancellation: cancellation})
}

// Terminate makes Run return once the buffer is drained. Events reported
// after it are still delivered if Run has not returned yet.
func (s *Sink) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = true
}

func (s *Sink) push(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events.PushBack(event)
}

// take moves up to batchSize events into batch. done is set when the sink is
// terminated and nothing is left.
func (s *Sink) take(batch []Event) (_ []Event, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.events.Len() > 0 && len(batch) < s.batchSize {
		batch = append(batch, s.events.PopFront())
	}
	return batch, len(batch) == 0 && s.terminated
}

// Run delivers events to the handlers until the sink is terminated and
// drained, then closes them. A handler error stops the sink.
func (s *Sink) Run(ctx context.Context, handlers ...Handler) (err error) {
	defer func() {
		for _, h := range handlers {
			err = errors.Join(err, h.Close())
		}
	}()

	batch := make([]Event, 0, s.batchSize)
	for {
		var done bool
		batch, done = s.take(batch[:0])
		if done {
			log.Debug().Msg("sink drained")
			return nil
		}
		if len(batch) == 0 {
			if err := s.poller.Wait(ctx); err != nil {
				return err
			}
			continue
		}

		s.poller.Reset()
		for _, h := range handlers {
			if err := h.Handle(ctx, batch); err != nil {
				return fmt.Errorf("sink: handle: %w", err)
			}
		}
	}
}
