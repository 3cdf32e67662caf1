package sink

import (
	"context"
	"math/big"
	"sync"
	"time"

	"gleipnir/internal/common"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Stats counts events and logs a summary on Close. With Detail set, every
// event is logged as it is handled.
type Stats struct {
	Detail bool

	mu            sync.Mutex
	started       time.Time
	executions    uint64
	volume        uint64
	cancellations map[common.Reason]uint64
}

func NewStats(detail bool) *Stats {
	return &Stats{
		Detail:        detail,
		started:       time.Now(),
		cancellations: make(map[common.Reason]uint64),
	}
}

// Amount renders a fixed point amount with its eight decimal places.
func Amount(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -common.AmountScale)
}

func (s *Stats) Handle(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range events {
		switch event := &events[i]; event.Kind {
		case EventExecution:
			s.executions++
			s.volume += event.Execution.Amount
			if s.Detail {
				logExecution(&event.Execution)
			}
		case EventCancellation:
			s.cancellations[event.Cancellation.Reason]++
			if s.Detail {
				log.Info().
					Str("side", "C").
					Str("order", common.FormatID(event.Cancellation.OrderID)).
					Str("reason", event.Cancellation.Reason.String()).
					Msg("cancellation")
			}
		}
	}
	return nil
}

func logExecution(e *common.Execution) {
	side := "B"
	if e.TakerSide() == common.Sell {
		side = "S"
	}
	log.Info().
		Str("side", side).
		Str("taker", common.FormatID(e.TakerID)).
		Str("maker", common.FormatID(e.MakerID)).
		Int64("price", e.AbsPrice()).
		Str("amount", Amount(e.Amount).String()).
		Msg("execution")
}

// Executions returns the number of executions handled so far.
func (s *Stats) Executions() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions
}

// Cancellations returns the number of cancellations handled for a reason.
func (s *Stats) Cancellations(reason common.Reason) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancellations[reason]
}

// Volume is the total amount executed.
func (s *Stats) Volume() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Amount(s.volume)
}

func (s *Stats) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Info().
		Uint64("executions", s.executions).
		Str("volume", Amount(s.volume).String()).
		Uint64("explicit cancels", s.cancellations[common.ReasonExplicit]).
		Uint64("ioc cancels", s.cancellations[common.ReasonIOC]).
		Uint64("fok kills", s.cancellations[common.ReasonFOK]).
		Uint64("peer kills", s.cancellations[common.ReasonPeerKilled]).
		Dur("elapsed", time.Since(s.started)).
		Msg("sink summary")
	return nil
}
