package engine

import (
	"context"
	"errors"
	"fmt"

	"gleipnir/internal/common"
	"gleipnir/internal/memory"

	"github.com/rs/zerolog/log"
)

var ErrUnknownPolicy = errors.New("unknown oco policy")

// Intake is the consumer side of the order queue. Only the matching
// goroutine pulls from it.
type Intake interface {
	// NextOrder blocks until a record is available.
	NextOrder(ctx context.Context) (common.Record, error)
	// NextOcoPeer blocks until the next regular order, skipping cancels. It
	// is used to fetch the sell leg of an OCO pair.
	NextOcoPeer(ctx context.Context) (common.Record, error)
}

// Reporter receives everything the engine decides. Calls come from the
// matching goroutine only.
type Reporter interface {
	Executed(execution common.Execution)
	Canceled(cancellation common.Cancellation)
	Terminate()
}

// OCOPeerOnKill decides what happens to the sell leg of an OCO pair when the
// buy leg is killed (FOK or IOC) without trading.
type OCOPeerOnKill int

const (
	// The sell leg is processed as if the buy leg never existed.
	PeerSurvivesKill OCOPeerOnKill = iota
	// The sell leg is dropped with a PeerKilled cancellation.
	PeerCanceledOnKill
)

func ParseOCOPeerOnKill(s string) (OCOPeerOnKill, error) {
	switch s {
	case "", "survive":
		return PeerSurvivesKill, nil
	case "cancel":
		return PeerCanceledOnKill, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownPolicy)
}

func (p OCOPeerOnKill) String() string {
	if p == PeerCanceledOnKill {
		return "cancel"
	}
	return "survive"
}

type Config struct {
	// Number of resting orders to preallocate room for.
	Capacity      int
	OCOPeerOnKill OCOPeerOnKill
}

// Stats are counters kept by the matching goroutine.
type Stats struct {
	Processed uint64 // Records pulled off the intake.
	Commits   uint64 // Matching passes that traded.
	Kills     uint64 // FOK and IOC cancellations.
	Ignored   uint64 // Records with an unknown processing kind.
}

// Engine owns the order book and runs the matching loop. Everything but Run's
// intake and reporter calls happens on one goroutine, so nothing is locked.
type Engine struct {
	book     *OrderBook
	intake   Intake
	reporter Reporter
	cfg      Config

	// Buffers of the current matching pass, reused across passes.
	executions []common.Execution
	removals   []memory.Handle

	stats Stats
}

func New(intake Intake, reporter Reporter, cfg Config) *Engine {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
	}
	return &Engine{
		book:       NewOrderBook(cfg.Capacity),
		intake:     intake,
		reporter:   reporter,
		cfg:        cfg,
		executions: make([]common.Execution, 0, 64),
		removals:   make([]memory.Handle, 0, 64),
	}
}

func (engine *Engine) Book() *OrderBook {
	return engine.book
}

func (engine *Engine) Stats() Stats {
	return engine.stats
}

// Run pulls records until a terminate record arrives or the context ends.
// The reporter is told to terminate either way.
func (engine *Engine) Run(ctx context.Context) error {
	log.Info().
		Str("oco peer on kill", engine.cfg.OCOPeerOnKill.String()).
		Msg("engine running")

	for {
		record, err := engine.intake.NextOrder(ctx)
		if err != nil {
			engine.reporter.Terminate()
			return fmt.Errorf("engine: next order: %w", err)
		}

		done, err := engine.Process(ctx, &record)
		if err != nil {
			engine.reporter.Terminate()
			return fmt.Errorf("engine: process: %w", err)
		}
		if done {
			log.Info().
				Uint64("processed", engine.stats.Processed).
				Uint64("commits", engine.stats.Commits).
				Uint64("kills", engine.stats.Kills).
				Int("resting", engine.book.Orders()).
				Int("bid levels", engine.book.Levels(common.Buy)).
				Int("ask levels", engine.book.Levels(common.Sell)).
				Msg("engine terminated")
			return nil
		}
	}
}

// Process handles one record to completion. It returns true once the record
// was a terminate.
func (engine *Engine) Process(ctx context.Context, record *common.Record) (bool, error) {
	engine.stats.Processed++

	switch record.Process() {
	case common.ProcessTerminate:
		engine.reporter.Terminate()
		return true, nil

	case common.ProcessCancel:
		engine.cancel(record.ID())

	case common.ProcessOrder:
		engine.execute(record)

	case common.ProcessOCO:
		sell, err := engine.intake.NextOcoPeer(ctx)
		if err != nil {
			return false, fmt.Errorf("oco peer of %s: %w", common.FormatID(record.ID()), err)
		}
		engine.executeOCO(record, &sell)

	default:
		// A bad record upstream must not stop the engine.
		engine.stats.Ignored++
		log.Warn().
			Str("id", common.FormatID(record.ID())).
			Uint8("process", uint8(record.Process())).
			Msg("unexpected processing kind, skipping record")
	}
	return false, nil
}

// cancel removes a resting order and its OCO peer. Orders that already left
// the book are ignored, the cancel lost a race with a fill.
func (engine *Engine) cancel(id uint64) {
	if !engine.book.remove(id, true) {
		log.Debug().Str("id", common.FormatID(id)).Msg("cancel of order not in book")
		return
	}
	engine.reporter.Canceled(common.Cancellation{OrderID: id, Reason: common.ReasonExplicit})
}

func (engine *Engine) kill(id uint64, reason common.Reason) {
	engine.stats.Kills++
	engine.reporter.Canceled(common.Cancellation{OrderID: id, Reason: reason})
}

// executeOCO processes both legs of an OCO pair. A trade on the buy leg means
// the sell leg is never looked at. A trade on the sell leg takes the resting
// buy leg out of the book.
func (engine *Engine) executeOCO(buy, sell *common.Record) {
	commits, kills := engine.stats.Commits, engine.stats.Kills

	engine.execute(buy)
	if engine.stats.Commits != commits {
		return
	}

	if engine.cfg.OCOPeerOnKill == PeerCanceledOnKill && engine.stats.Kills != kills {
		engine.kill(sell.ID(), common.ReasonPeerKilled)
		return
	}

	engine.execute(sell)
	if engine.stats.Commits != commits {
		// The sell leg's own remainder, if any, keeps resting.
		engine.book.remove(buy.ID(), false)
	}
}
