package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os"
	"time"

	"gleipnir/internal/common"
	"gleipnir/internal/config"
	"gleipnir/internal/engine"
	"gleipnir/internal/intake"
	"gleipnir/internal/sink"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	basePrice   = 20000
	priceSpread = 500
	maxAmount   = 1000
)

// traffic synthesises a random order flow for a set of customers. Records are
// returned as submission units: a single record, or an OCO pair.
type traffic struct {
	rng       *rand.Rand
	customers []*common.Builder
}

func newTraffic(seed int64, customers int) *traffic {
	t := &traffic{rng: rand.New(rand.NewSource(seed))}
	for i := 0; i < customers; i++ {
		t.customers = append(t.customers, common.NewBuilder(uint32(i+1)))
	}
	return t
}

func (t *traffic) limitKind() common.Kind {
	switch n := t.rng.Intn(10); {
	case n < 8:
		return common.KindGTC
	case n < 9:
		return common.KindIOC
	}
	return common.KindFOK
}

func (t *traffic) marketKind() common.Kind {
	if t.rng.Intn(2) == 0 {
		return common.KindIOC
	}
	return common.KindFOK
}

func (t *traffic) price() int32 {
	return int32(basePrice - priceSpread + t.rng.Intn(2*priceSpread))
}

func (t *traffic) amount() uint64 {
	return uint64(1 + t.rng.Intn(maxAmount))
}

// next draws one submission unit.
func (t *traffic) next() []common.Record {
	b := t.customers[t.rng.Intn(len(t.customers))]
	switch n := t.rng.Intn(100); {
	case n < 35:
		return []common.Record{b.Build(t.amount(), -t.price(), t.limitKind(), common.ProcessOrder)}
	case n < 70:
		return []common.Record{b.Build(t.amount(), t.price(), t.limitKind(), common.ProcessOrder)}
	case n < 80:
		return []common.Record{b.Build(t.amount(), common.MarketBuyPrice, t.marketKind(), common.ProcessOrder)}
	case n < 90:
		return []common.Record{b.Build(t.amount(), common.MarketSellPrice, t.marketKind(), common.ProcessOrder)}
	}
	// OCO legs straddle the mid price.
	buy, sell := b.OCO(t.amount(), -(basePrice - priceSpread - int32(t.rng.Intn(priceSpread))),
		basePrice+priceSpread+int32(t.rng.Intn(priceSpread)), common.KindGTC)
	return []common.Record{buy, sell}
}

// cancels draws cancels for a tenth of the sequences handed out so far.
func (t *traffic) cancels() []common.Record {
	var records []common.Record
	for _, b := range t.customers {
		for seq := uint32(1); seq < b.Sequence; seq++ {
			if t.rng.Intn(10) == 0 {
				records = append(records, b.Cancel(seq))
			}
		}
	}
	t.rng.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
	return records
}

func main() {
	configFile := flag.String("config-file", "", "Path to the YAML config, defaults to $CONFIG_FILE")
	orders := flag.Int("orders", 1_000_000, "Number of order submissions")
	customers := flag.Int("customers", 100, "Number of customers")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load config")
	}
	config.SetupLogging(cfg.Log)

	runID := uuid.New()
	logger := log.With().Str("run", runID.String()).Logger()

	// Generate everything up front so only the pipeline is timed.
	gen := newTraffic(*seed, *customers)
	units := make([][]common.Record, 0, *orders+*orders/10)
	for i := 0; i < *orders; i++ {
		units = append(units, gen.next())
	}
	for _, cancel := range gen.cancels() {
		units = append(units, []common.Record{cancel})
	}
	logger.Info().Int("submissions", len(units)).Msg("traffic generated")

	intakeCfg := cfg.ForIntake()
	intakeCfg.Policy = intake.DrainThenTerminate
	intakeCfg.Capacity = 2*len(units) + 1
	queue := intake.New(intakeCfg)
	events := sink.New(cfg.ForSink())
	stats := sink.NewStats(cfg.Sink.Detail)
	eng := engine.New(queue, events, cfg.ForEngine())

	start := time.Now()
	var t tomb.Tomb
	t.Go(func() error {
		return eng.Run(t.Context(nil))
	})
	t.Go(func() error {
		return events.Run(t.Context(nil), stats)
	})
	t.Go(func() error {
		for _, unit := range units {
			var peer []byte
			if len(unit) == 2 {
				peer = unit[1][:]
			}
			if err := queue.Submit(unit[0][:], peer); err != nil {
				return err
			}
		}
		terminate := gen.customers[0].Terminate()
		return queue.Submit(terminate.Bytes(), nil)
	})

	if err := t.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("benchmark failed")
		os.Exit(1)
	}

	elapsed := time.Since(start)
	engineStats := eng.Stats()
	logger.Info().
		Dur("elapsed", elapsed).
		Uint64("processed", engineStats.Processed).
		Float64("records per second", float64(engineStats.Processed)/elapsed.Seconds()).
		Uint64("executions", stats.Executions()).
		Str("volume", stats.Volume().String()).
		Int("resting", eng.Book().Orders()).
		Msg("benchmark done")
}
