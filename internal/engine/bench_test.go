package engine_test

import (
	"context"
	"math/rand"
	"testing"

	"gleipnir/internal/common"
	"gleipnir/internal/engine"
)

type discardReporter struct{}

func (discardReporter) Executed(common.Execution)    {}
func (discardReporter) Canceled(common.Cancellation) {}
func (discardReporter) Terminate()                   {}

func BenchmarkProcess_Limit(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	builder := common.NewBuilder(7)
	records := make([]common.Record, 4096)
	for i := range records {
		price := int32(10000 + rng.Intn(200))
		if rng.Intn(2) == 0 {
			price = -(price - 100)
		}
		records[i] = builder.GTC(uint64(1+rng.Intn(100)), price)
	}

	eng := engine.New(&scriptedIntake{}, discardReporter{}, engine.Config{Capacity: len(records)})
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		record := records[i%len(records)]
		// Ids must stay unique for resting orders.
		if i >= len(records) {
			record = common.Encode(7, uint32(i+1), 0, record.Amount(), record.Price(), common.KindGTC, common.ProcessOrder)
		}
		if _, err := eng.Process(ctx, &record); err != nil {
			b.Fatal(err)
		}
	}
}
