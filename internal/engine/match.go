package engine

import (
	"gleipnir/internal/common"
	"gleipnir/internal/memory"

	"github.com/rs/zerolog/log"
)

// executable reports whether an incoming order at price crosses a resting
// level at levelPrice. Both say "buy limit >= sell limit" given that buys are
// stored negated.
func executable(side common.Side, price, levelPrice int32) bool {
	if side == common.Buy {
		return -int64(price) >= int64(levelPrice)
	}
	return int64(price) <= -int64(levelPrice)
}

// execute matches an order against the opposite side of the book in
// price-time priority. Fills are buffered and only applied by commit, so the
// index and the FIFOs are never mutated while they are walked. The single
// exception is a partial fill of a resting order, which always commits.
func (engine *Engine) execute(record *common.Record) {
	book := engine.book
	id := record.ID()
	price := record.Price()
	amount := record.Amount()
	side := common.SideOf(price)
	levels := book.opposite(price)
	if amount == 0 {
		log.Warn().Str("id", common.FormatID(id)).Msg("order without amount, skipping")
		return
	}

	engine.executions = engine.executions[:0]
	engine.removals = engine.removals[:0]

	for i := 0; ; i++ {
		entry := levels.at(i)
		if entry.sentinel() || !executable(side, price, entry.price) {
			engine.finish(record, amount, levels, entry.price)
			return
		}

		level := book.levels.At(entry.level)
		for h := level.head; h != memory.Nil; {
			resting := book.orders.At(h)
			switch {
			case amount < resting.remaining:
				// The resting order absorbs the incoming one and stays as head.
				engine.fill(id, resting, amount, entry.price)
				resting.remaining -= amount
				engine.commit(levels, entry.price, entry.level, h)
				return

			case amount == resting.remaining:
				engine.fill(id, resting, amount, entry.price)
				engine.removals = append(engine.removals, h)
				if resting.next != memory.Nil {
					engine.commit(levels, entry.price, entry.level, resting.next)
				} else {
					// The level is used up, trim through it.
					engine.commit(levels, levels.at(i+1).price, memory.Nil, memory.Nil)
				}
				return

			default:
				engine.fill(id, resting, resting.remaining, entry.price)
				engine.removals = append(engine.removals, h)
				amount -= resting.remaining
				h = resting.next
			}
		}
		// Every order at this price is taken, move on to the next level.
	}
}

func (engine *Engine) fill(takerID uint64, resting *restingOrder, amount uint64, price int32) {
	engine.executions = append(engine.executions, common.Execution{
		TakerID: takerID,
		MakerID: resting.record.ID(),
		Amount:  amount,
		Price:   price,
	})
}

// finish applies the order kind's policy once the scan stopped with part of
// the order unmatched. boundary is the price the scan stopped at.
func (engine *Engine) finish(record *common.Record, remaining uint64, levels *priceIndex, boundary int32) {
	switch record.Kind() {
	case common.KindFOK:
		// All or nothing: the buffered fills are dropped uncommitted.
		engine.kill(record.ID(), common.ReasonFOK)

	case common.KindIOC:
		if len(engine.executions) == 0 {
			engine.kill(record.ID(), common.ReasonIOC)
			return
		}
		engine.commit(levels, boundary, memory.Nil, memory.Nil)

	default:
		if len(engine.executions) > 0 {
			engine.commit(levels, boundary, memory.Nil, memory.Nil)
		}
		if err := engine.book.rest(record, remaining); err != nil {
			log.Warn().Err(err).Msg("unable to rest order")
		}
	}
}

// commit applies a matching pass: matched orders are dropped along with their
// OCO peers, the partially consumed level gets its new head, used up levels
// below boundary are trimmed and the executions are reported in order.
func (engine *Engine) commit(levels *priceIndex, boundary int32, level, head memory.Handle) {
	book := engine.book
	for _, h := range engine.removals {
		record := book.drop(h)
		book.removePeer(&record)
	}
	if level != memory.Nil {
		book.setHead(level, head)
	}
	book.trim(levels, boundary)

	for _, execution := range engine.executions {
		engine.reporter.Executed(execution)
	}
	engine.stats.Commits++
}
