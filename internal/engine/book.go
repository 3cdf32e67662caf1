package engine

import (
	"errors"
	"fmt"

	"gleipnir/internal/common"
	"gleipnir/internal/memory"
)

var (
	ErrDuplicateOrder = errors.New("order already resting")
	ErrInvalidPrice   = errors.New("price collides with the sentinel level")
)

// restingOrder is an order sat in a price level's FIFO. The FIFO links are
// arena handles into the same arena.
type restingOrder struct {
	record    common.Record
	remaining uint64 // Unmatched amount, decreases on partial fills.
	level     memory.Handle
	prev      memory.Handle
	next      memory.Handle
}

// priceLevel is the FIFO of orders at one price. head == tail when a single
// order rests.
type priceLevel struct {
	price int32
	head  memory.Handle
	tail  memory.Handle
}

type OrderBook struct {
	// Price levels on either side, keyed by the sign-encoded price. Orders sat
	// on a price level are kept in arrival order.
	bids *priceIndex
	asks *priceIndex

	orders *memory.Arena[restingOrder]
	levels *memory.Arena[priceLevel]

	// Order id to resting order, for cancellation lookup.
	index map[uint64]memory.Handle
}

func NewOrderBook(capacity int) *OrderBook {
	return &OrderBook{
		bids:   newPriceIndex(),
		asks:   newPriceIndex(),
		orders: memory.NewArena[restingOrder](capacity),
		levels: memory.NewArena[priceLevel](capacity / 4),
		index:  make(map[uint64]memory.Handle, capacity),
	}
}

// side returns the index an order at price rests on.
func (book *OrderBook) side(price int32) *priceIndex {
	if price < 0 {
		return book.bids
	}
	return book.asks
}

// opposite returns the index an order at price matches against.
func (book *OrderBook) opposite(price int32) *priceIndex {
	if price < 0 {
		return book.asks
	}
	return book.bids
}

// rest places the unmatched remainder of an order at the tail of its price
// level, creating the level if it does not exist yet.
func (book *OrderBook) rest(record *common.Record, remaining uint64) error {
	id := record.ID()
	if _, ok := book.index[id]; ok {
		return fmt.Errorf("order %s: %w", common.FormatID(id), ErrDuplicateOrder)
	}
	price := record.Price()
	if price == SentinelPrice {
		return fmt.Errorf("order %s: %w", common.FormatID(id), ErrInvalidPrice)
	}

	h := book.orders.Borrow()
	order := book.orders.At(h)
	order.record = *record
	order.remaining = remaining

	levels := book.side(price)
	if lh, ok := levels.get(price); ok {
		// The price level already exists, just append onto the existing orders.
		level := book.levels.At(lh)
		book.orders.At(level.tail).next = h
		order.prev = level.tail
		order.level = lh
		level.tail = h
	} else {
		lh := book.levels.Borrow()
		level := book.levels.At(lh)
		level.price = price
		level.head = h
		level.tail = h
		order.level = lh
		levels.insert(price, lh)
	}

	book.index[id] = h
	return nil
}

// remove takes a resting order out of the book. With propagate set, the other
// leg of an OCO pair is removed as well, without propagating any further.
// Returns false when the id is not resting.
func (book *OrderBook) remove(id uint64, propagate bool) bool {
	h, ok := book.index[id]
	if !ok {
		return false
	}

	order := book.orders.At(h)
	switch {
	case order.prev == memory.Nil && order.next == memory.Nil:
		// Sole member, the level goes with it.
		level := book.levels.At(order.level)
		book.side(level.price).remove(level.price)
		book.levels.Release(order.level)
	case order.prev == memory.Nil:
		book.orders.At(order.next).prev = memory.Nil
		book.levels.At(order.level).head = order.next
	case order.next == memory.Nil:
		book.orders.At(order.prev).next = memory.Nil
		book.levels.At(order.level).tail = order.prev
	default:
		book.orders.At(order.prev).next = order.next
		book.orders.At(order.next).prev = order.prev
	}

	record := book.drop(h)
	if propagate {
		book.removePeer(&record)
	}
	return true
}

// drop releases a resting order whose FIFO is maintained by the caller.
func (book *OrderBook) drop(h memory.Handle) common.Record {
	record := book.orders.At(h).record
	delete(book.index, record.ID())
	book.orders.Release(h)
	return record
}

// removePeer removes the other leg if record belongs to an OCO pair.
func (book *OrderBook) removePeer(record *common.Record) {
	if record.IsOCO() {
		book.remove(record.PeerID(), false)
	}
}

// setHead makes h the first order of a level after the orders in front of it
// were matched away.
func (book *OrderBook) setHead(level, h memory.Handle) {
	book.levels.At(level).head = h
	book.orders.At(h).prev = memory.Nil
}

// trim removes every level from the front of levels whose price sorts below
// boundary. Their orders must already have been dropped.
func (book *OrderBook) trim(levels *priceIndex, boundary int32) {
	for {
		entry := levels.at(0)
		if entry.price >= boundary {
			return
		}
		levels.removeAt(0)
		book.levels.Release(entry.level)
	}
}

func (book *OrderBook) sideIndex(side common.Side) *priceIndex {
	if side == common.Buy {
		return book.bids
	}
	return book.asks
}

// Contains reports whether an order is resting.
func (book *OrderBook) Contains(id uint64) bool {
	_, ok := book.index[id]
	return ok
}

// Remaining returns the unmatched amount of a resting order.
func (book *OrderBook) Remaining(id uint64) (uint64, bool) {
	h, ok := book.index[id]
	if !ok {
		return 0, false
	}
	return book.orders.At(h).remaining, true
}

// Orders counts resting orders on both sides.
func (book *OrderBook) Orders() int {
	return len(book.index)
}

// Levels counts the price levels on a side, not counting the sentinel.
func (book *OrderBook) Levels(side common.Side) int {
	return book.sideIndex(side).count() - 1
}

// Best returns the stored price of the most aggressive level on a side.
func (book *OrderBook) Best(side common.Side) (int32, bool) {
	entry := book.sideIndex(side).at(0)
	if entry.sentinel() {
		return 0, false
	}
	return entry.price, true
}

type FlatOrder struct {
	ID        uint64
	Remaining uint64
}

// FlatPriceLevel is a read-only copy of a price level and its FIFO.
type FlatPriceLevel struct {
	Price  int32
	Orders []FlatOrder
}

// Amount totals the remaining amount at the level.
func (level FlatPriceLevel) Amount() uint64 {
	var total uint64
	for _, order := range level.Orders {
		total += order.Remaining
	}
	return total
}

// Flatten copies a side of the book, most aggressive level first, walking each
// FIFO from its head.
func (book *OrderBook) Flatten(side common.Side) []FlatPriceLevel {
	entries := book.sideIndex(side).items()
	flat := make([]FlatPriceLevel, 0, len(entries))
	for _, entry := range entries {
		if entry.sentinel() {
			continue
		}
		level := book.levels.At(entry.level)
		flatLevel := FlatPriceLevel{Price: entry.price}
		for h := level.head; h != memory.Nil; h = book.orders.At(h).next {
			order := book.orders.At(h)
			flatLevel.Orders = append(flatLevel.Orders, FlatOrder{
				ID:        order.record.ID(),
				Remaining: order.remaining,
			})
		}
		flat = append(flat, flatLevel)
	}
	return flat
}
