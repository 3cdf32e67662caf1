package engine

import (
	"math"

	"gleipnir/internal/memory"

	"github.com/tidwall/btree"
)

// SentinelPrice keys the level that terminates every side of the book. No
// real price can reach it, so a scan that hits it has run out of liquidity.
const SentinelPrice int32 = math.MaxInt32

// levelEntry is what a price index stores: the sign-encoded price and the
// handle of the level living in the level arena.
type levelEntry struct {
	price int32
	level memory.Handle
}

func (e levelEntry) sentinel() bool {
	return e.price == SentinelPrice
}

type priceLevels = btree.BTreeG[levelEntry]

// priceIndex is one side of the book, ordered by ascending stored price.
// Buys are stored negated so index 0 is always the most aggressive level.
type priceIndex struct {
	levels *priceLevels
}

func newPriceIndex() *priceIndex {
	levels := btree.NewBTreeGOptions(func(a, b levelEntry) bool {
		return a.price < b.price
	}, btree.Options{NoLocks: true})
	levels.Set(levelEntry{price: SentinelPrice})
	return &priceIndex{levels: levels}
}

func (idx *priceIndex) insert(price int32, level memory.Handle) {
	idx.levels.Set(levelEntry{price: price, level: level})
}

func (idx *priceIndex) remove(price int32) (memory.Handle, bool) {
	entry, ok := idx.levels.Delete(levelEntry{price: price})
	return entry.level, ok
}

func (idx *priceIndex) removeAt(i int) (levelEntry, bool) {
	return idx.levels.DeleteAt(i)
}

func (idx *priceIndex) get(price int32) (memory.Handle, bool) {
	entry, ok := idx.levels.Get(levelEntry{price: price})
	return entry.level, ok
}

func (idx *priceIndex) contains(price int32) bool {
	_, ok := idx.levels.Get(levelEntry{price: price})
	return ok
}

// at returns the i-th level in ascending order. The sentinel guarantees a
// result for every i up to the number of real levels.
func (idx *priceIndex) at(i int) levelEntry {
	entry, _ := idx.levels.GetAt(i)
	return entry
}

// count counts levels including the sentinel.
func (idx *priceIndex) count() int {
	return idx.levels.Len()
}

func (idx *priceIndex) items() []levelEntry {
	return idx.levels.Items()
}
