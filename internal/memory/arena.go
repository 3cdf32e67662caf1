package memory

// Handle addresses a slot in an Arena. The zero Handle is nil.
type Handle uint32

const Nil Handle = 0

// Arena is a typed object pool backed by one growable slice. Slots are
// addressed by Handle instead of pointer so released slots can be recycled
// without dangling references.
//
// An Arena is not safe for concurrent use.
type Arena[T any] struct {
	slots []T
	free  []Handle
}

// NewArena creates an arena with room for capacity live slots before growing.
func NewArena[T any](capacity int) *Arena[T] {
	a := &Arena[T]{
		slots: make([]T, 1, capacity+1),
		free:  make([]Handle, 0, capacity),
	}
	return a
}

// Borrow returns a zeroed slot, recycled from the free list when possible.
// Pointers previously returned by At may be invalidated.
func (a *Arena[T]) Borrow() Handle {
	if n := len(a.free); n > 0 {
		h := a.free[n-1]
		a.free = a.free[:n-1]
		return h
	}
	var zero T
	a.slots = append(a.slots, zero)
	return Handle(len(a.slots) - 1)
}

// Release zeroes the slot and makes it available to Borrow.
func (a *Arena[T]) Release(h Handle) {
	var zero T
	a.slots[h] = zero
	a.free = append(a.free, h)
}

// At returns the slot behind h. The pointer is valid until the next Borrow.
func (a *Arena[T]) At(h Handle) *T {
	return &a.slots[h]
}

// Live is the number of borrowed slots.
func (a *Arena[T]) Live() int {
	return len(a.slots) - 1 - len(a.free)
}

// Free is the number of released slots waiting for reuse.
func (a *Arena[T]) Free() int {
	return len(a.free)
}
