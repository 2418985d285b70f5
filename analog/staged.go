package analog

// Staged is a configuration the driver holds but has not written.
type Staged[T any] struct {
	v T
}

func (s Staged[T]) Value() T { return s.v }

// Committed is a configuration on its way to, or already in, the chip.
// Register encoders only accept Committed values.
type Committed[T any] struct {
	v T
}

func (c Committed[T]) Value() T { return c.v }

// slot pairs the staged and committed halves of one configuration record.
type slot[T any] struct {
	staged    Staged[T]
	committed Committed[T]
}

func newSlot[T any](v T) slot[T] {
	return slot[T]{staged: Staged[T]{v}, committed: Committed[T]{v}}
}

// stage mutates the staged half only.
func (s *slot[T]) stage(fn func(*T)) {
	fn(&s.staged.v)
}

// commit snapshots the staged record for encoding.
func (s *slot[T]) commit() Committed[T] {
	return Committed[T]{s.staged.v}
}

// settle records a snapshot whose register writes all succeeded.
func (s *slot[T]) settle(c Committed[T]) {
	s.committed = c
}

func (s *slot[T]) Staged() T { return s.staged.v }
func (s *slot[T]) Committed() T { return s.committed.v }
