package crdt

// Structs

// AWORSet is an add-wins observed-removed set over a dot
// kernel. Next to the full kernel it accumulates a second
// delta kernel holding only the dots touched since the
// last drain, which is what Deltas hands out for
// incremental synchronization.
//
// Equality of values is pluggable: the set deduplicates
// and removes by the supplied same function, which allows
// derived structures (such as AWORMap) to compare only a
// projection of the value.
type AWORSet[V any] struct {
	kernel *DotKernel[V]
	delta  *DotKernel[V]
	same   func(a V, b V) bool
}

// Functions

// InitAWORSet returns an empty initialized new add-wins
// set for comparable values, deduplicated by equality.
func InitAWORSet[V comparable]() *AWORSet[V] {

	return InitAWORSetFunc[V](func(a V, b V) bool {
		return a == b
	})
}

// InitAWORSetFunc returns an empty initialized new
// add-wins set deduplicating values by supplied equality
// function.
func InitAWORSetFunc[V any](same func(a V, b V) bool) *AWORSet[V] {

	return &AWORSet[V]{
		kernel: InitDotKernel[V](),
		same:   same,
	}
}

// Kernel exposes the underlying dot kernel for read-only
// traversal by derived structures. Callers must not
// mutate it.
func (s *AWORSet[V]) Kernel() *DotKernel[V] {

	return s.kernel
}

// Elements returns all live values of the set in
// unspecified order.
func (s *AWORSet[V]) Elements() []V {

	return s.kernel.Values()
}

// Lookup answers whether a value equal to supplied one is
// live in the set.
func (s *AWORSet[V]) Lookup(value V) bool {

	for _, candidate := range s.kernel.Entries {

		if s.same(candidate, value) {
			return true
		}
	}

	return false
}

// Add inserts supplied value under a fresh dot of
// supplied replica. Any existing dots representing an
// equal value are logically removed first so that one
// replica never carries two live dots for the same value.
// Both changes are recorded into the in-flight delta.
func (s *AWORSet[V]) Add(replica string, value V) {

	delta := s.ensureDelta()

	s.kernel.RemoveWhere(func(candidate V) bool {
		return s.same(candidate, value)
	}, delta)

	s.kernel.Add(replica, value, delta)
}

// Remove deletes all entries equal to supplied value from
// the kernel. Their dots stay seen in the context, which
// is how the removal reaches peers.
func (s *AWORSet[V]) Remove(value V) {

	s.kernel.RemoveWhere(func(candidate V) bool {
		return s.same(candidate, value)
	}, s.ensureDelta())
}

// Merge combines this set with supplied one into a new
// set via the kernel join. Pending deltas of both sides
// are merged as well so that no accumulated change is
// lost.
func (s *AWORSet[V]) Merge(other *AWORSet[V]) *AWORSet[V] {

	merged := &AWORSet[V]{
		kernel: s.kernel.Merge(other.kernel),
		same:   s.same,
	}

	switch {

	case (s.delta != nil) && (other.delta != nil):
		merged.delta = s.delta.Merge(other.delta)

	case s.delta != nil:
		merged.delta = s.delta.Copy()

	case other.delta != nil:
		merged.delta = other.delta.Copy()
	}

	return merged
}

// Deltas drains the accumulated delta kernel: the current
// delta is handed out and the internal buffer reset. A
// second call without intervening mutation returns an
// empty kernel.
func (s *AWORSet[V]) Deltas() *DotKernel[V] {

	drained := s.delta
	s.delta = nil

	if drained == nil {
		drained = InitDotKernel[V]()
	}

	return drained
}

// MergeDeltas folds a delta kernel received from a peer
// into the full kernel. Applying the same delta multiple
// times, or deltas out of order, converges to the same
// state. The causal context of the delta is folded into
// any retained delta bookkeeping so that subsequent local
// deltas carry the updated summary.
func (s *AWORSet[V]) MergeDeltas(delta *DotKernel[V]) {

	s.kernel = s.kernel.Merge(delta)

	if s.delta != nil {
		s.delta.Ctx = s.delta.Ctx.Merge(delta.Ctx)
	}
}

// ensureDelta lazily creates the in-flight delta buffer.
func (s *AWORSet[V]) ensureDelta() *DotKernel[V] {

	if s.delta == nil {
		s.delta = InitDotKernel[V]()
	}

	return s.delta
}
