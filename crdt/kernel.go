package crdt

import (
	"github.com/pkg/errors"
)

// Structs

// DotKernel is the merge primitive shared by all
// observed-removed structures of this package: a map of
// dots to values guarded by the causal context that has
// seen every one of those dots. Removing a value deletes
// its entry but keeps the dot seen in the context, which
// is what makes deletions propagate without tombstones.
type DotKernel[V any] struct {
	Ctx     DotContext
	Entries map[Dot]V
}

// Functions

// InitDotKernel returns an empty initialized new
// dot kernel.
func InitDotKernel[V any]() *DotKernel[V] {

	return &DotKernel[V]{
		Ctx:     InitDotContext(),
		Entries: make(map[Dot]V),
	}
}

// Copy returns a deep copy of this kernel. Values are
// copied by assignment.
func (k *DotKernel[V]) Copy() *DotKernel[V] {

	copied := &DotKernel[V]{
		Ctx:     k.Ctx.Copy(),
		Entries: make(map[Dot]V, len(k.Entries)),
	}

	for dot, value := range k.Entries {
		copied.Entries[dot] = value
	}

	return copied
}

// Values returns all live values of this kernel in
// unspecified order.
func (k *DotKernel[V]) Values() []V {

	values := make([]V, 0, len(k.Entries))
	for _, value := range k.Entries {
		values = append(values, value)
	}

	return values
}

// Add allocates the next dot of supplied replica, marks
// it seen and stores supplied value under it. The same
// change is recorded into supplied delta kernel so that
// it can be shipped incrementally. It returns the
// allocated dot.
func (k *DotKernel[V]) Add(replica string, value V, delta *DotKernel[V]) Dot {

	dot := k.Ctx.Next(replica)

	k.Ctx.Insert(dot)
	k.Ctx.Compact()
	k.Entries[dot] = value

	if delta != nil {
		delta.Entries[dot] = value
		delta.Ctx.Insert(dot)
		delta.Ctx.Compact()
	}

	return dot
}

// RemoveWhere deletes all entries whose value satisfies
// supplied match function. The dots of deleted entries
// stay seen in the context. The removal is recorded into
// supplied delta kernel as a seen-but-absent dot, which
// is all a peer needs to apply the deletion.
func (k *DotKernel[V]) RemoveWhere(match func(value V) bool, delta *DotKernel[V]) {

	for dot, value := range k.Entries {

		if !match(value) {
			continue
		}

		delete(k.Entries, dot)

		if delta != nil {
			delta.Ctx.Insert(dot)
			delta.Ctx.Compact()
		}
	}
}

// Merge combines this kernel with supplied one into a new
// kernel implementing the observed-removed join: an entry
// survives unless one side has seen its dot but no longer
// carries the entry, meaning that side deleted it. Fresh
// dots unseen by the other side always survive, which
// yields add-wins behaviour for concurrent updates.
func (k *DotKernel[V]) Merge(other *DotKernel[V]) *DotKernel[V] {

	merged := &DotKernel[V]{
		Ctx:     k.Ctx.Merge(other.Ctx),
		Entries: make(map[Dot]V),
	}

	// Keep own entries unless the other side saw the dot
	// and dropped the entry.
	for dot, value := range k.Entries {

		if _, carried := other.Entries[dot]; !carried && other.Ctx.Contains(dot) {
			continue
		}

		merged.Entries[dot] = value
	}

	// Take over the other side's entries we have neither
	// carried nor seen-and-deleted ourselves.
	for dot, value := range other.Entries {

		if _, carried := k.Entries[dot]; carried {
			continue
		}

		if k.Ctx.Contains(dot) {
			continue
		}

		merged.Entries[dot] = value
	}

	return merged
}

// Check validates the kernel invariant that every entry's
// dot is covered by the context. It is meant for kernels
// that enter the process from the outside, e.g. parsed
// off the wire; kernels built through the operations of
// this package hold the invariant by construction.
func (k *DotKernel[V]) Check() error {

	for dot := range k.Entries {

		if !k.Ctx.Contains(dot) {
			return errors.Errorf("kernel entry carries unseen dot %s", dot.String())
		}
	}

	return nil
}
