package crdt

import (
	"fmt"
	"strconv"
	"strings"
)

// Structs

// Dot is the globally unique identifier of one event:
// the replica that produced it and its position in that
// replica's strictly increasing counter sequence.
type Dot struct {
	Replica string
	Counter uint64
}

// DotContext is the causal summary guarding a dot kernel.
// Clock covers the contiguous prefix of observed dots per
// replica, Cloud holds the out-of-order exceptions that
// arrived ahead of a gap. A dot is considered seen if it
// is covered by either part.
type DotContext struct {
	Clock VClock
	Cloud map[Dot]struct{}
}

// Functions

// Less imposes the total order on dots used for the
// deterministic resolution of concurrently surviving
// map entries: first by replica, then by counter. Every
// replica orders dots identically.
func (d Dot) Less(other Dot) bool {

	if d.Replica != other.Replica {
		return d.Replica < other.Replica
	}

	return d.Counter < other.Counter
}

// String marshalls this dot into its wire representation,
// e.g. 'alpha:4'.
func (d Dot) String() string {

	return fmt.Sprintf("%s:%d", d.Replica, d.Counter)
}

// ParseDot takes in the marshalled version of a dot and
// turns it back into the structured form.
func ParseDot(raw string) (Dot, error) {

	i := strings.LastIndex(raw, ":")
	if i < 1 {
		return Dot{}, fmt.Errorf("invalid dot '%s'", raw)
	}

	counter, err := strconv.ParseUint(raw[(i+1):], 10, 64)
	if err != nil {
		return Dot{}, fmt.Errorf("invalid counter in dot '%s'", raw)
	}

	return Dot{
		Replica: raw[:i],
		Counter: counter,
	}, nil
}

// InitDotContext returns an empty initialized new
// dot context.
func InitDotContext() DotContext {

	return DotContext{
		Clock: InitVClock(),
		Cloud: make(map[Dot]struct{}),
	}
}

// Copy returns a deep copy of this dot context.
func (ctx DotContext) Copy() DotContext {

	copied := DotContext{
		Clock: ctx.Clock.Copy(),
		Cloud: make(map[Dot]struct{}, len(ctx.Cloud)),
	}

	for dot := range ctx.Cloud {
		copied.Cloud[dot] = struct{}{}
	}

	return copied
}

// Next returns the dot a fresh local event of supplied
// replica would carry. It is a pure lookup and does not
// mutate the context.
func (ctx DotContext) Next(replica string) Dot {

	return Dot{
		Replica: replica,
		Counter: (ctx.Clock[replica] + 1),
	}
}

// Insert marks supplied dot as seen by adding it to the
// exception cloud. Call Compact afterwards to restore the
// invariant that the cloud only holds dots not contiguous
// with the clock.
func (ctx DotContext) Insert(dot Dot) {

	ctx.Cloud[dot] = struct{}{}
}

// Contains answers whether supplied dot has been observed
// by this context, either covered by the contiguous clock
// prefix or present in the exception cloud.
func (ctx DotContext) Contains(dot Dot) bool {

	if ctx.Clock[dot.Replica] >= dot.Counter {
		return true
	}

	_, exists := ctx.Cloud[dot]

	return exists
}

// Compact repeatedly folds cloud dots that became
// contiguous with the clock into it and drops cloud dots
// the clock already covers. It loops until a fixpoint is
// reached because folding one dot can make another one
// contiguous.
func (ctx DotContext) Compact() {

	for changed := true; changed; {

		changed = false

		for dot := range ctx.Cloud {

			head := ctx.Clock[dot.Replica]

			if dot.Counter == (head + 1) {

				// Dot extends the contiguous prefix.
				ctx.Clock[dot.Replica] = dot.Counter
				delete(ctx.Cloud, dot)
				changed = true
			} else if dot.Counter <= head {

				// Dot is already covered by the clock.
				delete(ctx.Cloud, dot)
				changed = true
			}
		}
	}
}

// Merge combines this context with supplied one into a
// new compacted context: pairwise maximum of the clocks,
// union of the clouds.
func (ctx DotContext) Merge(other DotContext) DotContext {

	merged := ctx.Copy()

	merged.Clock.Merge(other.Clock)

	for dot := range other.Cloud {
		merged.Cloud[dot] = struct{}{}
	}

	merged.Compact()

	return merged
}
