package crdt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Constants

// Relations two vector clocks can be in to each other.
const (
	Equal Relation = iota
	Less
	Greater
	Concurrent
)

// Structs

// Relation expresses the causal ordering between
// two vector clocks.
type Relation int

// VClock tracks the highest contiguous counter this
// replica has observed from every other replica. It is
// the basic building block for reasoning about causality
// between events in a convergent system.
type VClock map[string]uint64

// Functions

// InitVClock returns an empty initialized new vector clock.
func InitVClock() VClock {

	return make(VClock)
}

// Inc increments the counter of supplied replica by one
// and returns the new value.
func (vc VClock) Inc(replica string) uint64 {

	vc[replica] = vc[replica] + 1

	return vc[replica]
}

// Copy returns a deep copy of this vector clock so that
// a snapshot can leave the owning replica's critical
// section without aliasing live state.
func (vc VClock) Copy() VClock {

	copied := make(VClock, len(vc))
	for replica, counter := range vc {
		copied[replica] = counter
	}

	return copied
}

// Merge folds supplied vector clock into this one by
// taking the pairwise maximum of all entries.
func (vc VClock) Merge(other VClock) {

	for replica, counter := range other {

		if counter > vc[replica] {
			vc[replica] = counter
		}
	}
}

// Compare determines the causal relation between this
// vector clock and the supplied one. Two clocks are
// Concurrent if each contains at least one entry ahead
// of the other.
func (vc VClock) Compare(other VClock) Relation {

	rel := Equal

	// Walk the union of replicas present in either clock
	// and track how the entries relate pairwise.
	seen := make(map[string]bool, (len(vc) + len(other)))

	for replica := range vc {
		seen[replica] = true
	}
	for replica := range other {
		seen[replica] = true
	}

	for replica := range seen {

		mine := vc[replica]
		theirs := other[replica]

		switch {

		case (mine > theirs) && (rel == Less):
			return Concurrent

		case (mine > theirs):
			rel = Greater

		case (mine < theirs) && (rel == Greater):
			return Concurrent

		case (mine < theirs):
			rel = Less
		}
	}

	return rel
}

// DominatedBy answers whether every event summarized
// by this vector clock is also covered by the supplied
// one, i.e. this clock carries no information the other
// has not seen yet.
func (vc VClock) DominatedBy(other VClock) bool {

	rel := vc.Compare(other)

	return (rel == Equal) || (rel == Less)
}

// String marshalls this vector clock into its wire
// representation of semicolon-separated replica-counter
// pairs, e.g. 'alpha:3;beta:1'. Entries are sorted by
// replica so that the output is deterministic.
func (vc VClock) String() string {

	replicas := make([]string, 0, len(vc))
	for replica := range vc {
		replicas = append(replicas, replica)
	}
	sort.Strings(replicas)

	pairs := make([]string, 0, len(vc))
	for _, replica := range replicas {
		pairs = append(pairs, fmt.Sprintf("%s:%d", replica, vc[replica]))
	}

	return strings.Join(pairs, ";")
}

// ParseVClock takes in the marshalled version of a vector
// clock and turns it back into the structured form. An
// empty string denotes the empty clock.
func ParseVClock(raw string) (VClock, error) {

	vc := InitVClock()

	if raw == "" {
		return vc, nil
	}

	// Split at semicola into replica-counter pairs.
	pairs := strings.Split(raw, ";")

	for _, pair := range pairs {

		// Split each pair at last colon. Replica names
		// are opaque but must not contain delimiters.
		i := strings.LastIndex(pair, ":")
		if i < 1 {
			return nil, fmt.Errorf("invalid vector clock element '%s'", pair)
		}

		counter, err := strconv.ParseUint(pair[(i+1):], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid counter in vector clock element '%s'", pair)
		}

		vc[pair[:i]] = counter
	}

	return vc, nil
}
