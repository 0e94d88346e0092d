package crdt

import (
	"sort"
	"testing"
)

// Functions

// sortedElements returns the live values of supplied set
// in deterministic order.
func sortedElements(s *AWORSet[string]) []string {

	elements := s.Elements()
	sort.Strings(elements)

	return elements
}

// TestAWORSetAddRemove executes a white-box unit test on
// implemented Add(), Remove() and Lookup() functions.
func TestAWORSetAddRemove(t *testing.T) {

	s := InitAWORSet[string]()

	if s.Lookup("red") {
		t.Fatalf("[crdt.TestAWORSetAddRemove] Expected 'red' not to be in empty set\n")
	}

	s.Add("alpha", "red")
	s.Add("alpha", "blue")

	if !s.Lookup("red") || !s.Lookup("blue") {
		t.Fatalf("[crdt.TestAWORSetAddRemove] Expected 'red' and 'blue' after adds but got %v\n", s.Elements())
	}

	// Re-adding replaces the old dot instead of keeping
	// two live entries for the same value.
	s.Add("alpha", "red")

	if len(s.Elements()) != 2 {
		t.Fatalf("[crdt.TestAWORSetAddRemove] Expected re-add to deduplicate but got %v\n", s.Elements())
	}

	s.Remove("red")

	if s.Lookup("red") {
		t.Fatalf("[crdt.TestAWORSetAddRemove] Expected 'red' to be gone after remove\n")
	}

	if !s.Lookup("blue") {
		t.Fatalf("[crdt.TestAWORSetAddRemove] Expected 'blue' to survive unrelated remove\n")
	}
}

// TestAWORSetAddWins executes a white-box unit test on
// the add-wins resolution of a concurrent add and remove
// of the same value.
func TestAWORSetAddWins(t *testing.T) {

	a := InitAWORSet[string]()
	a.Add("alpha", "red")

	// Both replicas observe the add.
	b := InitAWORSet[string]().Merge(a)

	// a removes while b concurrently re-adds under a
	// fresh, unobserved dot.
	a.Remove("red")
	b.Add("beta", "red")

	ab := a.Merge(b)
	ba := b.Merge(a)

	if !ab.Lookup("red") || !ba.Lookup("red") {
		t.Fatalf("[crdt.TestAWORSetAddWins] Expected concurrent add to win on both merge orders\n")
	}
}

// TestAWORSetDeltasDrain executes a white-box unit test
// on the drain semantics of implemented Deltas() function.
func TestAWORSetDeltasDrain(t *testing.T) {

	s := InitAWORSet[string]()
	s.Add("alpha", "red")

	first := s.Deltas()

	if len(first.Entries) != 1 {
		t.Fatalf("[crdt.TestAWORSetDeltasDrain] Expected drained delta to carry one entry but got %v\n", first.Entries)
	}

	// A second drain without intervening mutation
	// returns an empty kernel.
	second := s.Deltas()

	if (len(second.Entries) != 0) || (len(second.Ctx.Clock) != 0) || (len(second.Ctx.Cloud) != 0) {
		t.Fatalf("[crdt.TestAWORSetDeltasDrain] Expected second drain to be empty but got %v\n", second)
	}
}

// TestAWORSetDeltaEquivalence executes a white-box unit
// test verifying that shipping accumulated deltas yields
// the same state as merging the full source state.
func TestAWORSetDeltaEquivalence(t *testing.T) {

	source := InitAWORSet[string]()
	source.Add("alpha", "red")
	source.Add("alpha", "blue")
	source.Remove("red")
	source.Add("alpha", "green")

	viaDelta := InitAWORSet[string]()
	viaDelta.MergeDeltas(source.Deltas())

	viaState := InitAWORSet[string]().Merge(source)

	deltaElems := sortedElements(viaDelta)
	stateElems := sortedElements(viaState)

	if (len(deltaElems) != len(stateElems)) || (len(deltaElems) != 2) {
		t.Fatalf("[crdt.TestAWORSetDeltaEquivalence] Expected identical two-element states but got %v and %v\n", deltaElems, stateElems)
	}

	for i := range deltaElems {

		if deltaElems[i] != stateElems[i] {
			t.Fatalf("[crdt.TestAWORSetDeltaEquivalence] Expected identical states but got %v and %v\n", deltaElems, stateElems)
		}
	}
}

// TestAWORSetMergeDeltasIdempotent executes a white-box
// unit test verifying that applying the same delta twice
// equals applying it once.
func TestAWORSetMergeDeltasIdempotent(t *testing.T) {

	source := InitAWORSet[string]()
	source.Add("alpha", "red")
	source.Add("alpha", "blue")
	source.Remove("blue")

	delta := source.Deltas()

	once := InitAWORSet[string]()
	once.MergeDeltas(delta)

	twice := InitAWORSet[string]()
	twice.MergeDeltas(delta)
	twice.MergeDeltas(delta)

	onceElems := sortedElements(once)
	twiceElems := sortedElements(twice)

	if len(onceElems) != len(twiceElems) {
		t.Fatalf("[crdt.TestAWORSetMergeDeltasIdempotent] Expected identical states but got %v and %v\n", onceElems, twiceElems)
	}

	for i := range onceElems {

		if onceElems[i] != twiceElems[i] {
			t.Fatalf("[crdt.TestAWORSetMergeDeltasIdempotent] Expected identical states but got %v and %v\n", onceElems, twiceElems)
		}
	}
}
