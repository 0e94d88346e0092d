package crdt

import (
	"reflect"
	"testing"
)

// Functions

// TestAWORMapSetGetDelete executes a white-box unit test
// on implemented Set(), Get(), Lookup() and Delete()
// functions.
func TestAWORMapSetGetDelete(t *testing.T) {

	m := InitAWORMap[string, string]()

	if m.Len() != 0 {
		t.Fatalf("[crdt.TestAWORMapSetGetDelete] Expected fresh map to be empty but got %v\n", m.Get())
	}

	m.Set("alpha", "k1", "red")
	m.Set("alpha", "k2", "blue")

	if value, found := m.Lookup("k1"); !found || (value != "red") {
		t.Fatalf("[crdt.TestAWORMapSetGetDelete] Expected k1 to hold 'red' but got '%s' (found: %v)\n", value, found)
	}

	// Overwriting a key keeps exactly one live entry.
	m.Set("alpha", "k1", "green")

	expected := map[string]string{"k1": "green", "k2": "blue"}
	if !reflect.DeepEqual(m.Get(), expected) {
		t.Fatalf("[crdt.TestAWORMapSetGetDelete] Expected %v but got %v\n", expected, m.Get())
	}

	m.Delete("k1")

	if _, found := m.Lookup("k1"); found {
		t.Fatalf("[crdt.TestAWORMapSetGetDelete] Expected k1 to be gone after delete\n")
	}

	if m.Len() != 1 {
		t.Fatalf("[crdt.TestAWORMapSetGetDelete] Expected one remaining key but got %v\n", m.Get())
	}
}

// TestAWORMapConcurrentSet executes a white-box unit test
// on the deterministic resolution of two concurrent sets
// of the same key: both replicas must agree on the winner
// after a mutual full-state merge.
func TestAWORMapConcurrentSet(t *testing.T) {

	a := InitAWORMap[string, string]()
	b := InitAWORMap[string, string]()

	// No prior contact between the replicas.
	a.Set("1", "K1", "red")
	b.Set("2", "K1", "blue")

	mergedA := a.Merge(b)
	mergedB := b.Merge(a)

	gotA := mergedA.Get()
	gotB := mergedB.Get()

	if !reflect.DeepEqual(gotA, gotB) {
		t.Fatalf("[crdt.TestAWORMapConcurrentSet] Expected identical maps on both replicas but got %v and %v\n", gotA, gotB)
	}

	// Highest dot wins; dots are ordered by replica, then
	// counter, so 2:1 beats 1:1.
	if gotA["K1"] != "blue" {
		t.Fatalf("[crdt.TestAWORMapConcurrentSet] Expected 'blue' as deterministic winner but got '%s'\n", gotA["K1"])
	}
}

// TestAWORMapAddWinsDelete executes a white-box unit test
// on a concurrent delete and set of the same key: the set
// survives the bidirectional merge.
func TestAWORMapAddWinsDelete(t *testing.T) {

	a := InitAWORMap[string, string]()
	a.Set("alpha", "K1", "red")

	b := InitAWORMap[string, string]().Merge(a)

	// a deletes K1 while b concurrently overwrites it.
	a.Delete("K1")
	b.Set("beta", "K1", "v2")

	gotA := a.Merge(b).Get()
	gotB := b.Merge(a).Get()

	if (gotA["K1"] != "v2") || (gotB["K1"] != "v2") {
		t.Fatalf("[crdt.TestAWORMapAddWinsDelete] Expected concurrent set to survive delete on both sides but got %v and %v\n", gotA, gotB)
	}
}

// TestAWORMapDeltaEquivalence executes a white-box unit
// test verifying that merging accumulated deltas from an
// empty replica yields the same Get() as merging the full
// source state.
func TestAWORMapDeltaEquivalence(t *testing.T) {

	source := InitAWORMap[string, string]()
	source.Set("alpha", "k1", "red")
	source.Set("alpha", "k2", "blue")
	source.Delete("k1")
	source.Set("alpha", "k3", "green")

	viaDelta := InitAWORMap[string, string]()
	viaDelta.MergeDeltas(source.Deltas())

	viaState := InitAWORMap[string, string]().Merge(source)

	if !reflect.DeepEqual(viaDelta.Get(), viaState.Get()) {
		t.Fatalf("[crdt.TestAWORMapDeltaEquivalence] Expected delta and full-state sync to agree but got %v and %v\n", viaDelta.Get(), viaState.Get())
	}
}

// TestAWORMapMergeLaws executes a white-box unit test on
// commutativity, associativity and idempotence of Merge()
// at the map level.
func TestAWORMapMergeLaws(t *testing.T) {

	a := InitAWORMap[string, string]()
	b := InitAWORMap[string, string]()
	c := InitAWORMap[string, string]()

	a.Set("alpha", "k1", "one")
	b.Set("beta", "k1", "two")
	b.Set("beta", "k2", "three")
	c.Set("gamma", "k3", "four")

	b = b.Merge(a)
	b.Delete("k1")
	c = c.Merge(b)
	a.Set("alpha", "k4", "five")

	if !reflect.DeepEqual(a.Merge(b).Get(), b.Merge(a).Get()) {
		t.Fatalf("[crdt.TestAWORMapMergeLaws] Expected merge to commute\n")
	}

	if !reflect.DeepEqual(a.Merge(b).Merge(c).Get(), a.Merge(b.Merge(c)).Get()) {
		t.Fatalf("[crdt.TestAWORMapMergeLaws] Expected merge to associate\n")
	}

	if !reflect.DeepEqual(a.Merge(a).Get(), a.Get()) {
		t.Fatalf("[crdt.TestAWORMapMergeLaws] Expected merge with self to be identity\n")
	}
}
