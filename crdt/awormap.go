package crdt

// Structs

// KeyVal pairs a key with its value for storage inside an
// AWORSet. Two pairs are considered the same element when
// their keys are equal, regardless of the values, which
// is what turns the set into a map.
type KeyVal[K comparable, V any] struct {
	Key K
	Val V
}

// AWORMap is an add-wins observed-removed map: a thin
// key-equality projection over an AWORSet of key-value
// pairs. Setting a key removes the previously observed
// pairs for that key and adds a fresh one; concurrent
// sets of the same key on different replicas both survive
// the merge and are resolved deterministically on read.
type AWORMap[K comparable, V any] struct {
	keys *AWORSet[KeyVal[K, V]]
}

// Functions

// InitAWORMap returns an empty initialized new add-wins
// map.
func InitAWORMap[K comparable, V any]() *AWORMap[K, V] {

	return &AWORMap[K, V]{
		keys: InitAWORSetFunc[KeyVal[K, V]](func(a KeyVal[K, V], b KeyVal[K, V]) bool {
			return a.Key == b.Key
		}),
	}
}

// Get folds all live entries into a plain key-value map.
// If several entries for one key survived a merge of
// concurrent sets, the one carrying the highest dot wins.
// That tie-break only depends on dots, so every replica
// holding the same set of dots returns the identical map.
func (m *AWORMap[K, V]) Get() map[K]V {

	result := make(map[K]V)
	winner := make(map[K]Dot)

	for dot, pair := range m.keys.Kernel().Entries {

		if prev, exists := winner[pair.Key]; exists && dot.Less(prev) {
			continue
		}

		winner[pair.Key] = dot
		result[pair.Key] = pair.Val
	}

	return result
}

// Lookup returns the live value for supplied key, subject
// to the same deterministic tie-break as Get.
func (m *AWORMap[K, V]) Lookup(key K) (V, bool) {

	var value V
	var dot Dot

	found := false

	for candidate, pair := range m.keys.Kernel().Entries {

		if pair.Key != key {
			continue
		}

		if found && candidate.Less(dot) {
			continue
		}

		dot = candidate
		value = pair.Val
		found = true
	}

	return value, found
}

// Len returns the number of live keys.
func (m *AWORMap[K, V]) Len() int {

	return len(m.Get())
}

// Set binds supplied key to supplied value as an event of
// supplied replica: the previously observed pairs of the
// key are removed, a fresh pair is added.
func (m *AWORMap[K, V]) Set(replica string, key K, value V) {

	m.keys.Add(replica, KeyVal[K, V]{Key: key, Val: value})
}

// Delete removes all observed pairs of supplied key.
// Unobserved concurrent sets of the same key survive a
// later merge: add wins.
func (m *AWORMap[K, V]) Delete(key K) {

	var zero V

	m.keys.Remove(KeyVal[K, V]{Key: key, Val: zero})
}

// Merge combines this map with supplied one into a new
// map via the underlying set join.
func (m *AWORMap[K, V]) Merge(other *AWORMap[K, V]) *AWORMap[K, V] {

	return &AWORMap[K, V]{
		keys: m.keys.Merge(other.keys),
	}
}

// Deltas drains the accumulated delta kernel of the
// underlying set.
func (m *AWORMap[K, V]) Deltas() *DotKernel[KeyVal[K, V]] {

	return m.keys.Deltas()
}

// MergeDeltas folds a delta kernel received from a peer
// into the underlying set.
func (m *AWORMap[K, V]) MergeDeltas(delta *DotKernel[KeyVal[K, V]]) {

	m.keys.MergeDeltas(delta)
}
