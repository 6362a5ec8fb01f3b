package value

// Iterator holds the cursor state for the Iterator variant:
// a target Value, a cached key snapshot (for hashes, taken at construction),
// the current index, and the element count (array length, hash snapshot
// length, or 1 for a scalar target).
type Iterator struct {
	target   Value
	hashKeys []string // snapshot, nil unless target is a Hash
	index    int
	count    int
}

// NewIteratorState constructs the cursor for target, snapshotting hash keys
// immediately so later mutation of the hash cannot change what is iterated.
func NewIteratorState(target Value) *Iterator {
	it := &Iterator{target: target, index: 0}
	switch target.Kind() {
	case KindArray:
		arr, _ := target.AsArray()
		it.count = arr.Len()
	case KindHash:
		h, _ := target.AsHash()
		it.hashKeys = h.Keys()
		it.count = len(it.hashKeys)
	default:
		it.count = 1
	}
	return it
}

// HasNext reports whether Next would yield another element.
func (it *Iterator) HasNext() bool {
	return it.index < it.count
}

// Next advances the cursor and returns the next element: the array element,
// the next snapshotted hash key (as Text), or the scalar target itself
// (exactly once). Returns Empty and false once exhausted.
func (it *Iterator) Next() (Value, bool) {
	if !it.HasNext() {
		return Empty(), false
	}
	i := it.index
	it.index++
	switch it.target.Kind() {
	case KindArray:
		arr, _ := it.target.AsArray()
		v, _ := arr.Get(i)
		return v, true
	case KindHash:
		return Text(it.hashKeys[i]), true
	default:
		return it.target, true
	}
}

// Remaining returns how many elements are left to yield.
func (it *Iterator) Remaining() int {
	return it.count - it.index
}
