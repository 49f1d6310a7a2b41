package board

import (
	"slices"
	"sync"
)

// keyLock serializes work per key. Entries are reference counted and
// removed when the last holder unlocks, so the map stays bounded by the
// number of keys in use.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyEntry)}
}

// Lock acquires every distinct key in sorted order and returns the release
// function. Sorting keeps two callers locking {A, B} and {B, A} from
// deadlocking.
func (k *keyLock) Lock(keys ...string) (unlock func()) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	entries := make([]*keyEntry, 0, len(sorted))
	for _, key := range sorted {
		k.mu.Lock()
		e, ok := k.locks[key]
		if !ok {
			e = &keyEntry{}
			k.locks[key] = e
		}
		e.refs++
		k.mu.Unlock()

		e.mu.Lock()
		entries = append(entries, e)
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()

			k.mu.Lock()
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(k.locks, sorted[i])
			}
			k.mu.Unlock()
		}
	}
}

func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
