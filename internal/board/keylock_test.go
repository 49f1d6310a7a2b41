package board

import (
	"sync"
	"testing"
	"time"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	locks := newKeyLock()

	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("L1")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
	if locks.size() != 0 {
		t.Errorf("size() = %d after release, want 0", locks.size())
	}
}

func TestKeyLockOppositeOrderDoesNotDeadlock(t *testing.T) {
	locks := newKeyLock()
	done := make(chan struct{})

	go func() {
		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func(flip bool) {
				defer wg.Done()
				var unlock func()
				if flip {
					unlock = locks.Lock("A", "B")
				} else {
					unlock = locks.Lock("B", "A")
				}
				unlock()
			}(i%2 == 0)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock acquiring keys in opposite order")
	}
}

func TestKeyLockDuplicateKeys(t *testing.T) {
	locks := newKeyLock()

	// Same source and target list must not self-deadlock.
	unlock := locks.Lock("L1", "L1")
	if locks.size() != 1 {
		t.Errorf("size() = %d, want 1", locks.size())
	}
	unlock()
	if locks.size() != 0 {
		t.Errorf("size() = %d after unlock, want 0", locks.size())
	}
}
