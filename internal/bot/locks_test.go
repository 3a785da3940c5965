package bot

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWithLockSerializesSamePhone(t *testing.T) {
	m := NewLockManager()

	var inside atomic.Int32
	var overlaps atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.WithLock("5511999990000", func() error {
				if inside.Add(1) > 1 {
					overlaps.Add(1)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if overlaps.Load() != 0 {
		t.Fatalf("detected %d overlapping critical sections for the same phone", overlaps.Load())
	}
}

func TestWithLockParallelAcrossPhones(t *testing.T) {
	m := NewLockManager()

	release := make(chan struct{})
	holding := make(chan struct{})

	go m.WithLock("phone-a", func() error {
		close(holding)
		<-release
		return nil
	})
	<-holding

	// A different phone must not queue behind phone-a.
	done := make(chan struct{})
	go m.WithLock("phone-b", func() error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock for a different phone blocked")
	}
	close(release)
}

func TestWithLockEvictsIdleEntries(t *testing.T) {
	m := NewLockManager()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			phone := string(rune('a' + n%3))
			m.WithLock(phone, func() error { return nil })
		}(i)
	}
	wg.Wait()

	if got := m.Len(); got != 0 {
		t.Fatalf("expected all lock entries to be evicted, %d remain", got)
	}
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	m := NewLockManager()

	func() {
		defer func() { recover() }()
		m.WithLock("phone", func() error {
			panic("boom")
		})
	}()

	// The lock must be free and the entry evicted.
	done := make(chan struct{})
	go m.WithLock("phone", func() error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock still held after panic")
	}

	if got := m.Len(); got != 0 {
		t.Fatalf("expected eviction after panic, %d entries remain", got)
	}
}

func TestWithLockPropagatesError(t *testing.T) {
	m := NewLockManager()

	want := errors.New("engine failure")
	if err := m.WithLock("phone", func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected error to propagate, got %v", err)
	}
}
