package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	var s Set
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("same")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("expected 50, got %d", counter)
	}
	if s.Len() != 0 {
		t.Fatalf("expected locks to be released, %d left", s.Len())
	}
}

func TestLockIndependentKeys(t *testing.T) {
	s := New()
	unlockA := s.Lock("a")
	// would deadlock if keys shared a mutex
	unlockB := s.Lock("b")
	if s.Len() != 2 {
		t.Fatalf("expected 2 live locks, got %d", s.Len())
	}
	unlockB()
	unlockA()
	if s.Len() != 0 {
		t.Fatalf("expected 0 live locks, got %d", s.Len())
	}
}

func TestLockSkipsEmptyAndRepeatedKeys(t *testing.T) {
	s := New()
	// a repeated key would self-deadlock if taken twice
	unlock := s.Lock("a", "", "a")
	if s.Len() != 1 {
		t.Fatalf("expected 1 live lock, got %d", s.Len())
	}
	unlock()
	if s.Len() != 0 {
		t.Fatalf("expected 0 live locks, got %d", s.Len())
	}
}

func TestLockOverlappingSetsInOppositeOrder(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Lock("pending_1", "prov-1")()
		}()
		go func() {
			defer wg.Done()
			s.Lock("prov-1", "pending_1")()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("overlapping lock sets deadlocked")
	}
	if s.Len() != 0 {
		t.Fatalf("expected 0 live locks, got %d", s.Len())
	}
}

func TestLockBlocksWhileAnyKeyHeld(t *testing.T) {
	s := New()
	unlock := s.Lock("prov-1")

	acquired := make(chan struct{})
	go func() {
		s.Lock("pending_1", "prov-1")()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("lock taken while prov-1 was held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatalf("lock never acquired after release")
	}
}
