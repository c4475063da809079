// SPDX-License-Identifier: MIT
package pool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolRunsTasks(t *testing.T) {
	p := New(4, 64)

	var ran atomic.Int64
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		}); err != nil {
			wg.Done()
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()
	p.Close()

	if ran.Load() != 50 || p.Submitted() != 50 || p.Completed() != 50 {
		t.Errorf("ran/submitted/completed = %d/%d/%d, want 50 each", ran.Load(), p.Submitted(), p.Completed())
	}
}

func TestPoolQueueFull(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(func() { close(started); <-release }); err != nil {
		t.Fatal(err)
	}
	<-started // worker busy, queue empty

	if err := p.Submit(func() {}); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("third Submit = %v, want ErrQueueFull", err)
	}
	close(release)
}

func TestPoolClosed(t *testing.T) {
	p := New(2, 2)
	p.Close()
	p.Close()

	if err := p.Submit(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
}

func TestPoolSurvivesPanic(t *testing.T) {
	p := New(1, 4)

	done := make(chan struct{})
	_ = p.Submit(func() { panic("boom") })
	_ = p.Submit(func() { close(done) })
	<-done
	p.Close()

	if p.Panicked() != 1 || p.Completed() != 2 {
		t.Errorf("panicked/completed = %d/%d, want 1/2", p.Panicked(), p.Completed())
	}
}

func TestGo(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	got := make(chan int, 1)
	if err := Go(p, func() int { return 42 }, func(v int) { got <- v }); err != nil {
		t.Fatal(err)
	}
	if v := <-got; v != 42 {
		t.Errorf("callback got %d, want 42", v)
	}
}
