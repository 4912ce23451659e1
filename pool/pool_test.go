package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestLockRelease(t *testing.T) {
	p := New([]int{1, 2})

	g1, err := p.Lock()
	if err != nil {
		t.Fatal(err)
	}
	g2, err := p.Lock()
	if err != nil {
		t.Fatal(err)
	}
	if g1.Value() == g2.Value() {
		t.Errorf("two guards hold the same value %d", g1.Value())
	}
	if n := p.Len(); n != 0 {
		t.Errorf("got %d available, want 0", n)
	}

	g1.Release()
	g1.Release()
	if n := p.Len(); n != 1 {
		t.Errorf("got %d available after double release, want 1", n)
	}
	g2.Release()
	if n := p.Len(); n != 2 {
		t.Errorf("got %d available, want 2", n)
	}
}

func TestLockBlocks(t *testing.T) {
	p := New([]string{"conn"})

	g, err := p.Lock()
	if err != nil {
		t.Fatal(err)
	}

	got := make(chan string)
	go func() {
		g2, err := p.Lock()
		if err != nil {
			t.Error(err)
			close(got)
			return
		}
		defer g2.Release()
		got <- g2.Value()
	}()

	select {
	case <-got:
		t.Fatal("Lock returned while the only value was held")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release()

	select {
	case v := <-got:
		if v != "conn" {
			t.Errorf("got %q, want conn", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Lock did not return after Release")
	}
}

func TestConcurrentUse(t *testing.T) {
	const (
		nvals    = 3
		nworkers = 20
	)

	var (
		p      = New([]int{0, 1, 2})
		mu     sync.Mutex
		inUse  = make(map[int]bool)
		maxUse int
		wg     sync.WaitGroup
	)

	for i := 0; i < nworkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.With(func(v int) error {
				mu.Lock()
				if inUse[v] {
					t.Errorf("value %d handed out twice", v)
				}
				inUse[v] = true
				if len(inUse) > maxUse {
					maxUse = len(inUse)
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				delete(inUse, v)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if maxUse > nvals {
		t.Errorf("%d values in use at once, want at most %d", maxUse, nvals)
	}
	if n := p.Len(); n != nvals {
		t.Errorf("got %d available at the end, want %d", n, nvals)
	}
}

func TestWithError(t *testing.T) {
	p := New([]int{1})
	want := errors.New("boom")
	err := p.With(func(int) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("got %v, want %v", err, want)
	}
	if n := p.Len(); n != 1 {
		t.Errorf("got %d available, want 1", n)
	}
}

func TestPoison(t *testing.T) {
	p := New([]int{1})

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("panic did not propagate out of With")
			}
		}()
		p.With(func(int) error { panic("holder died") })
	}()

	_, err := p.Lock()
	if !errors.Is(err, ErrPoisoned) {
		t.Errorf("got %v, want ErrPoisoned", err)
	}
}

func TestPoisonWakesWaiters(t *testing.T) {
	p := New([]int{1})

	held := make(chan struct{})
	go func() {
		defer func() { recover() }()
		p.With(func(int) error {
			close(held)
			time.Sleep(20 * time.Millisecond)
			panic("holder died")
		})
	}()
	<-held

	done := make(chan error)
	go func() {
		_, err := p.Lock()
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrPoisoned) {
			t.Errorf("got %v, want ErrPoisoned", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter not woken by poisoning")
	}
}
