package framequeue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"

	"balltrack/internal/frame"
)

func TestFIFOOrder(t *testing.T) {
	q := New(4)
	for i := int64(1); i <= 3; i++ {
		q.Push(frame.Frame{Seq: i})
	}
	for want := int64(1); want <= 3; want++ {
		f, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if f.Seq != want {
			t.Fatalf("Pop seq=%d, want %d", f.Seq, want)
		}
	}
}

func TestDropOldestWhenFull(t *testing.T) {
	q := New(3)
	for i := int64(1); i <= 5; i++ {
		kept := q.Push(frame.Frame{Seq: i})
		if i <= 3 && !kept {
			t.Fatalf("push %d unexpectedly dropped", i)
		}
		if i > 3 && kept {
			t.Fatalf("push %d should report a drop", i)
		}
	}
	st := q.Stats()
	if st.Depth != 3 || st.Dropped != 2 || st.Pushed != 5 || st.HighWater != 3 {
		t.Fatalf("unexpected stats %+v", st)
	}
	for _, want := range []int64{3, 4, 5} {
		f, _ := q.Pop(context.Background())
		if f.Seq != want {
			t.Fatalf("Pop seq=%d, want %d", f.Seq, want)
		}
	}
}

func TestBoundUnderFastProducer(t *testing.T) {
	const k = 4
	q := New(k)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	var last int64
	go func() {
		defer wg.Done()
		for {
			f, err := q.Pop(ctx)
			if err != nil {
				return
			}
			if f.Seq <= last {
				t.Errorf("out of order: %d after %d", f.Seq, last)
			}
			last = f.Seq
			time.Sleep(time.Millisecond) // slow consumer
		}
	}()

	for i := int64(1); i <= 2000; i++ {
		start := time.Now()
		q.Push(frame.Frame{Seq: i})
		if d := time.Since(start); d > 100*time.Millisecond {
			t.Fatalf("push %d blocked for %s", i, d)
		}
		if n := q.Len(); n > k {
			t.Fatalf("depth %d exceeds capacity %d", n, k)
		}
	}
	q.Close()
	wg.Wait()

	st := q.Stats()
	if st.HighWater > k {
		t.Fatalf("high water %d exceeds capacity %d", st.HighWater, k)
	}
	if st.Dropped == 0 {
		t.Fatalf("expected drops with a slow consumer")
	}
}

func TestCloseUnblocksWaiter(t *testing.T) {
	defer test.CheckRoutines(t)()

	q := New(2)
	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()
	q.Close() // idempotent

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Pop err=%v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop still blocked after Close")
	}
	if q.Push(frame.Frame{Seq: 1}) {
		t.Fatalf("push after close should be rejected")
	}
}

func TestPopHonoursContext(t *testing.T) {
	defer test.CheckRoutines(t)()

	q := New(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Pop err=%v, want deadline exceeded", err)
	}
}
