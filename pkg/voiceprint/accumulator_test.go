package voiceprint

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
)

func fixedID(id string) Option {
	return WithIDGenerator(func() string { return id })
}

func TestAccumulatorGrowsAudio(t *testing.T) {
	e := newFakeEngine()
	e.progress = []float32{10, 20}
	acc := NewAccumulator(e)
	ctx := context.Background()

	if got := acc.Feed(ctx, "c1", silentWAV(100)); got.Progress != 10 || got.Done() {
		t.Fatalf("first Feed = %+v", got)
	}
	if got := acc.Feed(ctx, "c1", silentWAV(50)); got.Progress != 20 {
		t.Fatalf("second Feed = %+v", got)
	}
	if len(e.enrolled) != 2 || e.enrolled[0] != 100 || e.enrolled[1] != 150 {
		t.Fatalf("Enroll saw %v samples, want [100 150]", e.enrolled)
	}
	if e.profOpened != e.profClosed {
		t.Fatalf("profilers opened %d closed %d", e.profOpened, e.profClosed)
	}
}

func TestAccumulatorProgressNeverDecreases(t *testing.T) {
	e := newFakeEngine()
	e.progress = []float32{40, 15, 55, 0}
	acc := NewAccumulator(e)
	ctx := context.Background()

	want := []float32{40, 40, 55, 55}
	for i, w := range want {
		got := acc.Feed(ctx, "c1", silentWAV(10))
		if got.Progress != w {
			t.Fatalf("Feed %d progress = %v, want %v", i, got.Progress, w)
		}
	}
	if acc.Progress("c1") != 55 {
		t.Fatalf("Progress = %v, want 55", acc.Progress("c1"))
	}
}

func TestAccumulatorIgnoresInvalidProgress(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	e := newFakeEngine()
	e.progress = []float32{40, nan, -5, inf, 60}
	acc := NewAccumulator(e)
	ctx := context.Background()

	want := []float32{40, 40, 40, 40, 60}
	for i, w := range want {
		got := acc.Feed(ctx, "c1", silentWAV(10))
		if got.Done() {
			t.Fatalf("Feed %d completed enrollment: %+v", i, got)
		}
		if got.Progress != w {
			t.Fatalf("Feed %d progress = %v, want %v", i, got.Progress, w)
		}
	}
}

func TestAccumulatorEmptyBuffer(t *testing.T) {
	e := newFakeEngine()
	e.progress = []float32{30, 5}
	acc := NewAccumulator(e)
	ctx := context.Background()

	acc.Feed(ctx, "c1", silentWAV(10))
	if got := acc.Feed(ctx, "c1", nil); got.Progress < 30 {
		t.Fatalf("empty Feed decreased progress to %v", got.Progress)
	}
	if got := acc.Feed(ctx, "fresh", nil); got.Progress != 0 || e.profOpened != 2 {
		t.Fatalf("empty Feed on a fresh conversation = %+v (profilers %d)", got, e.profOpened)
	}
}

func TestAccumulatorCompletion(t *testing.T) {
	e := newFakeEngine()
	e.progress = []float32{60, 130}
	acc := NewAccumulator(e, fixedID("u-1"))
	ctx := context.Background()

	acc.Feed(ctx, "c1", silentWAV(10))
	got := acc.Feed(ctx, "c1", silentWAV(10))
	if !got.Done() || got.ID != "u-1" || got.Progress != 100 || string(got.Profile) != "profile" {
		t.Fatalf("completing Feed = %+v", got)
	}
	if acc.Pending() != 0 || acc.Progress("c1") != 0 {
		t.Fatal("state should be dropped after completion")
	}

	// A new Feed starts over with only the new audio.
	acc.Feed(ctx, "c1", silentWAV(7))
	if last := e.enrolled[len(e.enrolled)-1]; last != 7 {
		t.Fatalf("restarted enrollment saw %d samples, want 7", last)
	}
}

func TestAccumulatorMalformedChunkDiscarded(t *testing.T) {
	e := newFakeEngine()
	e.progress = []float32{25, 50}
	acc := NewAccumulator(e)
	ctx := context.Background()

	acc.Feed(ctx, "c1", silentWAV(10))
	got := acc.Feed(ctx, "c1", make([]byte, 16000))
	if got.Progress != 25 || got.Done() {
		t.Fatalf("malformed Feed = %+v", got)
	}
	acc.Feed(ctx, "c1", silentWAV(10))
	if e.enrolled[len(e.enrolled)-1] != 20 {
		t.Fatalf("malformed bytes leaked into collected audio: %v", e.enrolled)
	}
}

func TestAccumulatorRawPCMNeverEnrolls(t *testing.T) {
	e := newFakeEngine()
	e.progress = []float32{100}
	acc := NewAccumulator(e)
	for range 3 {
		if got := acc.Feed(context.Background(), "c1", make([]byte, 16000)); got.Done() || got.Progress != 0 {
			t.Fatalf("headerless PCM produced %+v", got)
		}
	}
	if e.profOpened != 0 {
		t.Fatalf("profiler opened %d times for unusable audio", e.profOpened)
	}
}

func TestAccumulatorEngineFailures(t *testing.T) {
	e := newFakeEngine()
	e.progress = []float32{35}
	acc := NewAccumulator(e)
	ctx := context.Background()
	acc.Feed(ctx, "c1", silentWAV(10))

	e.enrollErr = errBoom
	if got := acc.Feed(ctx, "c1", silentWAV(10)); got.Progress != 35 {
		t.Fatalf("Feed after enroll error = %+v, want last progress", got)
	}

	e.enrollErr = nil
	e.progress = []float32{100}
	e.enrolled = nil
	e.exportErr = errBoom
	if got := acc.Feed(ctx, "c1", silentWAV(10)); got.Done() {
		t.Fatalf("Feed with export error = %+v, want not done", got)
	}
	if acc.Pending() != 1 {
		t.Fatal("state must survive a failed export")
	}
}

func TestAccumulatorReset(t *testing.T) {
	e := newFakeEngine()
	e.progress = []float32{70}
	acc := NewAccumulator(e)
	acc.Feed(context.Background(), "c1", silentWAV(10))
	acc.Reset("c1")
	if acc.Progress("c1") != 0 || acc.Pending() != 0 {
		t.Fatal("Reset should drop state")
	}
}

func TestAccumulatorConcurrentConversations(t *testing.T) {
	e := newFakeEngine()
	e.progress = []float32{100}
	var mu sync.Mutex
	n := 0
	acc := NewAccumulator(e, WithIDGenerator(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("u-%d", n)
	}))

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i] = acc.Feed(context.Background(), fmt.Sprintf("c%d", i), silentWAV(10)).ID
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		if id == "" || seen[id] {
			t.Fatalf("ids not unique and non-empty: %v", ids)
		}
		seen[id] = true
	}
}
