package clock

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/danmuck/enginecore/internal/testutil/testlog"
)

type scriptedTicks struct {
	vals []int64
	i    int
}

func (s *scriptedTicks) Ticks() int64 {
	v := s.vals[s.i]
	if s.i < len(s.vals)-1 {
		s.i++
	}
	return v
}

func TestRealTimeClampsRegressionAndSleep(t *testing.T) {
	testlog.Start(t)
	tr := NewTracker(&scriptedTicks{vals: []int64{0, 100, 99, 5000}})

	got := make([]int64, 0, 4)
	for i := 0; i < 4; i++ {
		got = append(got, tr.RealTime())
	}
	want := []int64{0, 100, 100, 350}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("real time = %v, want %v", got, want)
		}
	}
}

func TestRealTimeUnchangedTicksReturnsCachedValue(t *testing.T) {
	testlog.Start(t)
	tr := NewTracker(&scriptedTicks{vals: []int64{40, 40, 40}})
	for i := 0; i < 2; i++ {
		if got := tr.RealTime(); got != 40 {
			t.Fatalf("real time = %d, want 40", got)
		}
	}
	if got := tr.LastTicks(); got != 40 {
		t.Fatalf("last ticks = %d, want 40", got)
	}
}

func TestRealTimeNonDecreasingForArbitrarySources(t *testing.T) {
	testlog.Start(t)
	rng := rand.New(rand.NewSource(7))
	vals := make([]int64, 2000)
	var raw int64
	for i := range vals {
		// Mix small steps, regressions and sleep-sized jumps.
		switch rng.Intn(5) {
		case 0:
			raw -= rng.Int63n(50)
		case 1:
			raw += rng.Int63n(100000)
		default:
			raw += rng.Int63n(40)
		}
		vals[i] = raw
	}
	tr := NewTracker(&scriptedTicks{vals: vals})

	prev := tr.RealTime()
	for i := 1; i < len(vals); i++ {
		cur := tr.RealTime()
		if cur < prev {
			t.Fatalf("step %d: regression %d -> %d", i, prev, cur)
		}
		if cur-prev > MaxStep {
			t.Fatalf("step %d: advanced %d, more than %d", i, cur-prev, MaxStep)
		}
		prev = cur
	}
}

func TestRealTimeConcurrentReadersNeverSeeRegression(t *testing.T) {
	testlog.Start(t)
	var raw atomic.Int64
	tr := NewTracker(TickFunc(func() int64 { return raw.Add(1) }))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := int64(0)
			for i := 0; i < 500; i++ {
				cur := tr.RealTime()
				if cur < prev {
					t.Errorf("regression %d -> %d", prev, cur)
					return
				}
				prev = cur
			}
		}()
	}
	wg.Wait()
}
