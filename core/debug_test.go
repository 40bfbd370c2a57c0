package core

import (
	"sync"
	"testing"
)

func TestTimingRingKeepsNewest(t *testing.T) {
	ClearTimingRing()
	defer ClearTimingRing()

	for i := uint32(1); i <= TimingRingSize+5; i++ {
		RecordTiming(EvtPulse, 0, i, i, 0)
	}
	events := TimingEvents()
	if len(events) != TimingRingSize {
		t.Fatalf("got %d events, want %d", len(events), TimingRingSize)
	}
	if events[0].Clock != 6 || events[len(events)-1].Clock != TimingRingSize+5 {
		t.Errorf("oldest/newest clock: got %d/%d, want 6/%d",
			events[0].Clock, events[len(events)-1].Clock, TimingRingSize+5)
	}
}

func TestRecordTimingConcurrent(t *testing.T) {
	ClearTimingRing()
	defer ClearTimingRing()

	shared := NewShared(0)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(inside bool) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if inside {
					// Recording from within a critical section must not deadlock
					g := shared.Lock()
					*g.Value()++
					RecordTiming(EvtRetarget, 0, uint32(i), 0, 0)
					g.Unlock()
				} else {
					RecordTiming(EvtRatio, 0, uint32(i), 0, 0)
				}
			}
		}(w%2 == 0)
	}
	wg.Wait()

	events := TimingEvents()
	if len(events) != TimingRingSize {
		t.Errorf("got %d events, want %d", len(events), TimingRingSize)
	}
	for _, evt := range events {
		if evt.EventType != EvtRetarget && evt.EventType != EvtRatio {
			t.Errorf("torn event %+v", evt)
		}
	}
	if got := shared.Load(); got != 2000 {
		t.Errorf("shared count: got %d, want 2000", got)
	}
}
