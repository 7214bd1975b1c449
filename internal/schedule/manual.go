package schedule

import (
	"container/heap"
	"time"
)

// Manual is a deterministic Scheduler driven by Advance. Callbacks due at the
// same instant run in scheduling order. Not safe for concurrent use.
type Manual struct {
	now   time.Time
	seq   uint64
	queue timerHeap
}

// NewManual returns a Manual clock starting at start. A zero start uses the
// Unix epoch so output is reproducible.
func NewManual(start time.Time) *Manual {
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	return &Manual{now: start}
}

type manualTimer struct {
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// After schedules fn to run once d of virtual time has elapsed.
func (m *Manual) After(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{at: m.now.Add(d), seq: m.seq, fn: fn}
	heap.Push(&m.queue, t)
	return t
}

// Now returns the current virtual time.
func (m *Manual) Now() time.Time { return m.now }

// Advance moves virtual time forward by d, running every callback that
// becomes due, including ones scheduled by callbacks during the advance.
func (m *Manual) Advance(d time.Duration) {
	m.AdvanceTo(m.now.Add(d))
}

// AdvanceTo moves virtual time forward to target. Moving backwards is a no-op.
func (m *Manual) AdvanceTo(target time.Time) {
	for m.queue.Len() > 0 {
		next := m.queue[0]
		if next.stopped {
			heap.Pop(&m.queue)
			continue
		}
		if next.at.After(target) {
			break
		}
		heap.Pop(&m.queue)
		if next.at.After(m.now) {
			m.now = next.at
		}
		next.fired = true
		next.fn()
	}
	if target.After(m.now) {
		m.now = target
	}
}

// Pending returns the number of callbacks still scheduled.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.queue {
		if !t.stopped {
			n++
		}
	}
	return n
}

type timerHeap []*manualTimer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*manualTimer)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
