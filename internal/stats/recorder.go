package stats

import (
	"sync"
	"time"
)

// Recorder keeps the most recent durations in a fixed-size ring.
type Recorder struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
	count   uint64
}

func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 1
	}
	return &Recorder{samples: make([]time.Duration, size)}
}

func (r *Recorder) Observe(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples[r.next] = d
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
	r.count++
}

type Summary struct {
	Count    uint64  `json:"count"`
	MeanMS   float64 `json:"mean_ms"`
	MedianMS float64 `json:"median_ms"`
}

// Summary describes the retained samples. Count is the total number observed.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	ms := make([]float64, n)
	for i := 0; i < n; i++ {
		ms[i] = float64(r.samples[i]) / float64(time.Millisecond)
	}
	count := r.count
	r.mu.Unlock()

	s := Summary{Count: count}
	if mean, err := Mean(ms); err == nil {
		s.MeanMS = mean
	}
	if median, err := Median(ms); err == nil {
		s.MedianMS = median
	}
	return s
}
