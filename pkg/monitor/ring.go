package monitor

import (
	"github.com/cadre-dev/cadre/pkg/types"
)

// ring is a fixed-capacity sample buffer; new samples overwrite the oldest
type ring struct {
	buf  []types.MetricSample
	next int
	full bool
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]types.MetricSample, capacity)}
}

func (r *ring) add(sample types.MetricSample) {
	r.buf[r.next] = sample
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// samples returns the buffered samples oldest first
func (r *ring) samples() []types.MetricSample {
	if !r.full {
		return append([]types.MetricSample(nil), r.buf[:r.next]...)
	}
	out := make([]types.MetricSample, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}
