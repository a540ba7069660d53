// Package window keeps bounded sliding windows of checked-period samples.
//
// A checked period is a fixed-duration interval (d_D) used only for windowed
// rates and service levels; the window retains the last P_D completed periods.
// Counts for the period in progress accumulate separately and only enter the
// window when the period is closed.
package window

import "fmt"

// Sample is the (numerator, denominator) count pair of one checked period.
type Sample struct {
	Num float64
	Den float64
}

// Ratio returns Num/Den, or empty when Den is zero.
func (s Sample) Ratio(empty float64) float64 {
	if s.Den == 0 {
		return empty
	}
	return s.Num / s.Den
}

// Window is a ring buffer of the last Capacity() closed samples.
//
// Thread-safety: NOT thread-safe; each replication owns its windows.
type Window struct {
	buf  []Sample
	head int // index of the oldest sample
	size int

	sumNum float64
	sumDen float64

	open Sample

	// EmptyValue is the per-period ratio used by MeanRatio for periods with no
	// denominator (e.g. 1 for service level: nobody waited too long).
	EmptyValue float64
}

// New creates a window retaining the last periods samples.
func New(periods int) (*Window, error) {
	if periods < 1 {
		return nil, fmt.Errorf("window length must be at least 1, got %d", periods)
	}
	return &Window{buf: make([]Sample, periods)}, nil
}

// Capacity returns P_D.
func (w *Window) Capacity() int { return len(w.buf) }

// Len returns how many closed samples the window holds.
func (w *Window) Len() int { return w.size }

// Record adds counts to the period in progress.
func (w *Window) Record(num, den float64) {
	w.open.Num += num
	w.open.Den += den
}

// Open returns the counts of the period in progress.
func (w *Window) Open() Sample { return w.open }

// Close ends the period in progress, pushes its sample and returns it.
// The oldest sample is dropped once the window is full.
func (w *Window) Close() Sample {
	s := w.open
	w.Push(s)
	w.open = Sample{}
	return s
}

// Push appends a closed sample directly.
func (w *Window) Push(s Sample) {
	if w.size == len(w.buf) {
		old := w.buf[w.head]
		w.sumNum -= old.Num
		w.sumDen -= old.Den
		w.buf[w.head] = s
		w.head = (w.head + 1) % len(w.buf)
	} else {
		w.buf[(w.head+w.size)%len(w.buf)] = s
		w.size++
	}
	w.sumNum += s.Num
	w.sumDen += s.Den
}

// Totals returns the summed counts over the closed window.
func (w *Window) Totals() Sample {
	return Sample{Num: w.sumNum, Den: w.sumDen}
}

// Rate returns Σnum/Σden over the closed window, 0 when Σden is 0.
func (w *Window) Rate() float64 {
	return w.Totals().Ratio(0)
}

// MeanRatio returns the mean of per-period ratios over the closed window and
// false when the window is empty.
func (w *Window) MeanRatio() (float64, bool) {
	if w.size == 0 {
		return 0, false
	}
	sum := 0.0
	for i := 0; i < w.size; i++ {
		sum += w.buf[(w.head+i)%len(w.buf)].Ratio(w.EmptyValue)
	}
	return sum / float64(w.size), true
}

// Samples returns the closed samples, oldest first.
func (w *Window) Samples() []Sample {
	out := make([]Sample, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}
