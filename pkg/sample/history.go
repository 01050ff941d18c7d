package sample

import "github.com/itohio/golux/pkg/mathx"

// DefaultHistorySize is the number of samples the filter averages over.
const DefaultHistorySize = 10

// History is a fixed-capacity ring buffer of the most recent raw samples.
// All slots start at zero; each Insert overwrites the oldest slot.
type History struct {
	buf []uint16
	pos int
}

// NewHistory creates a zero-filled history holding size samples.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]uint16, size)}
}

// Insert stores v at the current position and advances it modulo the capacity.
func (h *History) Insert(v uint16) {
	h.buf[h.pos] = v
	h.pos++
	h.pos %= len(h.buf)
}

// Len returns the capacity of the history.
func (h *History) Len() int { return len(h.buf) }

// Values returns a copy of the slots in storage order.
func (h *History) Values() []uint16 {
	out := make([]uint16, len(h.buf))
	copy(out, h.buf)
	return out
}

// Trimmed is the result of a trimmed mean computation.
type Trimmed struct {
	Mean      uint16 // Integer mean of all slots
	Deviation uint16 // Half-width of the accepted band
	Kept      int    // Number of slots within the band
	Value     uint16 // Mean of the kept slots (0 when none are kept)
}

// TrimmedMean averages the history after dropping slots further than
// deviationPercent of the raw mean from it.
func (h *History) TrimmedMean(deviationPercent int) Trimmed {
	return TrimmedMean(h.buf, deviationPercent)
}

// TrimmedMean computes the outlier-rejecting mean of values. The band is
// [mean-dev, mean+dev] inclusive with dev = mean*deviationPercent/100, all in
// integer arithmetic. An empty band yields 0.
func TrimmedMean(values []uint16, deviationPercent int) Trimmed {
	if len(values) == 0 {
		return Trimmed{}
	}

	var sum int
	for _, v := range values {
		sum += int(v)
	}
	mean := sum / len(values)
	dev := mean * deviationPercent / 100

	var kept, keptSum int
	for _, v := range values {
		if mathx.Between(int(v), mean-dev, mean+dev) {
			keptSum += int(v)
			kept++
		}
	}

	return Trimmed{
		Mean:      uint16(mean),
		Deviation: uint16(dev),
		Kept:      kept,
		Value:     uint16(keptSum / mathx.MaxOne(kept)),
	}
}
