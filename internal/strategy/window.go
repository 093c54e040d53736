package strategy

// windowMargin keeps a few extra samples beyond the long period so the
// long average never starves right after an eviction.
const windowMargin = 5

// Window is a fixed-size sliding window of recent prices. Oldest
// samples are evicted as new ones arrive; insertion order matters.
type Window struct {
	prices []float64
	limit  int
}

// NewWindow creates a window sized for the given long moving-average period.
func NewWindow(longPeriod int) *Window {
	if longPeriod <= 0 {
		longPeriod = 1
	}
	limit := longPeriod + windowMargin
	return &Window{
		prices: make([]float64, 0, limit),
		limit:  limit,
	}
}

// Push appends a price, evicting the oldest sample when full.
func (w *Window) Push(price float64) {
	if len(w.prices) >= w.limit {
		copy(w.prices, w.prices[1:])
		w.prices = w.prices[:len(w.prices)-1]
	}
	w.prices = append(w.prices, price)
}

// Len returns the number of buffered samples.
func (w *Window) Len() int {
	return len(w.prices)
}

// Mean returns the average of the last n samples. The second return is
// false when fewer than n samples exist.
func (w *Window) Mean(n int) (float64, bool) {
	if n <= 0 || len(w.prices) < n {
		return 0, false
	}
	sum := 0.0
	for _, p := range w.prices[len(w.prices)-n:] {
		sum += p
	}
	return sum / float64(n), true
}
