package congestion

import "math"

// CongestionWindow is the number of DATA cells a hop may have unacknowledged.
// The value never drops below the configured minimum or rises above the
// configured maximum.
type CongestionWindow struct {
	params CwndParams
	value  uint32
	full   bool
}

// NewCongestionWindow returns a window at its initial value.
func NewCongestionWindow(params CwndParams) *CongestionWindow {
	w := &CongestionWindow{params: params}
	w.Set(params.Init)
	return w
}

// Get returns the current window.
func (w *CongestionWindow) Get() uint32 { return w.value }

// Min returns the window floor.
func (w *CongestionWindow) Min() uint32 { return w.params.Min }

// SendmeInc returns how many cells one SENDME acknowledges.
func (w *CongestionWindow) SendmeInc() uint32 { return w.params.SendmeInc }

// Increment returns the steady-state step.
func (w *CongestionWindow) Increment() uint32 { return w.params.Increment }

// IncrementRate returns how many steps happen per window.
func (w *CongestionWindow) IncrementRate() uint32 { return w.params.IncrementRate }

// Inc grows the window by one increment, saturating at the maximum.
func (w *CongestionWindow) Inc() {
	w.value = clamp(uint64(w.value)+uint64(w.params.Increment), w.params.Min, w.params.Max)
}

// Dec shrinks the window by one increment, stopping at the minimum.
func (w *CongestionWindow) Dec() {
	v := uint64(0)
	if w.value > w.params.Increment {
		v = uint64(w.value - w.params.Increment)
	}
	w.value = clamp(v, w.params.Min, w.params.Max)
}

// Set assigns the window, clamped to its bounds.
func (w *CongestionWindow) Set(v uint32) {
	w.value = clamp(uint64(v), w.params.Min, w.params.Max)
}

// SendmePerCwnd is the number of SENDMEs a full window produces.
func (w *CongestionWindow) SendmePerCwnd() uint32 {
	return w.value / w.params.SendmeInc
}

// UpdateRate is the number of SENDMEs between steady-state window updates.
// In slow start every SENDME updates the window.
func (w *CongestionWindow) UpdateRate(state State) uint32 {
	if state.InSlowStart() {
		return 1
	}
	step := w.params.IncrementRate * w.params.SendmeInc
	rate := (w.value + step/2) / step
	if rate == 0 {
		return 1
	}
	return rate
}

// RFC3742SlowStartInc grows the window by the limited slow start increment
// (RFC 3742) and returns the increment applied. Below ssCap the increment is
// SlowStartIncPct percent of a SENDME increment; above it the growth slows
// down as the window grows, never below one cell.
func (w *CongestionWindow) RFC3742SlowStartInc(ssCap uint32) uint32 {
	var inc uint64
	if w.value <= ssCap {
		inc = (uint64(w.params.SlowStartIncPct)*uint64(w.params.SendmeInc) + 50) / 100
	} else {
		inc = (uint64(w.params.SendmeInc)*uint64(ssCap) + uint64(w.value)) / (2 * uint64(w.value))
		if inc < 1 {
			inc = 1
		}
	}
	w.value = clamp(uint64(w.value)+inc, w.params.Min, w.params.Max)
	return uint32(inc)
}

// EvalFullness updates the full flag from the number of cells in flight.
// The window is full when in-flight cells come within FullGap SENDME
// increments of it, and stops being full when utilisation drops under
// FullMinPct percent. In between the flag keeps its previous value.
func (w *CongestionWindow) EvalFullness(inflight uint32) {
	if uint64(inflight)+uint64(w.params.SendmeInc)*uint64(w.params.FullGap) >= uint64(w.value) {
		w.full = true
	} else if 100*uint64(inflight) < uint64(w.params.FullMinPct)*uint64(w.value) {
		w.full = false
	}
}

// IsFull reports the full flag.
func (w *CongestionWindow) IsFull() bool { return w.full }

// ResetFull clears the full flag.
func (w *CongestionWindow) ResetFull() { w.full = false }

func clamp(v uint64, lo, hi uint32) uint32 {
	if v < uint64(lo) {
		return lo
	}
	if v > uint64(hi) {
		return hi
	}
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
