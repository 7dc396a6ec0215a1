package audio

import (
	"math"
	"sync"
)

const (
	levelDecay = 0.7
	peakDecay  = 0.995
)

// Meter tracks a smoothed input level and a slowly decaying peak.
// Update is called from the capture callback; Levels may be read from
// any goroutine.
type Meter struct {
	mu    sync.RWMutex
	level float64
	peak  float64
}

// Update folds one frame into the meter.
func (m *Meter) Update(samples []float32) {
	var framePeak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > framePeak {
			framePeak = a
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = m.level*levelDecay + framePeak*(1-levelDecay)
	if framePeak > m.peak {
		m.peak = framePeak
	} else {
		m.peak *= peakDecay
	}
}

// Levels returns the current level and peak.
func (m *Meter) Levels() Levels {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Levels{Level: m.level, Peak: m.peak}
}

// Reset zeroes level and peak.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level, m.peak = 0, 0
}
