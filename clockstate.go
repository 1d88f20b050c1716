package spanz

import (
	"math"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// clockWindow is the number of recent samples kept for offset estimation.
const clockWindow = 8

// clockReadySamples is the sample count above which the estimate is
// considered settled.
const clockReadySamples = 3

type clockSample struct {
	delayMicros  int64
	offsetMicros int64
}

// ClockState estimates the offset between the local clock and the collector's
// clock from round trips, NTP style. Safe for concurrent use.
type ClockState struct {
	samples []clockSample
	offset  int64
	mu      sync.Mutex
}

// NewClockState returns an estimator with an offset of zero.
func NewClockState() *ClockState {
	return &ClockState{samples: make([]clockSample, 0, clockWindow)}
}

// AddSample records one round trip. origin and destination are local send
// and receive times; receive and transmit are the collector's receive and
// send times on its own clock. All values are microseconds. Samples may arrive
// in any order; implausible ones only degrade the estimate.
func (c *ClockState) AddSample(origin, receive, transmit, destination int64) {
	delay := (destination - origin) - (transmit - receive)
	offset := ((receive - origin) + (transmit - destination)) / 2

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) == clockWindow {
		copy(c.samples, c.samples[1:])
		c.samples = c.samples[:clockWindow-1]
	}
	c.samples = append(c.samples, clockSample{delayMicros: delay, offsetMicros: offset})
}

// Update recomputes the offset from the sample with the smallest round-trip
// delay in the window. With no samples the offset is left unchanged.
func (c *ClockState) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) == 0 {
		return
	}
	minDelay := int64(math.MaxInt64)
	best := c.offset
	for _, s := range c.samples {
		if s.delayMicros < minDelay {
			minDelay = s.delayMicros
			best = s.offsetMicros
		}
	}
	c.offset = best
}

// OffsetMicros returns the offset computed by the last Update. Add it to a
// local timestamp to express it on the collector's clock.
func (c *ClockState) OffsetMicros() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// ActiveSampleCount returns the number of samples in the window.
func (c *ClockState) ActiveSampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// IsReady reports whether enough samples have been collected for the offset
// to be trusted.
func (c *ClockState) IsReady() bool {
	return c.ActiveSampleCount() > clockReadySamples
}

// NowMicros returns the clock's current time in microseconds since the epoch.
func NowMicros(clock clockz.Clock) int64 {
	return clock.Now().UnixMicro()
}

// toMicros converts t to microseconds since the epoch and applies offset.
func toMicros(t time.Time, offset int64) int64 {
	return t.UnixMicro() + offset
}
