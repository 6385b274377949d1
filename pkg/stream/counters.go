// ABOUTME: Frame accounting shared between the write path and the poll path
// ABOUTME: Tracks frames written vs frames consumed with race-free access
package stream

import "sync"

// frameCounters tracks cumulative frames written to the sink and frames the
// sink has confirmed consumed. The write path and the driver's polling path
// run on different goroutines, so all access goes through the mutex.
type frameCounters struct {
	mu      sync.Mutex
	written wrappingCounter
	read    wrappingCounter
}

func (c *frameCounters) framesWritten() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.get()
}

func (c *frameCounters) framesRead() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read.get()
}

// outstanding returns frames written but not yet confirmed consumed.
func (c *frameCounters) outstanding() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.get() - c.read.get()
}

func (c *frameCounters) addWritten(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.increment(n)
}

// foldRead folds a raw wrapped sink position into the monotonic read count.
func (c *frameCounters) foldRead(raw uint32) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read.updateRaw(raw)
}

// foldOutstandingIntoRead treats every buffered-but-undrained frame as
// consumed, forcing read == written. Used when a flush or stop truncates
// playback history.
func (c *frameCounters) foldOutstandingIntoRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d := c.written.get() - c.read.get(); d > 0 {
		c.read.increment(d)
	}
}

// resetRawPhase restarts the wrapped-position fold from zero on both
// counters, matching a sink whose position counter has been reset.
func (c *frameCounters) resetRawPhase() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written.resetRaw()
	c.read.resetRaw()
}
