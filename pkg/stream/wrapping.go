// ABOUTME: Monotonic reconstruction of a wrapping position counter
// ABOUTME: Folds a fixed-width wrapped value into a non-decreasing 64-bit count
package stream

// positionModulus is the wrap point of the sink's position counter.
const positionModulus = uint64(1) << 32

// wrappingCounter reconstructs a monotonically increasing 64-bit count from a
// counter that wraps at positionModulus. It is not synchronized; callers
// guard access.
type wrappingCounter struct {
	value   int64
	lastRaw uint32
}

// updateRaw folds a newly observed raw position into the 64-bit value. A raw
// value below the last observed one means the counter wrapped, so a full
// modulus is folded in before combining.
func (c *wrappingCounter) updateRaw(raw uint32) int64 {
	if raw < c.lastRaw {
		c.value += int64(positionModulus - uint64(c.lastRaw) + uint64(raw))
	} else {
		c.value += int64(raw - c.lastRaw)
	}
	c.lastRaw = raw
	return c.value
}

// increment advances the counter by n frames, keeping the raw phase aligned
// with a sink counter advancing by the same amount.
func (c *wrappingCounter) increment(n int64) int64 {
	c.value += n
	c.lastRaw += uint32(n)
	return c.value
}

// resetRaw zeroes the raw phase so the next fold starts from a sink counter
// that has been reset, without disturbing the accumulated 64-bit value.
func (c *wrappingCounter) resetRaw() {
	c.lastRaw = 0
}

func (c *wrappingCounter) get() int64 {
	return c.value
}
