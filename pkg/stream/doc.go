// ABOUTME: Package documentation for the stream lifecycle core
// ABOUTME: Explains the sink-driven state machine and frame accounting model

// Package stream manages the lifecycle of a single buffered real-time audio
// output stream layered on a lower-level blocking sink.
//
// The sink (see Sink) is a device-managed ring buffer with asynchronous,
// best-effort transitions: start, pause, flush and stop take effect some time
// after being requested, and the only observable progress signal is a
// hardware-style playback position counter that wraps at a fixed modulus.
//
// A Stream drives an explicit state machine across those transitions. The
// driver requests a transition (RequestStart, RequestPause, RequestFlush,
// RequestStop) and then polls UpdateState until the machine observes the sink
// catching up and advances. The wrapped position counter is folded into a
// monotonically increasing 64-bit frame count so upstream code can pace
// delivery and synchronize playback against a wall clock via Timestamp.
//
// One writer goroutine and one driver goroutine may operate concurrently.
// Concurrent drivers are not supported.
package stream
