// ABOUTME: Sample format definitions
// ABOUTME: Defines PCM sample formats and their per-sample byte widths
package stream

// Format identifies a PCM sample format.
type Format int

const (
	// FormatUnspecified lets the stream pick a default at open time.
	FormatUnspecified Format = iota
	FormatInt16
	FormatInt24
	FormatFloat32
)

// BytesPerSample returns the storage width of one sample.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatInt16:
		return 2
	case FormatInt24:
		return 3
	case FormatFloat32:
		return 4
	default:
		return 0
	}
}

// String returns a short name for logging.
func (f Format) String() string {
	switch f {
	case FormatUnspecified:
		return "unspecified"
	case FormatInt16:
		return "s16le"
	case FormatInt24:
		return "s24le"
	case FormatFloat32:
		return "f32le"
	default:
		return "unknown"
	}
}
