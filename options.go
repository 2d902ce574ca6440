package pixelrts

// EncodeOption configures Encode.
//
// Example:
//
//	c, err := pixelrts.Encode(kernel,
//		pixelrts.WithEntryPoint(0x100000),
//		pixelrts.WithSegment("kernel", 0, len(kernel), "kernel"),
//	)
type EncodeOption func(*encodeOptions)

type segmentSpec struct {
	name       string
	start, end int
	kind       string
}

type encodeOptions struct {
	order       int // 0 selects the smallest fitting order
	entry       *uint64
	segments    []segmentSpec
	compression string
	name        string
	contentType string
	version     string
	description string
}

// WithOrder forces the grid order instead of picking the smallest one that
// fits. The order must lie in [MinOrder, MaxOrder] and hold the payload.
func WithOrder(order int) EncodeOption {
	return func(o *encodeOptions) {
		o.order = order
	}
}

// WithEntryPoint records the entry point address handed in by the toolchain
// that produced the payload.
func WithEntryPoint(addr uint64) EncodeOption {
	return func(o *encodeOptions) {
		o.entry = &addr
	}
}

// WithSegment records the payload range [start, end) under name with its own
// hash. Segments may be given in any order; overlapping ranges are allowed.
func WithSegment(name string, start, end int, kind string) EncodeOption {
	return func(o *encodeOptions) {
		o.segments = append(o.segments, segmentSpec{name: name, start: start, end: end, kind: kind})
	}
}

// WithCompression stores the payload compressed. Only CompressionZstd is
// supported; an empty string disables compression.
func WithCompression(algo string) EncodeOption {
	return func(o *encodeOptions) {
		o.compression = algo
	}
}

// WithName sets the "name" metadata field.
func WithName(name string) EncodeOption {
	return func(o *encodeOptions) {
		o.name = name
	}
}

// WithContentType sets the "type" metadata field, e.g. "kernel" or "wasm".
func WithContentType(t string) EncodeOption {
	return func(o *encodeOptions) {
		o.contentType = t
	}
}

// WithContentVersion sets the "content_version" metadata field.
func WithContentVersion(v string) EncodeOption {
	return func(o *encodeOptions) {
		o.version = v
	}
}

// WithDescription sets the "description" metadata field.
func WithDescription(d string) EncodeOption {
	return func(o *encodeOptions) {
		o.description = d
	}
}

// DecodeOption configures Decode.
type DecodeOption func(*decodeOptions)

type decodeOptions struct {
	lenient    bool
	skipVerify bool
}

// Lenient makes Decode return the data with IntegrityFailed set instead of
// failing on a hash mismatch.
func Lenient() DecodeOption {
	return func(o *decodeOptions) {
		o.lenient = true
	}
}

// SkipVerify disables hash verification. The result has Verified unset.
func SkipVerify() DecodeOption {
	return func(o *decodeOptions) {
		o.skipVerify = true
	}
}
