package pixelrts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/gogpu/pixelrts/hilbert"
)

// Grid order limits for Encode.
const (
	// MinOrder is the smallest grid Encode produces (16x16).
	MinOrder = 4

	// MaxOrder is the largest grid Encode produces (16384x16384).
	MaxOrder = 14
)

// Capacity returns the number of payload bytes a grid of the given order holds.
func Capacity(order int) int {
	return 4 << (2 * uint(order))
}

// OrderFor returns the smallest order in [MinOrder, MaxOrder] whose grid
// holds n bytes.
func OrderFor(n int) (int, error) {
	for k := MinOrder; k <= MaxOrder; k++ {
		if n <= Capacity(k) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %d bytes, maximum is %d", ErrCapacity, n, Capacity(MaxOrder))
}

// Hash returns the lowercase hex SHA-256 of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Encode packs payload into a new container. Byte 4i..4i+3 of the stored
// payload becomes the pixel at Hilbert index i; the remainder of the grid is
// zero.
func Encode(payload []byte, opts ...EncodeOption) (*Container, error) {
	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	segments, err := buildSegments(payload, o.segments)
	if err != nil {
		return nil, err
	}

	stored := payload
	switch o.compression {
	case "":
	case CompressionZstd:
		stored, err = compress(payload)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown compression %q", ErrValidation, o.compression)
	}

	order, err := chooseOrder(len(stored), o.order)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		Format:        FormatTag,
		FormatVersion: FormatVersion,
		GridSize:      1 << uint(order),
		Encoding: Encoding{
			Type:          EncodingDense,
			BytesPerPixel: 4,
			Mapping:       MappingHilbert,
		},
		DataHash:       Hash(payload),
		DataSize:       len(payload),
		Segments:       segments,
		Name:           o.name,
		Type:           o.contentType,
		ContentVersion: o.version,
		Description:    o.description,
	}
	if o.compression != "" {
		meta.Encoding.Compression = o.compression
		meta.Encoding.StoredSize = len(stored)
	}
	if o.entry != nil {
		meta.EntryPoint = formatEntryPoint(*o.entry)
	}

	pix := make([]byte, Capacity(order))
	if err := hilbert.Walk(order, func(d, offset int) {
		if 4*d < len(stored) {
			copy(pix[4*offset:4*offset+4], stored[4*d:])
		}
	}); err != nil {
		return nil, err
	}

	Logger().Debug("pixelrts: encoded",
		slog.Int("bytes", len(payload)),
		slog.Int("stored", len(stored)),
		slog.Int("order", order),
		slog.Int("segments", len(segments)),
	)
	return &Container{order: order, pix: pix, meta: meta}, nil
}

func chooseOrder(n, explicit int) (int, error) {
	if n > Capacity(MaxOrder) {
		return 0, fmt.Errorf("%w: %d bytes, maximum is %d", ErrCapacity, n, Capacity(MaxOrder))
	}
	if explicit == 0 {
		return OrderFor(n)
	}
	if explicit < MinOrder || explicit > MaxOrder {
		return 0, fmt.Errorf("%w: order %d outside [%d, %d]", ErrValidation, explicit, MinOrder, MaxOrder)
	}
	if n > Capacity(explicit) {
		return 0, fmt.Errorf("%w: %d bytes do not fit order %d (%d bytes)", ErrValidation, n, explicit, Capacity(explicit))
	}
	return explicit, nil
}

func buildSegments(payload []byte, specs []segmentSpec) (map[string]Segment, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make(map[string]Segment, len(specs))
	for _, s := range specs {
		if s.name == "" {
			return nil, fmt.Errorf("%w: segment without a name", ErrValidation)
		}
		if _, dup := out[s.name]; dup {
			return nil, fmt.Errorf("%w: duplicate segment %q", ErrValidation, s.name)
		}
		if s.start < 0 || s.end < s.start || s.end > len(payload) {
			return nil, fmt.Errorf("%w: segment %q range [%d, %d) outside %d-byte payload",
				ErrValidation, s.name, s.start, s.end, len(payload))
		}
		out[s.name] = Segment{
			Start:  s.start,
			End:    s.end,
			Size:   s.end - s.start,
			SHA256: Hash(payload[s.start:s.end]),
			Type:   s.kind,
		}
	}
	return out, nil
}
