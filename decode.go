package pixelrts

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Decoded is the result of Decode.
type Decoded struct {
	// Data is the recovered payload. For a degraded decode it is every
	// pixel of the grid in Hilbert order, trailing padding included.
	Data []byte

	// Metadata is a copy of the container metadata, nil when degraded.
	Metadata *Metadata

	// Verified is set when every recorded hash was checked and matched.
	Verified bool

	// IntegrityFailed is set by a Lenient decode that found a mismatch.
	// Integrity holds the first mismatch.
	IntegrityFailed bool
	Integrity       error

	// Degraded is set when the container had no usable metadata.
	// MetadataErr says why and matches ErrMetadata.
	Degraded    bool
	MetadataErr error
}

// Segment returns the bytes of the named segment.
func (d *Decoded) Segment(name string) ([]byte, error) {
	if d.Metadata == nil {
		return nil, fmt.Errorf("%w: no segments in a degraded decode", ErrMetadata)
	}
	seg, ok := d.Metadata.Segments[name]
	if !ok {
		return nil, fmt.Errorf("%w: no segment %q", ErrMetadata, name)
	}
	if seg.End > len(d.Data) {
		return nil, fmt.Errorf("%w: segment %q ends past the data", ErrMetadata, name)
	}
	return slices.Clone(d.Data[seg.Start:seg.End]), nil
}

// Decode recovers the payload of a data container.
//
// Without usable metadata Decode still succeeds: it returns the raw grid
// with Degraded set, so callers can tell it apart from a verified decode.
// Program containers are rejected with ErrEncodingMismatch.
func Decode(c *Container, opts ...DecodeOption) (*Decoded, error) {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !c.HasMetadata() {
		return degraded(c, c.MetadataErr()), nil
	}
	meta := c.Metadata()
	switch meta.Encoding.Type {
	case EncodingDense, "":
	case EncodingCode:
		return nil, fmt.Errorf("%w: container holds %s, use the isa package", ErrEncodingMismatch, EncodingCode)
	default:
		return degraded(c, fmt.Errorf("%w: unknown encoding type %q", ErrMetadata, meta.Encoding.Type)), nil
	}

	out := &Decoded{Metadata: meta}
	stored := c.linear(meta.StoredSize())
	out.Data = stored
	if meta.Encoding.Compression != "" {
		data, err := decompress(stored, meta.DataSize)
		if err != nil {
			if !o.lenient {
				return nil, err
			}
			out.IntegrityFailed = true
			out.Integrity = err
			Logger().Warn("pixelrts: returning compressed bytes", slog.String("err", err.Error()))
			return out, nil
		}
		out.Data = data
	}

	if o.skipVerify {
		return out, nil
	}
	if err := verify(out.Data, meta); err != nil {
		if !o.lenient {
			return nil, err
		}
		out.IntegrityFailed = true
		out.Integrity = err
		Logger().Warn("pixelrts: integrity check failed", slog.String("err", err.Error()))
		return out, nil
	}
	out.Verified = true
	return out, nil
}

// verify checks the payload hash, then every segment hash in name order.
func verify(data []byte, meta *Metadata) error {
	if got := Hash(data); got != meta.DataHash {
		return &IntegrityError{Expected: meta.DataHash, Actual: got}
	}
	names := make([]string, 0, len(meta.Segments))
	for name := range meta.Segments {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		seg := meta.Segments[name]
		if got := Hash(data[seg.Start:seg.End]); got != seg.SHA256 {
			return &IntegrityError{Segment: name, Expected: seg.SHA256, Actual: got}
		}
	}
	return nil
}

func degraded(c *Container, reason error) *Decoded {
	if reason == nil {
		reason = fmt.Errorf("%w: container has no metadata", ErrMetadata)
	} else if !errors.Is(reason, ErrMetadata) {
		reason = fmt.Errorf("%w: %w", ErrMetadata, reason)
	}
	Logger().Warn("pixelrts: degraded decode", slog.String("reason", reason.Error()))
	return &Decoded{
		Data:        c.linear(Capacity(c.order)),
		Degraded:    true,
		MetadataErr: reason,
	}
}
