package pixelrts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// Container format constants. These strings are part of the on-disk format
// and are read and written verbatim.
const (
	// FormatTag is the value of the "format" field.
	FormatTag = "PixelRTS-2.0"

	// FormatVersion is the value of the "format_version" field.
	FormatVersion = 2

	// TextKey is the PNG tEXt keyword holding the metadata JSON.
	TextKey = "PixelRTS"

	// EncodingDense marks a container holding an arbitrary byte payload,
	// four bytes per pixel.
	EncodingDense = "RGBA-dense"

	// EncodingCode marks a container holding one instruction per pixel.
	EncodingCode = "RGBA-code"

	// MappingHilbert is the value of "encoding.mapping".
	MappingHilbert = "Hilbert space-filling curve"

	// CompressionZstd marks a payload stored as a zstd frame.
	CompressionZstd = "zstd"
)

// Encoding describes how the payload is laid out in pixels.
type Encoding struct {
	Type          string `json:"type"`
	BytesPerPixel int    `json:"bytes_per_pixel,omitempty"`
	Mapping       string `json:"mapping,omitempty"`
	Compression   string `json:"compression,omitempty"`
	StoredSize    int    `json:"stored_size,omitempty"`
}

// Segment is a named byte range of the payload with its own hash.
type Segment struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Size        int    `json:"size"`
	SHA256      string `json:"sha256"`
	Type        string `json:"type,omitempty"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// Metadata is the PixelRTS container metadata. Fields not modelled here are
// kept in Extra and written back unchanged.
type Metadata struct {
	Format           string             `json:"format"`
	FormatVersion    int                `json:"format_version"`
	GridSize         int                `json:"grid_size"`
	Encoding         Encoding           `json:"encoding"`
	DataHash         string             `json:"data_hash"`
	DataSize         int                `json:"data_size"`
	EntryPoint       string             `json:"entry_point,omitempty"`
	InstructionCount int                `json:"instruction_count,omitempty"`
	Segments         map[string]Segment `json:"segments,omitempty"`
	Name             string             `json:"name,omitempty"`
	Type             string             `json:"type,omitempty"`
	ContentVersion   string             `json:"content_version,omitempty"`
	Description      string             `json:"description,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// metadataFields is the set of JSON keys owned by Metadata's struct fields.
var metadataFields = map[string]bool{
	"format": true, "format_version": true, "grid_size": true, "encoding": true,
	"data_hash": true, "data_size": true, "entry_point": true, "instruction_count": true,
	"segments": true, "name": true, "type": true, "content_version": true, "description": true,
}

type metadataAlias Metadata

// MarshalJSON merges Extra into the object. Keys are sorted, so output is
// deterministic.
func (m Metadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(metadataAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(known, &obj); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if !metadataFields[k] {
			obj[k] = v
		}
	}
	return json.Marshal(obj)
}

// UnmarshalJSON decodes known fields and keeps the rest in Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var a metadataAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for k := range obj {
		if metadataFields[k] {
			delete(obj, k)
		}
	}
	if len(obj) > 0 {
		a.Extra = obj
	}
	*m = Metadata(a)
	return nil
}

// ParseMetadata decodes metadata JSON. A leading "PixelRTS" magic, as
// written by older encoders into the tEXt chunk, is accepted.
func ParseMetadata(data []byte) (*Metadata, error) {
	data = bytes.TrimSpace(data)
	if rest, ok := bytes.CutPrefix(data, []byte(TextKey)); ok && len(rest) > 0 && rest[0] == '{' {
		data = rest
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadata, err)
	}
	if !strings.HasPrefix(m.Format, "PixelRTS") {
		return nil, fmt.Errorf("%w: format tag %q", ErrMetadata, m.Format)
	}
	return &m, nil
}

// Clone returns a deep copy of m.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	c := *m
	c.Segments = maps.Clone(m.Segments)
	if m.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = bytes.Clone(v)
		}
	}
	return &c
}

// StoredSize returns the number of payload bytes held in the pixels. It
// differs from DataSize only for compressed payloads.
func (m *Metadata) StoredSize() int {
	if m.Encoding.Compression != "" {
		return m.Encoding.StoredSize
	}
	return m.DataSize
}

// EntryPointAddr parses the entry_point field. ok is false when the field
// is absent.
func (m *Metadata) EntryPointAddr() (addr uint64, ok bool, err error) {
	if m.EntryPoint == "" {
		return 0, false, nil
	}
	addr, err = strconv.ParseUint(m.EntryPoint, 0, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: entry_point %q: %v", ErrMetadata, m.EntryPoint, err)
	}
	return addr, true, nil
}

// check validates m against a grid of the given order.
func (m *Metadata) check(order int) error {
	side := 1 << uint(order)
	if m.GridSize != side {
		return fmt.Errorf("%w: grid_size %d does not match %dx%d image", ErrMetadata, m.GridSize, side, side)
	}
	if m.DataSize < 0 || m.StoredSize() < 0 {
		return fmt.Errorf("%w: negative size", ErrMetadata)
	}
	if capacity := 4 * side * side; m.StoredSize() > capacity {
		return fmt.Errorf("%w: stored size %d exceeds grid capacity %d", ErrMetadata, m.StoredSize(), capacity)
	}
	if m.Encoding.Compression != "" && m.Encoding.Compression != CompressionZstd {
		return fmt.Errorf("%w: unknown compression %q", ErrMetadata, m.Encoding.Compression)
	}
	for name, seg := range m.Segments {
		if seg.Start < 0 || seg.End < seg.Start || seg.End > m.DataSize {
			return fmt.Errorf("%w: segment %q range [%d, %d) outside %d-byte payload",
				ErrMetadata, name, seg.Start, seg.End, m.DataSize)
		}
	}
	if _, _, err := m.EntryPointAddr(); err != nil {
		return err
	}
	return nil
}

func formatEntryPoint(addr uint64) string {
	return "0x" + strconv.FormatUint(addr, 16)
}
