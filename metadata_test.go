package pixelrts

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleMetadata = `{
  "format": "PixelRTS-2.0",
  "format_version": 2,
  "grid_size": 16,
  "encoding": {"type": "RGBA-dense", "bytes_per_pixel": 4, "mapping": "Hilbert space-filling curve"},
  "data_hash": "abc",
  "data_size": 19,
  "entry_point": "0x100000",
  "segments": {"kernel": {"start": 0, "end": 19, "size": 19, "sha256": "abc", "type": "kernel"}},
  "boot": {"cmdline": "console=ttyS0"},
  "build_id": 42
}`

func TestParseMetadata(t *testing.T) {
	m, err := ParseMetadata([]byte(sampleMetadata))
	if err != nil {
		t.Fatalf("ParseMetadata() error = %v", err)
	}
	want := &Metadata{
		Format:        FormatTag,
		FormatVersion: 2,
		GridSize:      16,
		Encoding:      Encoding{Type: EncodingDense, BytesPerPixel: 4, Mapping: MappingHilbert},
		DataHash:      "abc",
		DataSize:      19,
		EntryPoint:    "0x100000",
		Segments: map[string]Segment{
			"kernel": {Start: 0, End: 19, Size: 19, SHA256: "abc", Type: "kernel"},
		},
		Extra: map[string]json.RawMessage{
			"boot":     json.RawMessage(`{"cmdline": "console=ttyS0"}`),
			"build_id": json.RawMessage(`42`),
		},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("ParseMetadata() mismatch (-want +got):\n%s", diff)
	}
}

func TestMetadataPreservesUnknownFields(t *testing.T) {
	m, err := ParseMetadata([]byte(sampleMetadata))
	if err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"boot":{"cmdline":"console=ttyS0"}`, `"build_id":42`, `"entry_point":"0x100000"`} {
		if !strings.Contains(string(out), want) {
			t.Errorf("Marshal() = %s, missing %s", out, want)
		}
	}
	again, err := ParseMetadata(out)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m.Segments, again.Segments); diff != "" {
		t.Errorf("segments changed across round trip:\n%s", diff)
	}
	if len(again.Extra) != 2 {
		t.Errorf("Extra = %v, want 2 keys", again.Extra)
	}
}

func TestParseMetadataMagicPrefix(t *testing.T) {
	m, err := ParseMetadata([]byte("PixelRTS" + sampleMetadata))
	if err != nil {
		t.Fatalf("ParseMetadata(prefixed) error = %v", err)
	}
	if m.GridSize != 16 {
		t.Errorf("GridSize = %d, want 16", m.GridSize)
	}
}

func TestParseMetadataErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", "hello"},
		{"empty", ""},
		{"wrong format", `{"format": "PNG", "grid_size": 16}`},
		{"missing format", `{"grid_size": 16}`},
		{"bad field type", `{"format": "PixelRTS-2.0", "grid_size": "16"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMetadata([]byte(tt.in)); !errors.Is(err, ErrMetadata) {
				t.Errorf("ParseMetadata(%q) error = %v, want ErrMetadata", tt.in, err)
			}
		})
	}
}

func TestEntryPointAddr(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		ok      bool
		wantErr bool
	}{
		{"", 0, false, false},
		{"0x100000", 0x100000, true, false},
		{"4096", 4096, true, false},
		{"0xZZ", 0, false, true},
	}
	for _, tt := range tests {
		m := &Metadata{EntryPoint: tt.in}
		got, ok, err := m.EntryPointAddr()
		if got != tt.want || ok != tt.ok || (err != nil) != tt.wantErr {
			t.Errorf("EntryPointAddr(%q) = %#x, %v, %v", tt.in, got, ok, err)
		}
	}
}

func TestMetadataCheck(t *testing.T) {
	base := func() *Metadata {
		return &Metadata{Format: FormatTag, GridSize: 16, DataSize: 10,
			Segments: map[string]Segment{"s": {Start: 0, End: 10}}}
	}
	tests := []struct {
		name   string
		mutate func(*Metadata)
		ok     bool
	}{
		{"valid", func(*Metadata) {}, true},
		{"grid mismatch", func(m *Metadata) { m.GridSize = 8 }, false},
		{"negative size", func(m *Metadata) { m.DataSize = -1 }, false},
		{"over capacity", func(m *Metadata) { m.DataSize = Capacity(4) + 1 }, false},
		{"segment outside", func(m *Metadata) { m.Segments["s"] = Segment{Start: 5, End: 11} }, false},
		{"unknown compression", func(m *Metadata) { m.Encoding.Compression = "brotli" }, false},
		{"bad entry", func(m *Metadata) { m.EntryPoint = "main" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(m)
			err := m.check(4)
			if (err == nil) != tt.ok {
				t.Errorf("check() = %v, want ok %v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrMetadata) {
				t.Errorf("check() error = %v, want ErrMetadata", err)
			}
		})
	}
}
