package pixelrts

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestDescriptiveOptions tests that the descriptive options land in the
// metadata verbatim and survive a round trip through JSON.
func TestDescriptiveOptions(t *testing.T) {
	c, err := Encode([]byte("payload"),
		WithName("initrd"),
		WithContentType("initramfs"),
		WithContentVersion("6.1.0"),
		WithDescription("boot image"),
	)
	if err != nil {
		t.Fatal(err)
	}
	meta := c.Metadata()
	got := [4]string{meta.Name, meta.Type, meta.ContentVersion, meta.Description}
	want := [4]string{"initrd", "initramfs", "6.1.0", "boot image"}
	if got != want {
		t.Errorf("descriptive fields = %q, want %q", got, want)
	}

	b, err := meta.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	back, err := ParseMetadata(b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(meta, back); diff != "" {
		t.Errorf("metadata changed through JSON (-want +got):\n%s", diff)
	}
}

// TestOptionsLastWins tests that a later option overrides an earlier one.
func TestOptionsLastWins(t *testing.T) {
	c, err := Encode(make([]byte, 10),
		WithOrder(6),
		WithOrder(5),
		WithCompression(CompressionZstd),
		WithCompression(""),
		WithName("a"),
		WithName("b"),
	)
	if err != nil {
		t.Fatal(err)
	}
	meta := c.Metadata()
	if c.Order() != 5 {
		t.Errorf("Order() = %d, want 5", c.Order())
	}
	if meta.Encoding.Compression != "" {
		t.Errorf("compression = %q, want none", meta.Encoding.Compression)
	}
	if meta.Name != "b" {
		t.Errorf("name = %q, want b", meta.Name)
	}
}

func TestDecodeOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []DecodeOption
		want decodeOptions
	}{
		{"default", nil, decodeOptions{}},
		{"lenient", []DecodeOption{Lenient()}, decodeOptions{lenient: true}},
		{"skip verify", []DecodeOption{SkipVerify()}, decodeOptions{skipVerify: true}},
		{"both", []DecodeOption{Lenient(), SkipVerify()}, decodeOptions{lenient: true, skipVerify: true}},
	}
	for _, tt := range tests {
		var got decodeOptions
		for _, opt := range tt.opts {
			opt(&got)
		}
		if got != tt.want {
			t.Errorf("%s: options = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}
