// Package rtsfile reads and writes PixelRTS containers as PNG files.
//
// The metadata JSON is embedded in a tEXt chunk with keyword "PixelRTS" and
// duplicated in a sidecar file next to the image, so tools that strip
// ancillary chunks do not lose it.
package rtsfile

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/gogpu/pixelrts"
)

// Errors returned by this package.
var (
	// ErrNotPNG is returned when the input does not start with the PNG signature.
	ErrNotPNG = errors.New("rtsfile: not a PNG file")

	// ErrCorruptPNG is returned when the chunk structure cannot be walked.
	ErrCorruptPNG = errors.New("rtsfile: corrupt PNG chunk stream")
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Write encodes c as a PNG with its metadata in a tEXt chunk placed before
// the first IDAT chunk.
func Write(w io.Writer, c *pixelrts.Container) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.Image()); err != nil {
		return fmt.Errorf("rtsfile: encode png: %w", err)
	}
	out := buf.Bytes()
	if m := c.Metadata(); m != nil {
		text, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("rtsfile: marshal metadata: %w", err)
		}
		out, err = insertText(out, pixelrts.TextKey, text)
		if err != nil {
			return err
		}
	}
	_, err := w.Write(out)
	return err
}

// Read decodes a PNG container. Metadata that is present but unusable does
// not fail the read: the container comes back without metadata and
// MetadataErr says why.
func Read(r io.Reader) (*pixelrts.Container, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("rtsfile: read: %w", err)
	}
	text, found, err := findText(data, pixelrts.TextKey)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("rtsfile: decode png: %w", err)
	}
	c, err := pixelrts.FromImage(img, nil)
	if err != nil {
		return nil, err
	}
	if !found {
		return c, nil
	}
	return withMetadata(c, text)
}

// SidecarPath returns the sidecar metadata path for a container image:
// "x.rts.png" and "x.png" map to "x.meta.json", anything else gets
// ".meta.json" appended.
func SidecarPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".rts.png"):
		return strings.TrimSuffix(path, ".rts.png") + ".meta.json"
	case strings.HasSuffix(path, ".png"):
		return strings.TrimSuffix(path, ".png") + ".meta.json"
	default:
		return path + ".meta.json"
	}
}

// Save writes c to path and its metadata to the sidecar file.
func Save(path string, c *pixelrts.Container) error {
	var buf bytes.Buffer
	if err := Write(&buf, c); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil { //nolint:gosec // container images are not secret
		return fmt.Errorf("rtsfile: %w", err)
	}
	m := c.Metadata()
	if m == nil {
		return nil
	}
	side, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("rtsfile: marshal metadata: %w", err)
	}
	if err := os.WriteFile(SidecarPath(path), append(side, '\n'), 0o644); err != nil { //nolint:gosec // same as the image
		return fmt.Errorf("rtsfile: %w", err)
	}
	return nil
}

// Load reads the container at path. Metadata is taken from the embedded
// chunk, then from a sidecar file. Without either the container carries no
// metadata and pixelrts.Decode flags the result as degraded.
func Load(path string) (*pixelrts.Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rtsfile: %w", err)
	}
	defer f.Close()

	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("rtsfile: %s: %w", path, err)
	}
	if c.HasMetadata() {
		return c, nil
	}

	embeddedErr := c.MetadataErr()
	for _, candidate := range sidecarCandidates(path) {
		data, err := os.ReadFile(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("rtsfile: %w", err)
		}
		sc, err := withMetadata(c, data)
		if err != nil {
			return nil, err
		}
		if sc.HasMetadata() {
			pixelrts.Logger().Debug("rtsfile: metadata from sidecar", slog.String("path", candidate))
			return sc, nil
		}
		if embeddedErr == nil {
			embeddedErr = fmt.Errorf("%s: %w", candidate, sc.MetadataErr())
		}
	}
	if embeddedErr != nil {
		return c.WithMetadataError(embeddedErr), nil
	}
	return c, nil
}

// withMetadata attaches the metadata JSON in data to c's pixels. Unusable
// metadata is recorded on the returned container, not returned as an error.
func withMetadata(c *pixelrts.Container, data []byte) (*pixelrts.Container, error) {
	meta, err := pixelrts.ParseMetadata(data)
	if err != nil {
		return c.WithMetadataError(err), nil
	}
	return pixelrts.NewContainer(c.Order(), c.Pixels(), meta)
}

func sidecarCandidates(path string) []string {
	primary := SidecarPath(path)
	if alt := path + ".meta.json"; alt != primary {
		return []string{primary, alt}
	}
	return []string{primary}
}

// insertText returns png with a tEXt chunk added before the first IDAT.
func insertText(data []byte, keyword string, text []byte) ([]byte, error) {
	at := -1
	err := walkChunks(data, func(typ string, _ []byte, start int) bool {
		if typ == "IDAT" {
			at = start
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if at < 0 {
		return nil, fmt.Errorf("%w: no IDAT chunk", ErrCorruptPNG)
	}

	body := make([]byte, 0, len(keyword)+1+len(text))
	body = append(body, keyword...)
	body = append(body, 0)
	body = append(body, text...)

	out := make([]byte, 0, len(data)+len(body)+12)
	out = append(out, data[:at]...)
	out = appendChunk(out, "tEXt", body)
	out = append(out, data[at:]...)
	return out, nil
}

// findText returns the value of the first tEXt chunk with the given keyword.
func findText(data []byte, keyword string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := walkChunks(data, func(typ string, body []byte, _ int) bool {
		if typ != "tEXt" {
			return true
		}
		k, v, ok := bytes.Cut(body, []byte{0})
		if ok && string(k) == keyword {
			value, found = bytes.Clone(v), true
			return false
		}
		return true
	})
	return value, found, err
}

// walkChunks calls fn for each chunk until fn returns false or IEND is seen.
// start is the offset of the chunk's length field.
func walkChunks(data []byte, fn func(typ string, body []byte, start int) bool) error {
	if !bytes.HasPrefix(data, pngSignature) {
		return ErrNotPNG
	}
	for off := len(pngSignature); off < len(data); {
		if len(data)-off < 12 {
			return fmt.Errorf("%w: truncated chunk at %d", ErrCorruptPNG, off)
		}
		n := int(binary.BigEndian.Uint32(data[off:]))
		typ := string(data[off+4 : off+8])
		end := off + 12 + n
		if n < 0 || end > len(data) || end < off {
			return fmt.Errorf("%w: chunk %q overruns file", ErrCorruptPNG, typ)
		}
		if !fn(typ, data[off+8:off+8+n], off) || typ == "IEND" {
			return nil
		}
		off = end
	}
	return nil
}

func appendChunk(dst []byte, typ string, body []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(body))) //nolint:gosec // metadata is far below 2^31
	start := len(dst)
	dst = append(dst, typ...)
	dst = append(dst, body...)
	return binary.BigEndian.AppendUint32(dst, crc32.ChecksumIEEE(dst[start:]))
}
