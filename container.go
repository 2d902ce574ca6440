package pixelrts

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/gogpu/pixelrts/hilbert"
)

// Container is an immutable square RGBA raster of side 2^order together with
// its metadata. Accessors return copies.
type Container struct {
	order   int
	pix     []byte
	meta    *Metadata
	metaErr error
}

// NewContainer creates a container from row-major RGBA bytes. pix must hold
// exactly 4 bytes per pixel of a 2^order square. meta may be nil.
func NewContainer(order int, pix []byte, meta *Metadata) (*Container, error) {
	if order < 0 || order > MaxOrder {
		return nil, fmt.Errorf("%w: order %d outside [0, %d]", ErrValidation, order, MaxOrder)
	}
	side := 1 << uint(order)
	if len(pix) != 4*side*side {
		return nil, fmt.Errorf("%w: %d pixel bytes for a %dx%d grid", ErrValidation, len(pix), side, side)
	}
	c := &Container{order: order, pix: append([]byte(nil), pix...)}
	c.setMetadata(meta)
	return c, nil
}

// FromImage converts img into a container. The image must be square with a
// power-of-two side.
func FromImage(img image.Image, meta *Metadata) (*Container, error) {
	b := img.Bounds()
	if b.Dx() != b.Dy() || b.Dx() == 0 {
		return nil, fmt.Errorf("%w: image is %dx%d, want a square", ErrValidation, b.Dx(), b.Dy())
	}
	order := orderForSide(b.Dx())
	if order < 0 {
		return nil, fmt.Errorf("%w: side %d is not a power of two", ErrValidation, b.Dx())
	}

	var pix []byte
	if n, ok := img.(*image.NRGBA); ok && n.Stride == 4*b.Dx() && n.Rect.Min == (image.Point{}) {
		pix = n.Pix
	} else {
		dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		pix = dst.Pix
	}
	return NewContainer(order, pix, meta)
}

// WithMetadataError returns a copy of c without metadata that records why
// the metadata could not be used.
func (c *Container) WithMetadataError(err error) *Container {
	return &Container{order: c.order, pix: c.pix, metaErr: err}
}

func (c *Container) setMetadata(meta *Metadata) {
	if meta == nil {
		return
	}
	if err := meta.check(c.order); err != nil {
		c.metaErr = err
		return
	}
	c.meta = meta.Clone()
}

// Order returns the grid order.
func (c *Container) Order() int { return c.order }

// Side returns the grid side in pixels.
func (c *Container) Side() int { return 1 << uint(c.order) }

// HasMetadata reports whether c carries usable metadata.
func (c *Container) HasMetadata() bool { return c.meta != nil }

// MetadataErr returns the reason metadata was rejected, if any.
func (c *Container) MetadataErr() error { return c.metaErr }

// Metadata returns a copy of the metadata, or nil.
func (c *Container) Metadata() *Metadata { return c.meta.Clone() }

// EncodingType returns encoding.type, or "" without metadata.
func (c *Container) EncodingType() string {
	if c.meta == nil {
		return ""
	}
	return c.meta.Encoding.Type
}

// EntryPoint returns the recorded entry point, or 0.
func (c *Container) EntryPoint() uint64 {
	if c.meta == nil {
		return 0
	}
	addr, _, _ := c.meta.EntryPointAddr()
	return addr
}

// Texel returns the pixel at Hilbert index d.
func (c *Container) Texel(d uint64) ([4]byte, error) {
	x, y, err := hilbert.D2XY(d, c.order)
	if err != nil {
		return [4]byte{}, err
	}
	i := 4 * (int(y)*c.Side() + int(x))
	return [4]byte(c.pix[i : i+4]), nil
}

// Pixels returns a copy of the row-major RGBA bytes.
func (c *Container) Pixels() []byte {
	return append([]byte(nil), c.pix...)
}

// Image returns the raster as a new image.
func (c *Container) Image() *image.NRGBA {
	side := c.Side()
	img := image.NewNRGBA(image.Rect(0, 0, side, side))
	copy(img.Pix, c.pix)
	return img
}

// linear reads the raster in Hilbert order into a fresh buffer of n bytes.
func (c *Container) linear(n int) []byte {
	out := make([]byte, n)
	_ = hilbert.Walk(c.order, func(d, offset int) {
		if 4*d >= n {
			return
		}
		copy(out[4*d:], c.pix[4*offset:4*offset+4])
	})
	return out
}

func orderForSide(side int) int {
	for k := 0; k <= MaxOrder; k++ {
		if 1<<uint(k) == side {
			return k
		}
	}
	return -1
}
