package trace

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/gogpu/pixelrts/hilbert"
)

// Heatmap counts instruction retirements per texel of the program grid.
type Heatmap struct {
	Order  int       `json:"order" cbor:"1,keyasint"`
	Side   int       `json:"side" cbor:"2,keyasint"`
	Counts []float32 `json:"counts" cbor:"3,keyasint"` // row-major, Side*Side
}

// ParseHeatmap decodes a heatmap buffer of little-endian float32 counters
// for a grid of the given order.
func ParseHeatmap(buf []byte, order int) (*Heatmap, error) {
	if order < 0 || order > hilbert.MaxOrder {
		return nil, fmt.Errorf("%w: heatmap order %d", ErrCorrupt, order)
	}
	side := int(hilbert.Side(order))
	cells := side * side
	if len(buf) < 4*cells {
		return nil, fmt.Errorf("%w: heatmap is %d bytes, want %d", ErrCorrupt, len(buf), 4*cells)
	}
	h := &Heatmap{Order: order, Side: side, Counts: make([]float32, cells)}
	for i := range h.Counts {
		h.Counts[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return h, nil
}

// At returns the count of texel (x, y), or 0 outside the grid.
func (h *Heatmap) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= h.Side || y >= h.Side {
		return 0
	}
	return h.Counts[y*h.Side+x]
}

// AtPC returns the count of the texel holding instruction pc.
func (h *Heatmap) AtPC(pc uint64) float32 {
	x, y, err := hilbert.D2XY(pc, h.Order)
	if err != nil {
		return 0
	}
	return h.At(int(x), int(y))
}

// Max returns the largest count.
func (h *Heatmap) Max() float32 {
	var m float32
	for _, c := range h.Counts {
		m = max(m, c)
	}
	return m
}

// Total returns the sum of all counts, which equals the number of executed
// steps.
func (h *Heatmap) Total() float64 {
	var sum float64
	for _, c := range h.Counts {
		sum += float64(c)
	}
	return sum
}

// Gray renders the heatmap scaled so the hottest texel is 255. Counts are
// quantized; use Counts for exact values.
func (h *Heatmap) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, h.Side, h.Side))
	m := h.Max()
	if m <= 0 {
		return img
	}
	for i, c := range h.Counts {
		img.Pix[i] = uint8(math.Round(float64(clamp01(c/m) * 255)))
	}
	return img
}

// Image renders the heatmap with a blue (cold) to red (hot) colour map,
// upscaled by scale with nearest-neighbour sampling. Unvisited texels are
// black.
func (h *Heatmap) Image(scale int) *image.NRGBA {
	scale = max(scale, 1)
	src := image.NewNRGBA(image.Rect(0, 0, h.Side, h.Side))
	m := h.Max()
	for i, c := range h.Counts {
		src.SetNRGBA(i%h.Side, i/h.Side, heatColor(c, m))
	}
	if scale == 1 {
		return src
	}
	dst := image.NewNRGBA(image.Rect(0, 0, h.Side*scale, h.Side*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func heatColor(c, m float32) color.NRGBA {
	if c <= 0 || m <= 0 {
		return color.NRGBA{A: 0xFF}
	}
	t := clamp01(c / m)
	return color.NRGBA{
		R: uint8(math.Round(float64(t * 255))),
		B: uint8(math.Round(float64((1 - t) * 255))),
		A: 0xFF,
	}
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}
