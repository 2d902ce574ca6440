// Package hilbert maps between a linear index and 2D grid coordinates along
// a Hilbert space-filling curve.
//
// A grid of order k has side 2^k and 4^k cells. Consecutive indices always
// land on 4-adjacent cells, which keeps neighbouring bytes of a payload (or
// neighbouring instructions of a program) close together in the image.
//
// Coordinates use the PixelRTS orientation: index 1 of an order-1 grid is
// (1, 0). This is the transpose of the textbook curve and matches the pixel
// layout of existing PixelRTS containers.
package hilbert

import (
	"errors"
	"fmt"
)

// MaxOrder is the largest supported curve order (65536x65536 grid).
const MaxOrder = 16

// Errors returned by the index conversions.
var (
	// ErrInvalidOrder is returned when order is outside [0, MaxOrder].
	ErrInvalidOrder = errors.New("hilbert: invalid order")

	// ErrInvalidIndex is returned when d is not below 4^order.
	ErrInvalidIndex = errors.New("hilbert: index out of range")

	// ErrOutOfRange is returned when a coordinate is not below 2^order.
	ErrOutOfRange = errors.New("hilbert: coordinate out of range")
)

// Side returns the grid side length 2^order.
func Side(order int) uint32 {
	return 1 << uint(order)
}

// Cells returns the number of cells 4^order.
func Cells(order int) uint64 {
	return 1 << (2 * uint(order))
}

func checkOrder(order int) error {
	if order < 0 || order > MaxOrder {
		return fmt.Errorf("%w: %d", ErrInvalidOrder, order)
	}
	return nil
}

// D2XY converts curve index d to grid coordinates for the given order.
func D2XY(d uint64, order int) (x, y uint32, err error) {
	if err := checkOrder(order); err != nil {
		return 0, 0, err
	}
	if d >= Cells(order) {
		return 0, 0, fmt.Errorf("%w: %d >= %d", ErrInvalidIndex, d, Cells(order))
	}
	x, y = d2xy(d, Side(order))
	return x, y, nil
}

// XY2D converts grid coordinates to the curve index for the given order.
func XY2D(x, y uint32, order int) (uint64, error) {
	if err := checkOrder(order); err != nil {
		return 0, err
	}
	n := Side(order)
	if x >= n || y >= n {
		return 0, fmt.Errorf("%w: (%d,%d) on %dx%d grid", ErrOutOfRange, x, y, n, n)
	}
	return xy2d(x, y, n), nil
}

// d2xy walks the index two bits at a time from the finest level up,
// reflecting the partial coordinate whenever the quadrant is rotated.
func d2xy(d uint64, n uint32) (uint32, uint32) {
	var x, y uint32
	t := d
	for s := uint32(1); s < n; s <<= 1 {
		rx := uint32(1 & (t >> 1))
		ry := uint32(1 & (t ^ uint64(rx)))
		x, y = rotate(s, x, y, rx, ry)
		x += s * rx
		y += s * ry
		t >>= 2
	}
	return y, x
}

func xy2d(px, py, n uint32) uint64 {
	// Undo the PixelRTS transpose before walking the curve.
	x, y := py, px
	var d uint64
	for s := n >> 1; s > 0; s >>= 1 {
		var rx, ry uint32
		if x&s != 0 {
			rx = 1
		}
		if y&s != 0 {
			ry = 1
		}
		d += uint64(s) * uint64(s) * uint64((3*rx)^ry)
		x, y = rotate(n, x, y, rx, ry)
	}
	return d
}

// rotate reflects and transposes a quadrant of side s.
func rotate(s, x, y, rx, ry uint32) (uint32, uint32) {
	if ry == 0 {
		if rx == 1 {
			x = s - 1 - x
			y = s - 1 - y
		}
		x, y = y, x
	}
	return x, y
}
