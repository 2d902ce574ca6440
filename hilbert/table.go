package hilbert

import (
	"fmt"
	"sync"
)

// MaxTableOrder is the largest order for which Table builds a lookup table.
// An order-12 table holds 16M entries (about 128 MiB with the inverse).
const MaxTableOrder = 12

// Coord is a grid position.
type Coord struct {
	X, Y uint16
}

// LUT is an immutable precomputed mapping for one order. It is safe for
// concurrent use and must not be modified.
type LUT struct {
	order   int
	side    uint32
	forward []Coord
	inverse []uint32 // indexed by y*side + x
}

var tables [MaxTableOrder + 1]struct {
	once sync.Once
	lut  *LUT
}

// Table returns the memoized lookup table for order, building it on first use.
func Table(order int) (*LUT, error) {
	if order < 0 || order > MaxTableOrder {
		return nil, fmt.Errorf("%w: table order %d exceeds %d", ErrInvalidOrder, order, MaxTableOrder)
	}
	t := &tables[order]
	t.once.Do(func() {
		t.lut = buildLUT(order)
	})
	return t.lut, nil
}

func buildLUT(order int) *LUT {
	side := Side(order)
	cells := Cells(order)
	l := &LUT{
		order:   order,
		side:    side,
		forward: make([]Coord, cells),
		inverse: make([]uint32, cells),
	}
	for d := uint64(0); d < cells; d++ {
		x, y := d2xy(d, side)
		l.forward[d] = Coord{X: uint16(x), Y: uint16(y)}        //nolint:gosec // x < 4096
		l.inverse[uint64(y)*uint64(side)+uint64(x)] = uint32(d) //nolint:gosec // d < 4^12
	}
	return l
}

// Order returns the curve order of the table.
func (l *LUT) Order() int { return l.order }

// Side returns the grid side length.
func (l *LUT) Side() uint32 { return l.side }

// Len returns the number of cells.
func (l *LUT) Len() int { return len(l.forward) }

// XY returns the coordinates of index d. It panics if d is out of range,
// like a slice access.
func (l *LUT) XY(d int) (x, y uint32) {
	c := l.forward[d]
	return uint32(c.X), uint32(c.Y)
}

// Index returns the curve index of (x, y). It panics if the coordinates are
// off the grid.
func (l *LUT) Index(x, y uint32) int {
	if x >= l.side || y >= l.side {
		panic(fmt.Sprintf("hilbert: (%d,%d) outside %dx%d table", x, y, l.side, l.side))
	}
	return int(l.inverse[y*l.side+x])
}

// Offset returns the row-major pixel offset (y*side + x) of index d.
func (l *LUT) Offset(d int) int {
	c := l.forward[d]
	return int(c.Y)*int(l.side) + int(c.X)
}

// Walk calls fn for every curve index of the given order in ascending
// order, passing the row-major pixel offset of the cell. Orders up to
// MaxTableOrder use the memoized table.
func Walk(order int, fn func(d, offset int)) error {
	if err := checkOrder(order); err != nil {
		return err
	}
	if order <= MaxTableOrder {
		l, err := Table(order)
		if err != nil {
			return err
		}
		for d := range l.forward {
			fn(d, l.Offset(d))
		}
		return nil
	}
	side := Side(order)
	cells := Cells(order)
	for d := uint64(0); d < cells; d++ {
		x, y := d2xy(d, side)
		fn(int(d), int(y)*int(side)+int(x)) //nolint:gosec // bounded by MaxOrder
	}
	return nil
}
