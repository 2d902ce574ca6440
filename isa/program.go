package isa

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/pixelrts"
	"github.com/gogpu/pixelrts/hilbert"
)

// AssembleOption configures Assemble.
type AssembleOption func(*assembleOptions)

type assembleOptions struct {
	entry    uint64
	hasEntry bool
	name     string
}

// WithEntry sets the program counter execution starts at.
func WithEntry(pc uint64) AssembleOption {
	return func(o *assembleOptions) {
		o.entry = pc
		o.hasEntry = true
	}
}

// WithProgramName sets the "name" metadata field.
func WithProgramName(name string) AssembleOption {
	return func(o *assembleOptions) {
		o.name = name
	}
}

// ProgramOrder returns the smallest grid order holding n instructions.
func ProgramOrder(n int) (int, error) {
	for k := 0; k <= pixelrts.MaxOrder; k++ {
		if uint64(n) <= hilbert.Cells(k) { //nolint:gosec // n is a slice length
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %d instructions, maximum is %d",
		pixelrts.ErrCapacity, n, hilbert.Cells(pixelrts.MaxOrder))
}

// Assemble stores instrs in a program container, instruction i at Hilbert
// index i. Unused texels are zero, which decodes as NOP.
func Assemble(instrs []Instruction, opts ...AssembleOption) (*pixelrts.Container, error) {
	var o assembleOptions
	for _, opt := range opts {
		opt(&o)
	}

	order, err := ProgramOrder(len(instrs))
	if err != nil {
		return nil, err
	}
	if o.hasEntry && o.entry >= uint64(len(instrs)) {
		return nil, fmt.Errorf("%w: entry %d outside %d-instruction program",
			pixelrts.ErrValidation, o.entry, len(instrs))
	}

	code := make([]byte, 4*len(instrs))
	for i, in := range instrs {
		p := in.Pixel()
		copy(code[4*i:], p[:])
	}

	side := int(hilbert.Side(order))
	pix := make([]byte, 4*side*side)
	if err := hilbert.Walk(order, func(d, offset int) {
		if d < len(instrs) {
			copy(pix[4*offset:4*offset+4], code[4*d:4*d+4])
		}
	}); err != nil {
		return nil, err
	}

	meta := &pixelrts.Metadata{
		Format:        pixelrts.FormatTag,
		FormatVersion: pixelrts.FormatVersion,
		GridSize:      side,
		Encoding: pixelrts.Encoding{
			Type:          pixelrts.EncodingCode,
			BytesPerPixel: 4,
			Mapping:       pixelrts.MappingHilbert,
		},
		DataHash:         pixelrts.Hash(code),
		DataSize:         len(code),
		InstructionCount: len(instrs),
		Name:             o.name,
	}
	if o.hasEntry {
		meta.EntryPoint = fmt.Sprintf("0x%x", o.entry)
	}

	c, err := pixelrts.NewContainer(order, pix, meta)
	if err != nil {
		return nil, err
	}
	if !c.HasMetadata() {
		return nil, c.MetadataErr()
	}
	pixelrts.Logger().Debug("isa: assembled",
		slog.Int("instructions", len(instrs)),
		slog.Int("order", order),
	)
	return c, nil
}

// Disassemble reads the instructions of a program container and verifies
// them against the recorded hash.
func Disassemble(c *pixelrts.Container) ([]Instruction, error) {
	n, err := ProgramLength(c)
	if err != nil {
		return nil, err
	}
	meta := c.Metadata()

	code := make([]byte, 4*n)
	for d := range n {
		t, err := c.Texel(uint64(d)) //nolint:gosec // d < n
		if err != nil {
			return nil, err
		}
		copy(code[4*d:], t[:])
	}
	if got := pixelrts.Hash(code); got != meta.DataHash {
		return nil, &pixelrts.IntegrityError{Expected: meta.DataHash, Actual: got}
	}

	out := make([]Instruction, n)
	for i := range out {
		out[i] = FromPixel([4]byte(code[4*i : 4*i+4]))
	}
	return out, nil
}

// ProgramLength returns the instruction count of a program container. It
// fails unless c carries usable RGBA-code metadata.
func ProgramLength(c *pixelrts.Container) (int, error) {
	if !c.HasMetadata() {
		if err := c.MetadataErr(); err != nil {
			return 0, fmt.Errorf("isa: %w", err)
		}
		return 0, fmt.Errorf("%w: program container has no metadata", pixelrts.ErrMetadata)
	}
	meta := c.Metadata()
	if meta.Encoding.Type != pixelrts.EncodingCode {
		return 0, fmt.Errorf("%w: encoding %q is not %s",
			pixelrts.ErrEncodingMismatch, meta.Encoding.Type, pixelrts.EncodingCode)
	}
	n := meta.InstructionCount
	if n == 0 {
		n = meta.DataSize / 4
	}
	cells := c.Side() * c.Side()
	if n < 0 || n > cells || meta.DataSize != 4*n {
		return 0, fmt.Errorf("%w: instruction_count %d, data_size %d on a %d-texel grid",
			pixelrts.ErrMetadata, meta.InstructionCount, meta.DataSize, cells)
	}
	return n, nil
}
