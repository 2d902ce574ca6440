package isa

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/pixelrts"
	"github.com/gogpu/pixelrts/hilbert"
)

// =============================================================================
// Opcodes and instructions
// =============================================================================

func TestOpcodeValues(t *testing.T) {
	tests := []struct {
		op   Opcode
		want byte
		name string
	}{
		{OpNOP, 0x00, "NOP"},
		{OpMOV, 0x01, "MOV"},
		{OpJMP, 0x06, "JMP"},
		{OpHALT, 0x07, "HALT"},
		{OpLDI, 0x08, "LDI"},
		{OpADD, 0x33, "ADD"},
		{OpSUB, 0x34, "SUB"},
		{OpMUL, 0x35, "MUL"},
		{OpDIV, 0x36, "DIV"},
	}
	for _, tt := range tests {
		if byte(tt.op) != tt.want {
			t.Errorf("%s = %#x, want %#x", tt.name, byte(tt.op), tt.want)
		}
		if tt.op.String() != tt.name || !tt.op.Known() {
			t.Errorf("Opcode(%#x).String() = %q Known %v", tt.want, tt.op.String(), tt.op.Known())
		}
		if got, ok := LookupOpcode(strings.ToLower(tt.name)); !ok || got != tt.op {
			t.Errorf("LookupOpcode(%q) = %v, %v", tt.name, got, ok)
		}
	}
	if Opcode(0x99).Known() || Opcode(0x99).String() != "OP_99" {
		t.Errorf("Opcode(0x99) = %q known %v", Opcode(0x99), Opcode(0x99).Known())
	}
	if _, ok := LookupOpcode("JNZ"); ok {
		t.Error("LookupOpcode(JNZ) found an opcode")
	}
}

func TestInstructionPixel(t *testing.T) {
	tests := []struct {
		in   Instruction
		want [4]byte
	}{
		{LDI(1, 10), [4]byte{0x08, 10, 0, 1}},
		{MOV(2, 7), [4]byte{0x01, 7, 0, 2}},
		{ADD(3, 1, 2), [4]byte{0x33, 1, 2, 3}},
		{SUB(4, 5, 6), [4]byte{0x34, 5, 6, 4}},
		{MUL(4, 5, 6), [4]byte{0x35, 5, 6, 4}},
		{DIV(4, 5, 6), [4]byte{0x36, 5, 6, 4}},
		{JMP(9), [4]byte{0x06, 9, 0, 0}},
		{HALT(), [4]byte{0x07, 0, 0, 0}},
		{NOP(), [4]byte{0, 0, 0, 0}},
		{Raw(0xAA, 1, 2, 3), [4]byte{0xAA, 1, 2, 3}},
	}
	for _, tt := range tests {
		if got := tt.in.Pixel(); got != tt.want {
			t.Errorf("%v.Pixel() = %v, want %v", tt.in, got, tt.want)
		}
		if back := FromPixel(tt.want); back != tt.in {
			t.Errorf("FromPixel(%v) = %+v, want %+v", tt.want, back, tt.in)
		}
	}
	if Raw(0xAA, 0, 0, 0).Recognized() {
		t.Error("unknown opcode reported as recognized")
	}
}

// =============================================================================
// Assemble / Disassemble
// =============================================================================

func sample() []Instruction {
	return []Instruction{LDI(1, 10), LDI(2, 20), ADD(3, 1, 2), HALT()}
}

func TestAssemble(t *testing.T) {
	c, err := Assemble(sample(), WithProgramName("add"))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if c.Order() != 1 {
		t.Errorf("Order() = %d, want 1 for 4 instructions", c.Order())
	}
	m := c.Metadata()
	if m.Encoding.Type != pixelrts.EncodingCode || m.InstructionCount != 4 || m.DataSize != 16 || m.Name != "add" {
		t.Errorf("metadata = %+v", m)
	}
	for d, in := range sample() {
		texel, err := c.Texel(uint64(d))
		if err != nil {
			t.Fatal(err)
		}
		if texel != in.Pixel() {
			t.Errorf("Texel(%d) = %v, want %v", d, texel, in.Pixel())
		}
	}
	// Instruction 1 sits at (1,0).
	if got := c.Pixels()[4:8]; got[0] != byte(OpLDI) || got[1] != 20 {
		t.Errorf("pixel (1,0) = %v, want LDI r2, 20", got)
	}
}

func TestAssembleOrders(t *testing.T) {
	tests := []struct {
		n, order int
	}{
		{0, 0}, {1, 0}, {2, 1}, {4, 1}, {5, 2}, {16, 2}, {17, 3}, {300, 5},
	}
	for _, tt := range tests {
		c, err := Assemble(make([]Instruction, tt.n))
		if err != nil {
			t.Fatalf("Assemble(%d) error = %v", tt.n, err)
		}
		if c.Order() != tt.order {
			t.Errorf("Assemble(%d).Order() = %d, want %d", tt.n, c.Order(), tt.order)
		}
	}
	if _, err := ProgramOrder(int(hilbert.Cells(pixelrts.MaxOrder)) + 1); !errors.Is(err, pixelrts.ErrCapacity) {
		t.Errorf("ProgramOrder(too many) error = %v, want ErrCapacity", err)
	}
}

func TestAssembleTrailingNOPs(t *testing.T) {
	c, err := Assemble([]Instruction{HALT(), HALT(), HALT()})
	if err != nil {
		t.Fatal(err)
	}
	texel, err := c.Texel(3)
	if err != nil {
		t.Fatal(err)
	}
	if FromPixel(texel) != NOP() {
		t.Errorf("Texel(3) = %v, want zero NOP", texel)
	}
}

func TestRoundTrip(t *testing.T) {
	prog := []Instruction{
		LDI(1, 255), MOV(2, 1), SUB(3, 2, 1), MUL(4, 3, 3), DIV(5, 4, 0),
		Raw(0x99, 1, 2, 3), JMP(0), NOP(), HALT(),
	}
	c, err := Assemble(prog, WithEntry(2))
	if err != nil {
		t.Fatal(err)
	}
	if c.EntryPoint() != 2 {
		t.Errorf("EntryPoint() = %d, want 2", c.EntryPoint())
	}
	got, err := Disassemble(c)
	if err != nil {
		t.Fatalf("Disassemble() error = %v", err)
	}
	if diff := cmp.Diff(prog, got); diff != "" {
		t.Errorf("Disassemble() (-want +got):\n%s", diff)
	}
}

func TestAssembleBadEntry(t *testing.T) {
	if _, err := Assemble(sample(), WithEntry(4)); !errors.Is(err, pixelrts.ErrValidation) {
		t.Errorf("Assemble(entry 4) error = %v, want ErrValidation", err)
	}
}

func TestDisassembleErrors(t *testing.T) {
	data, err := pixelrts.Encode([]byte("not a program"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Disassemble(data); !errors.Is(err, pixelrts.ErrEncodingMismatch) {
		t.Errorf("Disassemble(data) error = %v, want ErrEncodingMismatch", err)
	}

	prog, err := Assemble(sample())
	if err != nil {
		t.Fatal(err)
	}
	bare, err := pixelrts.NewContainer(prog.Order(), prog.Pixels(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Disassemble(bare); !errors.Is(err, pixelrts.ErrMetadata) {
		t.Errorf("Disassemble(no metadata) error = %v, want ErrMetadata", err)
	}

	pix := prog.Pixels()
	pix[4*3+1] = 99 // instruction at (1,1) is index 2
	tampered, err := pixelrts.NewContainer(prog.Order(), pix, prog.Metadata())
	if err != nil {
		t.Fatal(err)
	}
	var ie *pixelrts.IntegrityError
	if _, err := Disassemble(tampered); !errors.As(err, &ie) {
		t.Errorf("Disassemble(tampered) error = %v, want *IntegrityError", err)
	}

	m := prog.Metadata()
	m.InstructionCount = 3
	wrongCount, err := pixelrts.NewContainer(prog.Order(), prog.Pixels(), m)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Disassemble(wrongCount); !errors.Is(err, pixelrts.ErrMetadata) {
		t.Errorf("Disassemble(count mismatch) error = %v, want ErrMetadata", err)
	}
}

// =============================================================================
// Text assembler
// =============================================================================

func TestParse(t *testing.T) {
	src := `
; add two numbers
start:  LDI r1, 10     # first
        LDI r2, 0x14
        ADD r3, r1, r2
loop:
        JMP loop
        .pixel 0x99, 1, 2, 3
        HALT
`
	got, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []Instruction{LDI(1, 10), LDI(2, 20), ADD(3, 1, 2), JMP(3), Raw(0x99, 1, 2, 3), HALT()}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"unknown mnemonic", "NOP\nFOO r1", 2},
		{"operand count", "ADD r1, r2", 1},
		{"bad register", "MOV r1, r256", 1},
		{"bad immediate", "LDI r1, 300", 1},
		{"register as immediate", "LDI r1, r2", 1},
		{"undefined label", "JMP nowhere", 1},
		{"duplicate label", "a:\na: NOP", 2},
		{"bad pixel", ".pixel 1, 2, 3", 1},
		{"invalid label", "1abc: NOP", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			var pe *ParseError
			if !errors.As(err, &pe) || !errors.Is(err, ErrSyntax) {
				t.Fatalf("Parse() error = %v, want *ParseError", err)
			}
			if pe.Line != tt.line {
				t.Errorf("ParseError.Line = %d, want %d", pe.Line, tt.line)
			}
		})
	}
}

func TestFormatParse(t *testing.T) {
	prog := []Instruction{
		LDI(1, 10), MOV(2, 1), ADD(3, 1, 2), SUB(4, 3, 1), MUL(5, 4, 4), DIV(6, 5, 0),
		JMP(7), Raw(0x99, 1, 2, 3), Raw(byte(OpHALT), 1, 0, 0), NOP(), HALT(),
	}
	text := Format(prog)
	got, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(Format()) error = %v\n%s", err, text)
	}
	if diff := cmp.Diff(prog, got); diff != "" {
		t.Errorf("Parse(Format()) (-want +got):\n%s", diff)
	}
}
