package isa

import "fmt"

// Instruction is one decoded texel.
type Instruction struct {
	Op   Opcode
	A    uint8 // G: first source register, immediate or jump target
	B    uint8 // B: second source register
	Dest uint8 // A: destination register
}

// Pixel returns the RGBA texel encoding i.
func (i Instruction) Pixel() [4]byte {
	return [4]byte{byte(i.Op), i.A, i.B, i.Dest}
}

// FromPixel decodes a texel. Unknown opcodes decode without error; see
// Recognized.
func FromPixel(p [4]byte) Instruction {
	return Instruction{Op: Opcode(p[0]), A: p[1], B: p[2], Dest: p[3]}
}

// Recognized reports whether the opcode is part of the instruction set.
// The VM executes unrecognized instructions as NOP.
func (i Instruction) Recognized() bool { return i.Op.Known() }

// String formats i in the assembler syntax accepted by Parse.
func (i Instruction) String() string {
	switch i.Op {
	case OpNOP, OpHALT:
		if i.A|i.B|i.Dest != 0 {
			return i.raw()
		}
		return i.Op.String()
	case OpLDI:
		return fmt.Sprintf("LDI r%d, %d", i.Dest, i.A)
	case OpMOV:
		return fmt.Sprintf("MOV r%d, r%d", i.Dest, i.A)
	case OpJMP:
		return fmt.Sprintf("JMP %d", i.A)
	case OpADD, OpSUB, OpMUL, OpDIV:
		return fmt.Sprintf("%s r%d, r%d, r%d", i.Op, i.Dest, i.A, i.B)
	}
	return i.raw()
}

func (i Instruction) raw() string {
	return fmt.Sprintf(".pixel 0x%02x, 0x%02x, 0x%02x, 0x%02x", byte(i.Op), i.A, i.B, i.Dest)
}

// LDI loads the immediate imm into register dest.
func LDI(dest, imm uint8) Instruction { return Instruction{Op: OpLDI, A: imm, Dest: dest} }

// MOV copies register src into register dest.
func MOV(dest, src uint8) Instruction { return Instruction{Op: OpMOV, A: src, Dest: dest} }

// ADD sets dest = a + b.
func ADD(dest, a, b uint8) Instruction { return Instruction{Op: OpADD, A: a, B: b, Dest: dest} }

// SUB sets dest = a - b.
func SUB(dest, a, b uint8) Instruction { return Instruction{Op: OpSUB, A: a, B: b, Dest: dest} }

// MUL sets dest = a * b.
func MUL(dest, a, b uint8) Instruction { return Instruction{Op: OpMUL, A: a, B: b, Dest: dest} }

// DIV sets dest = a / b with IEEE 754 semantics; division by zero yields
// an infinity or NaN.
func DIV(dest, a, b uint8) Instruction { return Instruction{Op: OpDIV, A: a, B: b, Dest: dest} }

// JMP continues execution at the absolute program counter target.
func JMP(target uint8) Instruction { return Instruction{Op: OpJMP, A: target} }

// HALT stops execution.
func HALT() Instruction { return Instruction{Op: OpHALT} }

// NOP does nothing.
func NOP() Instruction { return Instruction{Op: OpNOP} }

// Raw builds an instruction from the four texel channels.
func Raw(r, g, b, a uint8) Instruction { return FromPixel([4]byte{r, g, b, a}) }
