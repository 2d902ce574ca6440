// Package isa defines the Geometric ISA: programs in which every pixel is
// one instruction.
//
// An instruction is one RGBA texel: R holds the opcode, G the first operand
// (source register, immediate or jump target), B the second source register
// and A the destination register. Instruction i of a program is stored at
// Hilbert index i of the program grid. The opcode values are a binary
// compatibility contract with existing program images and must not change.
package isa

import (
	"strings"
	"sync"
)

// Opcode is the R channel of an instruction texel.
type Opcode uint8

// Opcodes.
const (
	OpNOP  Opcode = 0x00
	OpMOV  Opcode = 0x01
	OpJMP  Opcode = 0x06
	OpHALT Opcode = 0x07
	OpLDI  Opcode = 0x08
	OpADD  Opcode = 0x33
	OpSUB  Opcode = 0x34
	OpMUL  Opcode = 0x35
	OpDIV  Opcode = 0x36
)

var opcodeNames = [...]struct {
	op   Opcode
	name string
}{
	{OpNOP, "NOP"},
	{OpMOV, "MOV"},
	{OpJMP, "JMP"},
	{OpHALT, "HALT"},
	{OpLDI, "LDI"},
	{OpADD, "ADD"},
	{OpSUB, "SUB"},
	{OpMUL, "MUL"},
	{OpDIV, "DIV"},
}

// String returns the mnemonic, or "OP_xx" for an unknown opcode.
func (op Opcode) String() string {
	for _, e := range opcodeNames {
		if e.op == op {
			return e.name
		}
	}
	const hex = "0123456789ABCDEF"
	return "OP_" + string([]byte{hex[op>>4], hex[op&0xF]})
}

// Known reports whether op is part of the instruction set.
func (op Opcode) Known() bool {
	for _, e := range opcodeNames {
		if e.op == op {
			return true
		}
	}
	return false
}

var mnemonics = sync.OnceValue(func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for _, e := range opcodeNames {
		m[e.name] = e.op
	}
	return m
})

// LookupOpcode returns the opcode for a mnemonic, ignoring case.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := mnemonics()[strings.ToUpper(name)]
	return op, ok
}
