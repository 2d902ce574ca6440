package isa

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is matched by every *ParseError.
var ErrSyntax = errors.New("isa: syntax error")

// ParseError reports an assembler error on a source line (1-based).
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("isa: line %d: %s", e.Line, e.Msg)
}

// Is reports whether target is ErrSyntax.
func (e *ParseError) Is(target error) bool { return target == ErrSyntax }

// operand kinds per mnemonic
type form int

const (
	formNone form = iota // HALT, NOP
	formLoad             // LDI rD, imm
	formMove             // MOV rD, rS
	formALU              // ADD rD, rA, rB
	formJump             // JMP target
)

func formOf(op Opcode) form {
	switch op {
	case OpLDI:
		return formLoad
	case OpMOV:
		return formMove
	case OpADD, OpSUB, OpMUL, OpDIV:
		return formALU
	case OpJMP:
		return formJump
	}
	return formNone
}

type pendingJump struct {
	index int
	label string
	line  int
}

// Parse assembles source text into instructions.
//
// One instruction per line. Comments start with ';' or '#'. A line may start
// with "label:"; labels can be used as JMP targets. Registers are written
// rN, immediates in decimal or 0x hex. ".pixel r, g, b, a" emits a raw texel.
//
//	start:
//	    LDI r1, 10
//	    LDI r2, 0x14
//	    ADD r3, r1, r2
//	    JMP start
func Parse(src string) ([]Instruction, error) {
	var (
		out     []Instruction
		labels  = make(map[string]int)
		pending []pendingJump
	)
	for n, line := range strings.Split(src, "\n") {
		lineNo := n + 1
		if i := strings.IndexAny(line, ";#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)

		if label, rest, ok := strings.Cut(line, ":"); ok {
			label = strings.TrimSpace(label)
			if !validLabel(label) {
				return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid label %q", label)}
			}
			if _, dup := labels[label]; dup {
				return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("label %q redefined", label)}
			}
			labels[label] = len(out)
			line = strings.TrimSpace(rest)
		}
		if line == "" {
			continue
		}

		fields := splitOperands(line)
		mnemonic, operands := fields[0], fields[1:]

		if strings.EqualFold(mnemonic, ".pixel") {
			in, err := parsePixel(operands)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Msg: err.Error()}
			}
			out = append(out, in)
			continue
		}

		op, ok := LookupOpcode(mnemonic)
		if !ok {
			return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("unknown mnemonic %q", mnemonic)}
		}
		in, label, err := parseOperands(op, operands)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("%s: %v", op, err)}
		}
		if label != "" {
			pending = append(pending, pendingJump{index: len(out), label: label, line: lineNo})
		}
		out = append(out, in)
	}

	for _, p := range pending {
		target, ok := labels[p.label]
		if !ok {
			return nil, &ParseError{Line: p.line, Msg: fmt.Sprintf("undefined label %q", p.label)}
		}
		if target > 0xFF {
			return nil, &ParseError{Line: p.line, Msg: fmt.Sprintf("label %q at %d is beyond the 8-bit jump range", p.label, target)}
		}
		out[p.index].A = uint8(target)
	}
	return out, nil
}

// Format renders instrs as source text accepted by Parse.
func Format(instrs []Instruction) string {
	var b strings.Builder
	for _, in := range instrs {
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func parseOperands(op Opcode, args []string) (Instruction, string, error) {
	want := map[form]int{formNone: 0, formLoad: 2, formMove: 2, formALU: 3, formJump: 1}[formOf(op)]
	if len(args) != want {
		return Instruction{}, "", fmt.Errorf("want %d operands, got %d", want, len(args))
	}
	in := Instruction{Op: op}
	var err error
	switch formOf(op) {
	case formLoad:
		if in.Dest, err = parseRegister(args[0]); err != nil {
			return in, "", err
		}
		in.A, err = parseImmediate(args[1])
	case formMove:
		if in.Dest, err = parseRegister(args[0]); err != nil {
			return in, "", err
		}
		in.A, err = parseRegister(args[1])
	case formALU:
		if in.Dest, err = parseRegister(args[0]); err != nil {
			return in, "", err
		}
		if in.A, err = parseRegister(args[1]); err != nil {
			return in, "", err
		}
		in.B, err = parseRegister(args[2])
	case formJump:
		if validLabel(args[0]) {
			return in, args[0], nil
		}
		in.A, err = parseImmediate(args[0])
	}
	return in, "", err
}

func parsePixel(args []string) (Instruction, error) {
	if len(args) != 4 {
		return Instruction{}, fmt.Errorf(".pixel: want 4 channels, got %d", len(args))
	}
	var p [4]byte
	for i, a := range args {
		v, err := parseImmediate(a)
		if err != nil {
			return Instruction{}, fmt.Errorf(".pixel: %w", err)
		}
		p[i] = v
	}
	return FromPixel(p), nil
}

func parseRegister(s string) (uint8, error) {
	if len(s) < 2 || (s[0] != 'r' && s[0] != 'R') {
		return 0, fmt.Errorf("expected register, got %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("register %q out of range r0-r255", s)
	}
	return uint8(v), nil
}

func parseImmediate(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("immediate %q is not an 8-bit value", s)
	}
	return uint8(v), nil
}

func splitOperands(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\r'
	})
}

// validLabel reports whether s is an identifier that is not a register or
// number.
func validLabel(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	if _, err := parseRegister(s); err == nil {
		return false
	}
	return true
}
