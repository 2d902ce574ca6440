// Package trace decodes the buffers a PixelVM run writes: the ordered list
// of retired instructions and the per-texel visit heatmap.
//
// The trace buffer holds Capacity entries of FieldsPerEntry little-endian
// uint32 words followed by one word with the number of steps executed.
// Only that count says how many entries are valid; the rest of the buffer
// is never read.
package trace

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/pixelrts/isa"
)

const (
	// FieldsPerEntry is the number of uint32 words per trace entry.
	FieldsPerEntry = 5

	// DefaultCapacity is the default number of trace entries, and so the
	// default step limit of a run.
	DefaultCapacity = 10000

	// FaultFlag is set in the opcode word of the entry of an instruction
	// that faulted, e.g. a jump outside the program.
	FaultFlag = 0x100
)

// ErrCorrupt is returned for buffers that are too short or whose step count
// exceeds the capacity.
var ErrCorrupt = errors.New("trace: corrupt buffer")

// BufferSize returns the trace buffer size in bytes for capacity entries,
// including the trailing step count.
func BufferSize(capacity int) int {
	return 4 * (capacity*FieldsPerEntry + 1)
}

// Entry is one retired instruction.
type Entry struct {
	PC        uint32 `json:"pc" cbor:"1,keyasint"`
	Opcode    uint32 `json:"opcode" cbor:"2,keyasint"`
	Dest      uint32 `json:"dest" cbor:"3,keyasint"`
	Src       uint32 `json:"src" cbor:"4,keyasint"`
	Immediate uint32 `json:"immediate" cbor:"5,keyasint"`
}

// Op returns the instruction opcode without flags.
func (e Entry) Op() isa.Opcode { return isa.Opcode(e.Opcode & 0xFF) }

// Faulted reports whether the instruction faulted.
func (e Entry) Faulted() bool { return e.Opcode&FaultFlag != 0 }

// String formats e for listings.
func (e Entry) String() string {
	s := fmt.Sprintf("%5d  %-4s dest=r%d src=r%d imm=%d", e.PC, e.Op(), e.Dest, e.Src, e.Immediate)
	if e.Faulted() {
		s += "  FAULT"
	}
	return s
}

// Trace is the ordered execution record of one run.
type Trace struct {
	Entries  []Entry `json:"entries" cbor:"1,keyasint"`
	Steps    int     `json:"steps" cbor:"2,keyasint"`
	Capacity int     `json:"capacity" cbor:"3,keyasint"`
}

// Parse decodes a trace buffer written with the given capacity.
func Parse(buf []byte, capacity int) (*Trace, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: negative capacity %d", ErrCorrupt, capacity)
	}
	if len(buf) < BufferSize(capacity) {
		return nil, fmt.Errorf("%w: %d bytes, want %d for capacity %d", ErrCorrupt, len(buf), BufferSize(capacity), capacity)
	}
	steps := binary.LittleEndian.Uint32(buf[4*capacity*FieldsPerEntry:])
	if uint64(steps) > uint64(capacity) { //nolint:gosec // capacity checked non-negative
		return nil, fmt.Errorf("%w: step count %d exceeds capacity %d", ErrCorrupt, steps, capacity)
	}

	t := &Trace{
		Entries:  make([]Entry, steps),
		Steps:    int(steps),
		Capacity: capacity,
	}
	for i := range t.Entries {
		w := buf[4*i*FieldsPerEntry:]
		t.Entries[i] = Entry{
			PC:        binary.LittleEndian.Uint32(w[0:]),
			Opcode:    binary.LittleEndian.Uint32(w[4:]),
			Dest:      binary.LittleEndian.Uint32(w[8:]),
			Src:       binary.LittleEndian.Uint32(w[12:]),
			Immediate: binary.LittleEndian.Uint32(w[16:]),
		}
	}
	return t, nil
}

// Last returns the final entry, or false for an empty trace.
func (t *Trace) Last() (Entry, bool) {
	if len(t.Entries) == 0 {
		return Entry{}, false
	}
	return t.Entries[len(t.Entries)-1], true
}

// Completed reports whether the run ended on a HALT.
func (t *Trace) Completed() bool {
	last, ok := t.Last()
	return ok && last.Op() == isa.OpHALT && !last.Faulted()
}

// Exhausted reports whether the run stopped because the step limit was hit.
func (t *Trace) Exhausted() bool {
	return t.Steps == t.Capacity && !t.Completed() && t.Fault() == nil
}

// Fault returns the faulting entry, or nil.
func (t *Trace) Fault() *Entry {
	last, ok := t.Last()
	if !ok || !last.Faulted() {
		return nil
	}
	return &last
}

// Visits returns how often each pc appears in the trace.
func (t *Trace) Visits() map[uint32]int {
	m := make(map[uint32]int)
	for _, e := range t.Entries {
		m[e.PC]++
	}
	return m
}
