package vm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/gogpu/pixelrts/trace"
)

// Seed gives initial register values for a run. Unlisted registers are 0.
type Seed map[uint8]float32

func (s Seed) bytes() []byte {
	b := make([]byte, 4*NumRegisters)
	for r, v := range s {
		binary.LittleEndian.PutUint32(b[4*int(r):], math.Float32bits(v))
	}
	return b
}

// Result is the read-back state of one run.
type Result struct {
	RunID     uuid.UUID
	Registers [NumRegisters]float32
	Trace     *trace.Trace
	Heatmap   *trace.Heatmap

	// Completed is true when the run retired a HALT.
	Completed bool

	// Steps is the number of retired instructions.
	Steps int

	// Fault is the faulting entry of a JMP outside the program, or nil.
	Fault *trace.Entry
}

// Exhausted reports whether the run stopped at the step limit.
func (r *Result) Exhausted() bool {
	return r.Trace.Exhausted()
}

func decodeRegisters(b []byte) ([NumRegisters]float32, error) {
	var regs [NumRegisters]float32
	if len(b) < 4*NumRegisters {
		return regs, fmt.Errorf("register buffer is %d bytes, want %d", len(b), 4*NumRegisters)
	}
	for i := range regs {
		regs[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return regs, nil
}
