package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"sync"
	"time"

	"github.com/gogpu/pixelrts/hilbert"
	"github.com/gogpu/pixelrts/isa"
	"github.com/gogpu/pixelrts/trace"
)

// softwareDevice runs the interpreter contract of shaders/pixelvm.wgsl on
// the CPU. Each dispatch executes on its own goroutine; Wait is the only
// blocking point, as with a GPU queue.
type softwareDevice struct {
	mu        sync.Mutex
	destroyed bool
}

func newSoftwareDevice() *softwareDevice {
	return &softwareDevice{}
}

func (d *softwareDevice) Name() string { return "software" }

func (d *softwareDevice) alive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return ErrDeviceLost
	}
	return nil
}

func (d *softwareDevice) CreateTexture(side uint32, rgba []byte) (Texture, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if side == 0 || side&(side-1) != 0 || len(rgba) != int(4*side*side) {
		return nil, fmt.Errorf("software: %d bytes for a %dx%d texture", len(rgba), side, side)
	}
	return &softTexture{
		side:  side,
		order: bits.TrailingZeros32(side),
		texel: append([]byte(nil), rgba...),
	}, nil
}

func (d *softwareDevice) CreateRun(tex Texture, p Params) (RunResources, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	st, ok := tex.(*softTexture)
	if !ok {
		return nil, fmt.Errorf("software: foreign texture %T", tex)
	}
	return &softRun{
		dev:       d,
		tex:       st,
		params:    p,
		registers: make([]byte, 4*NumRegisters),
		trace:     make([]byte, trace.BufferSize(int(p.TraceCapacity))),
		heatmap:   make([]byte, 4*st.side*st.side),
	}, nil
}

func (d *softwareDevice) Destroy() {
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
}

type softTexture struct {
	side  uint32
	order int
	texel []byte
}

func (t *softTexture) Side() uint32 { return t.side }
func (t *softTexture) Destroy()     {}

type softRun struct {
	dev    *softwareDevice
	tex    *softTexture
	params Params

	registers []byte
	trace     []byte
	heatmap   []byte

	done chan struct{}
}

func (r *softRun) Dispatch(registers []byte) error {
	if err := r.dev.alive(); err != nil {
		return err
	}
	if r.done != nil {
		return fmt.Errorf("software: run already dispatched")
	}
	copy(r.registers, registers)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		r.execute()
	}()
	return nil
}

func (r *softRun) Wait(timeout time.Duration) (*Readback, error) {
	if r.done == nil {
		return nil, fmt.Errorf("software: wait without dispatch")
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.done:
	case <-timer.C:
		return nil, ErrTimeout
	}
	if err := r.dev.alive(); err != nil {
		return nil, err
	}
	return &Readback{
		Registers: append([]byte(nil), r.registers...),
		Trace:     append([]byte(nil), r.trace...),
		Heatmap:   append([]byte(nil), r.heatmap...),
	}, nil
}

func (r *softRun) Destroy() {}

func (r *softRun) reg(i uint32) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(r.registers[4*i:]))
}

func (r *softRun) setReg(i uint32, v float32) {
	binary.LittleEndian.PutUint32(r.registers[4*i:], math.Float32bits(v))
}

// execute is the interpreter loop. It must stay in step with main() in
// shaders/pixelvm.wgsl.
func (r *softRun) execute() {
	p := r.params
	side := r.tex.side
	pc := p.Entry
	var steps uint32
	for steps < p.TraceCapacity && pc < p.ProgramLength {
		x, y, err := hilbert.D2XY(uint64(pc), r.tex.order)
		if err != nil {
			break
		}
		cell := y*side + x
		t := r.tex.texel[4*cell : 4*cell+4]
		op, a, b, dest := isa.Opcode(t[0]), uint32(t[1]), uint32(t[2]), uint32(t[3])

		next := pc + 1
		var flags uint32
		stop := false
		switch op {
		case isa.OpLDI:
			r.setReg(dest, float32(a))
		case isa.OpMOV:
			r.setReg(dest, r.reg(a))
		case isa.OpADD:
			r.setReg(dest, r.reg(a)+r.reg(b))
		case isa.OpSUB:
			r.setReg(dest, r.reg(a)-r.reg(b))
		case isa.OpMUL:
			r.setReg(dest, r.reg(a)*r.reg(b))
		case isa.OpDIV:
			r.setReg(dest, r.reg(a)/r.reg(b))
		case isa.OpJMP:
			if a >= p.ProgramLength {
				flags = trace.FaultFlag
				stop = true
			} else {
				next = a
			}
		case isa.OpHALT:
			stop = true
		}

		w := r.trace[4*steps*trace.FieldsPerEntry:]
		binary.LittleEndian.PutUint32(w[0:], pc)
		binary.LittleEndian.PutUint32(w[4:], uint32(op)|flags)
		binary.LittleEndian.PutUint32(w[8:], dest)
		binary.LittleEndian.PutUint32(w[12:], a)
		binary.LittleEndian.PutUint32(w[16:], b)

		h := math.Float32frombits(binary.LittleEndian.Uint32(r.heatmap[4*cell:]))
		binary.LittleEndian.PutUint32(r.heatmap[4*cell:], math.Float32bits(h+1))

		steps++
		if stop {
			break
		}
		pc = next
	}
	binary.LittleEndian.PutUint32(r.trace[4*p.TraceCapacity*trace.FieldsPerEntry:], steps)
}
