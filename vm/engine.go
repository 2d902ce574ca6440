package vm

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/pixelrts"
	"github.com/gogpu/pixelrts/internal/cache"
	"github.com/gogpu/pixelrts/isa"
	"github.com/gogpu/pixelrts/trace"
)

// Engine loads program containers onto a device and runs them. All
// methods are safe for concurrent use; operations are serialized and at
// most one dispatch is in flight.
type Engine struct {
	mu sync.Mutex

	dev       Device
	opts      engineOptions
	state     State
	closed    bool
	textures  *cache.Cache[string, Texture]
	prog      *program
	run       RunResources
	runFresh  bool // run has not been dispatched yet
	runID     uuid.UUID
	runSubmit time.Time
}

// program is the currently loaded program.
type program struct {
	key    string
	name   string
	tex    Texture
	length uint32
	entry  uint32
	order  int
}

// NewEngine opens a device and builds the interpreter pipeline. Failures
// to obtain an adapter, open the device or build the shader are returned
// as *DeviceError.
func NewEngine(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.resolve(); err != nil {
		return nil, err
	}

	e := &Engine{opts: o}
	switch {
	case o.device != nil:
		e.dev = o.device
	case o.provider != nil:
		if err := o.loadShader(); err != nil {
			return nil, &DeviceError{Op: "load shader", Err: err}
		}
		dev, err := newProviderDevice(o.provider, o.shaderSource)
		if err != nil {
			return nil, deviceErr("share device", err)
		}
		e.dev = dev
	case o.backend == BackendSoftware:
		e.dev = newSoftwareDevice()
	case o.backend == BackendGPU:
		if err := o.loadShader(); err != nil {
			return nil, &DeviceError{Op: "load shader", Err: err}
		}
		dev, err := newGPUDevice(o.shaderSource)
		if err != nil {
			return nil, deviceErr("open", err)
		}
		e.dev = dev
	default:
		return nil, fmt.Errorf("%w: backend %v", ErrInvalidOption, o.backend)
	}

	e.textures = cache.New(o.cacheSize, func(key string, tex Texture) {
		pixelrts.Logger().Debug("vm: program texture released", slog.String("program", key))
		tex.Destroy()
	})
	pixelrts.Logger().Debug("vm: engine ready",
		slog.String("device", e.dev.Name()),
		slog.Int("trace_capacity", o.traceCapacity),
	)
	return e, nil
}

// DeviceName returns the name of the device the engine runs on.
func (e *Engine) DeviceName() string {
	return e.dev.Name()
}

// TraceCapacity returns the step limit of a run.
func (e *Engine) TraceCapacity() int {
	return e.opts.traceCapacity
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Load makes c the current program. c must be an RGBA-code container whose
// instructions match its recorded hash. The program texture is reused when
// the same program was loaded before and is still cached.
func (e *Engine) Load(c *pixelrts.Container) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.usable(); err != nil {
		return err
	}
	if e.state == StateDispatched {
		return fmt.Errorf("%w: load while a run is in flight", ErrInvalidState)
	}

	instrs, err := isa.Disassemble(c)
	if err != nil {
		return fmt.Errorf("vm: load: %w", err)
	}
	n := len(instrs)
	entry := c.EntryPoint()
	if n > 0 && entry >= uint64(n) {
		return fmt.Errorf("%w: entry point %d outside a %d-instruction program",
			pixelrts.ErrValidation, entry, n)
	}

	meta := c.Metadata()
	key := meta.DataHash + "/" + strconv.Itoa(c.Order())

	e.dropRun()
	side := uint32(c.Side()) //nolint:gosec // side <= 1<<MaxOrder
	tex, hit, err := e.textures.GetOrCreate(key, func() (Texture, error) {
		return e.dev.CreateTexture(side, c.Pixels())
	})
	if err != nil {
		e.state = StateFaulted
		return deviceErr("upload", err)
	}
	e.prog = &program{
		key:    key,
		name:   meta.Name,
		tex:    tex,
		length: uint32(n), //nolint:gosec // n <= 4^MaxOrder
		entry:  uint32(entry),
		order:  c.Order(),
	}
	if err := e.allocRun(); err != nil {
		return err
	}
	e.state = StateLoaded

	pixelrts.Logger().Debug("vm: program loaded",
		slog.String("program", key),
		slog.Int("instructions", n),
		slog.Bool("texture_cached", hit),
	)
	return nil
}

// Run seeds the register file and submits one dispatch of the loaded
// program. It does not wait; call Readback for the result.
func (e *Engine) Run(seed Seed) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.usable(); err != nil {
		return err
	}
	switch e.state {
	case StateLoaded, StateComplete:
	case StateDispatched:
		return fmt.Errorf("%w: a run is already in flight", ErrInvalidState)
	default:
		return fmt.Errorf("%w: run in state %v", ErrInvalidState, e.state)
	}

	if !e.runFresh {
		e.dropRun()
		if err := e.allocRun(); err != nil {
			return err
		}
	}
	if err := e.run.Dispatch(seed.bytes()); err != nil {
		e.state = StateFaulted
		return deviceErr("dispatch", err)
	}
	e.runFresh = false
	e.runID = uuid.New()
	e.runSubmit = time.Now()
	e.state = StateDispatched
	return nil
}

// Readback waits for the dispatched run, bounded by the readback timeout,
// and returns its registers, trace and heatmap. Reaching the step limit is
// not an error. A timeout or lost device moves the engine to StateFaulted.
func (e *Engine) Readback() (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.usable(); err != nil {
		return nil, err
	}
	if e.state != StateDispatched {
		return nil, fmt.Errorf("%w: readback in state %v", ErrInvalidState, e.state)
	}

	rb, err := e.run.Wait(e.opts.readbackTimeout)
	if err != nil {
		e.state = StateFaulted
		return nil, deviceErr("readback", err)
	}
	res, err := e.result(rb)
	if err != nil {
		e.state = StateFaulted
		return nil, deviceErr("readback", err)
	}
	e.state = StateComplete

	log := pixelrts.Logger()
	switch {
	case res.Fault != nil:
		log.Warn("vm: run faulted",
			slog.String("run_id", res.RunID.String()),
			slog.String("fault", res.Fault.String()),
		)
	case res.Exhausted():
		log.Warn("vm: step limit reached",
			slog.String("run_id", res.RunID.String()),
			slog.Int("steps", res.Steps),
		)
	}
	log.Info("vm: run finished",
		slog.String("run_id", res.RunID.String()),
		slog.String("program", e.prog.name),
		slog.Int("steps", res.Steps),
		slog.Bool("completed", res.Completed),
		slog.Duration("elapsed", time.Since(e.runSubmit)),
	)
	return res, nil
}

// Execute is Run followed by Readback.
func (e *Engine) Execute(seed Seed) (*Result, error) {
	if err := e.Run(seed); err != nil {
		return nil, err
	}
	return e.Readback()
}

// Close releases the cached textures and the device. A shared device keeps
// running; only the engine's pipeline is destroyed. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.dropRun()
	st := e.textures.Stats()
	pixelrts.Logger().Debug("vm: engine closed",
		slog.Int("textures", st.Len),
		slog.Uint64("texture_hits", st.Hits),
		slog.Uint64("texture_evictions", st.Evictions),
	)
	e.textures.Purge()
	e.prog = nil
	e.dev.Destroy()
	e.closed = true
	e.state = StateInit
	return nil
}

func (e *Engine) usable() error {
	if e.closed {
		return fmt.Errorf("%w: engine closed", ErrInvalidState)
	}
	if e.state == StateFaulted {
		return fmt.Errorf("%w: engine faulted", ErrInvalidState)
	}
	return nil
}

// allocRun creates a zeroed buffer set for the current program.
func (e *Engine) allocRun() error {
	p := e.prog
	run, err := e.dev.CreateRun(p.tex, Params{
		ProgramLength: p.length,
		TraceCapacity: uint32(e.opts.traceCapacity), //nolint:gosec // bounded by MaxTraceCapacity
		Side:          p.tex.Side(),
		Entry:         p.entry,
	})
	if err != nil {
		e.state = StateFaulted
		return deviceErr("allocate", err)
	}
	e.run = run
	e.runFresh = true
	return nil
}

func (e *Engine) dropRun() {
	if e.run != nil {
		e.run.Destroy()
		e.run = nil
	}
	e.runFresh = false
}

func (e *Engine) result(rb *Readback) (*Result, error) {
	regs, err := decodeRegisters(rb.Registers)
	if err != nil {
		return nil, err
	}
	tr, err := trace.Parse(rb.Trace, e.opts.traceCapacity)
	if err != nil {
		return nil, err
	}
	hm, err := trace.ParseHeatmap(rb.Heatmap, e.prog.order)
	if err != nil {
		return nil, err
	}
	return &Result{
		RunID:     e.runID,
		Registers: regs,
		Trace:     tr,
		Heatmap:   hm,
		Completed: tr.Completed(),
		Steps:     tr.Steps,
		Fault:     tr.Fault(),
	}, nil
}
