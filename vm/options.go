package vm

import (
	"fmt"
	"os"
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/pixelrts/trace"
)

// Backend selects the device an Engine opens when none is supplied.
type Backend int

const (
	// BackendGPU runs the WGSL interpreter through wgpu/hal. Default.
	BackendGPU Backend = iota

	// BackendSoftware runs the same contract on the CPU.
	BackendSoftware
)

// String returns the backend name.
func (b Backend) String() string {
	switch b {
	case BackendGPU:
		return "gpu"
	case BackendSoftware:
		return "software"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend maps "gpu" or "software" to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "gpu", "":
		return BackendGPU, nil
	case "software", "cpu":
		return BackendSoftware, nil
	}
	return 0, fmt.Errorf("vm: unknown backend %q", s)
}

// Defaults for NewEngine.
const (
	DefaultReadbackTimeout  = 5 * time.Second
	DefaultTextureCacheSize = 8

	// MaxTraceCapacity bounds WithTraceCapacity.
	MaxTraceCapacity = 1 << 24
)

// Option configures an Engine.
//
// Example:
//
//	e, err := vm.NewEngine(
//		vm.WithBackend(vm.BackendSoftware),
//		vm.WithTraceCapacity(1000),
//	)
type Option func(*engineOptions)

type engineOptions struct {
	backend         Backend
	device          Device
	provider        gpucontext.DeviceProvider
	shaderSource    string
	shaderFile      string
	traceCapacity   int
	readbackTimeout time.Duration
	cacheSize       int
}

func defaultOptions() engineOptions {
	return engineOptions{
		backend:         BackendGPU,
		shaderSource:    DefaultShader,
		traceCapacity:   trace.DefaultCapacity,
		readbackTimeout: DefaultReadbackTimeout,
		cacheSize:       DefaultTextureCacheSize,
	}
}

// WithBackend selects the backend. Ignored when WithDevice or
// WithDeviceProvider is given.
func WithBackend(b Backend) Option {
	return func(o *engineOptions) {
		o.backend = b
	}
}

// WithDevice runs the engine on d. The engine takes ownership and destroys
// d on Close.
func WithDevice(d Device) Option {
	return func(o *engineOptions) {
		o.device = d
	}
}

// WithDeviceProvider shares the GPU device of a host application. The
// device is not destroyed on Close.
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(o *engineOptions) {
		o.provider = p
	}
}

// WithShaderSource replaces the embedded interpreter with WGSL text that
// honours the same bindings and entry point. The software backend ignores
// it.
func WithShaderSource(wgsl string) Option {
	return func(o *engineOptions) {
		o.shaderSource = wgsl
		o.shaderFile = ""
	}
}

// WithShaderFile is WithShaderSource reading the WGSL from path at
// NewEngine time.
func WithShaderFile(path string) Option {
	return func(o *engineOptions) {
		o.shaderFile = path
	}
}

// WithTraceCapacity sets the maximum number of retired instructions per
// run, which is also the step limit.
func WithTraceCapacity(n int) Option {
	return func(o *engineOptions) {
		o.traceCapacity = n
	}
}

// WithReadbackTimeout bounds the wait in Readback.
func WithReadbackTimeout(d time.Duration) Option {
	return func(o *engineOptions) {
		o.readbackTimeout = d
	}
}

// WithTextureCacheSize sets how many program textures stay resident.
func WithTextureCacheSize(n int) Option {
	return func(o *engineOptions) {
		o.cacheSize = n
	}
}

func (o *engineOptions) resolve() error {
	if o.traceCapacity < 1 || o.traceCapacity > MaxTraceCapacity {
		return fmt.Errorf("%w: trace capacity %d not in [1, %d]", ErrInvalidOption, o.traceCapacity, MaxTraceCapacity)
	}
	if o.readbackTimeout <= 0 {
		return fmt.Errorf("%w: readback timeout %v", ErrInvalidOption, o.readbackTimeout)
	}
	return nil
}

// loadShader reads the WGSL file named by WithShaderFile, if any.
func (o *engineOptions) loadShader() error {
	if o.shaderFile == "" {
		return nil
	}
	src, err := os.ReadFile(o.shaderFile)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrShaderBuild, err)
	}
	o.shaderSource = string(src)
	return nil
}
