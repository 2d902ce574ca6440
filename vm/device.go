// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vm

import (
	"encoding/binary"
	"time"
)

// NumRegisters is the size of the register file.
const NumRegisters = 256

// Params is the uniform block of the interpreter shader (binding 4).
type Params struct {
	ProgramLength uint32
	TraceCapacity uint32
	Side          uint32
	Entry         uint32
}

// ParamsSize is the size of the encoded Params block in bytes.
const ParamsSize = 16

// Bytes encodes p in the shader's std140 layout.
func (p Params) Bytes() []byte {
	b := make([]byte, ParamsSize)
	binary.LittleEndian.PutUint32(b[0:], p.ProgramLength)
	binary.LittleEndian.PutUint32(b[4:], p.TraceCapacity)
	binary.LittleEndian.PutUint32(b[8:], p.Side)
	binary.LittleEndian.PutUint32(b[12:], p.Entry)
	return b
}

// Device executes the interpreter. The GPU and software backends implement
// it; tests substitute their own.
type Device interface {
	// Name identifies the adapter, for logs.
	Name() string

	// CreateTexture uploads a side x side RGBA8 program image, row-major.
	CreateTexture(side uint32, rgba []byte) (Texture, error)

	// CreateRun allocates a zeroed buffer set for one run of tex.
	CreateRun(tex Texture, p Params) (RunResources, error)

	// Destroy releases the device.
	Destroy()
}

// Texture is an uploaded, immutable program image.
type Texture interface {
	Side() uint32
	Destroy()
}

// RunResources is the buffer set of one run: registers (binding 1), trace
// (binding 2), heatmap (binding 3) and params (binding 4).
type RunResources interface {
	// Dispatch uploads the initial register file (NumRegisters
	// little-endian float32) and submits the single-invocation dispatch.
	// It does not wait for the device.
	Dispatch(registers []byte) error

	// Wait blocks until the dispatch finishes or timeout elapses, then
	// copies the buffers back.
	Wait(timeout time.Duration) (*Readback, error)

	// Destroy releases the buffers.
	Destroy()
}

// Readback holds the raw little-endian buffer contents after a run.
type Readback struct {
	Registers []byte
	Trace     []byte
	Heatmap   []byte
}
