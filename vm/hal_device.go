// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package vm

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pixelrts"
	"github.com/gogpu/pixelrts/trace"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// halDevice runs the interpreter shader through wgpu/hal.
type halDevice struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	name     string
	external bool // shared device, not destroyed by us

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// newGPUDevice opens a Vulkan device, preferring a discrete or integrated
// GPU, and builds the interpreter pipeline.
func newGPUDevice(shaderSource string) (Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, &DeviceError{Op: "open", Err: fmt.Errorf("%w: vulkan backend not available", ErrNoAdapter)}
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: fmt.Errorf("%w: create instance: %v", ErrNoAdapter, err)}
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, &DeviceError{Op: "open", Err: ErrNoAdapter}
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, &DeviceError{Op: "open", Err: err}
	}

	d := &halDevice{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		name:     selected.Info.Name,
	}
	if err := d.createPipeline(shaderSource); err != nil {
		d.Destroy()
		return nil, &DeviceError{Op: "build pipeline", Err: err}
	}
	pixelrts.Logger().Info("vm: GPU adapter selected", slog.String("adapter", d.name))
	return d, nil
}

// newProviderDevice uses the device of a host application. The provider
// must also expose HalDevice() any and HalQueue() any returning hal.Device
// and hal.Queue.
func newProviderDevice(provider gpucontext.DeviceProvider, shaderSource string) (Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, &DeviceError{Op: "share device", Err: fmt.Errorf("provider %T does not expose HAL types", provider)}
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, &DeviceError{Op: "share device", Err: fmt.Errorf("provider HalDevice is not hal.Device")}
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, &DeviceError{Op: "share device", Err: fmt.Errorf("provider HalQueue is not hal.Queue")}
	}

	d := &halDevice{device: device, queue: queue, name: "shared", external: true}
	if err := d.createPipeline(shaderSource); err != nil {
		d.Destroy()
		return nil, &DeviceError{Op: "build pipeline", Err: err}
	}
	pixelrts.Logger().Info("vm: using shared GPU device")
	return d, nil
}

func (d *halDevice) Name() string { return d.name }

func (d *halDevice) createPipeline(source string) error {
	spirv, err := compileShader(source)
	if err != nil {
		return err
	}
	d.shader, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "pixelvm",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("%w: create shader module: %v", ErrShaderBuild, err)
	}

	storage := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
	}
	d.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "pixelvm_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}},
			storage(1),
			storage(2),
			storage(3),
			{Binding: 4, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}

	d.pipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "pixelvm_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{d.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	d.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "pixelvm_pipeline", Layout: d.pipeLayout,
		Compute: hal.ComputeState{Module: d.shader, EntryPoint: ShaderEntryPoint},
	})
	if err != nil {
		return fmt.Errorf("%w: create compute pipeline: %v", ErrShaderBuild, err)
	}
	return nil
}

func (d *halDevice) CreateTexture(side uint32, rgba []byte) (Texture, error) {
	size := hal.Extent3D{Width: side, Height: side, DepthOrArrayLayers: 1}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "pixelvm_program",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create program texture: %w", err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "pixelvm_program_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, fmt.Errorf("create program texture view: %w", err)
	}
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		rgba,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: side * 4, RowsPerImage: side},
		&size,
	)
	return &halTexture{dev: d, tex: tex, view: view, side: side}, nil
}

func (d *halDevice) CreateRun(tex Texture, p Params) (RunResources, error) {
	ht, ok := tex.(*halTexture)
	if !ok {
		return nil, fmt.Errorf("foreign texture %T", tex)
	}
	r := &halRun{dev: d}
	sizes := [...]uint64{
		4 * NumRegisters,
		uint64(trace.BufferSize(int(p.TraceCapacity))),
		4 * uint64(ht.side) * uint64(ht.side),
	}
	labels := [...]string{"pixelvm_registers", "pixelvm_trace", "pixelvm_heatmap"}
	for i := range sizes {
		buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: labels[i], Size: sizes[i],
			Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			r.Destroy()
			return nil, fmt.Errorf("create %s buffer: %w", labels[i], err)
		}
		r.storage[i] = buf
		r.sizes[i] = sizes[i]
		d.queue.WriteBuffer(buf, 0, make([]byte, sizes[i]))

		staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: labels[i] + "_staging", Size: sizes[i],
			Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			r.Destroy()
			return nil, fmt.Errorf("create %s staging buffer: %w", labels[i], err)
		}
		r.staging[i] = staging
	}

	params, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "pixelvm_params", Size: ParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		r.Destroy()
		return nil, fmt.Errorf("create params buffer: %w", err)
	}
	r.params = params
	d.queue.WriteBuffer(params, 0, p.Bytes())

	r.bindGroup, err = d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "pixelvm_bind", Layout: d.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: uintptr(ht.view.NativeHandle())}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: r.storage[0].NativeHandle(), Offset: 0, Size: sizes[0]}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: r.storage[1].NativeHandle(), Offset: 0, Size: sizes[1]}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: r.storage[2].NativeHandle(), Offset: 0, Size: sizes[2]}},
			{Binding: 4, Resource: gputypes.BufferBinding{Buffer: params.NativeHandle(), Offset: 0, Size: ParamsSize}},
		},
	})
	if err != nil {
		r.Destroy()
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	return r, nil
}

func (d *halDevice) Destroy() {
	if d.device == nil {
		return
	}
	if d.pipeline != nil {
		d.device.DestroyComputePipeline(d.pipeline)
	}
	if d.pipeLayout != nil {
		d.device.DestroyPipelineLayout(d.pipeLayout)
	}
	if d.bindLayout != nil {
		d.device.DestroyBindGroupLayout(d.bindLayout)
	}
	if d.shader != nil {
		d.device.DestroyShaderModule(d.shader)
	}
	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
}

type halTexture struct {
	dev  *halDevice
	tex  hal.Texture
	view hal.TextureView
	side uint32
}

func (t *halTexture) Side() uint32 { return t.side }

func (t *halTexture) Destroy() {
	if t.dev.device == nil {
		return
	}
	t.dev.device.DestroyTextureView(t.view)
	t.dev.device.DestroyTexture(t.tex)
}

// halRun owns the buffers of one run. storage and staging are indexed
// registers, trace, heatmap.
type halRun struct {
	dev       *halDevice
	storage   [3]hal.Buffer
	staging   [3]hal.Buffer
	sizes     [3]uint64
	params    hal.Buffer
	bindGroup hal.BindGroup

	cmdBuf hal.CommandBuffer
	fence  hal.Fence
}

func (r *halRun) Dispatch(registers []byte) error {
	d := r.dev
	if d.device == nil {
		return ErrDeviceLost
	}
	d.queue.WriteBuffer(r.storage[0], 0, registers)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "pixelvm_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("pixelvm"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "pixelvm_pass"})
	pass.SetPipeline(d.pipeline)
	pass.SetBindGroup(0, r.bindGroup, nil)
	pass.Dispatch(1, 1, 1)
	pass.End()
	for i := range r.storage {
		encoder.CopyBufferToBuffer(r.storage[i], r.staging[i], []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: r.sizes[i]},
		})
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}

	fence, err := d.device.CreateFence()
	if err != nil {
		d.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("create fence: %w", err)
	}
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		d.device.DestroyFence(fence)
		d.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("%w: submit: %v", ErrDeviceLost, err)
	}
	r.cmdBuf = cmdBuf
	r.fence = fence
	return nil
}

func (r *halRun) Wait(timeout time.Duration) (*Readback, error) {
	d := r.dev
	if r.fence == nil {
		return nil, fmt.Errorf("wait without dispatch")
	}
	ok, err := d.device.Wait(r.fence, 1, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
	if !ok {
		return nil, ErrTimeout
	}
	r.release()

	out := make([][]byte, len(r.staging))
	for i, buf := range r.staging {
		out[i] = make([]byte, r.sizes[i])
		if err := d.queue.ReadBuffer(buf, 0, out[i]); err != nil {
			return nil, fmt.Errorf("%w: read back: %v", ErrDeviceLost, err)
		}
	}
	return &Readback{Registers: out[0], Trace: out[1], Heatmap: out[2]}, nil
}

// release frees the submission objects once the fence has signalled.
func (r *halRun) release() {
	if r.fence != nil {
		r.dev.device.DestroyFence(r.fence)
		r.fence = nil
	}
	if r.cmdBuf != nil {
		r.dev.device.FreeCommandBuffer(r.cmdBuf)
		r.cmdBuf = nil
	}
}

func (r *halRun) Destroy() {
	d := r.dev
	if d.device == nil {
		return
	}
	r.release()
	if r.bindGroup != nil {
		d.device.DestroyBindGroup(r.bindGroup)
	}
	if r.params != nil {
		d.device.DestroyBuffer(r.params)
	}
	for i := range r.storage {
		if r.storage[i] != nil {
			d.device.DestroyBuffer(r.storage[i])
		}
		if r.staging[i] != nil {
			d.device.DestroyBuffer(r.staging[i])
		}
	}
}
