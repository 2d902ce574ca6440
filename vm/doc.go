// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vm runs Geometric ISA programs on a GPU compute pipeline.
//
// # Overview
//
// An Engine uploads a program container (see package isa) as an RGBA8
// texture and executes it with a single compute dispatch of one invocation.
// The shader walks the texture along the Hilbert curve, retires one
// instruction per step, and records every step in a trace buffer and a
// per-texel heatmap. Readback copies registers, trace and heatmap back to
// the host.
//
//	eng, err := vm.NewEngine()
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	if err := eng.Load(prog); err != nil {
//		return err
//	}
//	res, err := eng.Execute(vm.Seed{1: 2.5})
//	fmt.Println(res.Registers[3], res.Completed, res.Steps)
//
// # Backends
//
// BackendGPU (the default) opens a Vulkan device through gogpu/wgpu and
// compiles the WGSL interpreter with naga. It can also share a device owned
// by the host application (WithDeviceProvider). BackendSoftware runs the
// same interpreter contract on the CPU; it needs no GPU and is what the
// package tests use. Builds with the nogpu tag only have the software
// backend.
//
// # Termination
//
// A run ends on HALT, at the end of the program, on a jump outside the
// program (a fault, recorded in the trace) or after the trace capacity is
// exhausted. None of these is an error: Result says which one happened.
// Errors are reserved for the device: loss, timeouts and build failures
// are reported as *DeviceError and leave the engine in StateFaulted.
//
// # State
//
// An Engine moves through StateInit, StateLoaded, StateDispatched and then
// StateComplete or StateFaulted. Run refuses to start while a dispatch is in
// flight. Every run gets fresh register, trace and heatmap buffers; the
// program texture is shared across runs and cached by program hash.
package vm
