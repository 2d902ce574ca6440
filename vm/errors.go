// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vm

import (
	"errors"
	"fmt"
)

// Package errors.
var (
	// ErrDevice is matched by every *DeviceError.
	ErrDevice = errors.New("vm: device error")

	// ErrNoAdapter is returned when no GPU adapter is available.
	ErrNoAdapter = errors.New("vm: no GPU adapter available")

	// ErrDeviceLost is returned when the GPU device is lost during a run.
	ErrDeviceLost = errors.New("vm: GPU device lost")

	// ErrTimeout is returned when a run does not finish within the readback
	// timeout.
	ErrTimeout = errors.New("vm: readback timed out")

	// ErrShaderBuild is returned when the interpreter shader fails to build.
	ErrShaderBuild = errors.New("vm: shader build failed")

	// ErrInvalidState is returned for operations not allowed in the current
	// engine state.
	ErrInvalidState = errors.New("vm: invalid engine state")

	// ErrInvalidOption is returned by NewEngine for out-of-range options.
	ErrInvalidOption = errors.New("vm: invalid option")
)

// DeviceError reports a failed device operation.
type DeviceError struct {
	Op  string // e.g. "open", "upload", "dispatch", "readback"
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("vm: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDevice.
func (e *DeviceError) Is(target error) bool { return target == ErrDevice }

// deviceErr wraps err in a *DeviceError unless it already is one.
func deviceErr(op string, err error) error {
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &DeviceError{Op: op, Err: err}
}
