// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vm

// State is the lifecycle state of an Engine.
type State int

const (
	// StateInit means no program is loaded.
	StateInit State = iota

	// StateLoaded means a program is resident and a run can start.
	StateLoaded

	// StateDispatched means a run was submitted and awaits Readback.
	StateDispatched

	// StateComplete means the last run was read back.
	StateComplete

	// StateFaulted means the device failed. The engine must be closed.
	StateFaulted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateLoaded:
		return "Loaded"
	case StateDispatched:
		return "Dispatched"
	case StateComplete:
		return "Complete"
	case StateFaulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}
