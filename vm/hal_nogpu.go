//go:build nogpu

package vm

import "github.com/gogpu/gpucontext"

func newGPUDevice(string) (Device, error) {
	return nil, &DeviceError{Op: "open", Err: ErrNoAdapter}
}

func newProviderDevice(gpucontext.DeviceProvider, string) (Device, error) {
	return nil, &DeviceError{Op: "share device", Err: ErrNoAdapter}
}
