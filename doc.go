// Package pixelrts stores binary payloads as square RGBA images.
//
// # Overview
//
// A payload is split into 4-byte groups and group i becomes the pixel at
// index i of a Hilbert curve over a 2^k x 2^k grid. Neighbouring bytes stay
// neighbours in the image, so structure in the binary shows up as structure
// in the picture. Metadata records the payload size, its SHA-256 and
// optional named segments, and travels with the image.
//
// # Quick Start
//
//	import "github.com/gogpu/pixelrts"
//
//	c, err := pixelrts.Encode(kernel, pixelrts.WithEntryPoint(0x100000))
//	if err != nil {
//		return err
//	}
//	err = rtsfile.Save("kernel.rts.png", c)
//
//	c, err = rtsfile.Load("kernel.rts.png")
//	d, err := pixelrts.Decode(c)
//	// d.Data is byte-identical to kernel and d.Verified is true.
//
// # Containers
//
// Encode produces a Container: the pixel grid plus Metadata. Containers are
// immutable; accessors return copies. The rtsfile package reads and writes
// them as PNG files with the metadata embedded in a tEXt chunk and in a
// sidecar JSON file.
//
// Program containers ("RGBA-code") hold one instruction per pixel and are
// built by the isa package. Decode refuses them.
//
// # Integrity
//
// Decode verifies the payload hash and every segment hash. A mismatch fails
// with *IntegrityError unless Lenient is given. A container whose metadata
// is missing or inconsistent with the image is still decoded, pixel by
// pixel, and the result is flagged Degraded.
//
// # Logging
//
// The package is silent by default. SetLogger installs a *slog.Logger used by
// this package and its sub-packages.
//
// # Architecture
//
// The module is organized into:
//   - hilbert: index to coordinate mapping and lookup tables
//   - pixelrts: the codec (this package)
//   - rtsfile: PNG and sidecar file I/O
//   - isa: the Geometric ISA program format
//   - vm: the pixel virtual machine on GPU compute
//   - trace: trace and heatmap readback
package pixelrts
