package vm

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// DefaultShader is the embedded WGSL interpreter. Its entry point is main
// and its bindings are: program texture (0), registers (1), trace (2),
// heatmap (3) and Params (4).
//
//go:embed shaders/pixelvm.wgsl
var DefaultShader string

// ShaderEntryPoint is the compute entry point every interpreter shader
// must define.
const ShaderEntryPoint = "main"

// compileShader compiles WGSL source to SPIR-V words for a Vulkan shader
// module.
func compileShader(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShaderBuild, err)
	}
	if len(spirvBytes) == 0 || len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("%w: SPIR-V output is %d bytes", ErrShaderBuild, len(spirvBytes))
	}

	// SPIR-V is a stream of little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[4*i:])
	}
	return words, nil
}
