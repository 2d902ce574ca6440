package vm

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/gogpu/pixelrts/isa"
	"github.com/gogpu/pixelrts/trace"
)

func TestDefaultShaderContract(t *testing.T) {
	if DefaultShader == "" {
		t.Fatal("embedded shader is empty")
	}
	for _, want := range []string{
		"@binding(0)", "@binding(1)", "@binding(2)", "@binding(3)", "@binding(4)",
		"@workgroup_size(1)",
		"fn " + ShaderEntryPoint + "(",
	} {
		if !strings.Contains(DefaultShader, want) {
			t.Errorf("shader does not contain %q", want)
		}
	}
}

func TestCompileShader(t *testing.T) {
	words, err := compileShader(DefaultShader)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "not yet implemented") || strings.Contains(errStr, "not supported") {
			t.Skipf("Skipping: naga feature not yet implemented: %v", err)
		}
		t.Fatalf("compileShader() error = %v", err)
	}
	if len(words) < 5 {
		t.Fatalf("SPIR-V is %d words", len(words))
	}
	// SPIR-V magic number.
	if words[0] != 0x07230203 {
		t.Errorf("magic = %#x, want 0x07230203", words[0])
	}
}

func TestCompileShaderError(t *testing.T) {
	_, err := compileShader("fn main( {")
	if !errors.Is(err, ErrShaderBuild) {
		t.Errorf("compileShader(invalid) error = %v, want ErrShaderBuild", err)
	}
}

func TestShaderOpcodes(t *testing.T) {
	tests := []isa.Opcode{
		isa.OpMOV, isa.OpJMP, isa.OpHALT, isa.OpLDI,
		isa.OpADD, isa.OpSUB, isa.OpMUL, isa.OpDIV,
	}
	for _, op := range tests {
		decl := "const OP_" + op.String() + ": u32 = " + strconv.Itoa(int(op)) + "u;"
		if !strings.Contains(DefaultShader, decl) {
			t.Errorf("shader lacks %q", decl)
		}
	}
	if !strings.Contains(DefaultShader, "FAULT_FLAG: u32 = "+strconv.Itoa(trace.FaultFlag)+"u;") {
		t.Error("shader fault flag differs from trace.FaultFlag")
	}
}
