package shader

import (
	"fmt"

	"github.com/gogpu/naga"
)

// Compile lowers WGSL source to SPIR-V words via naga, the module this
// runtime was already carrying a compile-here TODO for. It is called once
// per generated kernel by the evaluation pipeline, immediately before
// GPUAdapter.CreateShaderModule.
func Compile(wgsl string) ([]uint32, error) {
	spirv, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("shader: naga compile failed: %w", err)
	}
	return spirv, nil
}
