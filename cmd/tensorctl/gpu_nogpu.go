//go:build nogpu

package main

import (
	"fmt"

	"github.com/gogpu/tensor/gpucore"
)

// newStandaloneHALAdapter always fails under the nogpu build tag, since
// backend/native and gogpu/wgpu/hal are excluded from this build.
func newStandaloneHALAdapter() (gpucore.GPUAdapter, error) {
	return nil, fmt.Errorf("built with -tags nogpu: GPU backend unavailable")
}
