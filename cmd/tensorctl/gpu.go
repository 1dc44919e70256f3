//go:build !nogpu

package main

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/types"

	"github.com/gogpu/tensor/backend/native"
	"github.com/gogpu/tensor/gpucore"
)

// newStandaloneHALAdapter opens a Vulkan device for compute-only use,
// mirroring the teacher's own standalone device-acquisition path
// (VelloAccelerator.initGPU): request the Vulkan backend, create an
// instance, enumerate adapters preferring a discrete or integrated GPU,
// and open a device on it.
func newStandaloneHALAdapter() (gpucore.GPUAdapter, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("vulkan backend not available")
	}

	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no GPU adapters found")
	}

	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}

	limits := types.DefaultLimits()
	return native.NewHALAdapter(openDev.Device, openDev.Queue, &limits), nil
}
