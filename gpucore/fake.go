package gpucore

import "sync"

// FakeAdapter is a CPU-only GPUAdapter used in tests and in environments
// without a GPU. It tracks buffers as plain byte slices in memory and
// performs no actual shader execution: CreateShaderModule and
// CreateComputePipeline only validate arguments and hand back fresh IDs,
// and Dispatch is a no-op. This is enough to exercise an evaluation
// pipeline's resource lifecycle (creation, binding, destruction, last-use
// reclamation) without a real device.
type FakeAdapter struct {
	mu sync.Mutex

	nextID uint64

	buffers           map[BufferID][]byte
	shaderModules     map[ShaderModuleID]bool
	computePipelines  map[ComputePipelineID]bool
	bindGroupLayouts  map[BindGroupLayoutID]*BindGroupLayoutDesc
	pipelineLayouts   map[PipelineLayoutID]bool
	bindGroups        map[BindGroupID]bool
}

// NewFakeAdapter constructs an empty FakeAdapter.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		buffers:          make(map[BufferID][]byte),
		shaderModules:    make(map[ShaderModuleID]bool),
		computePipelines: make(map[ComputePipelineID]bool),
		bindGroupLayouts: make(map[BindGroupLayoutID]*BindGroupLayoutDesc),
		pipelineLayouts:  make(map[PipelineLayoutID]bool),
		bindGroups:       make(map[BindGroupID]bool),
	}
}

func (f *FakeAdapter) alloc() uint64 {
	f.nextID++
	return f.nextID
}

func (f *FakeAdapter) SupportsCompute() bool          { return true }
func (f *FakeAdapter) MaxWorkgroupSize() [3]uint32    { return [3]uint32{256, 256, 64} }
func (f *FakeAdapter) MaxBufferSize() uint64          { return 1 << 30 }

func (f *FakeAdapter) CreateShaderModule(spirv []uint32, label string) (ShaderModuleID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := ShaderModuleID(f.alloc())
	f.shaderModules[id] = true
	return id, nil
}

func (f *FakeAdapter) DestroyShaderModule(id ShaderModuleID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.shaderModules, id)
}

func (f *FakeAdapter) CreateBuffer(size int, usage BufferUsage) (BufferID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := BufferID(f.alloc())
	f.buffers[id] = make([]byte, size)
	return id, nil
}

func (f *FakeAdapter) DestroyBuffer(id BufferID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.buffers, id)
}

func (f *FakeAdapter) WriteBuffer(id BufferID, offset uint64, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.buffers[id]
	if !ok {
		return
	}
	copy(buf[offset:], data)
}

func (f *FakeAdapter) ReadBuffer(id BufferID, offset, size uint64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.buffers[id]
	if !ok {
		return nil, errBufferNotFound(id)
	}
	out := make([]byte, size)
	copy(out, buf[offset:])
	return out, nil
}

func (f *FakeAdapter) CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := BindGroupLayoutID(f.alloc())
	f.bindGroupLayouts[id] = desc
	return id, nil
}

func (f *FakeAdapter) DestroyBindGroupLayout(id BindGroupLayoutID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bindGroupLayouts, id)
}

func (f *FakeAdapter) CreatePipelineLayout(layouts []BindGroupLayoutID) (PipelineLayoutID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := PipelineLayoutID(f.alloc())
	f.pipelineLayouts[id] = true
	return id, nil
}

func (f *FakeAdapter) DestroyPipelineLayout(id PipelineLayoutID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pipelineLayouts, id)
}

func (f *FakeAdapter) CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := ComputePipelineID(f.alloc())
	f.computePipelines[id] = true
	return id, nil
}

func (f *FakeAdapter) DestroyComputePipeline(id ComputePipelineID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.computePipelines, id)
}

func (f *FakeAdapter) CreateBindGroup(layout BindGroupLayoutID, entries []BindGroupEntry) (BindGroupID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := BindGroupID(f.alloc())
	f.bindGroups[id] = true
	return id, nil
}

func (f *FakeAdapter) DestroyBindGroup(id BindGroupID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bindGroups, id)
}

func (f *FakeAdapter) BeginComputePass() ComputePassEncoder {
	return &fakeComputePass{}
}

func (f *FakeAdapter) Submit()   {}
func (f *FakeAdapter) WaitIdle() {}

// BufferCount reports how many buffers are currently live, for tests
// asserting on reclamation.
func (f *FakeAdapter) BufferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buffers)
}

type fakeComputePass struct{}

func (p *fakeComputePass) SetPipeline(ComputePipelineID)      {}
func (p *fakeComputePass) SetBindGroup(uint32, BindGroupID)   {}
func (p *fakeComputePass) Dispatch(x, y, z uint32)            {}
func (p *fakeComputePass) End()                               {}

type bufferNotFoundError struct{ id BufferID }

func (e bufferNotFoundError) Error() string {
	return "gpucore: fake adapter: buffer not found"
}

func errBufferNotFound(id BufferID) error {
	return bufferNotFoundError{id: id}
}
