// Package eval implements the evaluation pipeline: it linearizes a Tensor
// DAG, emits and dispatches one compute shader per operation node, and
// reclaims GPU buffers as soon as a node's last consumer has run.
package eval

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gogpu/tensor"
	"github.com/gogpu/tensor/gpucore"
	"github.com/gogpu/tensor/internal/obs"
	"github.com/gogpu/tensor/shader"
	"github.com/gogpu/tensor/view"
)

// entry tracks the GPU-side resources backing one materialized node: a data
// buffer holding its elements and a metadata buffer holding its packed
// TensorMetadata words.
type entry struct {
	data     gpucore.BufferID
	meta     gpucore.BufferID
	view     view.View
	byteLen  int
}

// Pipeline orchestrates DAG linearization, per-node shader dispatch, and
// buffer lifetime management against a single GPUAdapter. It is built
// around a tensor.Config the way the rest of this module threads
// Config-derived flags: only Benchmark is read here. DirectBuffer is not
// read; every readback goes through the adapter's ReadBuffer.
type Pipeline struct {
	mu      sync.Mutex
	adapter gpucore.GPUAdapter
	cfg     tensor.Config
}

// New builds a Pipeline bound to adapter, applying cfg's flags.
func New(adapter gpucore.GPUAdapter, cfg tensor.Config) *Pipeline {
	return &Pipeline{adapter: adapter, cfg: cfg}
}

// Evaluate materializes root and returns its little-endian result bytes.
//
// Algorithm: wrap root in an implicit identity() so the result is always a
// freshly materialized contiguous copy; linearize the DAG; build a
// last-use map so each node's GPU buffers are freed exactly once, right
// after its final consumer has been dispatched; then walk the order,
// dispatching one shader per OperationResult node, copying bytes for NoOp
// nodes, and uploading ExplicitInput bytes directly.
//
// ctx is checked between nodes, so a cancellation lands the caller's wait
// as soon as the node in flight finishes rather than mid-dispatch: this
// package never cancels a GPU submission once issued, it only stops
// issuing new ones.
func (p *Pipeline) Evaluate(ctx context.Context, root *tensor.Tensor) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wrapped := tensor.Identity(root)
	order := wrapped.Linearize()
	lastUse := buildLastUse(order)

	materialized := make(map[uint32]*entry, len(order))
	defer p.releaseAll(materialized)

	for _, n := range order {
		if err := ctx.Err(); err != nil {
			return nil, tensor.NewBackendError("evaluate", n.ID(), err)
		}

		var e *entry
		var err error

		switch n.Kind() {
		case tensor.InputExplicit:
			e, err = p.materializeExplicit(n)
		case tensor.InputNoOp:
			e, err = p.materializeNoOp(n, materialized)
		case tensor.InputOperation:
			e, err = p.materializeOperation(n, materialized)
		}
		if err != nil {
			return nil, err
		}
		materialized[n.ID()] = e

		for _, dep := range n.Dependencies() {
			if lastUse[dep.ID()] == n.ID() {
				p.free(materialized, dep.ID())
			}
		}
	}

	result, ok := wrapped.Bytes()
	if !ok {
		return nil, tensor.NewInvariantViolation("evaluate", wrapped.ID(), "materialized root has no readback bytes")
	}
	p.free(materialized, wrapped.ID())
	return result, nil
}

// buildLastUse records, for every node D, the id of the last node in order
// that consumes D as a dependency.
func buildLastUse(order []*tensor.Tensor) map[uint32]uint32 {
	lastUse := make(map[uint32]uint32)
	for _, n := range order {
		for _, dep := range n.Dependencies() {
			lastUse[dep.ID()] = n.ID()
		}
	}
	return lastUse
}

func (p *Pipeline) free(materialized map[uint32]*entry, id uint32) {
	e, ok := materialized[id]
	if !ok {
		return
	}
	p.adapter.DestroyBuffer(e.data)
	p.adapter.DestroyBuffer(e.meta)
	delete(materialized, id)
}

func (p *Pipeline) releaseAll(materialized map[uint32]*entry) {
	for id := range materialized {
		p.free(materialized, id)
	}
}

func metadataBytes(v view.View) []byte {
	words := v.MetadataWords()
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}

func (p *Pipeline) uploadEntry(v view.View, data []byte) (*entry, error) {
	dataBuf, err := p.adapter.CreateBuffer(len(data), gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst|gpucore.BufferUsageCopySrc)
	if err != nil {
		return nil, tensor.NewBackendError("create_buffer", 0, err)
	}
	p.adapter.WriteBuffer(dataBuf, 0, data)

	metaWords := metadataBytes(v)
	metaBuf, err := p.adapter.CreateBuffer(len(metaWords), gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst)
	if err != nil {
		return nil, tensor.NewBackendError("create_metadata_buffer", 0, err)
	}
	p.adapter.WriteBuffer(metaBuf, 0, metaWords)

	return &entry{data: dataBuf, meta: metaBuf, view: v, byteLen: len(data)}, nil
}

func (p *Pipeline) materializeExplicit(n *tensor.Tensor) (*entry, error) {
	bytes, ok := n.Bytes()
	if !ok {
		return nil, tensor.NewInvariantViolation("explicit_input", n.ID(), "explicit input has no backing bytes")
	}
	return p.uploadEntry(n.View(), bytes)
}

func (p *Pipeline) materializeNoOp(n *tensor.Tensor, materialized map[uint32]*entry) (*entry, error) {
	parent := n.Parent()
	src, ok := materialized[parent.ID()]
	if !ok {
		return nil, tensor.NewInvariantViolation("noop", n.ID(), "parent %d not materialized", parent.ID())
	}
	bytes, err := p.adapter.ReadBuffer(src.data, 0, uint64(src.byteLen))
	if err != nil {
		return nil, tensor.NewBackendError("noop_copy", n.ID(), err)
	}
	e, err := p.uploadEntry(n.View(), bytes)
	if err != nil {
		return nil, err
	}
	n.Update(bytes)
	return e, nil
}

// dispatchShape factors an output length L into (Lx, Ly, Lz) with Lx=L,
// Ly=1, Lz=1; the over-dispatch guard in every generated kernel makes this
// trivial factorization correct regardless of how it's chosen.
func dispatchShape(length uint32) (uint32, uint32, uint32) {
	return length, 1, 1
}

// dispatchCount converts a desired invocation count along one axis into a
// workgroup count, preserving the source runtime's exact
// `dim/WORKGROUP_SIZE + 1` formula: this always dispatches one extra
// workgroup row, even when dim is already a multiple of the workgroup size.
func dispatchCount(dim uint32) uint32 {
	return dim/gpucore.WorkgroupSizeX + 1
}

func (p *Pipeline) materializeOperation(n *tensor.Tensor, materialized map[uint32]*entry) (*entry, error) {
	op := n.Op()

	var inputs []*tensor.Tensor
	switch op.Kind {
	case tensor.OpBinary:
		inputs = []*tensor.Tensor{op.LHS, op.RHS}
	default:
		inputs = []*tensor.Tensor{op.Input}
	}

	inputEntries := make([]*entry, len(inputs))
	for i, in := range inputs {
		e, ok := materialized[in.ID()]
		if !ok {
			return nil, tensor.NewInvariantViolation(op.Kind.String(), n.ID(), "dependency %d not materialized", in.ID())
		}
		inputEntries[i] = e
	}

	src := p.generateShader(op)
	spirv, err := shader.Compile(src)
	if err != nil {
		return nil, tensor.NewBackendError("compile", n.ID(), err)
	}
	module, err := p.adapter.CreateShaderModule(spirv, fmt.Sprintf("node-%d", n.ID()))
	if err != nil {
		return nil, tensor.NewBackendError("create_shader_module", n.ID(), err)
	}
	defer p.adapter.DestroyShaderModule(module)

	inputLayout, err := p.adapter.CreateBindGroupLayout(inputLayoutDesc(len(inputEntries)))
	if err != nil {
		return nil, tensor.NewBackendError("create_input_layout", n.ID(), err)
	}
	defer p.adapter.DestroyBindGroupLayout(inputLayout)

	outputLayout, err := p.adapter.CreateBindGroupLayout(outputLayoutDesc())
	if err != nil {
		return nil, tensor.NewBackendError("create_output_layout", n.ID(), err)
	}
	defer p.adapter.DestroyBindGroupLayout(outputLayout)

	pipelineLayout, err := p.adapter.CreatePipelineLayout([]gpucore.BindGroupLayoutID{inputLayout, outputLayout})
	if err != nil {
		return nil, tensor.NewBackendError("create_pipeline_layout", n.ID(), err)
	}
	defer p.adapter.DestroyPipelineLayout(pipelineLayout)

	pipeline, err := p.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        fmt.Sprintf("node-%d", n.ID()),
		Layout:       pipelineLayout,
		ShaderModule: module,
		EntryPoint:   shader.EntryPoint,
	})
	if err != nil {
		return nil, tensor.NewBackendError("create_compute_pipeline", n.ID(), err)
	}
	defer p.adapter.DestroyComputePipeline(pipeline)

	outView := n.View()
	outByteLen := int(outView.Len()) * 4
	outData, err := p.adapter.CreateBuffer(outByteLen, gpucore.BufferUsageStorage|gpucore.BufferUsageCopySrc)
	if err != nil {
		return nil, tensor.NewBackendError("create_output_buffer", n.ID(), err)
	}
	outMetaBytes := metadataBytes(outView)
	outMeta, err := p.adapter.CreateBuffer(len(outMetaBytes), gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst)
	if err != nil {
		return nil, tensor.NewBackendError("create_output_metadata_buffer", n.ID(), err)
	}
	p.adapter.WriteBuffer(outMeta, 0, outMetaBytes)

	// Binary operands bind a metadata buffer projected onto the output's
	// broadcast shape (op.LHSView/RHSView), not the operand's own
	// metadata from upload time: a broadcast dimension must carry stride
	// 0 here regardless of how the operand is laid out in its own buffer.
	// A reshape input (always contiguous, see tensor.Reshape) binds a
	// contiguous view over the output shape, so the strided-offset remap
	// walks its buffer in the output's element order.
	inBindEntries := make([]gpucore.BindGroupEntry, 0, 2*len(inputEntries))
	for i, e := range inputEntries {
		metaBuf := e.meta
		if op.Kind == tensor.OpBinary || op.Kind == tensor.OpReshape {
			bindView := op.LHSView
			if op.Kind == tensor.OpReshape {
				bindView = view.FromShape(outView.Shape)
			} else if i == 1 {
				bindView = op.RHSView
			}
			metaBytes := metadataBytes(bindView)
			projected, err := p.adapter.CreateBuffer(len(metaBytes), gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst)
			if err != nil {
				return nil, tensor.NewBackendError("create_input_metadata_buffer", n.ID(), err)
			}
			defer p.adapter.DestroyBuffer(projected)
			p.adapter.WriteBuffer(projected, 0, metaBytes)
			metaBuf = projected
		}
		inBindEntries = append(inBindEntries,
			gpucore.BindGroupEntry{Binding: uint32(2 * i), Buffer: metaBuf},
			gpucore.BindGroupEntry{Binding: uint32(2*i + 1), Buffer: e.data},
		)
	}
	inputGroup, err := p.adapter.CreateBindGroup(inputLayout, inBindEntries)
	if err != nil {
		return nil, tensor.NewBackendError("create_input_bind_group", n.ID(), err)
	}
	defer p.adapter.DestroyBindGroup(inputGroup)

	outputGroup, err := p.adapter.CreateBindGroup(outputLayout, []gpucore.BindGroupEntry{
		{Binding: 0, Buffer: outMeta},
		{Binding: 1, Buffer: outData},
	})
	if err != nil {
		return nil, tensor.NewBackendError("create_output_bind_group", n.ID(), err)
	}
	defer p.adapter.DestroyBindGroup(outputGroup)

	lx, ly, lz := dispatchShape(outView.Len())
	pass := p.adapter.BeginComputePass()
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, inputGroup)
	pass.SetBindGroup(1, outputGroup)
	pass.Dispatch(dispatchCount(lx), dispatchCount(ly), dispatchCount(lz))
	pass.End()
	p.adapter.Submit()
	p.adapter.WaitIdle()

	result, err := p.adapter.ReadBuffer(outData, 0, uint64(outByteLen))
	if err != nil {
		return nil, tensor.NewBackendError("readback", n.ID(), err)
	}
	n.Update(result)

	if p.cfg.Benchmark {
		obs.Logger().Debug("dispatched node", "node", n.ID(), "op", op.Kind.String(), "length", outView.Len())
	}

	return &entry{data: outData, meta: outMeta, view: outView, byteLen: outByteLen}, nil
}

func (p *Pipeline) generateShader(op *tensor.OpSpec) string {
	switch op.Kind {
	case tensor.OpUnary:
		return shader.BuildUnaryShader(op.UnaryOp)
	case tensor.OpBinary:
		return shader.BuildBinaryShader(op.BinaryOp)
	case tensor.OpReshape:
		return shader.BuildReshapeShader()
	case tensor.OpReduce:
		return shader.BuildReduceShader(op.ReduceOp, op.Axes, op.Input.View().Shape)
	default:
		return shader.BuildUnaryShader(tensor.UnaryIdentity)
	}
}

func inputLayoutDesc(count int) *gpucore.BindGroupLayoutDesc {
	entries := make([]gpucore.BindGroupLayoutEntry, 0, 2*count)
	for i := 0; i < count; i++ {
		entries = append(entries,
			gpucore.BindGroupLayoutEntry{Binding: uint32(2 * i), Type: gpucore.BindingTypeUniformBuffer},
			gpucore.BindGroupLayoutEntry{Binding: uint32(2*i + 1), Type: gpucore.BindingTypeReadOnlyStorageBuffer},
		)
	}
	return &gpucore.BindGroupLayoutDesc{Label: "inputs", Entries: entries}
}

func outputLayoutDesc() *gpucore.BindGroupLayoutDesc {
	return &gpucore.BindGroupLayoutDesc{
		Label: "output",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeUniformBuffer},
			{Binding: 1, Type: gpucore.BindingTypeStorageBuffer},
		},
	}
}
