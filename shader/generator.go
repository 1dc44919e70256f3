// Package shader emits WGSL compute-shader source from a tensor operation
// kind plus its input/output views. It mirrors the template used by the
// original WebGPU runtime's per-op shader builders: a shared header and
// workgroup-stride preamble, one pair of storage bindings per tensor, a
// linear-index computation, a strided-offset remap per input, and an
// operator-specific kernel body.
package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/tensor"
	"github.com/gogpu/tensor/gpucore"
	"github.com/gogpu/tensor/view"
)

// EntryPoint is the compute shader's fixed entry point name.
const EntryPoint = "main"

// Header emits the TensorMetadata struct declaration shared by every
// generated shader.
func Header() string {
	return `struct TensorMetadata {
    length: u32,
    dimension: u32,
    shape_offset: u32,
    stride_offset: u32,
    contiguous_stride_offset: u32,
    offset_offset: u32,
    metadata: array<u32>,
}`
}

// WorkgroupStride emits the WORKGROUP_STRIDE constant used to linearize a
// global_invocation_id into a flat index: (wy*wz, wz, 1).
func WorkgroupStride(name string) string {
	return fmt.Sprintf("const %s: vec3u = vec3u(%du, %du, %du);",
		name, gpucore.WorkgroupSizeY*gpucore.WorkgroupSizeZ, gpucore.WorkgroupSizeZ, 1)
}

// WorkgroupSizeDecorator emits the @workgroup_size(4,4,4) attribute.
func WorkgroupSizeDecorator() string {
	return fmt.Sprintf("@workgroup_size(%d, %d, %d)", gpucore.WorkgroupSizeX, gpucore.WorkgroupSizeY, gpucore.WorkgroupSizeZ)
}

// TensorInterface emits the paired metadata-uniform + data-storage bindings
// for one tensor at the given bind group, occupying bindings
// (2*slot, 2*slot+1).
func TensorInterface(group, slot int, access, name, arrayType, metadataName string) string {
	return fmt.Sprintf(`@group(%d) @binding(%d) var<uniform> %s: TensorMetadata;
@group(%d) @binding(%d) var<storage, %s> %s: %s;`,
		group, 2*slot, metadataName,
		group, 2*slot+1, access, name, arrayType)
}

// ComputeIndex emits the linear-index computation from a global invocation
// id: `let var = dot(gid, stride_const)`.
func ComputeIndex(varName, gidName, strideConst string) string {
	return fmt.Sprintf("let %s = dot(%s, %s);", varName, gidName, strideConst)
}

// ComputeStridedOffset emits the runtime loop mapping a contiguous output
// index to the matching strided offset into one input, honoring
// broadcasting (input stride 0 along a dimension) and reduction (output
// shape 1 along a reduced dimension).
func ComputeStridedOffset(varName, linearIndexVar, outMeta, inMeta string) string {
	return fmt.Sprintf(`var %s: u32 = 0u;
{
    var remaining: u32 = %s;
    for (var i: u32 = 0u; i < %s.dimension; i = i + 1u) {
        let out_cstride = %s.metadata[%s.contiguous_stride_offset + i];
        let in_stride = %s.metadata[%s.stride_offset + i];
        %s = %s + (remaining / out_cstride) * in_stride;
        remaining = remaining %% out_cstride;
    }
}`, varName, linearIndexVar, outMeta, outMeta, outMeta, inMeta, inMeta, varName, varName)
}

func unaryExpr(op tensor.UnaryOp, input string) string {
	switch op {
	case tensor.EXP2:
		return fmt.Sprintf("exp2(%s)", input)
	case tensor.LOG2:
		return fmt.Sprintf("log2(%s)", input)
	case tensor.SIN:
		return fmt.Sprintf("sin(%s)", input)
	case tensor.SQRT:
		return fmt.Sprintf("sqrt(%s)", input)
	case tensor.RECIP:
		return fmt.Sprintf("1 / (%s)", input)
	case tensor.UnaryIdentity:
		return input
	default:
		return input
	}
}

func binaryExpr(op tensor.BinaryOp, lhs, rhs string) string {
	switch op {
	case tensor.ADD:
		return fmt.Sprintf("(%s + %s)", lhs, rhs)
	case tensor.SUB:
		return fmt.Sprintf("(%s - %s)", lhs, rhs)
	case tensor.MUL:
		return fmt.Sprintf("(%s * %s)", lhs, rhs)
	case tensor.DIV:
		return fmt.Sprintf("(%s / %s)", lhs, rhs)
	case tensor.MAXOP:
		return fmt.Sprintf("max(%s, %s)", lhs, rhs)
	case tensor.MODOP:
		return fmt.Sprintf("(%s %% %s)", lhs, rhs)
	case tensor.EQ:
		return fmt.Sprintf("f32(%s == %s)", lhs, rhs)
	case tensor.LT:
		return fmt.Sprintf("f32(%s < %s)", lhs, rhs)
	default:
		return lhs
	}
}

func reduceAccumExpr(op tensor.ReduceOp, acc, next string) string {
	switch op {
	case tensor.ReduceSum:
		return fmt.Sprintf("%s + %s", acc, next)
	case tensor.ReduceMax:
		return fmt.Sprintf("max(%s, %s)", acc, next)
	case tensor.ReduceProduct:
		return fmt.Sprintf("%s * %s", acc, next)
	default:
		return acc
	}
}

func reduceIdentityLiteral(op tensor.ReduceOp) string {
	switch op {
	case tensor.ReduceSum:
		return "0.0"
	case tensor.ReduceMax:
		return "-3.40282e+38" // f32 -infinity approximation used as the MAX accumulator seed
	case tensor.ReduceProduct:
		return "1.0"
	default:
		return "0.0"
	}
}

// BuildUnaryShader emits a single-input, single-output kernel applying op
// elementwise.
func BuildUnaryShader(op tensor.UnaryOp) string {
	return fmt.Sprintf(`%s

%s

%s

%s

@compute %s
fn %s(
    @builtin(global_invocation_id) global_id: vec3u
) {
    %s

    if index >= output_metadata.length {
        return;
    }

    %s

    output[index] = %s;
}
`,
		Header(),
		WorkgroupStride("WORKGROUP_STRIDE"),
		TensorInterface(0, 0, "read", "input", "array<f32>", "input_metadata"),
		TensorInterface(1, 0, "read_write", "output", "array<f32>", "output_metadata"),
		WorkgroupSizeDecorator(),
		EntryPoint,
		ComputeIndex("index", "global_id", "WORKGROUP_STRIDE"),
		ComputeStridedOffset("mapped_index", "index", "output_metadata", "input_metadata"),
		unaryExpr(op, "input[mapped_index]"),
	)
}

// BuildBinaryShader emits a two-input, single-output kernel combining lhs
// and rhs elementwise with op, each input individually strided-offset
// mapped so broadcasting (stride 0) is handled per operand.
func BuildBinaryShader(op tensor.BinaryOp) string {
	return fmt.Sprintf(`%s

%s

%s
%s

%s

@compute %s
fn %s(
    @builtin(global_invocation_id) global_id: vec3u
) {
    %s

    if index >= output_metadata.length {
        return;
    }

    %s

    %s

    output[index] = %s;
}
`,
		Header(),
		WorkgroupStride("WORKGROUP_STRIDE"),
		TensorInterface(0, 0, "read", "lhs", "array<f32>", "lhs_metadata"),
		TensorInterface(0, 1, "read", "rhs", "array<f32>", "rhs_metadata"),
		TensorInterface(1, 0, "read_write", "output", "array<f32>", "output_metadata"),
		WorkgroupSizeDecorator(),
		EntryPoint,
		ComputeIndex("index", "global_id", "WORKGROUP_STRIDE"),
		ComputeStridedOffset("mapped_lhs", "index", "output_metadata", "lhs_metadata"),
		ComputeStridedOffset("mapped_rhs", "index", "output_metadata", "rhs_metadata"),
		binaryExpr(op, "lhs[mapped_lhs]", "rhs[mapped_rhs]"),
	)
}

// BuildReshapeShader emits a single-input, single-output elementwise copy
// kernel using the strided-offset mapping, since the contiguous reshape
// output maps back to the (possibly still-strided) input view.
func BuildReshapeShader() string {
	return BuildUnaryShader(tensor.UnaryIdentity)
}

// BuildReduceShader emits a kernel reducing inputShape along axes with op.
// axes and inputShape are known at shader-generation time (the graph node
// fixes them), so the reduction is unrolled into nested loops over each
// reduced axis's extent, iterating the input's contiguous strides at those
// axes to visit every element collapsed into one output position.
func BuildReduceShader(op tensor.ReduceOp, axes []int, inputShape []uint32) string {
	inStride := view.ContiguousStrideOf(inputShape)

	var open, close, contrib strings.Builder
	for i, ax := range axes {
		v := fmt.Sprintf("r%d", i)
		fmt.Fprintf(&open, "    for (var %s: u32 = 0u; %s < %du; %s = %s + 1u) {\n", v, v, inputShape[ax], v, v)
		close.WriteString("    }\n")
		fmt.Fprintf(&contrib, " + %s * %du", v, inStride[ax])
	}

	body := fmt.Sprintf(`%s

%s

%s

%s

@compute %s
fn %s(
    @builtin(global_invocation_id) global_id: vec3u
) {
    %s

    if index >= output_metadata.length {
        return;
    }

    %s

    var acc: f32 = %s;
%s
        let reduce_index = mapped_index%s;
        acc = %s;
%s
    output[index] = acc;
}
`,
		Header(),
		WorkgroupStride("WORKGROUP_STRIDE"),
		TensorInterface(0, 0, "read", "input", "array<f32>", "input_metadata"),
		TensorInterface(1, 0, "read_write", "output", "array<f32>", "output_metadata"),
		WorkgroupSizeDecorator(),
		EntryPoint,
		ComputeIndex("index", "global_id", "WORKGROUP_STRIDE"),
		ComputeStridedOffset("mapped_index", "index", "output_metadata", "input_metadata"),
		reduceIdentityLiteral(op),
		open.String(),
		contrib.String(),
		reduceAccumExpr(op, "acc", "input[reduce_index]"),
		close.String(),
	)
	return body
}
