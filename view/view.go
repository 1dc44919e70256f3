// Package view implements the pure value-type algebra describing how a
// logical tensor indexes a flat storage buffer: shape, stride,
// contiguous_stride, and offset.
package view

import "fmt"

// View describes how a logical tensor of some rank indexes a flat storage
// buffer. All fields have equal length (the rank). A rank-0 tensor is
// represented as a rank-1 View with Shape == []uint32{1}.
type View struct {
	Shape            []uint32
	Stride           []uint32
	ContiguousStride []uint32
	Offset           []uint32
}

// Rank returns the number of dimensions.
func (v View) Rank() int {
	return len(v.Shape)
}

// Len returns the number of logical elements, the product of Shape.
func (v View) Len() uint32 {
	var n uint32 = 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// IsContiguous reports whether Stride equals ContiguousStride and every
// Offset entry is zero.
func (v View) IsContiguous() bool {
	for i := range v.Stride {
		if v.Stride[i] != v.ContiguousStride[i] {
			return false
		}
	}
	for _, o := range v.Offset {
		if o != 0 {
			return false
		}
	}
	return true
}

// ContiguousStrideOf computes the row-major dense stride for shape: the
// right-to-left cumulative product starting from 1.
func ContiguousStrideOf(shape []uint32) []uint32 {
	rank := len(shape)
	stride := make([]uint32, rank)
	if rank == 0 {
		return stride
	}
	stride[rank-1] = 1
	for i := rank - 2; i >= 0; i-- {
		stride[i] = stride[i+1] * shape[i+1]
	}
	return stride
}

// FromShape builds a contiguous View over shape, with zero offsets.
// A rank-0 shape (empty slice) is normalized to rank-1 shape [1].
func FromShape(shape []uint32) View {
	if len(shape) == 0 {
		shape = []uint32{1}
	}
	cs := ContiguousStrideOf(shape)
	return View{
		Shape:            append([]uint32(nil), shape...),
		Stride:           append([]uint32(nil), cs...),
		ContiguousStride: cs,
		Offset:           make([]uint32, len(shape)),
	}
}

// BroadcastableTo reports whether a right-aligned broadcast of a against b's
// shape is legal: for every trailing dimension, the shapes must match or
// either shape there must be 1. a and b may have different ranks.
func BroadcastableTo(a, b []uint32) bool {
	ra, rb := len(a), len(b)
	n := ra
	if rb > n {
		n = rb
	}
	for i := 0; i < n; i++ {
		var sa, sb uint32 = 1, 1
		if idx := ra - n + i; idx >= 0 {
			sa = a[idx]
		}
		if idx := rb - n + i; idx >= 0 {
			sb = b[idx]
		}
		if sa != sb && sa != 1 && sb != 1 {
			return false
		}
	}
	return true
}

// Broadcast computes the right-aligned broadcast shape of two input shapes.
// The result rank is max(rank(a), rank(b)); dimensions where the input's
// shape is 1 but the result dimension is greater than 1 get stride 0 in that
// input's projected view (computed separately via ProjectBroadcast).
func Broadcast(a, b []uint32) []uint32 {
	ra, rb := len(a), len(b)
	n := ra
	if rb > n {
		n = rb
	}
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		var sa, sb uint32 = 1, 1
		if idx := ra - n + i; idx >= 0 {
			sa = a[idx]
		}
		if idx := rb - n + i; idx >= 0 {
			sb = b[idx]
		}
		if sa > sb {
			out[i] = sa
		} else {
			out[i] = sb
		}
	}
	return out
}

// ProjectBroadcast builds the View that broadcasts src (a contiguous-shaped
// operand) up to targetShape, honoring the right-aligned broadcasting rule.
// Dimensions that broadcast (source shape 1, target shape >1) get stride 0
// in the returned view; the returned Shape is targetShape in every
// dimension, and ContiguousStride is computed over targetShape.
func ProjectBroadcast(src View, targetShape []uint32) (View, error) {
	rs := src.Rank()
	rt := len(targetShape)
	if rt < rs {
		return View{}, fmt.Errorf("view: target rank %d smaller than source rank %d", rt, rs)
	}

	shape := make([]uint32, rt)
	stride := make([]uint32, rt)
	offset := make([]uint32, rt)
	lead := rt - rs
	for i := 0; i < rt; i++ {
		shape[i] = targetShape[i]
		if i < lead {
			// Implicit leading dimension of size 1: always broadcasts.
			stride[i] = 0
			offset[i] = 0
			continue
		}
		si := i - lead
		if src.Shape[si] == targetShape[i] {
			stride[i] = src.Stride[si]
			offset[i] = src.Offset[si]
		} else if src.Shape[si] == 1 {
			stride[i] = 0
			offset[i] = src.Offset[si]
		} else {
			return View{}, fmt.Errorf("view: shape %d at dim %d not broadcastable to %d", src.Shape[si], si, targetShape[i])
		}
	}

	return View{
		Shape:            shape,
		Stride:           stride,
		ContiguousStride: ContiguousStrideOf(shape),
		Offset:           offset,
	}, nil
}

// AsContiguousRequired reports whether v must be materialized into a
// contiguous buffer before some operation that assumes contiguity (e.g.
// reshape) may run on it.
func AsContiguousRequired(v View) bool {
	return !v.IsContiguous()
}

// ReshapeCompatible reports whether v can be reshaped to newShape: the
// element counts must match, and v must already be contiguous (a
// non-contiguous view must be materialized by the caller first).
func ReshapeCompatible(v View, newShape []uint32) bool {
	var newLen uint32 = 1
	for _, s := range newShape {
		newLen *= s
	}
	if len(newShape) == 0 {
		newLen = 1
	}
	return newLen == v.Len() && v.IsContiguous()
}

// Reduce computes the View that results from reducing v along axes: the
// reduced dimensions collapse to size 1, and stride/contiguous_stride are
// recomputed over the resulting shape as a dense contiguous layout. Offsets
// are reset to zero since reduction always materializes a new contiguous
// buffer. An empty axes slice returns v unchanged.
func Reduce(v View, axes []int) View {
	if len(axes) == 0 {
		return v
	}
	reduced := make(map[int]bool, len(axes))
	for _, a := range axes {
		reduced[a] = true
	}
	shape := make([]uint32, v.Rank())
	for i, s := range v.Shape {
		if reduced[i] {
			shape[i] = 1
		} else {
			shape[i] = s
		}
	}
	cs := ContiguousStrideOf(shape)
	return View{
		Shape:            shape,
		Stride:           cs,
		ContiguousStride: cs,
		Offset:           make([]uint32, len(shape)),
	}
}

// MetadataWordCount returns the number of 32-bit words a TensorMetadata
// buffer occupies for a view of this rank: 6 header words plus four
// rank-length trailing arrays.
func (v View) MetadataWordCount() int {
	return 6 + 4*v.Rank()
}

// MetadataWords packs v into the GPU-side TensorMetadata word layout:
// [length, dimension, shape_offset, stride_offset, contiguous_stride_offset,
// offset_offset, shape..., stride..., contiguous_stride..., offset...].
func (v View) MetadataWords() []uint32 {
	rank := uint32(v.Rank())
	words := make([]uint32, v.MetadataWordCount())
	words[0] = v.Len()
	words[1] = rank
	words[2] = 0
	words[3] = rank
	words[4] = 2 * rank
	words[5] = 3 * rank
	base := 6
	copy(words[base:], v.Shape)
	copy(words[base+int(rank):], v.Stride)
	copy(words[base+2*int(rank):], v.ContiguousStride)
	copy(words[base+3*int(rank):], v.Offset)
	return words
}
