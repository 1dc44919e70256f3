package tensor

import (
	"reflect"
	"testing"

	"github.com/gogpu/tensor/view"
)

func TestScalarAndFromContiguous(t *testing.T) {
	s := Scalar(2.0)
	b, ok := s.Bytes()
	if !ok {
		t.Fatalf("expected scalar bytes set")
	}
	if got := DecodeF32(b); !reflect.DeepEqual(got, []float32{2.0}) {
		t.Fatalf("scalar bytes = %v, want [2]", got)
	}

	tt, err := FromContiguous([]float32{1, 2, 3}, []uint32{3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tt.View().Len() != 3 {
		t.Fatalf("len = %d, want 3", tt.View().Len())
	}
}

func TestFromContiguousShapeMismatchFails(t *testing.T) {
	_, err := FromContiguous([]float32{1, 2, 3}, []uint32{4})
	if err == nil {
		t.Fatalf("expected InvalidShape error")
	}
	var terr *Error
	if !asError(err, &terr) || terr.Kind != InvalidShape {
		t.Fatalf("expected InvalidShape, got %v", err)
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}

func TestBinaryBroadcastShape(t *testing.T) {
	a, _ := FromContiguous([]float32{1, 2, 3}, []uint32{1, 3})
	b, _ := FromContiguous([]float32{10, 20, 30}, []uint32{3, 1})
	sum, err := Binary(ADD, a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(sum.View().Shape, []uint32{3, 3}) {
		t.Fatalf("broadcast shape = %v, want [3 3]", sum.View().Shape)
	}
}

func TestBinaryProjectsBroadcastOperandViews(t *testing.T) {
	a, _ := FromContiguous([]float32{1, 2, 3}, []uint32{1, 3})
	b, _ := FromContiguous([]float32{10, 20, 30}, []uint32{3, 1})
	sum, err := Binary(ADD, a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lhsView := sum.Op().LHSView
	if !reflect.DeepEqual(lhsView.Shape, []uint32{3, 3}) {
		t.Fatalf("lhs projected shape = %v, want [3 3]", lhsView.Shape)
	}
	if !reflect.DeepEqual(lhsView.Stride, []uint32{0, 1}) {
		t.Fatalf("lhs projected stride = %v, want [0 1] (broadcast on dim 0)", lhsView.Stride)
	}

	rhsView := sum.Op().RHSView
	if !reflect.DeepEqual(rhsView.Shape, []uint32{3, 3}) {
		t.Fatalf("rhs projected shape = %v, want [3 3]", rhsView.Shape)
	}
	if !reflect.DeepEqual(rhsView.Stride, []uint32{1, 0}) {
		t.Fatalf("rhs projected stride = %v, want [1 0] (broadcast on dim 1)", rhsView.Stride)
	}
}

func TestBinaryIncompatibleShapesFail(t *testing.T) {
	a, _ := FromContiguous([]float32{1, 2}, []uint32{2})
	b, _ := FromContiguous([]float32{1, 2, 3}, []uint32{3})
	_, err := Binary(ADD, a, b)
	if err == nil {
		t.Fatalf("expected InvalidShape error for incompatible shapes")
	}
}

func TestBinaryCommutesInShapeAndDependencies(t *testing.T) {
	a, _ := FromContiguous([]float32{1, 2, 3}, []uint32{3})
	b, _ := FromContiguous([]float32{10, 20, 30}, []uint32{3})
	ab, _ := Binary(ADD, a, b)
	ba, _ := Binary(ADD, b, a)
	if !reflect.DeepEqual(ab.View().Shape, ba.View().Shape) {
		t.Fatalf("commuted binary shapes differ: %v vs %v", ab.View().Shape, ba.View().Shape)
	}
	abDeps, baDeps := ab.Dependencies(), ba.Dependencies()
	if abDeps[0] != baDeps[1] || abDeps[1] != baDeps[0] {
		t.Fatalf("commuted binary should swap its dependencies")
	}
}

func TestReduceEmptyAxesIsIdentityShape(t *testing.T) {
	in, _ := FromContiguous([]float32{1, 2, 3, 4}, []uint32{2, 2})
	r, err := Reduce(ReduceSum, in, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(r.View().Shape, in.View().Shape) {
		t.Fatalf("empty-axes reduce should preserve shape, got %v want %v", r.View().Shape, in.View().Shape)
	}
}

func TestReduceCollapsesAxis(t *testing.T) {
	in, _ := FromContiguous([]float32{1, 2, 3, 4}, []uint32{2, 2})
	r, err := Reduce(ReduceSum, in, []int{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(r.View().Shape, []uint32{2, 1}) {
		t.Fatalf("reduced shape = %v, want [2 1]", r.View().Shape)
	}
}

func TestReduceInvalidAxisFails(t *testing.T) {
	in, _ := FromContiguous([]float32{1, 2, 3, 4}, []uint32{2, 2})
	if _, err := Reduce(ReduceSum, in, []int{5}); err == nil {
		t.Fatalf("expected InvalidShape error for out-of-range axis")
	}
	if _, err := Reduce(ReduceSum, in, []int{0, 0}); err == nil {
		t.Fatalf("expected InvalidShape error for duplicate axis")
	}
}

func TestReshapeCompatibleShape(t *testing.T) {
	in, _ := FromContiguous([]float32{0, 1, 2, 3, 4, 5}, []uint32{2, 3})
	r, err := Reshape(in, []uint32{3, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(r.View().Shape, []uint32{3, 2}) {
		t.Fatalf("reshaped shape = %v, want [3 2]", r.View().Shape)
	}
	// Direct parent, no implicit wrap needed since in is already contiguous.
	if r.Op().Input != in {
		t.Fatalf("expected reshape to use input directly when already contiguous")
	}
}

func TestReshapeWrapsNonContiguousInput(t *testing.T) {
	lhs, _ := FromContiguous([]float32{1, 2, 3}, []uint32{1, 3})
	// A [1,3] operand projected onto [3,3] has stride [0,1]: a
	// non-contiguous view, built directly since this test is in-package.
	proj, err := view.ProjectBroadcast(lhs.View(), []uint32{3, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nonContiguous := newTensor(proj, lhs.Dtype(), InputExplicit)
	r, err := Reshape(nonContiguous, []uint32{9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wrapped := r.Op().Input
	if wrapped.Kind() != InputNoOp || wrapped.Parent() != nonContiguous {
		t.Fatalf("expected reshape to wrap a non-contiguous input in an identity NoOp")
	}
}

func TestReshapeElementCountMismatchFails(t *testing.T) {
	in, _ := FromContiguous([]float32{0, 1, 2, 3, 4, 5}, []uint32{2, 3})
	if _, err := Reshape(in, []uint32{4, 2}); err == nil {
		t.Fatalf("expected InvalidShape error for mismatched element count")
	}
}

func TestIdentityWrapsAsNoOp(t *testing.T) {
	in, _ := FromContiguous([]float32{1, 2, 3}, []uint32{3})
	id := Identity(in)
	if id.Kind() != InputNoOp {
		t.Fatalf("expected Identity to produce a NoOp node, got %v", id.Kind())
	}
	if id.Parent() != in {
		t.Fatalf("expected NoOp parent to be the wrapped tensor")
	}
	if !reflect.DeepEqual(id.View().Shape, in.View().Shape) {
		t.Fatalf("identity should preserve shape")
	}
}

func TestDependenciesAndLinearizeOrdering(t *testing.T) {
	a, _ := FromContiguous([]float32{1, 2}, []uint32{2})
	b, _ := FromContiguous([]float32{3, 4}, []uint32{2})
	sum, _ := Binary(ADD, a, b)
	sq := Unary(SQRT, sum)
	root := Identity(sq)

	order := root.Linearize()
	pos := make(map[uint32]int, len(order))
	for i, n := range order {
		pos[n.ID()] = i
	}
	if pos[a.ID()] >= pos[sum.ID()] || pos[b.ID()] >= pos[sum.ID()] {
		t.Fatalf("operands must linearize before their binary result")
	}
	if pos[sum.ID()] >= pos[sq.ID()] {
		t.Fatalf("sum must linearize before sqrt(sum)")
	}
	if order[len(order)-1] != root {
		t.Fatalf("root must be the final linearized node")
	}
}

func TestUpdateRebindsMaterializedBytes(t *testing.T) {
	in, _ := FromContiguous([]float32{1, 2, 3}, []uint32{3})
	if in.Materialized() {
		t.Fatalf("fresh ExplicitInput should not report Materialized before Update")
	}
	in.Update(encodeF32([]float32{9, 9, 9}))
	if !in.Materialized() {
		t.Fatalf("expected Materialized true after Update")
	}
	b, _ := in.Bytes()
	if got := DecodeF32(b); !reflect.DeepEqual(got, []float32{9, 9, 9}) {
		t.Fatalf("bytes after update = %v, want [9 9 9]", got)
	}
}

func TestReduceIdentityElements(t *testing.T) {
	if ReduceSum.IdentityElement() != 0 {
		t.Errorf("SUM identity should be 0")
	}
	if ReduceProduct.IdentityElement() != 1 {
		t.Errorf("PRODUCT identity should be 1")
	}
}
