// Package tensor implements a lazy DAG of tensor operations (elementwise
// unary and binary with broadcasting, axis reduction, reshape, and
// identity/no-op) together with the view algebra that gives each node its
// shape/stride/offset metadata. Evaluation of the graph lives in the
// sibling eval package; tensor itself only builds and validates the graph.
package tensor

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gogpu/tensor/ir"
	"github.com/gogpu/tensor/view"
)

// tensorIDGen is the process-wide monotonic 32-bit id counter for Tensor
// nodes. Uniqueness is the only guarantee; ordering across concurrent
// allocations is not.
var tensorIDGen atomic.Uint32

// InputKind discriminates how a Tensor node obtains its data.
type InputKind int

const (
	// InputExplicit holds a host-provided byte backing, set at construction
	// and rebindable via Update after GPU materialization.
	InputExplicit InputKind = iota
	// InputNoOp wraps a single parent node, marking that the runtime must
	// materialize a fresh contiguous copy of it.
	InputNoOp
	// InputOperation holds an OpSpec describing a unary, binary, reduce,
	// or reshape computation over one or more parent nodes.
	InputOperation
)

func (k InputKind) String() string {
	switch k {
	case InputExplicit:
		return "ExplicitInput"
	case InputNoOp:
		return "NoOp"
	case InputOperation:
		return "OperationResult"
	default:
		return "Unknown"
	}
}

// OpKind discriminates the kind of computation an OpSpec describes.
type OpKind int

const (
	OpUnary OpKind = iota
	OpBinary
	OpReduce
	OpReshape
	// OpIdentity exists for completeness with the OpSpec variant set; the
	// public identity() builder produces an InputNoOp node directly (§4.2),
	// so this kind is never constructed by Identity itself.
	OpIdentity
)

func (k OpKind) String() string {
	switch k {
	case OpUnary:
		return "Unary"
	case OpBinary:
		return "Binary"
	case OpReduce:
		return "Reduce"
	case OpReshape:
		return "Reshape"
	case OpIdentity:
		return "Identity"
	default:
		return "Unknown"
	}
}

// UnaryOp enumerates elementwise unary operators.
type UnaryOp int

const (
	EXP2 UnaryOp = iota
	LOG2
	SIN
	SQRT
	RECIP
	UnaryIdentity
)

func (o UnaryOp) String() string {
	switch o {
	case EXP2:
		return "EXP2"
	case LOG2:
		return "LOG2"
	case SIN:
		return "SIN"
	case SQRT:
		return "SQRT"
	case RECIP:
		return "RECIP"
	case UnaryIdentity:
		return "IDENTITY"
	default:
		return "Unknown"
	}
}

// BinaryOp enumerates elementwise binary operators.
type BinaryOp int

const (
	ADD BinaryOp = iota
	SUB
	MUL
	DIV
	MAXOP
	MODOP
	EQ
	LT
)

func (o BinaryOp) String() string {
	switch o {
	case ADD:
		return "ADD"
	case SUB:
		return "SUB"
	case MUL:
		return "MUL"
	case DIV:
		return "DIV"
	case MAXOP:
		return "MAX"
	case MODOP:
		return "MOD"
	case EQ:
		return "EQ"
	case LT:
		return "LT"
	default:
		return "Unknown"
	}
}

// ReduceOp enumerates the reduction operators; each has an associated
// identity element used to seed the accumulator (SUM: 0, MAX: -Inf,
// PRODUCT: 1).
type ReduceOp int

const (
	ReduceSum ReduceOp = iota
	ReduceMax
	ReduceProduct
)

func (o ReduceOp) String() string {
	switch o {
	case ReduceSum:
		return "SUM"
	case ReduceMax:
		return "MAX"
	case ReduceProduct:
		return "PRODUCT"
	default:
		return "Unknown"
	}
}

// IdentityElement returns the accumulator seed value for o.
func (o ReduceOp) IdentityElement() float32 {
	switch o {
	case ReduceSum:
		return 0
	case ReduceMax:
		return float32(math.Inf(-1))
	case ReduceProduct:
		return 1
	default:
		return 0
	}
}

// OpSpec describes one computation producing an InputOperation node. Exactly
// one of the op-specific field groups is meaningful, selected by Kind.
type OpSpec struct {
	Kind OpKind

	UnaryOp UnaryOp
	Input   *Tensor // Unary, Reshape, Reduce operand

	BinaryOp BinaryOp
	LHS, RHS *Tensor // Binary operands

	// LHSView and RHSView are LHS's and RHS's views projected onto the
	// broadcast output shape (see view.ProjectBroadcast): broadcast
	// dimensions carry stride 0 here, independent of LHS's/RHS's own
	// stored view. Dispatch must bind these, not LHS.View()/RHS.View(),
	// or a broadcast operand reads past its buffer.
	LHSView, RHSView view.View

	ReduceOp ReduceOp
	Axes     []int // Reduce: sorted unique subset of [0, rank)

	NewShape []uint32 // Reshape target shape
}

// Tensor is an immutable DAG node, shared by pointer across every successor
// that references it (reference-counted ownership via Go's garbage
// collector). The only mutation permitted after construction is Update,
// which rebinds a node's host-visible backing bytes once a value has been
// materialized on the GPU.
type Tensor struct {
	id    uint32
	view  view.View
	dtype ir.Type
	kind  InputKind

	// parent is valid when kind == InputNoOp.
	parent *Tensor
	// op is valid when kind == InputOperation.
	op *OpSpec

	mu           sync.Mutex
	bytes        []byte // host-visible backing; explicit input data or materialized result
	materialized bool
}

func newTensor(v view.View, dtype ir.Type, kind InputKind) *Tensor {
	return &Tensor{
		id:    tensorIDGen.Add(1) - 1,
		view:  v,
		dtype: dtype,
		kind:  kind,
	}
}

// ID returns the node's process-unique identifier.
func (t *Tensor) ID() uint32 { return t.id }

// View returns the node's TensorView.
func (t *Tensor) View() view.View { return t.view }

// Dtype returns the node's scalar datatype.
func (t *Tensor) Dtype() ir.Type { return t.dtype }

// Kind returns the node's TensorInput discriminant.
func (t *Tensor) Kind() InputKind { return t.kind }

// Parent returns the wrapped node when Kind() == InputNoOp; nil otherwise.
func (t *Tensor) Parent() *Tensor { return t.parent }

// Op returns the operation spec when Kind() == InputOperation; nil
// otherwise.
func (t *Tensor) Op() *OpSpec { return t.op }

// Dependencies returns the node's direct predecessors. The transitive
// closure over Dependencies is guaranteed acyclic because builders only
// ever consume already-constructed nodes.
func (t *Tensor) Dependencies() []*Tensor {
	switch t.kind {
	case InputNoOp:
		return []*Tensor{t.parent}
	case InputOperation:
		switch t.op.Kind {
		case OpUnary, OpReshape, OpReduce:
			return []*Tensor{t.op.Input}
		case OpBinary:
			return []*Tensor{t.op.LHS, t.op.RHS}
		}
	}
	return nil
}

// Bytes returns the node's current host-visible backing, if any, and
// whether it has been set (explicit construction data, or a materialized
// result written back by Update).
func (t *Tensor) Bytes() ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes, t.bytes != nil
}

// Materialized reports whether Update has rebound this node with a GPU
// result since construction.
func (t *Tensor) Materialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.materialized
}

// Update rebinds the node's backing storage after GPU materialization. It
// is the only mutation permitted on a constructed Tensor.
func (t *Tensor) Update(bytes []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bytes = bytes
	t.materialized = true
}

// Linearize returns a deterministic topological order of t and its
// transitive dependencies, dependencies before dependents, via reverse-DFS
// post-order with a visited-id set (shared subgraphs are visited once).
func (t *Tensor) Linearize() []*Tensor {
	var order []*Tensor
	visited := make(map[uint32]bool)
	var visit func(n *Tensor)
	visit = func(n *Tensor) {
		if visited[n.id] {
			return
		}
		visited[n.id] = true
		for _, dep := range n.Dependencies() {
			visit(dep)
		}
		order = append(order, n)
	}
	visit(t)
	return order
}

// --- construction ---

// encodeF32 packs vals as little-endian float32 bytes.
func encodeF32(vals []float32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeF32 unpacks little-endian float32 bytes, the inverse of the
// encoding used by Scalar, FromContiguous, and GPU readback.
func DecodeF32(bytes []byte) []float32 {
	n := len(bytes) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(bytes[4*i:]))
	}
	return out
}

// Scalar builds a rank-1 shape-[1] ExplicitInput node holding v.
func Scalar(v float32) *Tensor {
	t := newTensor(view.FromShape(nil), ir.F32, InputExplicit)
	t.bytes = encodeF32([]float32{v})
	return t
}

// FromContiguous builds an ExplicitInput node from host data laid out
// contiguously per shape. It fails with InvalidShape if len(data) does not
// match the product of shape.
func FromContiguous(data []float32, shape []uint32) (*Tensor, error) {
	v := view.FromShape(shape)
	if uint32(len(data)) != v.Len() {
		return nil, newShapeError("from_contiguous", 0, "data length %d does not match shape product %d", len(data), v.Len())
	}
	t := newTensor(v, ir.F32, InputExplicit)
	t.bytes = encodeF32(data)
	return t, nil
}

// FromRawBytes builds an ExplicitInput node from a pre-encoded little-endian
// byte buffer matching v and dtype. It fails with InvalidShape if the byte
// length does not match v.Len() * 4 (both F32 and I32 are 32-bit words).
func FromRawBytes(bytes []byte, v view.View, dtype ir.Type) (*Tensor, error) {
	want := int(v.Len()) * 4
	if len(bytes) != want {
		return nil, newShapeError("from_raw_bytes", 0, "byte length %d does not match expected %d for view of length %d", len(bytes), want, v.Len())
	}
	t := newTensor(v, dtype, InputExplicit)
	t.bytes = append([]byte(nil), bytes...)
	return t, nil
}

// Unary builds a node applying op elementwise to input. The output view is
// identical to input's view since unary operators preserve shape.
func Unary(op UnaryOp, input *Tensor) *Tensor {
	t := newTensor(input.view, input.dtype, InputOperation)
	t.op = &OpSpec{Kind: OpUnary, UnaryOp: op, Input: input}
	return t
}

// Binary builds a node combining lhs and rhs elementwise with broadcasting.
// It fails with InvalidShape if the two shapes are not broadcast-compatible.
func Binary(op BinaryOp, lhs, rhs *Tensor) (*Tensor, error) {
	if !view.BroadcastableTo(lhs.view.Shape, rhs.view.Shape) {
		return nil, newShapeError("binary", lhs.id, "shapes %v and %v are not broadcast-compatible", lhs.view.Shape, rhs.view.Shape)
	}
	outShape := view.Broadcast(lhs.view.Shape, rhs.view.Shape)

	lhsView, err := view.ProjectBroadcast(lhs.view, outShape)
	if err != nil {
		return nil, newShapeError("binary", lhs.id, "projecting lhs: %v", err)
	}
	rhsView, err := view.ProjectBroadcast(rhs.view, outShape)
	if err != nil {
		return nil, newShapeError("binary", rhs.id, "projecting rhs: %v", err)
	}

	t := newTensor(view.FromShape(outShape), lhs.dtype, InputOperation)
	t.op = &OpSpec{Kind: OpBinary, BinaryOp: op, LHS: lhs, RHS: rhs, LHSView: lhsView, RHSView: rhsView}
	return t, nil
}

// Reduce builds a node that reduces input along axes using op. Reduced axes
// collapse to size 1 in the output shape. It fails with InvalidShape if any
// axis is out of [0, rank) or axes contains a duplicate.
func Reduce(op ReduceOp, input *Tensor, axes []int) (*Tensor, error) {
	rank := input.view.Rank()
	seen := make(map[int]bool, len(axes))
	for _, a := range axes {
		if a < 0 || a >= rank {
			return nil, newShapeError("reduce", input.id, "axis %d out of range for rank %d", a, rank)
		}
		if seen[a] {
			return nil, newShapeError("reduce", input.id, "duplicate axis %d", a)
		}
		seen[a] = true
	}
	outView := view.Reduce(input.view, axes)
	t := newTensor(outView, input.dtype, InputOperation)
	t.op = &OpSpec{Kind: OpReduce, ReduceOp: op, Input: input, Axes: append([]int(nil), axes...)}
	return t, nil
}

// Reshape builds a node reinterpreting input's elements under newShape. If
// input is not already contiguous, Reshape first wraps it in an implicit
// identity() so the reshape kernel always reads from a materialized
// contiguous buffer (see DESIGN.md, Open Question: reshape contiguity). It
// fails with InvalidShape if the element counts do not match.
func Reshape(input *Tensor, newShape []uint32) (*Tensor, error) {
	actual := input
	if view.AsContiguousRequired(input.view) {
		actual = Identity(input)
	}
	if !view.ReshapeCompatible(actual.view, newShape) {
		return nil, newShapeError("reshape", input.id, "shape %v incompatible with element count %d", newShape, input.view.Len())
	}
	outView := view.FromShape(newShape)
	t := newTensor(outView, actual.dtype, InputOperation)
	t.op = &OpSpec{Kind: OpReshape, Input: actual, NewShape: append([]uint32(nil), newShape...)}
	return t, nil
}

// Identity wraps t in a NoOp node: a semantic marker that the evaluation
// pipeline must materialize a fresh contiguous copy of t. The node's view is
// the contiguous view over t's shape.
func Identity(t *Tensor) *Tensor {
	n := newTensor(view.FromShape(t.view.Shape), t.dtype, InputNoOp)
	n.parent = t
	return n
}
