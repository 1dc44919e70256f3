// Package ir implements ShaderIR, the straight-line SSA intermediate
// representation used to describe a single kernel's per-element computation
// before it is lowered to shader source.
package ir

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// idGenerator is a process-wide monotonic counter. Uniqueness is the only
// guarantee; ordering across concurrent allocations is not.
var idGenerator atomic.Uint64

// ID identifies a ShaderIR node, unique for the lifetime of the process.
type ID = uint64

// Op is a ShaderIR opcode.
type Op int

const (
	MagicIndex Op = iota
	ReduceBegin
	ReduceEnd
	ReduceMagic
	Const
	Load
	Store
	Evaluate
)

func (o Op) String() string {
	switch o {
	case MagicIndex:
		return "MagicIndex"
	case ReduceBegin:
		return "ReduceBegin"
	case ReduceEnd:
		return "ReduceEnd"
	case ReduceMagic:
		return "ReduceMagic"
	case Const:
		return "Const"
	case Load:
		return "Load"
	case Store:
		return "Store"
	case Evaluate:
		return "Evaluate"
	default:
		return "Unknown"
	}
}

// Type is a ShaderIR scalar datatype.
type Type int

const (
	F32 Type = iota
	I32
)

func (t Type) String() string {
	switch t {
	case F32:
		return "F32"
	case I32:
		return "I32"
	default:
		return "Unknown"
	}
}

// Evaluation is the evaluation tag attached to an Evaluate node: either a
// constant value or an arithmetic/transcendental operation.
type Evaluation int

const (
	EvalF32 Evaluation = iota
	EvalI32
	IDENTITY
	EXP2
	LOG2
	CAST
	SIN
	SQRT
	ABS
	FLOOR
	CEIL
	ADD
	SUB
	MULTIPLY
	DIVIDE
	MAX
	MOD
	EQUAL
	LESSTHAN
)

// NDependencies returns the fixed arity of an Evaluation tag.
func (e Evaluation) NDependencies() int {
	switch e {
	case EvalF32, EvalI32:
		return 0
	case IDENTITY, EXP2, LOG2, CAST, SIN, SQRT, ABS, FLOOR, CEIL:
		return 1
	case ADD, SUB, MULTIPLY, DIVIDE, MAX, MOD, EQUAL, LESSTHAN:
		return 2
	default:
		return 0
	}
}

func (e Evaluation) String() string {
	switch e {
	case EvalF32:
		return "F32"
	case EvalI32:
		return "I32"
	case IDENTITY:
		return "IDENTITY"
	case EXP2:
		return "EXP2"
	case LOG2:
		return "LOG2"
	case CAST:
		return "CAST"
	case SIN:
		return "SIN"
	case SQRT:
		return "SQRT"
	case ABS:
		return "ABS"
	case FLOOR:
		return "FLOOR"
	case CEIL:
		return "CEIL"
	case ADD:
		return "ADD"
	case SUB:
		return "SUB"
	case MULTIPLY:
		return "MULTIPLY"
	case DIVIDE:
		return "DIVIDE"
	case MAX:
		return "MAX"
	case MOD:
		return "MOD"
	case EQUAL:
		return "EQUAL"
	case LESSTHAN:
		return "LESSTHAN"
	default:
		return "Unknown"
	}
}

// ConstValue carries a literal value for a Const-tagged Evaluation (EvalF32 or
// EvalI32).
type ConstValue struct {
	F32 float32
	I32 int32
}

// ShaderIR is a node in the straight-line SSA IR. It is immutable after
// construction; New checks the arity invariant eagerly.
type ShaderIR struct {
	id       ID
	op       Op
	datatype Type
	inputs   []*ShaderIR
	evaltype *Evaluation
	constant ConstValue
}

// New constructs a ShaderIR node. If evaltype is non-nil, len(inputs) must
// equal evaltype.NDependencies(); New panics on arity mismatch, mirroring
// the Arity invariant's construction-time enforcement in the source IR.
func New(op Op, datatype Type, inputs []*ShaderIR, evaltype *Evaluation) *ShaderIR {
	if evaltype != nil && len(inputs) != evaltype.NDependencies() {
		panic(fmt.Sprintf("ir: %s requires %d inputs, got %d", evaltype, evaltype.NDependencies(), len(inputs)))
	}
	n := &ShaderIR{
		id:       idGenerator.Add(1) - 1,
		op:       op,
		datatype: datatype,
		inputs:   append([]*ShaderIR(nil), inputs...),
		evaltype: evaltype,
	}
	return n
}

// NewConst constructs a Const node carrying a literal value.
func NewConst(v ConstValue, datatype Type) *ShaderIR {
	eval := EvalF32
	if datatype == I32 {
		eval = EvalI32
	}
	n := New(Const, datatype, nil, &eval)
	n.constant = v
	return n
}

func (n *ShaderIR) ID() ID                  { return n.id }
func (n *ShaderIR) Op() Op                  { return n.op }
func (n *ShaderIR) Datatype() Type          { return n.datatype }
func (n *ShaderIR) Inputs() []*ShaderIR     { return n.inputs }
func (n *ShaderIR) Evaltype() *Evaluation   { return n.evaltype }
func (n *ShaderIR) Constant() ConstValue    { return n.constant }

// Dependencies returns the direct predecessors, matching
// GraphDependencies::dependencies in the source IR.
func (n *ShaderIR) Dependencies() []*ShaderIR {
	return n.inputs
}

// Linearize returns a deterministic topological order of n and its
// transitive dependencies, dependencies first, using reverse-DFS
// post-order with a visited-id set to avoid revisiting shared subgraphs.
func (n *ShaderIR) Linearize() []*ShaderIR {
	var order []*ShaderIR
	visited := make(map[ID]bool)
	var visit func(node *ShaderIR)
	visit = func(node *ShaderIR) {
		if visited[node.id] {
			return
		}
		visited[node.id] = true
		for _, dep := range node.inputs {
			visit(dep)
		}
		order = append(order, node)
	}
	visit(n)
	return order
}

// Literal renders n's linearization as a newline-joined debug listing, one
// fixed-width line per node, mirroring the source IR's columnar Display.
func (n *ShaderIR) Literal() string {
	lines := make([]string, 0, len(n.Linearize()))
	for _, node := range n.Linearize() {
		lines = append(lines, node.String())
	}
	return strings.Join(lines, "\n")
}

// String renders a single node as a fixed-width columnar line:
// id, op, datatype, input ids, evaluation tag.
func (n *ShaderIR) String() string {
	ids := make([]string, len(n.inputs))
	for i, in := range n.inputs {
		ids[i] = fmt.Sprintf("%d", in.id)
	}
	inputs := "[" + strings.Join(ids, ",") + "]"

	evaltype := ""
	if n.evaltype != nil {
		evaltype = n.evaltype.String()
	}

	return fmt.Sprintf("%-8d %-16s %-4s %-16s %s", n.id, n.op, n.datatype, inputs, evaltype)
}
