package eval

import (
	"context"
	"testing"

	"github.com/gogpu/tensor"
	"github.com/gogpu/tensor/gpucore"
)

// These tests exercise the pipeline's resource lifecycle (linearization,
// dispatch wiring, last-use buffer reclamation) against gpucore.FakeAdapter,
// which performs no actual shader execution. They assert on shape/byte
// length and full buffer reclamation, not on numeric results, since only a
// real GPUAdapter backend runs the generated WGSL.

func TestEvaluateScalarAddReclaimsAllBuffers(t *testing.T) {
	a := tensor.Scalar(2.0)
	b := tensor.Scalar(3.0)
	sum, err := tensor.Binary(tensor.ADD, a, b)
	if err != nil {
		t.Fatalf("unexpected error building graph: %v", err)
	}

	adapter := gpucore.NewFakeAdapter()
	p := New(adapter, tensor.Config{})

	result, err := p.Evaluate(context.Background(), sum)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(result) != 4 {
		t.Fatalf("expected 4 bytes (one f32) for shape [1], got %d", len(result))
	}
	if n := adapter.BufferCount(); n != 0 {
		t.Fatalf("expected all buffers reclaimed after evaluation, got %d live", n)
	}
}

func TestEvaluateBroadcastAdd(t *testing.T) {
	lhs, _ := tensor.FromContiguous([]float32{1, 2, 3}, []uint32{1, 3})
	rhs, _ := tensor.FromContiguous([]float32{10, 20, 30}, []uint32{3, 1})
	sum, err := tensor.Binary(tensor.ADD, lhs, rhs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	adapter := gpucore.NewFakeAdapter()
	p := New(adapter, tensor.Config{})

	result, err := p.Evaluate(context.Background(), sum)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if want := 9 * 4; len(result) != want {
		t.Fatalf("expected %d bytes for a 3x3 result, got %d", want, len(result))
	}
	if n := adapter.BufferCount(); n != 0 {
		t.Fatalf("expected all buffers reclaimed, got %d live", n)
	}
}

func TestEvaluateReshape(t *testing.T) {
	in, _ := tensor.FromContiguous([]float32{0, 1, 2, 3, 4, 5}, []uint32{2, 3})
	reshaped, err := tensor.Reshape(in, []uint32{3, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	adapter := gpucore.NewFakeAdapter()
	p := New(adapter, tensor.Config{})

	result, err := p.Evaluate(context.Background(), reshaped)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if want := 6 * 4; len(result) != want {
		t.Fatalf("expected %d bytes for 6 elements, got %d", want, len(result))
	}
}

func TestEvaluateReduce(t *testing.T) {
	in, _ := tensor.FromContiguous([]float32{1, 2, 3, 4}, []uint32{2, 2})
	summed, err := tensor.Reduce(tensor.ReduceSum, in, []int{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	adapter := gpucore.NewFakeAdapter()
	p := New(adapter, tensor.Config{})

	result, err := p.Evaluate(context.Background(), summed)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if want := 2 * 4; len(result) != want {
		t.Fatalf("expected %d bytes for shape [2,1], got %d", want, len(result))
	}
}

func TestEvaluateIdentityChain(t *testing.T) {
	in, _ := tensor.FromContiguous([]float32{1, 2, 3}, []uint32{3})
	id := tensor.Identity(in)

	adapter := gpucore.NewFakeAdapter()
	p := New(adapter, tensor.Config{})

	if _, err := p.Evaluate(context.Background(), id); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if n := adapter.BufferCount(); n != 0 {
		t.Fatalf("expected all buffers reclaimed, got %d live", n)
	}
}

func TestEvaluateCanceledContext(t *testing.T) {
	in, _ := tensor.FromContiguous([]float32{1, 2, 3}, []uint32{3})
	id := tensor.Identity(in)

	adapter := gpucore.NewFakeAdapter()
	p := New(adapter, tensor.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Evaluate(ctx, id); err == nil {
		t.Fatal("expected error from a pre-canceled context")
	}
	if n := adapter.BufferCount(); n != 0 {
		t.Fatalf("expected all buffers reclaimed after cancellation, got %d live", n)
	}
}

func TestDispatchCountMatchesOverDispatchFormula(t *testing.T) {
	cases := []struct {
		dim  uint32
		want uint32
	}{
		{0, 1},
		{1, 1},
		{4, 2}, // exact multiple still dispatches one extra row
		{5, 2},
		{8, 3},
	}
	for _, c := range cases {
		if got := dispatchCount(c.dim); got != c.want {
			t.Errorf("dispatchCount(%d) = %d, want %d", c.dim, got, c.want)
		}
	}
}

func TestBuildLastUseTracksFinalConsumer(t *testing.T) {
	a, _ := tensor.FromContiguous([]float32{1, 2}, []uint32{2})
	b, _ := tensor.FromContiguous([]float32{3, 4}, []uint32{2})
	sum, _ := tensor.Binary(tensor.ADD, a, b)
	sq := tensor.Unary(tensor.SQRT, sum)

	order := sq.Linearize()
	lastUse := buildLastUse(order)

	if lastUse[a.ID()] != sum.ID() {
		t.Errorf("last use of a should be sum, got node %d", lastUse[a.ID()])
	}
	if lastUse[sum.ID()] != sq.ID() {
		t.Errorf("last use of sum should be sqrt, got node %d", lastUse[sum.ID()])
	}
}
