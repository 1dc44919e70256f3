// Command tensorctl builds a handful of tensor DAGs and evaluates them
// end-to-end, against a real gogpu/wgpu device when -gpu is set and a device
// opens, and a CPU-only gpucore.FakeAdapter otherwise.
//
// It exercises the ONNX-ingestion non-goal boundary by only ever accepting
// pre-built tensors constructed in this file, not model files: graph
// construction from an external format is the job of the ModelSource
// collaborator the root package specifies, not of this command.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/tensor"
	"github.com/gogpu/tensor/eval"
	"github.com/gogpu/tensor/gpucore"
)

func main() {
	gpuFlag := flag.Bool("gpu", false, "attempt to evaluate against a real GPU device instead of the CPU fallback")
	logLevel := flag.String("log-level", "info", "slog level: debug, info, warn, error")
	flag.Parse()

	cfg, err := tensor.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tensorctl: load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	tensor.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	adapter, label := selectAdapter(*gpuFlag)
	fmt.Printf("tensorctl: evaluating against %s\n", label)

	pipeline := eval.New(adapter, cfg)

	for _, sc := range scenarios() {
		runScenario(pipeline, sc)
	}
}

type scenario struct {
	name  string
	build func() (*tensor.Tensor, error)
}

// scenarios returns the end-to-end graphs named in the testable-properties
// section: scalar add, contiguous add, broadcast add, reshape, and a sum
// reduction along one axis.
func scenarios() []scenario {
	return []scenario{
		{"add(scalar(2), scalar(3))", func() (*tensor.Tensor, error) {
			return tensor.Binary(tensor.ADD, tensor.Scalar(2), tensor.Scalar(3))
		}},
		{"add([1,2,3], [10,20,30])", func() (*tensor.Tensor, error) {
			a, err := tensor.FromContiguous([]float32{1, 2, 3}, []uint32{3})
			if err != nil {
				return nil, err
			}
			b, err := tensor.FromContiguous([]float32{10, 20, 30}, []uint32{3})
			if err != nil {
				return nil, err
			}
			return tensor.Binary(tensor.ADD, a, b)
		}},
		{"broadcast add([1,2,3]x[1,3], [10,20,30]x[3,1])", func() (*tensor.Tensor, error) {
			a, err := tensor.FromContiguous([]float32{1, 2, 3}, []uint32{1, 3})
			if err != nil {
				return nil, err
			}
			b, err := tensor.FromContiguous([]float32{10, 20, 30}, []uint32{3, 1})
			if err != nil {
				return nil, err
			}
			return tensor.Binary(tensor.ADD, a, b)
		}},
		{"reshape([0..6]x[2,3], [3,2])", func() (*tensor.Tensor, error) {
			t, err := tensor.FromContiguous([]float32{0, 1, 2, 3, 4, 5}, []uint32{2, 3})
			if err != nil {
				return nil, err
			}
			return tensor.Reshape(t, []uint32{3, 2})
		}},
		{"sum([1,2,3,4]x[2,2], axes=[1])", func() (*tensor.Tensor, error) {
			t, err := tensor.FromContiguous([]float32{1, 2, 3, 4}, []uint32{2, 2})
			if err != nil {
				return nil, err
			}
			return tensor.Reduce(tensor.ReduceSum, t, []int{1})
		}},
	}
}

func runScenario(p *eval.Pipeline, sc scenario) {
	root, err := sc.build()
	if err != nil {
		fmt.Printf("  %-55s BUILD ERROR: %v\n", sc.name, err)
		return
	}

	start := time.Now()
	bytes, err := p.Evaluate(context.Background(), root)
	dur := time.Since(start)
	if err != nil {
		fmt.Printf("  %-55s EVAL ERROR: %v\n", sc.name, err)
		return
	}

	values := tensor.DecodeF32(bytes)
	fmt.Printf("  %-55s %v (%v)\n", sc.name, values, dur.Round(time.Microsecond))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// selectAdapter attempts a real gogpu/wgpu device when gpuRequested is set,
// falling back to a CPU-only gpucore.FakeAdapter when no GPU device is
// available — mirroring the teacher's own compute_pipeline demo, which
// prints a SKIP line and continues on the CPU path rather than failing.
func selectAdapter(gpuRequested bool) (gpucore.GPUAdapter, string) {
	if !gpuRequested {
		return gpucore.NewFakeAdapter(), "CPU fallback (gpucore.FakeAdapter)"
	}

	adapter, err := newStandaloneHALAdapter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tensorctl: GPU init failed, falling back to CPU: %v\n", err)
		return gpucore.NewFakeAdapter(), "CPU fallback (gpucore.FakeAdapter)"
	}
	return adapter, "GPU device (backend/native.HALAdapter)"
}
