package view

import (
	"reflect"
	"testing"
)

func TestFromShapeContiguous(t *testing.T) {
	cases := []struct {
		name  string
		shape []uint32
		want  []uint32
	}{
		{"rank1", []uint32{4}, []uint32{1}},
		{"rank2", []uint32{2, 3}, []uint32{3, 1}},
		{"rank3", []uint32{2, 3, 4}, []uint32{12, 4, 1}},
		{"rank0-normalized", []uint32{}, []uint32{1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := FromShape(c.shape)
			if !reflect.DeepEqual(v.ContiguousStride, c.want) {
				t.Fatalf("contiguous stride = %v, want %v", v.ContiguousStride, c.want)
			}
			if !v.IsContiguous() {
				t.Fatalf("expected contiguous view")
			}
			var wantLen uint32 = 1
			for _, s := range v.Shape {
				wantLen *= s
			}
			if v.Len() != wantLen {
				t.Fatalf("len = %d, want %d", v.Len(), wantLen)
			}
		})
	}
}

func TestBroadcastableTo(t *testing.T) {
	cases := []struct {
		a, b []uint32
		want bool
	}{
		{[]uint32{3}, []uint32{3}, true},
		{[]uint32{1, 3}, []uint32{3, 1}, true},
		{[]uint32{2, 3}, []uint32{3}, true},
		{[]uint32{2, 3}, []uint32{4}, false},
		{[]uint32{5}, []uint32{1}, true},
	}
	for _, c := range cases {
		if got := BroadcastableTo(c.a, c.b); got != c.want {
			t.Errorf("BroadcastableTo(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestProjectBroadcast(t *testing.T) {
	// source shape [1,3] broadcast up to [3,3]: row dim broadcasts (stride 0).
	src := FromShape([]uint32{1, 3})
	proj, err := ProjectBroadcast(src, []uint32{3, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proj.Stride[0] != 0 {
		t.Fatalf("expected broadcast dim to have stride 0, got %d", proj.Stride[0])
	}
	if proj.Stride[1] != 1 {
		t.Fatalf("expected non-broadcast dim to keep stride 1, got %d", proj.Stride[1])
	}

	// source shape [3,1] broadcast against [3,1] up to [3,3]: col dim broadcasts.
	src2 := FromShape([]uint32{3, 1})
	proj2, err := ProjectBroadcast(src2, []uint32{3, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proj2.Stride[1] != 0 {
		t.Fatalf("expected broadcast dim to have stride 0, got %d", proj2.Stride[1])
	}
}

func TestReduceEmptyAxesIsIdentity(t *testing.T) {
	v := FromShape([]uint32{2, 3})
	r := Reduce(v, nil)
	if !reflect.DeepEqual(r, v) {
		t.Fatalf("Reduce with no axes should return input unchanged")
	}
}

func TestReduceCollapsesAxisToOne(t *testing.T) {
	v := FromShape([]uint32{2, 2})
	r := Reduce(v, []int{1})
	if !reflect.DeepEqual(r.Shape, []uint32{2, 1}) {
		t.Fatalf("reduced shape = %v, want [2 1]", r.Shape)
	}
	if !r.IsContiguous() {
		t.Fatalf("reduced view should be contiguous")
	}
}

func TestReshapeCompatible(t *testing.T) {
	v := FromShape([]uint32{2, 3})
	if !ReshapeCompatible(v, []uint32{3, 2}) {
		t.Fatalf("expected 2x3 -> 3x2 reshape to be compatible")
	}
	if ReshapeCompatible(v, []uint32{4, 2}) {
		t.Fatalf("expected 2x3 -> 4x2 reshape to be incompatible (mismatched length)")
	}

	// Non-contiguous view (broadcast) requires materialization first.
	src := FromShape([]uint32{1, 3})
	proj, _ := ProjectBroadcast(src, []uint32{3, 3})
	if ReshapeCompatible(proj, []uint32{9}) {
		t.Fatalf("expected non-contiguous broadcast view to be reshape-incompatible")
	}
}

func TestMetadataWordLayout(t *testing.T) {
	v := FromShape([]uint32{2, 3, 4})
	rank := uint32(v.Rank())
	words := v.MetadataWords()

	if got, want := len(words), v.MetadataWordCount(); got != want {
		t.Fatalf("len(words) = %d, want %d", got, want)
	}
	if gotBytes, want := 4*len(words), 4*(6+4*v.Rank()); gotBytes != want {
		t.Fatalf("bytes(metadata).len() invariant violated: got %d, want %d", gotBytes, want)
	}

	if words[0] != v.Len() {
		t.Errorf("word 0 (length) = %d, want %d", words[0], v.Len())
	}
	if words[1] != rank {
		t.Errorf("word 1 (dimension) = %d, want %d", words[1], rank)
	}
	if words[2] != 0 {
		t.Errorf("word 2 (shape_offset) = %d, want 0", words[2])
	}
	if words[3] != rank {
		t.Errorf("word 3 (stride_offset) = %d, want %d", words[3], rank)
	}
	if words[4] != 2*rank {
		t.Errorf("word 4 (contig_stride_offset) = %d, want %d", words[4], 2*rank)
	}
	if words[5] != 3*rank {
		t.Errorf("word 5 (offset_offset) = %d, want %d", words[5], 3*rank)
	}

	base := 6
	if !reflect.DeepEqual(words[base:base+int(rank)], v.Shape) {
		t.Errorf("shape words = %v, want %v", words[base:base+int(rank)], v.Shape)
	}
}
