package tensor

import (
	"github.com/gogpu/tensor/ir"
	"github.com/gogpu/tensor/storage"
	"github.com/gogpu/tensor/view"
)

// ModelSource is the interface an external model-format parser (e.g. an
// ONNX graph importer) implements to feed this package's Tensor builders.
// ONNX ingestion itself is out of scope for this module; this interface
// only specifies the shape of that external collaborator.
type ModelSource interface {
	// Initializers returns the named constant tensors embedded in the
	// source model, already decoded to little-endian bytes plus their
	// view and dtype.
	Initializers() ([]NamedInitializer, error)
}

// NamedInitializer is one constant tensor pulled from a ModelSource.
type NamedInitializer struct {
	Name  string
	Bytes []byte
	View  view.View
}

// LoadInitializers builds ExplicitInput nodes for every initializer a
// ModelSource exposes, keyed by name.
//
// Each initializer's raw bytes are also stashed in the process-wide
// storage.FileCache once its Tensor is built, under the key returned by
// initializerCacheKey. This gives callers a way to re-fetch an
// initializer's raw bytes (e.g. for re-upload after a cache eviction of the
// GPU-side buffer) without re-running model ingestion, matching the
// "process-wide file-manager cache for on-disk tensor payloads" collaborator
// named in the package's scope notes.
func LoadInitializers(src ModelSource) (map[string]*Tensor, error) {
	inits, err := src.Initializers()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Tensor, len(inits))
	cache := storage.Default()
	for _, init := range inits {
		t, err := FromRawBytes(init.Bytes, init.View, ir.F32)
		if err != nil {
			return nil, newShapeError("load_initializers", 0, "initializer %q: %v", init.Name, err)
		}
		cache.CreateWithBytes(initializerCacheKey(init.Name), init.Bytes)
		out[init.Name] = t
	}
	return out, nil
}

// initializerCacheKey derives the storage.FileCache key under which
// LoadInitializers stashes one initializer's raw bytes.
func initializerCacheKey(name string) string {
	return "initializer:" + name
}
