// Package gpucore provides shared GPU abstractions for the tensor evaluation
// engine.
//
// This package defines the [GPUAdapter] interface, which abstracts over
// different GPU backend implementations, allowing the same evaluation
// pipeline to work with:
//   - gogpu/wgpu (Pure Go WebGPU via HAL)
//   - a CPU-only fake adapter, for tests and environments without a GPU
//
// # Architecture
//
// The core evaluation algorithm (linearize -> compile -> dispatch -> read
// back) is implemented once, in the [eval] package, against the [GPUAdapter]
// interface. Thin adapters translate between that interface and a specific
// backend API.
//
//	                 +------------------+
//	                 |  eval.Pipeline   |
//	                 |                  |
//	                 +--------+---------+
//	                          |
//	                 +--------v---------+
//	                 |  gpucore.GPU     |
//	                 |     Adapter      |
//	                 +--------+---------+
//	                          |
//	              +-----------+-----------+
//	              |                       |
//	     +--------v--------+    +--------v--------+
//	     |  backend/native |    |  fake adapter    |
//	     |  (gogpu/wgpu)   |    |  (tests)         |
//	     +-----------------+    +-----------------+
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([BufferID], [ShaderModuleID],
// etc.). The [GPUAdapter] interface provides creation and destruction
// methods for each resource type. Adapters are responsible for tracking the
// mapping between IDs and actual GPU resources; destroying a resource while
// it is bound to an in-flight compute pass is undefined behavior.
//
// # Tensor Metadata Layout
//
// Every tensor argument to a dispatched kernel is described on the GPU side
// by a packed uniform buffer of 32-bit words: a fixed 6-word header
// (length, dimension, and the byte-free offsets of four trailing arrays)
// followed by the tensor's shape, stride, contiguous_stride, and offset
// arrays in that order. [TensorMetadataWordCount] computes the total word
// count for a given rank.
package gpucore
