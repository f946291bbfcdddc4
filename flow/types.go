// Package flow implements the Flow Execution Engine (C4): graph
// construction, start/end inference, and the sequential node-walk
// that drives typed nodes (C5, in flow/node) with synchronous and
// streaming execution modes.
//
// Grounded on workflow/executor.go + workflow/executors.go
// (ExecutionContext, BaseExecutor) generalized from the teacher's flat
// agent-sequence DAG into the full per-node-type graph interpreter
// spec.md §4.4 requires.
package flow

import (
	"github.com/flowctl/convoy/flow/ftypes"
)

// Chunk/ChunkType/Metadata/Category are re-exported from flow/ftypes
// so callers of this package's public API (Run/RunStream) don't need
// a second import for the types they're reading off the returned
// channel.
type (
	Chunk     = ftypes.Chunk
	ChunkType = ftypes.ChunkType
	Metadata  = ftypes.Metadata
	Category  = ftypes.Category
)

const (
	ChunkContent         = ftypes.Content
	ChunkToolResult      = ftypes.ToolResult
	ChunkToolError       = ftypes.ToolError
	ChunkNodeStart       = ftypes.NodeStart
	ChunkNodeComplete    = ftypes.NodeComplete
	ChunkNodeError       = ftypes.NodeError
	ChunkFlowNodesExtend = ftypes.FlowNodesExtend
	ChunkFinal           = ftypes.Final
	ChunkDone            = ftypes.Done
	ChunkError           = ftypes.Error

	CategoryStart     = ftypes.CategoryStart
	CategoryEnd       = ftypes.CategoryEnd
	CategoryLLM       = ftypes.CategoryLLM
	CategoryTool      = ftypes.CategoryTool
	CategoryRouter    = ftypes.CategoryRouter
	CategoryAutoParam = ftypes.CategoryAutoParam
	CategoryComposite = ftypes.CategoryComposite
	CategoryPlanner   = ftypes.CategoryPlanner
	CategoryKB        = ftypes.CategoryKB
)
