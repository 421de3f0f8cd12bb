// Package cfg defines the control flow graph model for lifted functions.
//
// A Graph is built once from the block and edge lists of a function
// descriptor and validated on load: dangling edges, unreachable blocks and a
// missing entry are rejected. Blocks hold primitive statement sequences as
// emitted by the lifter; the graph never inspects source text or label
// names, only block and edge structure.
package cfg
