// Package dom computes dominance information for a control flow graph.
//
// The immediate dominator tree is found with the iterative dataflow
// algorithm of Cooper, Harvey and Kennedy ("A Simple, Fast Dominance
// Algorithm"), which converges quickly on the shallow graphs produced by
// lifting. The result is computed once per graph and read-only afterwards;
// Info holds block ids only and never owns graph state.
package dom
