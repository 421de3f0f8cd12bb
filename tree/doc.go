// Package tree builds the structured control tree: loop regions collapse
// innermost first into while/do-while/loop nodes, matched idioms become
// opaque call nodes, wind scopes wrap their bodies, and the remaining
// acyclic graph folds into sequences and if/else nodes. Blocks that resist
// structuring are kept behind explicit goto nodes rather than guessed at.
//
// Nodes are immutable once built. Flatten regenerates a graph from a tree
// for equivalence checking.
package tree
