package tree

import (
	"fmt"
	"strings"

	"github.com/liftback/restruct/cfg"
	"github.com/liftback/restruct/idiom"
)

// Kind discriminates structured tree nodes.
type Kind int

const (
	BasicBlock Kind = iota
	Sequence
	IfElse
	While    // condition tested before each iteration
	DoWhile  // condition tested after each iteration
	LoopBrk  // no header or latch test; exits via Goto kids
	IdiomOp  // an entire matched idiom, opaque
	Scope    // protected (wind) region
	Goto     // unstructured transfer to a labelled block
)

func (k Kind) String() string {
	switch k {
	case BasicBlock:
		return "block"
	case Sequence:
		return "seq"
	case IfElse:
		return "if"
	case While:
		return "while"
	case DoWhile:
		return "do-while"
	case LoopBrk:
		return "loop"
	case IdiomOp:
		return "idiom"
	case Scope:
		return "scope"
	case Goto:
		return "goto"
	}
	return "?"
}

// Node is one structured element. Which fields are set depends on Kind:
// BasicBlock and Goto carry Block, IfElse/While/DoWhile carry Cond,
// IdiomOp carries Idiom, Scope carries Depth. Kids hold the body (for
// IfElse: Kids[0] is the then arm, Kids[1] the else arm, either may be an
// empty Sequence).
type Node struct {
	Kind  Kind
	Block cfg.BlockID
	Stmts []cfg.Stmt // BasicBlock payload, terminator excluded
	Cond  *cfg.Stmt
	Kids  []*Node
	Idiom *idiom.Match
	Depth int
}

// Walk visits the tree depth first, parents before kids.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, k := range n.Kids {
		k.Walk(fn)
	}
}

// Count returns the number of nodes of kind k in the tree.
func (n *Node) Count(k Kind) int {
	c := 0
	n.Walk(func(m *Node) {
		if m.Kind == k {
			c++
		}
	})
	return c
}

func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb, 0)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder, indent int) {
	pad := strings.Repeat("  ", indent)
	switch n.Kind {
	case BasicBlock:
		fmt.Fprintf(sb, "%sblock %d\n", pad, n.Block)
	case Goto:
		fmt.Fprintf(sb, "%sgoto %d\n", pad, n.Block)
	case IfElse:
		fmt.Fprintf(sb, "%sif %s\n", pad, n.Cond)
	case While:
		fmt.Fprintf(sb, "%swhile %s\n", pad, n.Cond)
	case DoWhile:
		fmt.Fprintf(sb, "%sdo-while %s\n", pad, n.Cond)
	case IdiomOp:
		fmt.Fprintf(sb, "%s%s\n", pad, n.Idiom)
	case Scope:
		fmt.Fprintf(sb, "%sscope depth=%d\n", pad, n.Depth)
	default:
		fmt.Fprintf(sb, "%s%s\n", pad, n.Kind)
	}
	for _, k := range n.Kids {
		k.write(sb, indent+1)
	}
}
