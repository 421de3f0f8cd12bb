package tree

import (
	"github.com/pkg/errors"

	"github.com/liftback/restruct/cfg"
)

// Flatten regenerates a control flow graph from a structured tree. Basic
// blocks keep their original ids; blocks synthesised for conditions and
// loop anchors take fresh ids above the originals. Goto nodes become plain
// edges to the labelled block, which must exist elsewhere in the tree.
func Flatten(root *Node) (*cfg.Graph, error) {
	f := &flattener{next: maxBlockID(root) + 1}
	entry := f.emit(root, -1, 0)
	if entry < 0 {
		return nil, errors.New("cannot flatten an empty tree")
	}
	g, err := cfg.Load(entry, f.blocks, f.edges)
	return g, errors.Wrap(err, "flattened tree is not a valid graph")
}

type flattener struct {
	blocks []*cfg.Block
	edges  []cfg.Edge
	next   cfg.BlockID
}

func maxBlockID(root *Node) cfg.BlockID {
	max := cfg.BlockID(0)
	root.Walk(func(n *Node) {
		if n.Block > max {
			max = n.Block
		}
	})
	return max
}

func (f *flattener) synth() cfg.BlockID {
	id := f.next
	f.next++
	return id
}

func (f *flattener) add(b *cfg.Block) {
	f.blocks = append(f.blocks, b)
}

func (f *flattener) jump(from, to cfg.BlockID) {
	if to >= 0 {
		f.edges = append(f.edges, cfg.Edge{From: from, To: to, Kind: cfg.Jump})
	}
}

func (f *flattener) branch(from, t, fl cfg.BlockID) {
	f.edges = append(f.edges,
		cfg.Edge{From: from, To: t, Kind: cfg.BranchTrue},
		cfg.Edge{From: from, To: fl, Kind: cfg.BranchFalse})
}

// emit writes the subgraph for n, wired to continue at next, and returns
// its entry block. wind is the protected depth blocks are stamped with.
func (f *flattener) emit(n *Node, next cfg.BlockID, wind int) cfg.BlockID {
	switch n.Kind {
	case BasicBlock:
		blk := &cfg.Block{ID: n.Block, Stmts: append([]cfg.Stmt(nil), n.Stmts...), Wind: wind}
		f.add(blk)
		if !endsFlow(n.Stmts) {
			f.jump(n.Block, next)
		}
		return n.Block

	case Goto:
		return n.Block

	case Sequence:
		entry := next
		for i := len(n.Kids) - 1; i >= 0; i-- {
			entry = f.emit(n.Kids[i], entry, wind)
		}
		return entry

	case IfElse:
		id := f.synth()
		f.add(&cfg.Block{ID: id, Stmts: []cfg.Stmt{*n.Cond}, Wind: wind})
		t := f.emitArm(n.Kids[0], next, wind)
		e := f.emitArm(n.Kids[1], next, wind)
		f.branch(id, t, e)
		return id

	case While:
		id := f.synth()
		f.add(&cfg.Block{ID: id, Stmts: []cfg.Stmt{*n.Cond}, Wind: wind})
		body := f.emitBody(n.Kids, id, wind)
		f.branch(id, body, next)
		return id

	case DoWhile:
		id := f.synth()
		f.add(&cfg.Block{ID: id, Stmts: []cfg.Stmt{*n.Cond}, Wind: wind})
		body := f.emitBody(n.Kids, id, wind)
		f.branch(id, body, next)
		return body

	case LoopBrk:
		id := f.synth()
		f.add(&cfg.Block{ID: id, Wind: wind})
		body := f.emitBody(n.Kids, id, wind)
		f.jump(id, body)
		return id

	case IdiomOp:
		id := f.synth()
		f.add(&cfg.Block{ID: id, Wind: wind, Stmts: []cfg.Stmt{
			{Class: cfg.OpCall, Sym: string(n.Idiom.Kind)},
		}})
		f.jump(id, next)
		return id

	case Scope:
		seq := &Node{Kind: Sequence, Kids: n.Kids}
		return f.emit(seq, next, wind+1)
	}
	return -1
}

// emitArm emits an if arm, falling through to next when the arm is empty.
func (f *flattener) emitArm(n *Node, next cfg.BlockID, wind int) cfg.BlockID {
	if n == nil || (n.Kind == Sequence && len(n.Kids) == 0) {
		return next
	}
	return f.emit(n, next, wind)
}

// emitBody emits a loop body that loops back to back, or degenerates to
// the back anchor itself when empty.
func (f *flattener) emitBody(kids []*Node, back cfg.BlockID, wind int) cfg.BlockID {
	if len(kids) == 0 {
		return back
	}
	seq := &Node{Kind: Sequence, Kids: kids}
	return f.emit(seq, back, wind)
}

func endsFlow(stmts []cfg.Stmt) bool {
	return len(stmts) > 0 && stmts[len(stmts)-1].Class == cfg.OpReturn
}
