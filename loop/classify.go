package loop

import (
	"github.com/liftback/restruct/cfg"
)

// Kind is the canonical shape of a loop region.
type Kind int

const (
	None Kind = iota
	PreTested
	PostTested
	Unwrapped // duplicated condition collapsed to a single while
	Endless
	Irreducible
)

func (k Kind) String() string {
	switch k {
	case PreTested:
		return "pretested"
	case PostTested:
		return "post-tested"
	case Unwrapped:
		return "unwrapped"
	case Endless:
		return "endless"
	case Irreducible:
		return "irreducible"
	}
	return "none"
}

// Shape is the classification result: the loop kind, the canonical
// condition for while/do-while shapes, and the follow block execution
// continues at after the loop.
type Shape struct {
	Kind   Kind
	Cond   *cfg.Stmt   // nil for endless and irreducible loops
	Follow cfg.BlockID // -1 when the loop has no single follow
}

// Classify determines the shape of a region by inspecting the branch
// structure of its header and latch.
func Classify(g *cfg.Graph, r *Region) Shape {
	if r.Irreducible {
		return Shape{Kind: Irreducible, Follow: -1}
	}
	headerExit, headerOut := exitOf(g, r, r.Header)
	latchExit, latchOut := exitOf(g, r, r.Latch)

	switch {
	case headerExit && !latchExit:
		header, _ := g.Block(r.Header)
		return Shape{Kind: PreTested, Cond: header.Terminator(), Follow: headerOut}
	case !headerExit && latchExit:
		latch, _ := g.Block(r.Latch)
		return Shape{Kind: PostTested, Cond: latch.Terminator(), Follow: latchOut}
	case headerExit && latchExit:
		// Duplicated condition: continuation check at the latch repeats
		// the header's exit test. Both must test the same relation over
		// the same operands; merely similar conditions stay irreducible
		// rather than risk an incorrect collapse.
		header, _ := g.Block(r.Header)
		latch, _ := g.Block(r.Latch)
		if cfg.CondEqual(header.Terminator(), latch.Terminator()) && headerOut == latchOut {
			return Shape{Kind: Unwrapped, Cond: header.Terminator(), Follow: headerOut}
		}
		return Shape{Kind: Irreducible, Follow: -1}
	default:
		// No exit test at header or latch; breaks from interior blocks
		// only (or none at all).
		return Shape{Kind: Endless, Follow: endlessFollow(g, r)}
	}
}

// PrimedUnwrapped checks the other duplicated-condition placement: the
// priming test sits on the region's unique preheader, the continuation test
// at the latch. Returns the collapsed shape and true on a safe match.
func PrimedUnwrapped(g *cfg.Graph, r *Region) (Shape, bool) {
	latchExit, latchOut := exitOf(g, r, r.Latch)
	if !latchExit {
		return Shape{}, false
	}
	pre, ok := preheader(g, r)
	if !ok {
		return Shape{}, false
	}
	preBlock, _ := g.Block(pre)
	latch, _ := g.Block(r.Latch)
	if !cfg.CondEqual(preBlock.Terminator(), latch.Terminator()) {
		return Shape{}, false
	}
	// The priming test must fall out to the same place the loop exits to.
	for _, e := range g.Succs(pre) {
		if e.To == latchOut {
			return Shape{Kind: Unwrapped, Cond: latch.Terminator(), Follow: latchOut}, true
		}
	}
	return Shape{}, false
}

// preheader returns the single non-back predecessor of the header.
func preheader(g *cfg.Graph, r *Region) (cfg.BlockID, bool) {
	found := cfg.BlockID(-1)
	for _, e := range g.Preds(r.Header) {
		if r.Contains(e.From) {
			continue
		}
		if found >= 0 {
			return -1, false
		}
		found = e.From
	}
	return found, found >= 0
}

// exitOf reports whether block id has an edge leaving the region, and the
// first such target.
func exitOf(g *cfg.Graph, r *Region, id cfg.BlockID) (bool, cfg.BlockID) {
	for _, e := range g.Succs(id) {
		if !r.Contains(e.To) {
			return true, e.To
		}
	}
	return false, -1
}

// endlessFollow picks the lowest-numbered block targeted by a break out of
// an endless loop, if any.
func endlessFollow(g *cfg.Graph, r *Region) cfg.BlockID {
	follow := cfg.BlockID(-1)
	best := int(^uint(0) >> 1)
	for _, e := range r.Exits {
		if o := g.Order(e.To); o < best {
			best = o
			follow = e.To
		}
	}
	return follow
}
