package idiom

import (
	"github.com/liftback/restruct/cfg"
)

// clamp is one conditional-move diamond: a compare of the growth variable,
// an assignment arm, and the join both arms fall into.
type clamp struct {
	relOp   string
	against cfg.Operand // operand compared against
	value   cfg.Operand // operand assigned when the compare holds
	assign  cfg.BlockID
	join    cfg.BlockID
}

// matchGrowth recognises the 1.5x capacity growth idiom starting at block
// id: new = old + old/2, clamped to the requested size first and to an
// absolute floor second, feeding one call with the sizes. The clamps must
// be applied in that order; reordering changes the result when the
// requested size is below the floor, so a floor-first shape does not match.
func matchGrowth(g *cfg.Graph, id cfg.BlockID, p Pattern) (*Match, error) {
	b, ok := g.Block(id)
	if !ok {
		return nil, nil
	}
	// old >> 1 followed by old + half within one block.
	var cur cfg.Operand
	var half, growth string
	for si := range b.Stmts {
		s := &b.Stmts[si]
		if s.Class != cfg.OpBinOp || len(s.Args) != 2 {
			continue
		}
		if s.Op == ">>" && isLit(s.Args[1], 1) {
			cur = s.Args[0]
			half = s.Dst
		}
		if s.Op == "+" && half != "" && s.Args[0].Equal(cur) && s.Args[1].Local == half {
			growth = s.Dst
		}
	}
	if growth == "" {
		return nil, nil
	}

	c1, ok := matchClamp(g, id, growth)
	if !ok {
		return nil, nil
	}
	// Clamp-to-requested raises to the compared operand itself.
	if !c1.value.Equal(c1.against) {
		return nil, nil
	}
	c2, ok := matchClamp(g, c1.join, growth)
	if !ok {
		return nil, nil
	}
	// Clamp-to-floor assigns a literal constant.
	floor, ok := c2.value.LitVal()
	if !ok {
		return nil, nil
	}

	// The grown size must feed a single call in the join block.
	call := ""
	jb, _ := g.Block(c2.join)
	for si := range jb.Stmts {
		s := &jb.Stmts[si]
		if s.Class == cfg.OpCall {
			for _, a := range s.Args {
				if a.Local == growth {
					call = s.Sym
				}
			}
		}
	}
	if call == "" {
		return nil, nil
	}

	gp := &GrowthParams{
		Multiplier: "1.5",
		Floor:      floor,
		Requested:  c1.against,
		Current:    cur,
		Call:       call,
	}
	// Evaluate the final size when both inputs are literal, applying the
	// clamps in observed order.
	if curV, ok := cur.LitVal(); ok {
		if reqV, ok := c1.against.LitVal(); ok {
			ns := curV + curV>>1
			if cfg.EvalRel(c1.relOp, ns, reqV) {
				ns = reqV
			}
			if testV, ok := c2.against.LitVal(); ok && cfg.EvalRel(c2.relOp, ns, testV) {
				ns = floor
			}
			gp.NewSize = &ns
		}
	}

	return &Match{
		Kind:    CapacityGrowth,
		Pattern: p.Name,
		Blocks:  []cfg.BlockID{id, c1.assign, c1.join, c2.assign, c2.join},
		Growth:  gp,
	}, nil
}

// matchClamp matches the diamond `if (v <rel> x) v = y` hanging off the
// terminator of block id: the true arm is a single assignment to v that
// falls into the false arm's target.
func matchClamp(g *cfg.Graph, id cfg.BlockID, v string) (clamp, bool) {
	b, ok := g.Block(id)
	if !ok {
		return clamp{}, false
	}
	term := b.Terminator()
	if term == nil || len(term.Args) != 2 || term.Args[0].Local != v {
		return clamp{}, false
	}
	tEdge, okT := g.SuccTo(id, cfg.BranchTrue)
	fEdge, okF := g.SuccTo(id, cfg.BranchFalse)
	if !okT || !okF {
		return clamp{}, false
	}
	arm, ok := g.Block(tEdge.To)
	if !ok || len(arm.Stmts) != 1 {
		return clamp{}, false
	}
	as := &arm.Stmts[0]
	if as.Class != cfg.OpAssign || as.Dst != v {
		return clamp{}, false
	}
	succs := g.Succs(arm.ID)
	if len(succs) != 1 || succs[0].To != fEdge.To {
		return clamp{}, false
	}
	return clamp{
		relOp:   term.Op,
		against: term.Args[1],
		value:   as.Args[0],
		assign:  arm.ID,
		join:    fEdge.To,
	}, true
}
