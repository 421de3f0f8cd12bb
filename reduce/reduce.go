package reduce

import (
	"fmt"
	"sort"

	"github.com/liftback/restruct/cfg"
	"github.com/liftback/restruct/loop"
)

// maxDispatchConst bounds the literals a control variable may be written
// to. Flattened dispatch machines use tiny state numbers (0, 1, 2).
const maxDispatchConst = 7

// Unresolved reports a control-variable candidate left in place.
type Unresolved struct {
	Var    string
	Header cfg.BlockID
	Reason string
}

func (u Unresolved) String() string {
	return fmt.Sprintf("control variable %q in region %d left unreduced: %s", u.Var, u.Header, u.Reason)
}

// Outcome is the result of reduction over one graph.
type Outcome struct {
	Graph      *cfg.Graph // rewritten copy; the input graph is untouched
	Eliminated []string
	Unresolved []Unresolved
	Changed    bool
}

// Apply reduces control variables in every region of g. The input graph is
// never mutated; callers re-derive dominance and regions from the returned
// graph when Changed is set.
func Apply(g *cfg.Graph, regions []*loop.Region) *Outcome {
	out := &Outcome{Graph: g}
	work := g
	for _, r := range regions {
		if r.Irreducible {
			continue
		}
		for _, v := range candidates(work, r) {
			cloned := work.Clone()
			if reason := reduceVar(cloned, r, v); reason != "" {
				out.Unresolved = append(out.Unresolved, Unresolved{Var: v, Header: r.Header, Reason: reason})
				continue
			}
			work = cloned
			out.Eliminated = append(out.Eliminated, v)
			out.Changed = true
		}
	}
	out.Graph = work
	return out
}

// candidates returns locals whose writes are all small literal assignments
// and whose reads are all branch predicates inside the region body, sorted
// for determinism.
func candidates(g *cfg.Graph, r *loop.Region) []string {
	type usage struct {
		litWrites  int
		badWrites  int
		dispatches int // branch reads inside the region
		badReads   int // any other read, or a read outside the region
	}
	seen := make(map[string]*usage)
	use := func(v string) *usage {
		u, ok := seen[v]
		if !ok {
			u = &usage{}
			seen[v] = u
		}
		return u
	}
	for _, b := range g.Blocks() {
		inRegion := r.Contains(b.ID)
		for si := range b.Stmts {
			s := &b.Stmts[si]
			if s.Dst != "" {
				if s.Class == cfg.OpAssign && s.Args[0].IsLit() && small(*s.Args[0].Lit) {
					use(s.Dst).litWrites++
				} else {
					use(s.Dst).badWrites++
				}
			}
			for _, v := range s.Reads() {
				if s.IsBranch() && inRegion {
					use(v).dispatches++
				} else {
					use(v).badReads++
				}
			}
		}
	}
	var vars []string
	for v, u := range seen {
		if u.litWrites > 0 && u.badWrites == 0 && u.dispatches > 0 && u.badReads == 0 {
			vars = append(vars, v)
		}
	}
	sort.Strings(vars)
	return vars
}

func small(v int64) bool { return v >= 0 && v <= maxDispatchConst }

// reduceVar rewrites g in place to remove variable v from region r. It
// returns a non-empty reason when any read site cannot be resolved, in
// which case g must be discarded.
func reduceVar(g *cfg.Graph, r *loop.Region, v string) string {
	// Every read site must be a pure dispatch block: a single two-way
	// branch comparing v against a literal.
	dispatch := make(map[cfg.BlockID]bool)
	for _, id := range r.Blocks() {
		b, ok := g.Block(id)
		if !ok {
			continue
		}
		term := b.Terminator()
		if term == nil || !readsVar(term, v) {
			continue
		}
		if _, ok := branchLiteral(term, v); !ok {
			return "dispatch test is not a comparison against a literal"
		}
		if len(b.Stmts) != 1 {
			return "dispatch block has side effects"
		}
		if _, ok := g.SuccTo(id, cfg.BranchTrue); !ok {
			return "dispatch block lacks a two-way branch"
		}
		if _, ok := g.SuccTo(id, cfg.BranchFalse); !ok {
			return "dispatch block lacks a two-way branch"
		}
		dispatch[id] = true
	}
	if len(dispatch) == 0 {
		return "no resolvable read sites"
	}

	// Resolve each external entry into the dispatch machinery to the block
	// control eventually reaches. Dispatch blocks are pure, so v is
	// constant across a chain of them.
	type redirect struct {
		pred, dispatch, target cfg.BlockID
	}
	var redirects []redirect
	ids := make([]cfg.BlockID, 0, len(dispatch))
	for id := range dispatch {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		for _, pe := range g.Preds(id) {
			if dispatch[pe.From] {
				continue // dies with its source block
			}
			val, reason := valueOnEdge(g, v, pe, make(map[cfg.BlockID]bool))
			if reason != "" {
				return reason
			}
			target := id
			for dispatch[target] {
				b, _ := g.Block(target)
				term := b.Terminator()
				lit, _ := branchLiteral(term, v)
				kind := cfg.BranchFalse
				if cfg.EvalRel(term.Op, val, lit) {
					kind = cfg.BranchTrue
				}
				e, _ := g.SuccTo(target, kind)
				target = e.To
			}
			redirects = append(redirects, redirect{pred: pe.From, dispatch: id, target: target})
		}
	}

	for _, rd := range redirects {
		g.Redirect(rd.pred, rd.dispatch, rd.target)
	}
	// Chained dispatch blocks keep each other alive until their
	// predecessors go; iterate to a fixed point.
	for removed := true; removed; {
		removed = false
		for _, id := range ids {
			if _, ok := g.Block(id); !ok {
				continue
			}
			g.RemoveBlock(id)
			if _, ok := g.Block(id); !ok {
				removed = true
			}
		}
	}
	for _, id := range ids {
		if _, ok := g.Block(id); ok {
			return "dispatch block still reachable after rewrite"
		}
	}
	deleteWrites(g, v)
	return ""
}

// valueOnEdge resolves the constant carried by v along edge e: the last
// literal write in the source block, otherwise the merge of the source
// block's own incoming edges. A revisited block or a path reaching entry
// without a write fails the resolution.
func valueOnEdge(g *cfg.Graph, v string, e cfg.Edge, visiting map[cfg.BlockID]bool) (int64, string) {
	b, ok := g.Block(e.From)
	if !ok {
		return 0, "dispatch predecessor vanished"
	}
	for i := len(b.Stmts) - 1; i >= 0; i-- {
		s := &b.Stmts[i]
		if s.Class == cfg.OpAssign && s.Dst == v {
			return *s.Args[0].Lit, ""
		}
	}
	if visiting[b.ID] {
		return 0, fmt.Sprintf("cyclic definition of %q", v)
	}
	preds := g.Preds(b.ID)
	if len(preds) == 0 {
		return 0, fmt.Sprintf("%q may be read before any write", v)
	}
	visiting[b.ID] = true
	defer delete(visiting, b.ID)
	var val int64
	for i, pe := range preds {
		pv, reason := valueOnEdge(g, v, pe, visiting)
		if reason != "" {
			return 0, reason
		}
		if i == 0 {
			val = pv
		} else if pv != val {
			return 0, fmt.Sprintf("%q carries conflicting constants at a join", v)
		}
	}
	return val, ""
}

// branchLiteral extracts the literal a branch compares v against.
func branchLiteral(term *cfg.Stmt, v string) (int64, bool) {
	if len(term.Args) != 2 {
		return 0, false
	}
	if term.Args[0].Local == v && term.Args[1].IsLit() {
		return *term.Args[1].Lit, true
	}
	return 0, false
}

func readsVar(s *cfg.Stmt, v string) bool {
	for _, r := range s.Reads() {
		if r == v {
			return true
		}
	}
	return false
}

// deleteWrites removes every literal assignment to v once no reads remain.
func deleteWrites(g *cfg.Graph, v string) {
	for _, b := range g.Blocks() {
		kept := b.Stmts[:0]
		for _, s := range b.Stmts {
			if s.Class == cfg.OpAssign && s.Dst == v {
				continue
			}
			kept = append(kept, s)
		}
		b.Stmts = kept
	}
}
