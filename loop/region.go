package loop

import (
	"sort"

	"golang.org/x/tools/container/intsets"

	"github.com/liftback/restruct/cfg"
	"github.com/liftback/restruct/dom"
)

// Region is a loop region: a header, the block set it dominates and loops
// over, the back edges targeting the header, and the edges leaving the
// body. Exactly one region exists per distinct header.
type Region struct {
	Header    cfg.BlockID
	Latch     cfg.BlockID // source of the back edge
	Body      *intsets.Sparse
	BackEdges []cfg.Edge
	Exits     []cfg.Edge

	// Irreducible marks regions with no single dominating header
	// consistent with the back-edge structure, or regions overlapping
	// without nesting.
	Irreducible bool

	Depth  int // nesting depth, 0 = outermost
	parent *Region
}

// Contains reports whether the region body contains the block.
func (r *Region) Contains(id cfg.BlockID) bool { return r.Body.Has(int(id)) }

// Parent returns the innermost enclosing region, or nil.
func (r *Region) Parent() *Region { return r.parent }

// Blocks returns the body block ids in ascending order.
func (r *Region) Blocks() []cfg.BlockID {
	ids := make([]cfg.BlockID, 0, r.Body.Len())
	for _, x := range r.Body.AppendTo(nil) {
		ids = append(ids, cfg.BlockID(x))
	}
	return ids
}

// Regions identifies the loop regions of g. The returned slice is ordered
// innermost-first (deepest nesting first, ties by header order), the order
// the tree builder consumes regions in. All back edges sharing a target
// belong to one region; Latch is the highest-numbered back edge source.
func Regions(g *cfg.Graph, info *dom.Info) []*Region {
	byHeader := make(map[cfg.BlockID]*Region)
	var headers []cfg.BlockID

	for _, e := range info.BackEdges() {
		r, ok := byHeader[e.To]
		if !ok {
			r = &Region{Header: e.To, Latch: e.From, Body: new(intsets.Sparse)}
			byHeader[e.To] = r
			headers = append(headers, e.To)
		}
		r.BackEdges = append(r.BackEdges, e)
		if g.Order(e.From) > g.Order(r.Latch) {
			r.Latch = e.From
		}
	}

	for _, h := range headers {
		r := byHeader[h]
		naturalBody(g, r)
		collectExits(g, r)
	}

	regions := make([]*Region, 0, len(headers)+2)
	for _, h := range headers {
		regions = append(regions, byHeader[h])
	}
	regions = append(regions, retreatingRegions(g, info, byHeader)...)

	markOverlap(regions)
	nest(regions)

	sort.Slice(regions, func(i, j int) bool {
		if regions[i].Depth != regions[j].Depth {
			return regions[i].Depth > regions[j].Depth
		}
		return g.Order(regions[i].Header) < g.Order(regions[j].Header)
	})
	return regions
}

// Validate checks the canonical region invariants once dispatch noise has
// been reduced away: a reducible header must have in-degree at least 2 and
// exactly one back edge consistent with the dominator tree. Violations are
// malformed input, not a degradation.
func Validate(g *cfg.Graph, r *Region) error {
	if r.Irreducible {
		return nil
	}
	if len(r.BackEdges) != 1 {
		return &cfg.MalformedGraphError{Reason: "loop header with multiple back edges", Block: r.Header}
	}
	if len(g.Preds(r.Header)) < 2 {
		return &cfg.MalformedGraphError{Reason: "loop header in-degree below 2", Block: r.Header}
	}
	return nil
}

// naturalBody fills r.Body with the natural loop of the back edges: the
// header plus every block that reaches a latch without passing through the
// header.
func naturalBody(g *cfg.Graph, r *Region) {
	r.Body.Insert(int(r.Header))
	var stack []cfg.BlockID
	for _, e := range r.BackEdges {
		if !r.Contains(e.From) {
			r.Body.Insert(int(e.From))
			stack = append(stack, e.From)
		}
	}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.Preds(b) {
			if !r.Contains(e.From) {
				r.Body.Insert(int(e.From))
				stack = append(stack, e.From)
			}
		}
	}
}

func collectExits(g *cfg.Graph, r *Region) {
	for _, id := range r.Blocks() {
		for _, e := range g.Succs(id) {
			if !r.Contains(e.To) {
				r.Exits = append(r.Exits, e)
			}
		}
	}
}

// retreatingRegions builds irreducible regions from retreating edges whose
// target does not dominate their source (multi-entry cycles leave no
// dominance back edge).
func retreatingRegions(g *cfg.Graph, info *dom.Info, byHeader map[cfg.BlockID]*Region) []*Region {
	var regions []*Region
	for _, e := range g.Edges() {
		if g.Order(e.To) > g.Order(e.From) || info.Dominates(e.To, e.From) {
			continue
		}
		if _, ok := byHeader[e.To]; ok {
			continue
		}
		r := &Region{Header: e.To, Latch: e.From, Body: new(intsets.Sparse), Irreducible: true}
		r.BackEdges = append(r.BackEdges, e)
		sccBody(g, r)
		collectExits(g, r)
		byHeader[e.To] = r
		regions = append(regions, r)
	}
	return regions
}

// sccBody fills r.Body with the strongly connected component of the
// header: the intersection of the blocks reachable from it and the blocks
// that reach it. The header of a multi-entry cycle does not dominate the
// cycle, so the natural loop construction does not apply.
func sccBody(g *cfg.Graph, r *Region) {
	fwd := reach(r.Header, func(id cfg.BlockID) []cfg.Edge { return g.Succs(id) }, func(e cfg.Edge) cfg.BlockID { return e.To })
	bwd := reach(r.Header, func(id cfg.BlockID) []cfg.Edge { return g.Preds(id) }, func(e cfg.Edge) cfg.BlockID { return e.From })
	r.Body.Intersection(fwd, bwd)
	r.Body.Insert(int(r.Header))
}

func reach(from cfg.BlockID, edges func(cfg.BlockID) []cfg.Edge, next func(cfg.Edge) cfg.BlockID) *intsets.Sparse {
	seen := new(intsets.Sparse)
	stack := []cfg.BlockID{from}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range edges(b) {
			n := next(e)
			if seen.Insert(int(n)) {
				stack = append(stack, n)
			}
		}
	}
	return seen
}

// markOverlap marks every pair of regions that intersect without one
// nesting inside the other. Collapsing either of such a pair risks tearing
// the other, so both degrade to irreducible.
func markOverlap(regions []*Region) {
	for i := 0; i < len(regions); i++ {
		for j := i + 1; j < len(regions); j++ {
			a, b := regions[i], regions[j]
			if !a.Body.Intersects(b.Body) {
				continue
			}
			if a.Body.SubsetOf(b.Body) || b.Body.SubsetOf(a.Body) {
				continue // nested
			}
			a.Irreducible = true
			b.Irreducible = true
		}
	}
}

// nest computes parent links and nesting depth. The parent of a region is
// the smallest strictly-containing region.
func nest(regions []*Region) {
	for _, r := range regions {
		for _, cand := range regions {
			if cand == r || cand.Body.Len() <= r.Body.Len() {
				continue
			}
			if !containsAll(cand.Body, r.Body) {
				continue
			}
			if r.parent == nil || cand.Body.Len() < r.parent.Body.Len() {
				r.parent = cand
			}
		}
	}
	for _, r := range regions {
		for p := r.parent; p != nil; p = p.parent {
			r.Depth++
		}
	}
}

func containsAll(outer, inner *intsets.Sparse) bool {
	return inner.SubsetOf(outer)
}
