package tree

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/liftback/restruct/cfg"
	"github.com/liftback/restruct/idiom"
	"github.com/liftback/restruct/loop"
)

// Input carries the analysis results the builder consumes: a reduced
// graph, its loop regions innermost first, the shape computed for each
// region keyed by header, and the idiom matches to substitute.
type Input struct {
	Graph   *cfg.Graph
	Regions []*loop.Region
	Shapes  map[cfg.BlockID]loop.Shape
	Idioms  []*idiom.Match
}

// Build folds the graph into a structured tree. Scopes and straight-line
// idioms collapse first, then loop regions innermost first, then the
// remaining acyclic graph. Irreducible regions collapse to a loop node at
// the header; their side entries and internal transfers stay as Goto
// nodes.
func Build(in Input) (*Node, error) {
	b := newBuilder(in.Graph)

	for _, m := range deepestFirst(in.Idioms) {
		switch {
		case m.Wind != nil:
			b.collapseScope(m, in.Regions)
		case m.Growth != nil:
			b.collapseIdiom(m)
		}
	}
	for _, r := range in.Regions {
		if b.gone[r.Header] {
			continue
		}
		b.collapseRegion(r, in.Shapes[r.Header], regionIdiom(in.Idioms, r))
	}

	kids := b.seq(b.entry, -1, nil, make(map[cfg.BlockID]bool))
	if len(kids) == 0 {
		return nil, errors.New("structuring produced an empty tree")
	}
	if len(kids) == 1 {
		return kids[0], nil
	}
	return &Node{Kind: Sequence, Kids: kids}, nil
}

// builder is the mutable node graph the collapses operate on. succs keeps
// branch arm order: for a block with a condition, succs[0] is the true
// target and succs[1] the false target.
type builder struct {
	g     *cfg.Graph
	entry cfg.BlockID
	nodes map[cfg.BlockID]*Node
	succs map[cfg.BlockID][]cfg.BlockID
	cond  map[cfg.BlockID]*cfg.Stmt
	gone  map[cfg.BlockID]bool
}

func newBuilder(g *cfg.Graph) *builder {
	b := &builder{
		g:     g,
		entry: g.Entry(),
		nodes: make(map[cfg.BlockID]*Node, g.Len()),
		succs: make(map[cfg.BlockID][]cfg.BlockID, g.Len()),
		cond:  make(map[cfg.BlockID]*cfg.Stmt),
		gone:  make(map[cfg.BlockID]bool),
	}
	for _, blk := range g.Blocks() {
		stmts := blk.Stmts
		if t := blk.Terminator(); t != nil && t.IsBranch() {
			stmts = stmts[:len(stmts)-1]
			b.cond[blk.ID] = t
			tEdge, _ := g.SuccTo(blk.ID, cfg.BranchTrue)
			fEdge, _ := g.SuccTo(blk.ID, cfg.BranchFalse)
			b.succs[blk.ID] = []cfg.BlockID{tEdge.To, fEdge.To}
		} else {
			for _, e := range g.Succs(blk.ID) {
				b.succs[blk.ID] = append(b.succs[blk.ID], e.To)
			}
		}
		b.nodes[blk.ID] = &Node{Kind: BasicBlock, Block: blk.ID, Stmts: stmts}
	}
	return b
}

// collapse replaces the blocks of set by a single node kept under the id
// keep. Edges into the set are redirected to keep; the collapsed node
// continues at follow, or falls off when follow is negative.
func (b *builder) collapse(set map[cfg.BlockID]bool, keep cfg.BlockID, n *Node, follow cfg.BlockID) {
	for id := range set {
		if id != keep {
			b.gone[id] = true
			delete(b.nodes, id)
			delete(b.succs, id)
			delete(b.cond, id)
		}
	}
	b.nodes[keep] = n
	delete(b.cond, keep)
	if follow >= 0 && !set[follow] {
		b.succs[keep] = []cfg.BlockID{follow}
	} else {
		b.succs[keep] = nil
	}
	for id, ss := range b.succs {
		if id == keep {
			continue
		}
		for i, s := range ss {
			if set[s] {
				ss[i] = keep
			}
		}
	}
}

// externals returns the distinct targets of edges leaving set, ascending.
func (b *builder) externals(set map[cfg.BlockID]bool) []cfg.BlockID {
	seen := make(map[cfg.BlockID]bool)
	for id := range set {
		for _, s := range b.succs[id] {
			if !set[s] {
				seen[s] = true
			}
		}
	}
	out := make([]cfg.BlockID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func liveSet(b *builder, ids []cfg.BlockID) map[cfg.BlockID]bool {
	set := make(map[cfg.BlockID]bool, len(ids))
	for _, id := range ids {
		if !b.gone[id] {
			set[id] = true
		}
	}
	return set
}

// collapseIdiom folds a straight-line idiom match into one opaque node.
// Matches whose blocks have several distinct exits are left in place.
func (b *builder) collapseIdiom(m *idiom.Match) {
	set := liveSet(b, m.Blocks)
	if len(set) != len(m.Blocks) {
		return
	}
	ext := b.externals(set)
	if len(ext) > 1 {
		return
	}
	follow := cfg.BlockID(-1)
	if len(ext) == 1 {
		follow = ext[0]
	}
	b.collapse(set, m.Blocks[0], &Node{Kind: IdiomOp, Block: m.Blocks[0], Idiom: m}, follow)
}

// collapseScope wraps a wind region in a Scope node. A scope overlapping a
// loop region is left unwrapped; the loop collapse owns those blocks.
func (b *builder) collapseScope(m *idiom.Match, regions []*loop.Region) {
	set := liveSet(b, m.Blocks)
	if len(set) != len(m.Blocks) {
		return
	}
	for _, r := range regions {
		for _, id := range r.Blocks() {
			if set[id] {
				return
			}
		}
	}
	ext := b.externals(set)
	follow := cfg.BlockID(-1)
	if len(ext) == 1 {
		follow = ext[0]
	}
	entry := m.Blocks[0]
	for _, id := range m.Blocks {
		if hasExternalPred(b, set, id) {
			entry = id
			break
		}
	}
	kids := b.seq(entry, follow, set, make(map[cfg.BlockID]bool))
	b.collapse(set, entry, &Node{Kind: Scope, Block: entry, Depth: m.Wind.Depth, Kids: kids}, follow)
}

func hasExternalPred(b *builder, set map[cfg.BlockID]bool, id cfg.BlockID) bool {
	for from, ss := range b.succs {
		if set[from] {
			continue
		}
		for _, s := range ss {
			if s == id {
				return true
			}
		}
	}
	return false
}

// collapseRegion folds one loop region into a single node according to its
// shape. When an idiom match covers the whole region the idiom node stands
// in for the loop.
func (b *builder) collapseRegion(r *loop.Region, shape loop.Shape, m *idiom.Match) {
	if shape.Kind == loop.Irreducible {
		b.collapseIrreducible(r)
		return
	}
	set := liveSet(b, r.Blocks())
	follow := shape.Follow
	if follow >= 0 && set[follow] {
		follow = -1
	}

	if m != nil {
		b.collapse(set, r.Header, &Node{Kind: IdiomOp, Block: r.Header, Idiom: m}, follow)
		return
	}

	header := r.Header
	if shape.Kind == loop.PostTested || shape.Kind == loop.Unwrapped {
		// The latch terminator is the continuation test the loop node
		// already carries.
		delete(b.cond, r.Latch)
		b.succs[r.Latch] = nil
	}
	var n *Node
	switch shape.Kind {
	case loop.PreTested, loop.Unwrapped:
		kids := b.headerPayload(header)
		if body, ok := b.inRegionSucc(header, set); ok {
			kids = append(kids, b.seq(body, header, set, map[cfg.BlockID]bool{header: true})...)
		}
		n = &Node{Kind: While, Block: header, Cond: shape.Cond, Kids: kids}
	case loop.PostTested:
		kids := b.seq(header, -1, set, make(map[cfg.BlockID]bool))
		n = &Node{Kind: DoWhile, Block: header, Cond: shape.Cond, Kids: kids}
	default: // Endless
		kids := b.seq(header, -1, set, make(map[cfg.BlockID]bool))
		n = &Node{Kind: LoopBrk, Block: header, Kids: kids}
	}
	b.collapse(set, header, n, follow)
	if shape.Kind == loop.Unwrapped {
		b.foldPriming(header, shape)
	}
}

// collapseIrreducible wraps a cycle no loop shape fits in a bare loop
// node. Only the header keeps a tree position; entries bypassing it and
// transfers back into the cycle surface as Goto nodes.
func (b *builder) collapseIrreducible(r *loop.Region) {
	set := liveSet(b, r.Blocks())
	header := r.Header
	kids := b.seq(header, -1, set, make(map[cfg.BlockID]bool))
	for id := range set {
		if id != header {
			b.gone[id] = true
			delete(b.nodes, id)
			delete(b.succs, id)
			delete(b.cond, id)
		}
	}
	b.nodes[header] = &Node{Kind: LoopBrk, Block: header, Kids: kids}
	delete(b.cond, header)
	b.succs[header] = nil
}

// foldPriming removes priming tests in front of an unwrapped loop: a
// predecessor branching on the loop condition, with its false arm on the
// loop's follow, is redundant once the while re-tests on entry. Candidates
// fold in ascending block order.
func (b *builder) foldPriming(header cfg.BlockID, shape loop.Shape) {
	ids := make([]cfg.BlockID, 0, len(b.cond))
	for id := range b.cond {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		c := b.cond[id]
		if c == nil || !cfg.CondEqual(c, shape.Cond) {
			continue
		}
		ss := b.succs[id]
		if len(ss) != 2 || ss[0] != header || ss[1] != shape.Follow {
			continue
		}
		delete(b.cond, id)
		b.succs[id] = []cfg.BlockID{header}
	}
}

// headerPayload surfaces statements the header runs before its exit test.
func (b *builder) headerPayload(header cfg.BlockID) []*Node {
	hn := b.nodes[header]
	if hn.Kind == BasicBlock && len(hn.Stmts) > 0 {
		return []*Node{hn}
	}
	if hn.Kind != BasicBlock {
		return []*Node{hn}
	}
	return nil
}

// inRegionSucc picks the header successor inside the region.
func (b *builder) inRegionSucc(header cfg.BlockID, set map[cfg.BlockID]bool) (cfg.BlockID, bool) {
	for _, s := range b.succs[header] {
		if set[s] && s != header {
			return s, true
		}
	}
	return -1, false
}

// seq linearises the node graph from cur until stop, the edge of `in`, or
// a terminal node. Conditionals recurse into both arms up to their meet
// point. A revisited block or a transfer leaving `in` becomes a Goto.
func (b *builder) seq(cur, stop cfg.BlockID, in map[cfg.BlockID]bool, visited map[cfg.BlockID]bool) []*Node {
	var out []*Node
	for cur >= 0 && cur != stop {
		if in != nil && !in[cur] {
			out = append(out, &Node{Kind: Goto, Block: cur})
			return out
		}
		if visited[cur] || b.gone[cur] {
			out = append(out, &Node{Kind: Goto, Block: cur})
			return out
		}
		visited[cur] = true

		n := b.nodes[cur]
		c := b.cond[cur]
		ss := b.succs[cur]
		if c == nil || len(ss) != 2 {
			out = append(out, n)
			if len(ss) != 1 {
				return out
			}
			cur = ss[0]
			continue
		}

		if n.Kind != BasicBlock || len(n.Stmts) > 0 {
			out = append(out, n)
		}
		t, f := ss[0], ss[1]
		if t == f {
			cur = t
			continue
		}
		join := b.meet(t, f, stop, in, visited)
		thenKids := b.armSeq(t, join, stop, in, visited)
		elseKids := b.armSeq(f, join, stop, in, visited)
		out = append(out, &Node{
			Kind: IfElse,
			Cond: c,
			Kids: []*Node{
				{Kind: Sequence, Kids: thenKids},
				{Kind: Sequence, Kids: elseKids},
			},
		})
		cur = join
	}
	return out
}

func (b *builder) armSeq(arm, join, stop cfg.BlockID, in map[cfg.BlockID]bool, visited map[cfg.BlockID]bool) []*Node {
	if arm == join {
		return nil
	}
	armStop := join
	if armStop < 0 {
		armStop = stop
	}
	return b.seq(arm, armStop, in, visited)
}

// meet finds the block both branch arms reach first: the common reachable
// block with the lowest traversal order, or -1 when the arms never rejoin.
func (b *builder) meet(t, f, stop cfg.BlockID, in map[cfg.BlockID]bool, visited map[cfg.BlockID]bool) cfg.BlockID {
	rt := b.reach(t, stop, in, visited)
	rf := b.reach(f, stop, in, visited)
	best := cfg.BlockID(-1)
	bestOrder := int(^uint(0) >> 1)
	for id := range rt {
		if !rf[id] {
			continue
		}
		if o := b.g.Order(id); o < bestOrder {
			bestOrder = o
			best = id
		}
	}
	return best
}

func (b *builder) reach(from, stop cfg.BlockID, in map[cfg.BlockID]bool, visited map[cfg.BlockID]bool) map[cfg.BlockID]bool {
	seen := make(map[cfg.BlockID]bool)
	stack := []cfg.BlockID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id < 0 || id == stop || seen[id] || visited[id] || b.gone[id] {
			continue
		}
		if in != nil && !in[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, b.succs[id]...)
	}
	return seen
}

// deepestFirst orders idiom matches so nested wind scopes collapse before
// the scopes containing them.
func deepestFirst(ms []*idiom.Match) []*idiom.Match {
	out := append([]*idiom.Match(nil), ms...)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := 0, 0
		if out[i].Wind != nil {
			di = out[i].Wind.Depth
		}
		if out[j].Wind != nil {
			dj = out[j].Wind.Depth
		}
		return di > dj
	})
	return out
}

// regionIdiom returns the idiom match covering exactly the region, if any.
func regionIdiom(ms []*idiom.Match, r *loop.Region) *idiom.Match {
	blocks := r.Blocks()
	for _, m := range ms {
		if m.Spin == nil || len(m.Blocks) != len(blocks) {
			continue
		}
		same := true
		for i := range blocks {
			if m.Blocks[i] != blocks[i] {
				same = false
			}
		}
		if same {
			return m
		}
	}
	return nil
}
