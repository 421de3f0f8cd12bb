package dom

import (
	"golang.org/x/tools/container/intsets"

	"github.com/liftback/restruct/cfg"
)

// Info is the dominance information of one graph: immediate dominators,
// dominance frontiers and back edges. Read-only once computed.
type Info struct {
	g        *cfg.Graph
	idom     map[cfg.BlockID]cfg.BlockID
	frontier map[cfg.BlockID]*intsets.Sparse
}

// Analyse computes dominance information for g. It is deterministic and
// total for any graph with a single reachable entry.
func Analyse(g *cfg.Graph) *Info {
	info := &Info{
		g:        g,
		idom:     make(map[cfg.BlockID]cfg.BlockID, g.Len()),
		frontier: make(map[cfg.BlockID]*intsets.Sparse, g.Len()),
	}
	info.buildTree()
	info.buildFrontiers()
	return info
}

// buildTree iterates the dominator relation to a fixed point over blocks in
// reverse post-order.
func (i *Info) buildTree() {
	entry := i.g.Entry()
	i.idom[entry] = entry
	order := i.g.Blocks()
	for changed := true; changed; {
		changed = false
		for _, b := range order {
			if b.ID == entry {
				continue
			}
			// First processed predecessor seeds the intersection.
			newIdom := cfg.BlockID(-1)
			for _, e := range i.g.Preds(b.ID) {
				if _, ok := i.idom[e.From]; !ok {
					continue
				}
				if newIdom < 0 {
					newIdom = e.From
				} else {
					newIdom = i.intersect(newIdom, e.From)
				}
			}
			if newIdom < 0 {
				continue
			}
			if old, ok := i.idom[b.ID]; !ok || old != newIdom {
				i.idom[b.ID] = newIdom
				changed = true
			}
		}
	}
}

// intersect walks up the dominator tree to the closest common dominator.
func (i *Info) intersect(a, b cfg.BlockID) cfg.BlockID {
	for a != b {
		for i.g.Order(a) > i.g.Order(b) {
			a = i.idom[a]
		}
		for i.g.Order(b) > i.g.Order(a) {
			b = i.idom[b]
		}
	}
	return a
}

// buildFrontiers computes dominance frontiers with the standard two-level
// walk from each join point up to its immediate dominator.
func (i *Info) buildFrontiers() {
	for _, b := range i.g.Blocks() {
		i.frontier[b.ID] = new(intsets.Sparse)
	}
	for _, b := range i.g.Blocks() {
		preds := i.g.Preds(b.ID)
		if len(preds) < 2 {
			continue
		}
		idom := i.idom[b.ID]
		for _, e := range preds {
			for runner := e.From; runner != idom; runner = i.idom[runner] {
				i.frontier[runner].Insert(int(b.ID))
				if runner == i.idom[runner] {
					break
				}
			}
		}
	}
}

// Idom returns the immediate dominator of b. The entry block is its own
// immediate dominator.
func (i *Info) Idom(b cfg.BlockID) cfg.BlockID { return i.idom[b] }

// Dominates reports whether a dominates b (reflexively).
func (i *Info) Dominates(a, b cfg.BlockID) bool {
	for {
		if a == b {
			return true
		}
		next, ok := i.idom[b]
		if !ok || next == b {
			return false
		}
		b = next
	}
}

// Frontier returns the dominance frontier of b in ascending block order.
func (i *Info) Frontier(b cfg.BlockID) []cfg.BlockID {
	s, ok := i.frontier[b]
	if !ok {
		return nil
	}
	ids := make([]cfg.BlockID, 0, s.Len())
	for _, x := range s.AppendTo(nil) {
		ids = append(ids, cfg.BlockID(x))
	}
	return ids
}

// BackEdges returns every edge (u,v) where v dominates u, in graph edge
// order.
func (i *Info) BackEdges() []cfg.Edge {
	var backs []cfg.Edge
	for _, e := range i.g.Edges() {
		if i.Dominates(e.To, e.From) {
			backs = append(backs, e)
		}
	}
	return backs
}
