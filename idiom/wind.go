package idiom

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/liftback/restruct/cfg"
)

// matchWind finds protected regions from the lifter's wind annotations. For
// every wind depth present, each connected group of blocks at or above that
// depth must be entered exactly once and left exactly once; the group is
// reported as a scope marker of that exact depth. Depth d+1 groups nest
// inside depth d groups and are never flattened together.
func matchWind(g *cfg.Graph, p Pattern) ([]*Match, error) {
	maxDepth := 0
	for _, b := range g.Blocks() {
		if b.Wind > maxDepth {
			maxDepth = b.Wind
		}
	}
	var ms []*Match
	var firstErr error
	for d := 1; d <= maxDepth; d++ {
		for _, comp := range components(g, d) {
			entries, exits := 0, 0
			for _, id := range comp {
				for _, e := range g.Preds(id) {
					if !inComp(comp, e.From) {
						entries++
					}
				}
				for _, e := range g.Succs(id) {
					if !inComp(comp, e.To) {
						exits++
					}
				}
			}
			if entries != 1 || exits != 1 {
				if firstErr == nil {
					firstErr = errors.Wrapf(ErrPartialMatch,
						"wind depth %d region at block %d entered %d times, exited %d times",
						d, comp[0], entries, exits)
				}
				continue
			}
			ms = append(ms, &Match{
				Kind:    ProtectedRegion,
				Pattern: p.Name,
				Blocks:  comp,
				Wind:    &WindParams{Depth: d},
			})
		}
	}
	return ms, firstErr
}

// components groups blocks with Wind >= d into connected subgraphs,
// returned with ascending ids, smallest leading id first.
func components(g *cfg.Graph, d int) [][]cfg.BlockID {
	member := make(map[cfg.BlockID]bool)
	for _, b := range g.Blocks() {
		if b.Wind >= d {
			member[b.ID] = true
		}
	}
	visited := make(map[cfg.BlockID]bool)
	var comps [][]cfg.BlockID
	for _, id := range sortedIDs(member) {
		if visited[id] {
			continue
		}
		var comp []cfg.BlockID
		stack := []cfg.BlockID{id}
		visited[id] = true
		for len(stack) > 0 {
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, b)
			for _, e := range g.Succs(b) {
				if member[e.To] && !visited[e.To] {
					visited[e.To] = true
					stack = append(stack, e.To)
				}
			}
			for _, e := range g.Preds(b) {
				if member[e.From] && !visited[e.From] {
					visited[e.From] = true
					stack = append(stack, e.From)
				}
			}
		}
		sort.Slice(comp, func(i, j int) bool { return comp[i] < comp[j] })
		comps = append(comps, comp)
	}
	return comps
}

func inComp(comp []cfg.BlockID, id cfg.BlockID) bool {
	for _, c := range comp {
		if c == id {
			return true
		}
	}
	return false
}
