package cfg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// BlockID is the unique identifier of a basic block within one function.
type BlockID int

// EdgeKind classifies an edge of the control flow graph.
type EdgeKind int

const (
	Fallthrough EdgeKind = iota
	BranchTrue
	BranchFalse
	Jump
)

func (k EdgeKind) String() string {
	switch k {
	case Fallthrough:
		return "fallthrough"
	case BranchTrue:
		return "true"
	case BranchFalse:
		return "false"
	case Jump:
		return "jump"
	}
	return "unknown"
}

// Edge is a typed edge between two blocks.
type Edge struct {
	From BlockID  `json:"from" msgpack:"from" yaml:"from"`
	To   BlockID  `json:"to" msgpack:"to" yaml:"to"`
	Kind EdgeKind `json:"kind" msgpack:"kind" yaml:"kind"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%d -[%s]-> %d", e.From, e.Kind, e.To)
}

// Block is an ordered sequence of primitive statements with a unique id.
// Wind is the lifter's exception propagation depth annotation (0 = not part
// of a protected region).
type Block struct {
	ID    BlockID `json:"id" msgpack:"id" yaml:"id"`
	Stmts []Stmt  `json:"stmts,omitempty" msgpack:"stmts,omitempty" yaml:"stmts,omitempty"`
	Wind  int     `json:"wind,omitempty" msgpack:"wind,omitempty" yaml:"wind,omitempty"`
}

// Terminator returns the block's conditional terminator, or nil if the
// block does not end in a branch.
func (b *Block) Terminator() *Stmt {
	if len(b.Stmts) == 0 {
		return nil
	}
	if last := &b.Stmts[len(b.Stmts)-1]; last.IsBranch() {
		return last
	}
	return nil
}

var ErrNoEntry = errors.New("graph has no entry block")

// MalformedGraphError rejects a function whose descriptor violates the
// graph invariants. No partial graph is produced.
type MalformedGraphError struct {
	Reason string
	Block  BlockID
	Edge   *Edge
}

func (e *MalformedGraphError) Error() string {
	if e.Edge != nil {
		return fmt.Sprintf("malformed graph: %s: %s", e.Reason, e.Edge)
	}
	return fmt.Sprintf("malformed graph: %s: block %d", e.Reason, e.Block)
}

// Graph is the control flow graph of a single function. Blocks are owned
// exclusively by the graph; Load copies its inputs and never mutates them.
type Graph struct {
	entry  BlockID
	blocks map[BlockID]*Block
	succs  map[BlockID][]Edge
	preds  map[BlockID][]Edge
	order  []BlockID       // reverse post-order
	num    map[BlockID]int // reverse post-order numbering
}

// Load builds and validates a Graph from a block and edge list. Dangling
// edges, blocks unreachable from entry, and blocks whose terminator
// disagrees with their edge kinds are rejected with MalformedGraphError.
func Load(entry BlockID, blocks []*Block, edges []Edge) (*Graph, error) {
	g := &Graph{
		entry:  entry,
		blocks: make(map[BlockID]*Block, len(blocks)),
		succs:  make(map[BlockID][]Edge),
		preds:  make(map[BlockID][]Edge),
	}
	for _, b := range blocks {
		if _, exists := g.blocks[b.ID]; exists {
			return nil, &MalformedGraphError{Reason: "duplicate block id", Block: b.ID}
		}
		cp := &Block{ID: b.ID, Wind: b.Wind, Stmts: append([]Stmt(nil), b.Stmts...)}
		g.blocks[b.ID] = cp
	}
	if _, ok := g.blocks[entry]; !ok {
		return nil, &MalformedGraphError{Reason: "missing entry block", Block: entry}
	}
	for _, e := range edges {
		e := e
		if _, ok := g.blocks[e.From]; !ok {
			return nil, &MalformedGraphError{Reason: "dangling edge source", Edge: &e}
		}
		if _, ok := g.blocks[e.To]; !ok {
			return nil, &MalformedGraphError{Reason: "dangling edge target", Edge: &e}
		}
		g.succs[e.From] = append(g.succs[e.From], e)
		g.preds[e.To] = append(g.preds[e.To], e)
	}
	g.renumber()
	if len(g.order) != len(g.blocks) {
		for id := range g.blocks {
			if _, ok := g.num[id]; !ok {
				return nil, &MalformedGraphError{Reason: "unreachable block", Block: id}
			}
		}
	}
	// A branching block must carry exactly a true and a false edge, and
	// branch-kind edges must originate from a branching block.
	for _, id := range g.order {
		succs := g.succs[id]
		if g.blocks[id].Terminator() != nil {
			_, okT := g.SuccTo(id, BranchTrue)
			_, okF := g.SuccTo(id, BranchFalse)
			if !okT || !okF || len(succs) != 2 {
				return nil, &MalformedGraphError{Reason: "branch terminator without true and false successors", Block: id}
			}
			continue
		}
		for _, e := range succs {
			if e.Kind == BranchTrue || e.Kind == BranchFalse {
				e := e
				return nil, &MalformedGraphError{Reason: "branch edge without a branch terminator", Edge: &e}
			}
		}
	}
	return g, nil
}

// renumber recomputes the reverse post-order over blocks reachable from
// entry. Successor edges are visited in declaration order so numbering is
// deterministic.
func (g *Graph) renumber() {
	visited := make(map[BlockID]bool, len(g.blocks))
	var post []BlockID
	var dfs func(id BlockID)
	dfs = func(id BlockID) {
		visited[id] = true
		for _, e := range g.succs[id] {
			if !visited[e.To] {
				dfs(e.To)
			}
		}
		post = append(post, id)
	}
	dfs(g.entry)
	g.order = make([]BlockID, len(post))
	g.num = make(map[BlockID]int, len(post))
	for i, id := range post {
		rpo := len(post) - 1 - i
		g.order[rpo] = id
		g.num[id] = rpo
	}
}

// Entry returns the id of the entry block.
func (g *Graph) Entry() BlockID { return g.entry }

// Block returns the block with the given id. The boolean return value
// indicates whether the block exists.
func (g *Graph) Block(id BlockID) (*Block, bool) {
	b, ok := g.blocks[id]
	return b, ok
}

// Blocks returns all blocks in reverse post-order.
func (g *Graph) Blocks() []*Block {
	bs := make([]*Block, 0, len(g.order))
	for _, id := range g.order {
		bs = append(bs, g.blocks[id])
	}
	return bs
}

// Order returns the reverse post-order number of a block.
func (g *Graph) Order(id BlockID) int { return g.num[id] }

// Len returns the number of blocks.
func (g *Graph) Len() int { return len(g.blocks) }

// Succs returns the outgoing edges of a block in declaration order.
func (g *Graph) Succs(id BlockID) []Edge { return g.succs[id] }

// Preds returns the incoming edges of a block.
func (g *Graph) Preds(id BlockID) []Edge { return g.preds[id] }

// SuccTo returns the outgoing edge of the given kind. The boolean return
// value indicates whether such an edge exists.
func (g *Graph) SuccTo(id BlockID, kind EdgeKind) (Edge, bool) {
	for _, e := range g.succs[id] {
		if e.Kind == kind {
			return e, true
		}
	}
	return Edge{}, false
}

// Edges returns every edge of the graph, ordered by source block then
// declaration order.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	ids := make([]BlockID, 0, len(g.blocks))
	for id := range g.blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		edges = append(edges, g.succs[id]...)
	}
	return edges
}

// Clone returns a deep copy of the graph. Used by passes that rewrite
// control flow so the caller's graph stays untouched.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		entry:  g.entry,
		blocks: make(map[BlockID]*Block, len(g.blocks)),
		succs:  make(map[BlockID][]Edge, len(g.succs)),
		preds:  make(map[BlockID][]Edge, len(g.preds)),
	}
	for id, b := range g.blocks {
		c.blocks[id] = &Block{ID: b.ID, Wind: b.Wind, Stmts: append([]Stmt(nil), b.Stmts...)}
	}
	for id, es := range g.succs {
		c.succs[id] = append([]Edge(nil), es...)
	}
	for id, es := range g.preds {
		c.preds[id] = append([]Edge(nil), es...)
	}
	c.renumber()
	return c
}

// Redirect retargets the edge (from, oldTo) at newTo, keeping its kind.
// Dominance information computed before the rewrite is invalid afterwards.
func (g *Graph) Redirect(from, oldTo, newTo BlockID) {
	for i, e := range g.succs[from] {
		if e.To == oldTo {
			g.succs[from][i].To = newTo
			kind := g.succs[from][i].Kind
			g.dropPred(oldTo, from, kind)
			g.preds[newTo] = append(g.preds[newTo], Edge{From: from, To: newTo, Kind: kind})
			g.renumber()
			return
		}
	}
}

func (g *Graph) dropPred(to, from BlockID, kind EdgeKind) {
	es := g.preds[to]
	for i, e := range es {
		if e.From == from && e.Kind == kind {
			g.preds[to] = append(es[:i], es[i+1:]...)
			return
		}
	}
}

// RemoveBlock deletes a block that has no predecessors, along with its
// outgoing edges.
func (g *Graph) RemoveBlock(id BlockID) {
	if len(g.preds[id]) > 0 || id == g.entry {
		return
	}
	for _, e := range g.succs[id] {
		g.dropPred(e.To, id, e.Kind)
	}
	delete(g.succs, id)
	delete(g.preds, id)
	delete(g.blocks, id)
	g.renumber()
}

// ReplaceEdges swaps the outgoing edges of a block.
func (g *Graph) ReplaceEdges(from BlockID, edges []Edge) {
	for _, e := range g.succs[from] {
		g.dropPred(e.To, from, e.Kind)
	}
	g.succs[from] = nil
	for _, e := range edges {
		e.From = from
		g.succs[from] = append(g.succs[from], e)
		g.preds[e.To] = append(g.preds[e.To], e)
	}
	g.renumber()
}

// String returns a compact description of the graph, one block per line.
func (g *Graph) String() string {
	var sb strings.Builder
	for _, id := range g.order {
		fmt.Fprintf(&sb, "#%d ->", id)
		for _, e := range g.succs[id] {
			fmt.Fprintf(&sb, " #%d(%s)", e.To, e.Kind)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
