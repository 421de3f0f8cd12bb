package reduce

import (
	"testing"

	"github.com/liftback/restruct/cfg"
	"github.com/liftback/restruct/dom"
	"github.com/liftback/restruct/loop"
)

func assign(dst string, v int64) cfg.Stmt {
	return cfg.Stmt{Class: cfg.OpAssign, Dst: dst, Args: []cfg.Operand{cfg.Lit(v)}}
}

func branch(op string, x, y cfg.Operand) cfg.Stmt {
	return cfg.Stmt{Class: cfg.OpBranch, Op: op, Args: []cfg.Operand{x, y}}
}

// dispatchMachine builds a while loop flattened through an integer state:
//
//	0: i=0            -> 1
//	1: if i==0        -> T:2 F:5   (dispatch)
//	2: if p<q         -> T:3 F:4
//	3: i=0            -> 1         (continue)
//	4: i=1            -> 1         (exit state)
//	5: ret
func dispatchMachine(t *testing.T) (*cfg.Graph, []*loop.Region) {
	t.Helper()
	blocks := []*cfg.Block{
		{ID: 0, Stmts: []cfg.Stmt{assign("i", 0)}},
		{ID: 1, Stmts: []cfg.Stmt{branch("==", cfg.Loc("i"), cfg.Lit(0))}},
		{ID: 2, Stmts: []cfg.Stmt{branch("<", cfg.Loc("p"), cfg.Loc("q"))}},
		{ID: 3, Stmts: []cfg.Stmt{assign("i", 0)}},
		{ID: 4, Stmts: []cfg.Stmt{assign("i", 1)}},
		{ID: 5, Stmts: []cfg.Stmt{{Class: cfg.OpReturn}}},
	}
	edges := []cfg.Edge{
		{From: 0, To: 1, Kind: cfg.Jump},
		{From: 1, To: 2, Kind: cfg.BranchTrue},
		{From: 1, To: 5, Kind: cfg.BranchFalse},
		{From: 2, To: 3, Kind: cfg.BranchTrue},
		{From: 2, To: 4, Kind: cfg.BranchFalse},
		{From: 3, To: 1, Kind: cfg.Jump},
		{From: 4, To: 1, Kind: cfg.Jump},
	}
	g, err := cfg.Load(0, blocks, edges)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return g, loop.Regions(g, dom.Analyse(g))
}

func TestReduceDispatchMachine(t *testing.T) {
	g, regions := dispatchMachine(t)
	out := Apply(g, regions)
	if !out.Changed {
		t.Fatalf("expected reduction to fire: %v", out.Unresolved)
	}
	if len(out.Eliminated) != 1 || out.Eliminated[0] != "i" {
		t.Fatalf("expected i eliminated, got %v", out.Eliminated)
	}
	if _, ok := out.Graph.Block(1); ok {
		t.Errorf("dispatch block should be deleted")
	}
	// The input graph must stay untouched.
	if _, ok := g.Block(1); !ok {
		t.Errorf("input graph was mutated")
	}
	// All writes to i are gone.
	for _, b := range out.Graph.Blocks() {
		for _, s := range b.Stmts {
			if s.Dst == "i" {
				t.Errorf("write to i survived in block %d", b.ID)
			}
		}
	}
	// The rewritten loop is now a plain pretested while over p<q.
	regions2 := loop.Regions(out.Graph, dom.Analyse(out.Graph))
	if len(regions2) != 1 {
		t.Fatalf("expected 1 region after reduction, got %d", len(regions2))
	}
	shape := loop.Classify(out.Graph, regions2[0])
	if shape.Kind != loop.PreTested {
		t.Errorf("expected pretested loop after reduction, got %s", shape.Kind)
	}
	if shape.Cond == nil || shape.Cond.Op != "<" {
		t.Errorf("expected p<q as canonical condition, got %v", shape.Cond)
	}
}

func TestUseBeforeDefUnresolved(t *testing.T) {
	// Same machine without the initial write: i is read before any def.
	blocks := []*cfg.Block{
		{ID: 0},
		{ID: 1, Stmts: []cfg.Stmt{branch("==", cfg.Loc("i"), cfg.Lit(0))}},
		{ID: 2, Stmts: []cfg.Stmt{branch("<", cfg.Loc("p"), cfg.Loc("q"))}},
		{ID: 3, Stmts: []cfg.Stmt{assign("i", 0)}},
		{ID: 4, Stmts: []cfg.Stmt{assign("i", 1)}},
		{ID: 5, Stmts: []cfg.Stmt{{Class: cfg.OpReturn}}},
	}
	edges := []cfg.Edge{
		{From: 0, To: 1, Kind: cfg.Jump},
		{From: 1, To: 2, Kind: cfg.BranchTrue},
		{From: 1, To: 5, Kind: cfg.BranchFalse},
		{From: 2, To: 3, Kind: cfg.BranchTrue},
		{From: 2, To: 4, Kind: cfg.BranchFalse},
		{From: 3, To: 1, Kind: cfg.Jump},
		{From: 4, To: 1, Kind: cfg.Jump},
	}
	g, err := cfg.Load(0, blocks, edges)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	out := Apply(g, loop.Regions(g, dom.Analyse(g)))
	if out.Changed {
		t.Fatalf("use-before-def must not be reduced")
	}
	if len(out.Unresolved) != 1 {
		t.Fatalf("expected 1 unresolved diagnostic, got %d", len(out.Unresolved))
	}
	if out.Graph != g {
		t.Errorf("graph should be returned unchanged")
	}
}

func TestEscapingVariableNotACandidate(t *testing.T) {
	// i is also passed to a call: not a control variable.
	g, _ := dispatchMachine(t)
	b, _ := g.Block(3)
	b.Stmts = append(b.Stmts, cfg.Stmt{Class: cfg.OpCall, Sym: "observe", Args: []cfg.Operand{cfg.Loc("i")}})
	out := Apply(g, loop.Regions(g, dom.Analyse(g)))
	if out.Changed {
		t.Fatalf("escaping variable must not be reduced")
	}
}

func TestApplyIdempotent(t *testing.T) {
	g, regions := dispatchMachine(t)
	out := Apply(g, regions)
	again := Apply(out.Graph, loop.Regions(out.Graph, dom.Analyse(out.Graph)))
	if again.Changed {
		t.Errorf("re-running reduction on reduced output must be a no-op")
	}
	if len(again.Unresolved) != 0 {
		t.Errorf("no diagnostics expected on reduced graph, got %v", again.Unresolved)
	}
}
