package cfg

import (
	"errors"
	"testing"
)

func block(id BlockID, stmts ...Stmt) *Block {
	return &Block{ID: id, Stmts: stmts}
}

func TestLoadDiamond(t *testing.T) {
	blocks := []*Block{
		block(0, Stmt{Class: OpBranch, Op: "<", Args: []Operand{Loc("x"), Lit(2)}}),
		block(1),
		block(2),
		block(3, Stmt{Class: OpReturn}),
	}
	edges := []Edge{
		{From: 0, To: 1, Kind: BranchTrue},
		{From: 0, To: 2, Kind: BranchFalse},
		{From: 1, To: 3, Kind: Jump},
		{From: 2, To: 3, Kind: Fallthrough},
	}
	g, err := Load(0, blocks, edges)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if g.Len() != 4 {
		t.Errorf("expected 4 blocks, got %d", g.Len())
	}
	if g.Order(0) != 0 {
		t.Errorf("entry should have reverse post-order number 0, got %d", g.Order(0))
	}
	if g.Order(3) != 3 {
		t.Errorf("join should be numbered last, got %d", g.Order(3))
	}
	if len(g.Preds(3)) != 2 {
		t.Errorf("join should have 2 predecessors, got %d", len(g.Preds(3)))
	}
}

func TestLoadDoesNotMutateInput(t *testing.T) {
	b := block(0, Stmt{Class: OpReturn})
	g, err := Load(0, []*Block{b}, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got, _ := g.Block(0)
	got.Stmts[0].Class = OpNop
	if b.Stmts[0].Class != OpReturn {
		t.Errorf("Load should copy input blocks, input was mutated")
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		entry  BlockID
		blocks []*Block
		edges  []Edge
	}{
		{"missing entry", 9, []*Block{block(0)}, nil},
		{"dangling edge target", 0, []*Block{block(0)}, []Edge{{From: 0, To: 7, Kind: Jump}}},
		{"dangling edge source", 0, []*Block{block(0)}, []Edge{{From: 7, To: 0, Kind: Jump}}},
		{"unreachable block", 0, []*Block{block(0), block(1)}, nil},
		{"duplicate block id", 0, []*Block{block(0), block(0)}, nil},
		{"branch terminator without branch edges", 0,
			[]*Block{
				block(0),
				block(1, Stmt{Class: OpBranch, Op: "<", Args: []Operand{Loc("x"), Lit(2)}}),
				block(2, Stmt{Class: OpReturn}),
			},
			[]Edge{
				{From: 0, To: 1, Kind: Jump},
				{From: 1, To: 2, Kind: Jump},
			}},
		{"branch terminator with one arm", 0,
			[]*Block{
				block(0, Stmt{Class: OpBranch, Op: "<", Args: []Operand{Loc("x"), Lit(2)}}),
				block(1, Stmt{Class: OpReturn}),
			},
			[]Edge{{From: 0, To: 1, Kind: BranchTrue}}},
		{"branch edge without branch terminator", 0,
			[]*Block{block(0), block(1)},
			[]Edge{
				{From: 0, To: 1, Kind: BranchTrue},
				{From: 0, To: 1, Kind: BranchFalse},
			}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.entry, tt.blocks, tt.edges)
			if err == nil {
				t.Fatalf("Load should reject %s", tt.name)
			}
			var mge *MalformedGraphError
			if !errors.As(err, &mge) {
				t.Errorf("expected MalformedGraphError, got %T", err)
			}
		})
	}
}

func TestCondEqual(t *testing.T) {
	a := &Stmt{Class: OpBranch, Op: "==", Args: []Operand{Loc("i"), Lit(1)}}
	b := &Stmt{Class: OpBranch, Op: "==", Args: []Operand{Loc("i"), Lit(1)}}
	c := &Stmt{Class: OpBranch, Op: "==", Args: []Operand{Loc("j"), Lit(1)}}
	if !CondEqual(a, b) {
		t.Errorf("identical conditions should be equal")
	}
	if CondEqual(a, c) {
		t.Errorf("conditions over different operands should not be equal")
	}
	if CondEqual(a, nil) {
		t.Errorf("nil condition should not be equal")
	}
}

func TestRedirect(t *testing.T) {
	blocks := []*Block{block(0), block(1), block(2)}
	edges := []Edge{
		{From: 0, To: 1, Kind: Jump},
		{From: 1, To: 2, Kind: Jump},
		{From: 0, To: 2, Kind: Fallthrough},
	}
	g, err := Load(0, blocks, edges)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	g.Redirect(0, 1, 2)
	g.RemoveBlock(1)
	if g.Len() != 2 {
		t.Errorf("expected 2 blocks after removal, got %d", g.Len())
	}
	if len(g.Preds(2)) != 2 {
		t.Errorf("expected 2 predecessors of #2, got %d", len(g.Preds(2)))
	}
}
