package structurer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftback/restruct/cfg"
	"github.com/liftback/restruct/lift"
	"github.com/liftback/restruct/tree"
)

func mustNew(t *testing.T) *Structurer {
	t.Helper()
	s, err := New(nil)
	require.NoError(t, err)
	return s
}

func branchStmt(op, local string, lit int64) cfg.Stmt {
	return cfg.Stmt{Class: cfg.OpBranch, Op: op, Args: []cfg.Operand{cfg.Loc(local), cfg.Lit(lit)}}
}

func assignStmt(dst string, v int64) cfg.Stmt {
	return cfg.Stmt{Class: cfg.OpAssign, Dst: dst, Args: []cfg.Operand{cfg.Lit(v)}}
}

func whileDescriptor() *lift.Descriptor {
	return &lift.Descriptor{
		Name:  "count_up",
		Entry: 0,
		Blocks: []*cfg.Block{
			{ID: 0, Stmts: []cfg.Stmt{assignStmt("i", 0)}},
			{ID: 1, Stmts: []cfg.Stmt{branchStmt("<", "i", 10)}},
			{ID: 2, Stmts: []cfg.Stmt{{Class: cfg.OpBinOp, Op: "+", Dst: "i", Args: []cfg.Operand{cfg.Loc("i"), cfg.Lit(1)}}}},
			{ID: 3, Stmts: []cfg.Stmt{{Class: cfg.OpReturn}}},
		},
		Edges: []cfg.Edge{
			{From: 0, To: 1, Kind: cfg.Jump},
			{From: 1, To: 2, Kind: cfg.BranchTrue},
			{From: 1, To: 3, Kind: cfg.BranchFalse},
			{From: 2, To: 1, Kind: cfg.Jump},
		},
	}
}

// dispatchDescriptor is a flattened state machine: the state variable v
// selects between the loop body and the exit, written back at the bottom of
// each path.
func dispatchDescriptor() *lift.Descriptor {
	return &lift.Descriptor{
		Name:  "dispatch",
		Entry: 0,
		Blocks: []*cfg.Block{
			{ID: 0, Stmts: []cfg.Stmt{assignStmt("v", 0)}},
			{ID: 1, Stmts: []cfg.Stmt{branchStmt("==", "v", 0)}},
			{ID: 2, Stmts: []cfg.Stmt{branchStmt("<", "p", 10)}},
			{ID: 3, Stmts: []cfg.Stmt{assignStmt("v", 0)}},
			{ID: 4, Stmts: []cfg.Stmt{assignStmt("v", 1)}},
			{ID: 5, Stmts: []cfg.Stmt{{Class: cfg.OpReturn}}},
		},
		Edges: []cfg.Edge{
			{From: 0, To: 1, Kind: cfg.Jump},
			{From: 1, To: 2, Kind: cfg.BranchTrue},
			{From: 1, To: 5, Kind: cfg.BranchFalse},
			{From: 2, To: 3, Kind: cfg.BranchTrue},
			{From: 2, To: 4, Kind: cfg.BranchFalse},
			{From: 3, To: 1, Kind: cfg.Jump},
			{From: 4, To: 1, Kind: cfg.Jump},
		},
	}
}

func TestFunctionStructuresWhile(t *testing.T) {
	s := mustNew(t)
	res, err := s.Function(whileDescriptor())
	require.NoError(t, err)
	assert.Equal(t, FullyStructured, res.Status)
	require.NotNil(t, res.Tree)
	assert.Equal(t, 1, res.Tree.Count(tree.While))
	assert.Zero(t, res.Tree.Count(tree.Goto))
	assert.Empty(t, res.Diags)
}

func TestFunctionReducesDispatchMachine(t *testing.T) {
	s := mustNew(t)
	res, err := s.Function(dispatchDescriptor())
	require.NoError(t, err)
	assert.Equal(t, FullyStructured, res.Status)
	assert.Equal(t, []string{"v"}, res.Eliminated)
	require.NotNil(t, res.Tree)
	assert.Equal(t, 1, res.Tree.Count(tree.While), "the dispatch loop becomes a single while")
	assert.Zero(t, res.Tree.Count(tree.Goto))

	var w *tree.Node
	res.Tree.Walk(func(n *tree.Node) {
		if n.Kind == tree.While {
			w = n
		}
	})
	require.NotNil(t, w)
	require.NotNil(t, w.Cond)
	assert.Equal(t, "<", w.Cond.Op, "the data condition survives, the state test does not")
}

func TestFunctionUnresolvedControlVariableDegrades(t *testing.T) {
	// v is read at the header before any write reaches it from the entry
	// path; reduction must leave the graph untouched and say why.
	d := &lift.Descriptor{
		Name:  "usebeforedef",
		Entry: 0,
		Blocks: []*cfg.Block{
			{ID: 0},
			{ID: 1, Stmts: []cfg.Stmt{branchStmt("==", "v", 0)}},
			{ID: 2, Stmts: []cfg.Stmt{assignStmt("v", 0)}},
			{ID: 3},
			{ID: 4, Stmts: []cfg.Stmt{{Class: cfg.OpReturn}}},
		},
		Edges: []cfg.Edge{
			{From: 0, To: 1, Kind: cfg.Jump},
			{From: 1, To: 2, Kind: cfg.BranchTrue},
			{From: 1, To: 4, Kind: cfg.BranchFalse},
			{From: 2, To: 3, Kind: cfg.Fallthrough},
			{From: 3, To: 1, Kind: cfg.Jump},
		},
	}
	s := mustNew(t)
	res, err := s.Function(d)
	require.NoError(t, err)
	assert.Empty(t, res.Eliminated)
	assert.Equal(t, PartiallyStructured, res.Status)
	require.NotEmpty(t, res.Diags)
	assert.Equal(t, UnresolvedControlVar, res.Diags[0].Kind)
	require.NotNil(t, res.Tree, "unreduced functions still produce output")
	assert.Equal(t, 1, res.Tree.Count(tree.While))
}

func TestFunctionCollapsesDuplicatedCondition(t *testing.T) {
	// if (p < q) { do { body } while (p < q) } in the descriptor; the two
	// tests are one loop condition.
	d := &lift.Descriptor{
		Name:  "unwrapped",
		Entry: 0,
		Blocks: []*cfg.Block{
			{ID: 0, Stmts: []cfg.Stmt{branchStmt("<", "p", 10)}},
			{ID: 1, Stmts: []cfg.Stmt{{Class: cfg.OpBinOp, Op: "+", Dst: "p", Args: []cfg.Operand{cfg.Loc("p"), cfg.Lit(1)}}}},
			{ID: 2, Stmts: []cfg.Stmt{branchStmt("<", "p", 10)}},
			{ID: 3, Stmts: []cfg.Stmt{{Class: cfg.OpReturn}}},
		},
		Edges: []cfg.Edge{
			{From: 0, To: 1, Kind: cfg.BranchTrue},
			{From: 0, To: 3, Kind: cfg.BranchFalse},
			{From: 1, To: 2, Kind: cfg.Fallthrough},
			{From: 2, To: 1, Kind: cfg.BranchTrue},
			{From: 2, To: 3, Kind: cfg.BranchFalse},
		},
	}
	s := mustNew(t)
	res, err := s.Function(d)
	require.NoError(t, err)
	assert.Equal(t, FullyStructured, res.Status)
	assert.Equal(t, 1, res.Tree.Count(tree.While))
	assert.Zero(t, res.Tree.Count(tree.DoWhile))
	assert.Zero(t, res.Tree.Count(tree.IfElse), "the priming test folds into the loop")
}

// growthDescriptor places the 1.5x resize diamond inside a counting loop,
// the way a reallocation sits in a fill loop.
func growthDescriptor() *lift.Descriptor {
	return &lift.Descriptor{
		Name:  "fill_buffer",
		Entry: 0,
		Blocks: []*cfg.Block{
			{ID: 0, Stmts: []cfg.Stmt{assignStmt("k", 0)}},
			{ID: 1, Stmts: []cfg.Stmt{branchStmt("<", "k", 3)}},
			{ID: 10, Stmts: []cfg.Stmt{
				{Class: cfg.OpBinOp, Op: ">>", Dst: "half", Args: []cfg.Operand{cfg.Loc("cap"), cfg.Lit(1)}},
				{Class: cfg.OpBinOp, Op: "+", Dst: "ns", Args: []cfg.Operand{cfg.Loc("cap"), cfg.Loc("half")}},
				{Class: cfg.OpBranch, Op: "<=", Args: []cfg.Operand{cfg.Loc("ns"), cfg.Loc("need")}},
			}},
			{ID: 11, Stmts: []cfg.Stmt{{Class: cfg.OpAssign, Dst: "ns", Args: []cfg.Operand{cfg.Loc("need")}}}},
			{ID: 12, Stmts: []cfg.Stmt{{Class: cfg.OpBranch, Op: "<", Args: []cfg.Operand{cfg.Loc("ns"), cfg.Lit(9)}}}},
			{ID: 13, Stmts: []cfg.Stmt{{Class: cfg.OpAssign, Dst: "ns", Args: []cfg.Operand{cfg.Lit(8)}}}},
			{ID: 14, Stmts: []cfg.Stmt{
				{Class: cfg.OpCall, Sym: "grow_buffer", Args: []cfg.Operand{cfg.Loc("ns"), cfg.Loc("need")}},
				{Class: cfg.OpBinOp, Op: "+", Dst: "k", Args: []cfg.Operand{cfg.Loc("k"), cfg.Lit(1)}},
			}},
			{ID: 20, Stmts: []cfg.Stmt{{Class: cfg.OpReturn}}},
		},
		Edges: []cfg.Edge{
			{From: 0, To: 1, Kind: cfg.Jump},
			{From: 1, To: 10, Kind: cfg.BranchTrue},
			{From: 1, To: 20, Kind: cfg.BranchFalse},
			{From: 10, To: 11, Kind: cfg.BranchTrue},
			{From: 10, To: 12, Kind: cfg.BranchFalse},
			{From: 11, To: 12, Kind: cfg.Jump},
			{From: 12, To: 13, Kind: cfg.BranchTrue},
			{From: 12, To: 14, Kind: cfg.BranchFalse},
			{From: 13, To: 14, Kind: cfg.Jump},
			{From: 14, To: 1, Kind: cfg.Jump},
		},
	}
}

func TestFunctionMatchesGrowthInsideLoop(t *testing.T) {
	s := mustNew(t)
	res, err := s.Function(growthDescriptor())
	require.NoError(t, err)
	assert.Equal(t, FullyStructured, res.Status)
	assert.Empty(t, res.Diags)
	require.Len(t, res.Idioms, 1)
	require.NotNil(t, res.Idioms[0].Growth)
	assert.Equal(t, "grow_buffer", res.Idioms[0].Growth.Call)

	require.NotNil(t, res.Tree)
	assert.Equal(t, 1, res.Tree.Count(tree.While))
	assert.Zero(t, res.Tree.Count(tree.Goto))
	var w *tree.Node
	res.Tree.Walk(func(n *tree.Node) {
		if n.Kind == tree.While {
			w = n
		}
	})
	require.NotNil(t, w)
	assert.Equal(t, 1, w.Count(tree.IdiomOp), "the resize collapses to its idiom inside the loop body")
}

func TestFunctionRejectsMalformed(t *testing.T) {
	d := &lift.Descriptor{
		Name:   "broken",
		Entry:  0,
		Blocks: []*cfg.Block{{ID: 0}},
		Edges:  []cfg.Edge{{From: 0, To: 7, Kind: cfg.Jump}},
	}
	s := mustNew(t)
	res, err := s.Function(d)
	require.Error(t, err)
	assert.Equal(t, Rejected, res.Status)
	assert.Nil(t, res.Tree, "no partial output for malformed input")
	var mg *cfg.MalformedGraphError
	assert.ErrorAs(t, err, &mg)
}

func TestFunctionDistinctConditionsStayIrreducible(t *testing.T) {
	// Header and latch both exit but on different relations; collapsing
	// would change which test runs first.
	d := &lift.Descriptor{
		Name:  "twotests",
		Entry: 0,
		Blocks: []*cfg.Block{
			{ID: 0},
			{ID: 1, Stmts: []cfg.Stmt{branchStmt("<", "p", 10)}},
			{ID: 2, Stmts: []cfg.Stmt{branchStmt("<", "q", 20)}},
			{ID: 3, Stmts: []cfg.Stmt{{Class: cfg.OpReturn}}},
		},
		Edges: []cfg.Edge{
			{From: 0, To: 1, Kind: cfg.Jump},
			{From: 1, To: 2, Kind: cfg.BranchTrue},
			{From: 1, To: 3, Kind: cfg.BranchFalse},
			{From: 2, To: 1, Kind: cfg.BranchTrue},
			{From: 2, To: 3, Kind: cfg.BranchFalse},
		},
	}
	s := mustNew(t)
	res, err := s.Function(d)
	require.NoError(t, err)
	assert.Equal(t, PartiallyStructured, res.Status)
	assert.NotZero(t, res.Tree.Count(tree.Goto))
	require.NotEmpty(t, res.Diags)
	assert.Equal(t, IrreducibleRegion, res.Diags[0].Kind)
}

func TestFunctionIdempotent(t *testing.T) {
	s := mustNew(t)
	res1, err := s.Function(whileDescriptor())
	require.NoError(t, err)

	g2, err := tree.Flatten(res1.Tree)
	require.NoError(t, err)
	d2 := &lift.Descriptor{Name: "count_up", Entry: g2.Entry(), Blocks: g2.Blocks(), Edges: g2.Edges()}
	res2, err := s.Function(d2)
	require.NoError(t, err)

	assert.Equal(t, res1.Status, res2.Status)
	assert.Equal(t, res1.Tree.Count(tree.While), res2.Tree.Count(tree.While))
	assert.Equal(t, res1.Tree.Count(tree.IfElse), res2.Tree.Count(tree.IfElse))
	assert.Zero(t, res2.Tree.Count(tree.Goto))
}
