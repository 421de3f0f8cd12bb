package structurer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftback/restruct/cfg"
	"github.com/liftback/restruct/lift"
)

func TestBatchKeepsOrderAndIsolatesFailures(t *testing.T) {
	var ds []*lift.Descriptor
	for i := 0; i < 8; i++ {
		d := whileDescriptor()
		d.Name = fmt.Sprintf("fn%d", i)
		ds = append(ds, d)
	}
	broken := &lift.Descriptor{
		Name:   "fn-broken",
		Entry:  0,
		Blocks: []*cfg.Block{{ID: 0}},
		Edges:  []cfg.Edge{{From: 0, To: 42, Kind: cfg.Jump}},
	}
	ds = append(ds[:4], append([]*lift.Descriptor{broken}, ds[4:]...)...)

	s := mustNew(t)
	results := s.Batch(context.Background(), ds, 3)
	require.Len(t, results, 9)
	for i, r := range results {
		assert.Equal(t, ds[i].Name, r.Name, "results keep input order")
	}
	assert.Equal(t, Rejected, results[4].Status)
	assert.Error(t, results[4].Err)
	for i, r := range results {
		if i == 4 {
			continue
		}
		assert.Equal(t, FullyStructured, r.Status)
		assert.NotNil(t, r.Tree)
	}
}

func TestBatchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ds := []*lift.Descriptor{whileDescriptor(), whileDescriptor()}
	s := mustNew(t)
	results := s.Batch(ctx, ds, 2)
	for _, r := range results {
		assert.Equal(t, Rejected, r.Status)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestBatchDefaultWorkerCount(t *testing.T) {
	s := mustNew(t)
	results := s.Batch(context.Background(), []*lift.Descriptor{whileDescriptor()}, 0)
	require.Len(t, results, 1)
	assert.Equal(t, FullyStructured, results[0].Status)
}
