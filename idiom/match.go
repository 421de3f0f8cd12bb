package idiom

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/liftback/restruct/cfg"
	"github.com/liftback/restruct/loop"
)

// ErrPartialMatch marks a structural match whose required parameter could
// not be extracted. The caller reports it and emits no idiom node.
var ErrPartialMatch = errors.New("partial idiom match")

// Match is a recognised idiom: its kind, the table pattern that produced
// it, the blocks it consumes, and the extracted parameters (one pointer per
// kind is set).
type Match struct {
	Kind    Kind
	Pattern string
	Blocks  []cfg.BlockID

	Spin   *SpinParams
	Growth *GrowthParams
	Wind   *WindParams
}

// SpinParams describes a spin-wait loop. A counterless spin lock has
// HasThreshold false and no backoff; the threshold is never fabricated.
type SpinParams struct {
	Lock         string
	HasThreshold bool
	Threshold    int64
	Backoff      string // symbol called once the threshold is reached
}

// GrowthParams describes a 1.5x capacity growth computation. NewSize is
// evaluated only when both sizes are literal.
type GrowthParams struct {
	Multiplier string // fixed at "1.5" for this family
	Floor      int64
	Requested  cfg.Operand
	Current    cfg.Operand
	Call       string // the allocation call fed both sizes
	NewSize    *int64
}

// WindParams describes a protected (exception wind) region.
type WindParams struct {
	Depth int
}

func (m *Match) String() string {
	switch {
	case m.Spin != nil:
		if m.Spin.HasThreshold {
			return fmt.Sprintf("SpinWait{lock=%s threshold=%d backoff=%s}", m.Spin.Lock, m.Spin.Threshold, m.Spin.Backoff)
		}
		return fmt.Sprintf("SpinWait{lock=%s}", m.Spin.Lock)
	case m.Growth != nil:
		if m.Growth.NewSize != nil {
			return fmt.Sprintf("CapacityGrowth{newSize=%d}", *m.Growth.NewSize)
		}
		return fmt.Sprintf("CapacityGrowth{multiplier=%s floor=%d}", m.Growth.Multiplier, m.Growth.Floor)
	case m.Wind != nil:
		return fmt.Sprintf("ProtectedRegion{depth=%d}", m.Wind.Depth)
	}
	return string(m.Kind)
}

// Registry binds the pattern table to the registered structural matchers.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	patterns []Pattern
}

// NewRegistry validates the table against the registered matchers.
func NewRegistry(t *Table) (*Registry, error) {
	if t == nil {
		t = DefaultTable()
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &Registry{patterns: append([]Pattern(nil), t.Patterns...)}, nil
}

// MatchRegion runs the enabled region matchers over a loop region in table
// order; the first match wins. A structural match with an unextractable
// parameter is returned as ErrPartialMatch.
func (reg *Registry) MatchRegion(g *cfg.Graph, r *loop.Region) (*Match, error) {
	for _, p := range reg.patterns {
		if p.Kind != SpinWait {
			continue
		}
		m, err := matchSpinWait(g, r, p)
		if err != nil {
			return nil, errors.Wrapf(err, "pattern %q", p.Name)
		}
		if m != nil {
			return m, nil
		}
	}
	return nil, nil
}

// MatchSequence runs the straight-line matchers over a block sequence in
// table order. Matches never overlap: a block consumed by one match is
// skipped by later ones.
func (reg *Registry) MatchSequence(g *cfg.Graph, ids []cfg.BlockID) ([]*Match, error) {
	var ms []*Match
	consumed := make(map[cfg.BlockID]bool)
	for _, p := range reg.patterns {
		if p.Kind != CapacityGrowth {
			continue
		}
		for _, id := range ids {
			if consumed[id] {
				continue
			}
			m, err := matchGrowth(g, id, p)
			if err != nil {
				return ms, errors.Wrapf(err, "pattern %q", p.Name)
			}
			if m == nil {
				continue
			}
			for _, b := range m.Blocks {
				consumed[b] = true
			}
			ms = append(ms, m)
		}
	}
	return ms, nil
}

// MatchWind finds protected regions over the whole graph: for every wind
// depth present, each connected group of blocks at that depth must be
// entered exactly once and exited exactly once.
func (reg *Registry) MatchWind(g *cfg.Graph) ([]*Match, error) {
	for _, p := range reg.patterns {
		if p.Kind == ProtectedRegion {
			return matchWind(g, p)
		}
	}
	return nil, nil
}

// sortedIDs returns ids ascending, for deterministic match output.
func sortedIDs(set map[cfg.BlockID]bool) []cfg.BlockID {
	ids := make([]cfg.BlockID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
