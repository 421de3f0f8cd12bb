package idiom

import (
	"github.com/pkg/errors"

	"github.com/liftback/restruct/cfg"
	"github.com/liftback/restruct/loop"
)

// matchSpinWait recognises a loop whose sole effect is one atomic
// compare-and-exchange on a lock, branching back on failure, optionally
// with an incrementing counter compared against a threshold guarding a
// backoff call.
func matchSpinWait(g *cfg.Graph, r *loop.Region, p Pattern) (*Match, error) {
	var (
		lock     string
		flag     string // cmpxchg result variable
		counter  string
		casCount int
		calls    []*cfg.Stmt
	)

	// First pass: the single cmpxchg and the incrementing counter.
	for _, id := range r.Blocks() {
		b, _ := g.Block(id)
		for si := range b.Stmts {
			s := &b.Stmts[si]
			switch s.Class {
			case cfg.OpCmpXchg:
				casCount++
				lock = s.Sym
				flag = s.Dst
			case cfg.OpBinOp:
				if s.Op == "+" && len(s.Args) == 2 &&
					s.Args[0].Local == s.Dst && isLit(s.Args[1], 1) {
					counter = s.Dst
				}
			case cfg.OpCall:
				calls = append(calls, s)
			}
		}
	}
	if casCount != 1 {
		return nil, nil
	}
	// The loop must branch back on cmpxchg failure.
	retries := false
	for _, id := range r.Blocks() {
		b, _ := g.Block(id)
		if term := b.Terminator(); term != nil {
			for _, v := range term.Reads() {
				if v == flag {
					retries = true
				}
			}
		}
	}
	if !retries {
		return nil, nil
	}

	m := &Match{Kind: SpinWait, Pattern: p.Name, Blocks: r.Blocks()}
	if counter == "" {
		// Plain spin without a counter: no threshold and no backoff are
		// fabricated, and any call would be an unrelated side effect.
		if len(calls) > 0 {
			return nil, nil
		}
		m.Spin = &SpinParams{Lock: lock}
		return m, nil
	}

	// Second pass: the threshold compare over the counter and the backoff
	// call consuming its result.
	var (
		cmpDst    string
		threshold int64
		hasThresh bool
	)
	for _, id := range r.Blocks() {
		b, _ := g.Block(id)
		for si := range b.Stmts {
			s := &b.Stmts[si]
			if s.Class == cfg.OpBinOp && isRel(s.Op) && len(s.Args) == 2 &&
				s.Args[0].Local == counter && s.Args[1].IsLit() {
				cmpDst = s.Dst
				threshold = *s.Args[1].Lit
				hasThresh = true
			}
		}
	}
	if !hasThresh {
		return nil, errors.Wrapf(ErrPartialMatch, "spin counter %q has no threshold compare", counter)
	}
	if max, ok := p.Params["max-threshold"]; ok && threshold > max {
		return nil, errors.Wrapf(ErrPartialMatch, "threshold %d above table bound %d", threshold, max)
	}
	backoff := ""
	for _, c := range calls {
		for _, a := range c.Args {
			if a.Local == cmpDst {
				backoff = c.Sym
			}
		}
	}
	if backoff == "" {
		return nil, errors.Wrap(ErrPartialMatch, "threshold reached but no backoff call")
	}
	m.Spin = &SpinParams{Lock: lock, HasThreshold: true, Threshold: threshold, Backoff: backoff}
	return m, nil
}

func isRel(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func isLit(o cfg.Operand, v int64) bool {
	lit, ok := o.LitVal()
	return ok && lit == v
}
