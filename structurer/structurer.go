package structurer

import (
	"github.com/pkg/errors"

	"github.com/liftback/restruct/cfg"
	"github.com/liftback/restruct/dom"
	"github.com/liftback/restruct/idiom"
	"github.com/liftback/restruct/lift"
	"github.com/liftback/restruct/loop"
	"github.com/liftback/restruct/reduce"
	"github.com/liftback/restruct/tree"
)

// Status summarises how far a function was structured.
type Status int

const (
	FullyStructured Status = iota
	PartiallyStructured
	Rejected
)

func (s Status) String() string {
	switch s {
	case FullyStructured:
		return "structured"
	case PartiallyStructured:
		return "partial"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Result is the outcome for one function. Err is set only for rejected
// functions; diagnostics accompany partial output.
type Result struct {
	Name       string
	Tree       *tree.Node
	Status     Status
	Diags      []Diag
	Idioms     []*idiom.Match
	Eliminated []string
	Err        error
}

// Structurer runs the pipeline. It is immutable after construction and
// safe for concurrent use across functions.
type Structurer struct {
	reg *idiom.Registry
	*Logger
}

// New builds a Structurer over a pattern table; a nil table selects the
// built-in patterns.
func New(table *idiom.Table) (*Structurer, error) {
	reg, err := idiom.NewRegistry(table)
	if err != nil {
		return nil, err
	}
	return &Structurer{reg: reg, Logger: newLogger()}, nil
}

// AddLogFiles replaces the logger with one that also writes to files.
func (s *Structurer) AddLogFiles(files ...string) {
	s.Logger = newFileLogger(files...)
}

// Function structures a single function descriptor. Malformed input is
// rejected whole; degradations are reported as diagnostics on a partial
// result.
func (s *Structurer) Function(d *lift.Descriptor) (*Result, error) {
	log := s.Logger.ForFunction(d.Name)
	res := &Result{Name: d.Name}

	g, err := d.Graph()
	if err != nil {
		res.Status = Rejected
		res.Err = err
		return res, err
	}
	log.Debugw("loaded graph", "blocks", g.Len())

	info := dom.Analyse(g)
	regions := loop.Regions(g, info)

	out := reduce.Apply(g, regions)
	for _, u := range out.Unresolved {
		res.Diags = append(res.Diags, Diag{Kind: UnresolvedControlVar, Block: u.Header, Detail: u.String()})
	}
	if out.Changed {
		g = out.Graph
		info = dom.Analyse(g)
		regions = loop.Regions(g, info)
		res.Eliminated = out.Eliminated
		log.Debugw("control variables reduced", "eliminated", out.Eliminated)
	}

	for _, r := range regions {
		if err := loop.Validate(g, r); err != nil {
			res.Status = Rejected
			res.Err = errors.Wrapf(err, "function %q", d.Name)
			return res, res.Err
		}
	}

	shapes := make(map[cfg.BlockID]loop.Shape, len(regions))
	for _, r := range regions {
		shape := loop.Classify(g, r)
		if shape.Kind == loop.PostTested {
			if primed, ok := loop.PrimedUnwrapped(g, r); ok {
				shape = primed
			}
		}
		if shape.Kind == loop.Irreducible {
			res.Diags = append(res.Diags, Diag{Kind: IrreducibleRegion, Block: r.Header, Detail: "cycle kept behind gotos"})
		}
		shapes[r.Header] = shape
	}

	res.Idioms = s.matchIdioms(g, regions, res, log)

	root, err := tree.Build(tree.Input{Graph: g, Regions: regions, Shapes: shapes, Idioms: res.Idioms})
	if err != nil {
		res.Status = Rejected
		res.Err = errors.Wrapf(err, "function %q", d.Name)
		return res, res.Err
	}
	res.Tree = root

	res.Status = FullyStructured
	if len(res.Diags) > 0 || root.Count(tree.Goto) > 0 {
		res.Status = PartiallyStructured
	}
	log.Infow("structured", "status", res.Status.String(), "diags", len(res.Diags), "idioms", len(res.Idioms))
	return res, nil
}

// matchIdioms runs every registered matcher family. Partial matches are
// diagnostics, never idiom nodes. Straight-line matchers scan the interior
// of every loop body as well as the blocks outside all loops, innermost
// regions first.
func (s *Structurer) matchIdioms(g *cfg.Graph, regions []*loop.Region, res *Result, log *Logger) []*idiom.Match {
	var ms []*idiom.Match

	var straight []cfg.BlockID
	queued := make(map[cfg.BlockID]bool)
	for _, r := range regions {
		queued[r.Header] = true
		for _, id := range r.Blocks() {
			if id != r.Header && !queued[id] {
				queued[id] = true
				straight = append(straight, id)
			}
		}
		m, err := s.reg.MatchRegion(g, r)
		if err != nil {
			res.Diags = append(res.Diags, Diag{Kind: PartialIdiom, Block: r.Header, Detail: err.Error()})
			continue
		}
		if m != nil {
			log.Debugw("idiom matched", "idiom", m.String())
			ms = append(ms, m)
		}
	}
	for _, b := range g.Blocks() {
		if !queued[b.ID] {
			straight = append(straight, b.ID)
		}
	}
	seq, err := s.reg.MatchSequence(g, straight)
	if err != nil {
		res.Diags = append(res.Diags, Diag{Kind: PartialIdiom, Block: g.Entry(), Detail: err.Error()})
	}
	ms = append(ms, seq...)

	winds, err := s.reg.MatchWind(g)
	if err != nil {
		res.Diags = append(res.Diags, Diag{Kind: PartialIdiom, Block: g.Entry(), Detail: err.Error()})
	}
	ms = append(ms, winds...)
	return ms
}
