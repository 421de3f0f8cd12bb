package lift

import (
	"github.com/pkg/errors"

	"github.com/liftback/restruct/cfg"
)

// Descriptor is the serialised control flow graph of one function.
type Descriptor struct {
	Name   string       `json:"name" msgpack:"name"`
	Entry  cfg.BlockID  `json:"entry" msgpack:"entry"`
	Blocks []*cfg.Block `json:"blocks" msgpack:"blocks"`
	Edges  []cfg.Edge   `json:"edges" msgpack:"edges"`
}

// Graph validates the descriptor and builds its control flow graph. The
// descriptor is not retained; the graph owns copies of the blocks.
func (d *Descriptor) Graph() (*cfg.Graph, error) {
	g, err := cfg.Load(d.Entry, d.Blocks, d.Edges)
	return g, errors.Wrapf(err, "function %q", d.Name)
}
