package structurer

import (
	"fmt"

	"github.com/liftback/restruct/cfg"
)

// DiagKind classifies a structuring diagnostic.
type DiagKind int

const (
	// IrreducibleRegion marks a cycle left behind explicit gotos.
	IrreducibleRegion DiagKind = iota
	// UnresolvedControlVar marks a dispatch variable left in place.
	UnresolvedControlVar
	// PartialIdiom marks a structural idiom match missing a required
	// parameter.
	PartialIdiom
)

func (k DiagKind) String() string {
	switch k {
	case IrreducibleRegion:
		return "irreducible-region"
	case UnresolvedControlVar:
		return "unresolved-control-variable"
	case PartialIdiom:
		return "partial-idiom-match"
	}
	return "unknown"
}

// Diag is one non-fatal degradation: the output around it is still exact,
// only less structured or less named than it could be.
type Diag struct {
	Kind   DiagKind
	Block  cfg.BlockID
	Detail string
}

func (d Diag) String() string {
	return fmt.Sprintf("%s at block %d: %s", d.Kind, d.Block, d.Detail)
}
