package idiom

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// TableVersion is the pattern table format this build understands.
const TableVersion = 1

// Kind identifies an idiom family.
type Kind string

const (
	SpinWait        Kind = "SpinWait"
	CapacityGrowth  Kind = "CapacityGrowth"
	ProtectedRegion Kind = "ProtectedRegion"
)

var (
	ErrTableVersion = errors.New("unsupported pattern table version")
	ErrUnknownKind  = errors.New("unknown idiom kind")
	ErrDupPattern   = errors.New("duplicate pattern name")
)

// Pattern is one entry of the table: a name, the structural matcher it
// selects, and matcher parameters.
type Pattern struct {
	Name   string           `yaml:"name"`
	Kind   Kind             `yaml:"kind"`
	Params map[string]int64 `yaml:"params,omitempty"`
}

// Table is the versioned, read-only idiom descriptor list. New idioms are
// added by extending the table, not the structuring algorithm.
type Table struct {
	Version  int       `yaml:"version"`
	Patterns []Pattern `yaml:"patterns"`
}

// LoadTable reads and validates a pattern table from a YAML file.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read pattern table %s", path)
	}
	var t Table
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, errors.Wrapf(err, "cannot parse pattern table %s", path)
	}
	if err := t.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid pattern table %s", path)
	}
	return &t, nil
}

// DefaultTable returns the built-in table with every registered matcher
// enabled and default parameters.
func DefaultTable() *Table {
	return &Table{
		Version: TableVersion,
		Patterns: []Pattern{
			{Name: "spin-wait", Kind: SpinWait},
			{Name: "capacity-growth", Kind: CapacityGrowth},
			{Name: "protected-region", Kind: ProtectedRegion},
		},
	}
}

func (t *Table) validate() error {
	if t.Version != TableVersion {
		return errors.Wrapf(ErrTableVersion, "version %d", t.Version)
	}
	names := make(map[string]bool, len(t.Patterns))
	for _, p := range t.Patterns {
		switch p.Kind {
		case SpinWait, CapacityGrowth, ProtectedRegion:
		default:
			return errors.Wrapf(ErrUnknownKind, "pattern %q kind %q", p.Name, p.Kind)
		}
		if names[p.Name] {
			return errors.Wrapf(ErrDupPattern, "%q", p.Name)
		}
		names[p.Name] = true
	}
	return nil
}

// Save writes the table as YAML.
func (t *Table) Save(path string) error {
	raw, err := yaml.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "cannot encode pattern table")
	}
	return errors.Wrapf(os.WriteFile(path, raw, 0o644), "cannot write pattern table %s", path)
}
