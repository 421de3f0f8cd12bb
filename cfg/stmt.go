package cfg

import "fmt"

// OpClass is the opcode class of a primitive statement.
type OpClass string

const (
	OpAssign  OpClass = "assign"  // Dst = Args[0]
	OpBinOp   OpClass = "binop"   // Dst = Args[0] <Op> Args[1]
	OpBranch  OpClass = "branch"  // terminator; tests Args[0] <Op> Args[1]
	OpCall    OpClass = "call"    // [Dst =] Sym(Args...)
	OpCmpXchg OpClass = "cmpxchg" // Dst = cmpxchg(Sym, exchange=Args[0], comparand=Args[1])
	OpReturn  OpClass = "ret"     // return [Args[0]]
	OpNop     OpClass = "nop"
)

// Operand is a statement operand: a block-local variable, a symbol (global
// or field reference) or an integer literal. Exactly one of the three is
// set.
type Operand struct {
	Local string `json:"local,omitempty" msgpack:"local,omitempty" yaml:"local,omitempty"`
	Sym   string `json:"sym,omitempty" msgpack:"sym,omitempty" yaml:"sym,omitempty"`
	Lit   *int64 `json:"lit,omitempty" msgpack:"lit,omitempty" yaml:"lit,omitempty"`
}

// Loc returns a local operand.
func Loc(name string) Operand { return Operand{Local: name} }

// Sym returns a symbol operand.
func Sym(name string) Operand { return Operand{Sym: name} }

// Lit returns an integer literal operand.
func Lit(v int64) Operand {
	return Operand{Lit: &v}
}

func (o Operand) IsLocal() bool { return o.Local != "" }
func (o Operand) IsSym() bool   { return o.Sym != "" }
func (o Operand) IsLit() bool   { return o.Lit != nil }

// LitVal returns the literal value. The boolean return value indicates
// whether the operand is a literal.
func (o Operand) LitVal() (int64, bool) {
	if o.Lit == nil {
		return 0, false
	}
	return *o.Lit, true
}

// Equal reports structural equality of two operands.
func (o Operand) Equal(p Operand) bool {
	if o.Local != p.Local || o.Sym != p.Sym {
		return false
	}
	if (o.Lit == nil) != (p.Lit == nil) {
		return false
	}
	return o.Lit == nil || *o.Lit == *p.Lit
}

func (o Operand) String() string {
	switch {
	case o.IsLocal():
		return o.Local
	case o.IsSym():
		return "&" + o.Sym
	case o.IsLit():
		return fmt.Sprintf("%d", *o.Lit)
	}
	return "?"
}

// Stmt is a primitive statement as produced by the lifter. Class selects the
// opcode class, Op the operator or relation mnemonic for binop/branch
// statements (e.g. "+", ">>", "<", "==").
type Stmt struct {
	Class OpClass   `json:"class" msgpack:"class" yaml:"class"`
	Op    string    `json:"op,omitempty" msgpack:"op,omitempty" yaml:"op,omitempty"`
	Dst   string    `json:"dst,omitempty" msgpack:"dst,omitempty" yaml:"dst,omitempty"`
	Sym   string    `json:"sym,omitempty" msgpack:"sym,omitempty" yaml:"sym,omitempty"`
	Args  []Operand `json:"args,omitempty" msgpack:"args,omitempty" yaml:"args,omitempty"`
}

// IsBranch returns true if the statement is a conditional terminator.
func (s *Stmt) IsBranch() bool { return s.Class == OpBranch }

// Reads returns the local variables read by the statement.
func (s *Stmt) Reads() []string {
	var locals []string
	for _, arg := range s.Args {
		if arg.IsLocal() {
			locals = append(locals, arg.Local)
		}
	}
	return locals
}

// CondEqual reports whether two branch statements test the same relation
// over the same operands. Operands must match positionally; textually
// similar conditions over different operands are not equal.
func CondEqual(a, b *Stmt) bool {
	if a == nil || b == nil {
		return false
	}
	if !a.IsBranch() || !b.IsBranch() {
		return false
	}
	if a.Op != b.Op || len(a.Args) != len(b.Args) {
		return false
	}
	for i := range a.Args {
		if !a.Args[i].Equal(b.Args[i]) {
			return false
		}
	}
	return true
}

// EvalRel evaluates a relational operator over two integers. Unknown
// operators evaluate to false.
func EvalRel(op string, a, b int64) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func (s *Stmt) String() string {
	switch s.Class {
	case OpAssign:
		return fmt.Sprintf("%s = %s", s.Dst, s.Args[0])
	case OpBinOp:
		return fmt.Sprintf("%s = %s %s %s", s.Dst, s.Args[0], s.Op, s.Args[1])
	case OpBranch:
		return fmt.Sprintf("if %s %s %s", s.Args[0], s.Op, s.Args[1])
	case OpCall:
		if s.Dst != "" {
			return fmt.Sprintf("%s = %s(...)", s.Dst, s.Sym)
		}
		return fmt.Sprintf("%s(...)", s.Sym)
	case OpCmpXchg:
		return fmt.Sprintf("%s = cmpxchg(&%s, %s, %s)", s.Dst, s.Sym, s.Args[0], s.Args[1])
	case OpReturn:
		if len(s.Args) > 0 {
			return fmt.Sprintf("return %s", s.Args[0])
		}
		return "return"
	}
	return string(s.Class)
}
