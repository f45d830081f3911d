package ir

import (
	"github.com/holiman/uint256"
	"tlog.app/go/tlog/tlwire"

	"github.com/mirlang/mir/compiler/tp"
)

type (
	// Expr is a value id. It indexes Func.Exprs and Func.EType.
	// Each Expr is defined by exactly one instruction.
	Expr int

	Cond string

	// Arg is the function argument at the given position.
	Arg int

	// Const is a typed immediate. Machine-word and 256-bit
	// constants share the representation.
	Const struct {
		V uint256.Int
	}

	// GetLocal is the address of a local slot.
	GetLocal struct {
		Local int
	}

	Load struct {
		Ptr Expr
	}

	Store struct {
		Ptr Expr
		Val Expr
	}

	// PtrToInt reinterprets its operand as a machine-word integer.
	// Applied to an address it is a plain conversion. Applied to a
	// value wider than a word it has no direct lowering and must be
	// demoted first.
	PtrToInt struct {
		X Expr
	}

	Add struct {
		L, R Expr
	}

	Cmp struct {
		Cond Cond
		L, R Expr
	}

	Phi []PhiBranch

	PhiBranch struct {
		Block int
		Expr  Expr
	}

	// B is an unconditional branch. BCond branches when its
	// bool operand is held and falls through to the next block
	// otherwise. Both are terminators, as is Ret.
	B struct {
		Block int
	}

	BCond struct {
		Expr  Expr
		Block int
	}

	Ret struct {
		Val Expr // Nil for unit
	}

	// Local is a named typed stack slot owned by its Func.
	Local struct {
		Name string
		Type tp.Type
		Init *Const
	}

	Block struct {
		Name string
		Code []Expr
	}

	Param struct {
		Name string
		Expr Expr
	}

	Func struct {
		Name string

		In  []Param
		Out tp.Type

		Locals []Local
		Blocks []Block

		Exprs []any     `tlog:"-"`
		EType []tp.Type `tlog:"-"`
	}

	Package struct {
		Path string

		Funcs []*Func
	}
)

const Nil Expr = -1

const (
	CondEq = Cond("eq")
	CondNe = Cond("ne")
	CondLt = Cond("lt")
	CondGt = Cond("gt")
)

func Word(v uint64) Const {
	return Const{V: *uint256.NewInt(v)}
}

func B256(raw [32]byte) Const {
	var c Const
	c.V.SetBytes(raw[:])
	return c
}

func (f *Func) Alloc(x any, t tp.Type) Expr {
	id := Expr(len(f.Exprs))

	f.Exprs = append(f.Exprs, x)
	f.EType = append(f.EType, t)

	return id
}

func (f *Func) AddLocal(name string, t tp.Type, init *Const) int {
	f.Locals = append(f.Locals, Local{Name: name, Type: t, Init: init})

	return len(f.Locals) - 1
}

func (f *Func) FindLocal(name string) int {
	for i, l := range f.Locals {
		if l.Name == name {
			return i
		}
	}

	return -1
}

func (f *Func) FindBlock(name string) int {
	for i, b := range f.Blocks {
		if b.Name == name {
			return i
		}
	}

	return -1
}

// Operands lists the value ids an instruction reads.
func Operands(x any) []Expr {
	switch x := x.(type) {
	case Arg, Const, GetLocal:
		return nil
	case Load:
		return []Expr{x.Ptr}
	case Store:
		return []Expr{x.Ptr, x.Val}
	case PtrToInt:
		return []Expr{x.X}
	case Add:
		return []Expr{x.L, x.R}
	case Cmp:
		return []Expr{x.L, x.R}
	case Phi:
		r := make([]Expr, len(x))
		for i, br := range x {
			r[i] = br.Expr
		}
		return r
	case B:
		return nil
	case BCond:
		return []Expr{x.Expr}
	case Ret:
		if x.Val == Nil {
			return nil
		}
		return []Expr{x.Val}
	default:
		panic(x)
	}
}

// MapOperands rebuilds an instruction with every operand passed
// through ren. The instruction kind is preserved.
func MapOperands(x any, ren func(Expr) Expr) any {
	switch x := x.(type) {
	case Arg, Const, GetLocal, B:
		return x
	case Load:
		return Load{Ptr: ren(x.Ptr)}
	case Store:
		return Store{Ptr: ren(x.Ptr), Val: ren(x.Val)}
	case PtrToInt:
		return PtrToInt{X: ren(x.X)}
	case Add:
		return Add{L: ren(x.L), R: ren(x.R)}
	case Cmp:
		return Cmp{Cond: x.Cond, L: ren(x.L), R: ren(x.R)}
	case Phi:
		r := make(Phi, len(x))
		for i, br := range x {
			r[i] = PhiBranch{Block: br.Block, Expr: ren(br.Expr)}
		}
		return r
	case BCond:
		return BCond{Expr: ren(x.Expr), Block: x.Block}
	case Ret:
		if x.Val == Nil {
			return x
		}
		return Ret{Val: ren(x.Val)}
	default:
		panic(x)
	}
}

// IsTerminator reports whether the instruction ends a block.
func IsTerminator(x any) bool {
	switch x.(type) {
	case B, BCond, Ret:
		return true
	}

	return false
}

func (p PhiBranch) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)
	b = e.AppendKeyInt(b, "b", p.Block)
	b = e.AppendKeyInt(b, "id", int(p.Expr))

	return b
}
