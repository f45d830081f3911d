package ir

import (
	"tlog.app/go/errors"

	"github.com/mirlang/mir/compiler/set"
	"github.com/mirlang/mir/compiler/tp"
)

type (
	site struct {
		block int // -1 for args
		index int
	}
)

// Validate checks the single-assignment invariant: every value is
// defined exactly once and every operand is defined earlier in the
// same block or in a strictly dominating one. It also checks block
// shape: terminators end blocks, phis lead them, branch targets and
// slot references are in range.
func Validate(f *Func) error {
	if len(f.Exprs) != len(f.EType) {
		return errors.New("exprs and types out of sync: %v != %v", len(f.Exprs), len(f.EType))
	}

	if len(f.Blocks) == 0 {
		return errors.New("no blocks")
	}

	def := make(map[Expr]site)

	for _, p := range f.In {
		if _, ok := f.Exprs[p.Expr].(Arg); !ok {
			return errors.New("param %v: not an arg expr", p.Name)
		}

		def[p.Expr] = site{block: -1}
	}

	for bi, b := range f.Blocks {
		err := validateBlock(f, bi, b, def)
		if err != nil {
			return errors.Wrap(err, "block %v", b.Name)
		}
	}

	dom, err := dominators(f)
	if err != nil {
		return err
	}

	for bi, b := range f.Blocks {
		for i, id := range b.Code {
			err := validateUses(f, dom, def, bi, i, id)
			if err != nil {
				return errors.Wrap(err, "block %v", b.Name)
			}
		}
	}

	return nil
}

func validateBlock(f *Func, bi int, b Block, def map[Expr]site) error {
	if len(b.Code) == 0 {
		return errors.New("empty block")
	}

	phis := true

	for i, id := range b.Code {
		if id < 0 || int(id) >= len(f.Exprs) {
			return errors.New("instr %v: id out of range: %v", i, id)
		}

		if d, ok := def[id]; ok {
			return errors.New("instr %v: v%d redefined (first in block %v)", i, id, d.block)
		}

		def[id] = site{block: bi, index: i}

		x := f.Exprs[id]

		if IsTerminator(x) != (i == len(b.Code)-1) {
			return errors.New("instr %v: terminator misplaced: %T", i, x)
		}

		if _, ok := x.(Phi); ok && !phis {
			return errors.New("instr %v: phi after non-phi", i)
		} else if !ok {
			phis = false
		}

		switch x := x.(type) {
		case Arg:
			return errors.New("instr %v: arg in block code", i)
		case GetLocal:
			if x.Local < 0 || x.Local >= len(f.Locals) {
				return errors.New("instr %v: local out of range: %v", i, x.Local)
			}
		case B:
			if x.Block < 0 || x.Block >= len(f.Blocks) {
				return errors.New("instr %v: branch target out of range: %v", i, x.Block)
			}
		case BCond:
			if x.Block < 0 || x.Block >= len(f.Blocks) {
				return errors.New("instr %v: branch target out of range: %v", i, x.Block)
			}
			if bi+1 == len(f.Blocks) {
				return errors.New("instr %v: fallthrough out of function", i)
			}
		}
	}

	return nil
}

func validateUses(f *Func, dom []set.Bits, def map[Expr]site, bi, i int, id Expr) error {
	x := f.Exprs[id]

	if phi, ok := x.(Phi); ok {
		preds := predecessors(f, bi)

		for _, br := range phi {
			if !preds.IsSet(br.Block) {
				return errors.New("instr %v: phi branch from non-predecessor block %v", i, br.Block)
			}

			d, ok := def[br.Expr]
			if !ok {
				return errors.New("instr %v: v%d used but never defined", i, br.Expr)
			}

			if d.block != -1 && !dom[br.Block].IsSet(d.block) {
				return errors.New("instr %v: v%d does not reach phi branch from block %v", i, br.Expr, br.Block)
			}
		}

		return nil
	}

	for _, op := range Operands(x) {
		d, ok := def[op]
		if !ok {
			return errors.New("instr %v: v%d used but never defined", i, op)
		}

		switch {
		case d.block == -1:
		case d.block == bi:
			if d.index >= i {
				return errors.New("instr %v: v%d used before defined", i, op)
			}
		default:
			if !dom[bi].IsSet(d.block) {
				return errors.New("instr %v: v%d defined in non-dominating block %v", i, op, d.block)
			}
		}
	}

	// loads and stores go through addresses only
	switch x := x.(type) {
	case Load:
		if _, ok := f.EType[x.Ptr].(tp.Ptr); !ok {
			return errors.New("instr %v: load of non-pointer %v", i, f.EType[x.Ptr])
		}
	case Store:
		if _, ok := f.EType[x.Ptr].(tp.Ptr); !ok {
			return errors.New("instr %v: store to non-pointer %v", i, f.EType[x.Ptr])
		}
	}

	return nil
}

// Successors lists the blocks control may pass to from block bi.
func Successors(f *Func, bi int) []int {
	b := f.Blocks[bi]
	last := f.Exprs[b.Code[len(b.Code)-1]]

	switch x := last.(type) {
	case B:
		return []int{x.Block}
	case BCond:
		return []int{x.Block, bi + 1}
	case Ret:
		return nil
	default:
		panic(last)
	}
}

func predecessors(f *Func, bi int) set.Bits {
	r := set.MakeBits(len(f.Blocks))

	for p := range f.Blocks {
		for _, s := range Successors(f, p) {
			if s == bi {
				r.Set(p)
			}
		}
	}

	return r
}

// dominators computes, for every block, the set of blocks on every
// path from entry to it. Unreachable blocks are an error.
func dominators(f *Func) ([]set.Bits, error) {
	n := len(f.Blocks)

	reach := set.MakeBits(n)
	reach.Set(0)

	for q := []int{0}; len(q) != 0; {
		b := q[0]
		q = q[1:]

		for _, s := range Successors(f, b) {
			if reach.IsSet(s) {
				continue
			}

			reach.Set(s)
			q = append(q, s)
		}
	}

	for bi := range f.Blocks {
		if !reach.IsSet(bi) {
			return nil, errors.New("block %v: unreachable", f.Blocks[bi].Name)
		}
	}

	all := set.MakeBits(n)
	for i := 0; i < n; i++ {
		all.Set(i)
	}

	dom := make([]set.Bits, n)

	for i := range dom {
		if i == 0 {
			dom[i] = set.MakeBits(n)
			dom[i].Set(0)
		} else {
			dom[i] = all.Copy()
		}
	}

	for changed := true; changed; {
		changed = false

		for bi := 1; bi < n; bi++ {
			d := all.Copy()

			preds := predecessors(f, bi)
			preds.Range(func(p int) bool {
				d.And(dom[p])
				return true
			})

			d.Set(bi)

			if !d.Equal(dom[bi]) {
				dom[bi] = d
				changed = true
			}
		}
	}

	return dom, nil
}
