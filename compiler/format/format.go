// Package format renders ir back into its textual grammar.
//
// The output is the parse input grammar: func signature, local
// declarations in declaration order, labeled blocks, one instruction
// per line. Values print as v<id>.
package format

import (
	"context"
	"fmt"

	"tlog.app/go/errors"

	"github.com/mirlang/mir/compiler/ir"
	"github.com/mirlang/mir/compiler/tp"
)

func Package(ctx context.Context, b []byte, p *ir.Package) (_ []byte, err error) {
	for i, f := range p.Funcs {
		if i != 0 {
			b = append(b, '\n')
		}

		b, err = Func(ctx, b, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}
	}

	return b, nil
}

func Func(ctx context.Context, b []byte, f *ir.Func) (_ []byte, err error) {
	b = fmt.Appendf(b, "func %v(", f.Name)

	for i, p := range f.In {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = fmt.Appendf(b, "v%d: %v", p.Expr, f.EType[p.Expr])
	}

	b = append(b, ')')

	if _, unit := f.Out.(tp.Unit); !unit {
		b = fmt.Appendf(b, " -> %v", f.Out)
	}

	b = append(b, " {\n"...)

	for _, l := range f.Locals {
		b = fmt.Appendf(b, "\tlocal %v %v", l.Type, l.Name)

		if l.Init != nil {
			b = append(b, " = "...)
			b = constant(b, l.Type, *l.Init)
		}

		b = append(b, '\n')
	}

	if len(f.Locals) != 0 {
		b = append(b, '\n')
	}

	for _, blk := range f.Blocks {
		b = fmt.Appendf(b, "%v:\n", blk.Name)

		for _, id := range blk.Code {
			b, err = instr(b, f, id)
			if err != nil {
				return nil, errors.Wrap(err, "block %v", blk.Name)
			}
		}
	}

	b = append(b, "}\n"...)

	return b, nil
}

func instr(b []byte, f *ir.Func, id ir.Expr) ([]byte, error) {
	b = append(b, '\t')

	switch x := f.Exprs[id].(type) {
	case ir.Const:
		b = fmt.Appendf(b, "v%d = const %v ", id, f.EType[id])
		b = constant(b, f.EType[id], x)
	case ir.GetLocal:
		b = fmt.Appendf(b, "v%d = get_local %v", id, f.Locals[x.Local].Name)
	case ir.Load:
		b = fmt.Appendf(b, "v%d = load v%d", id, x.Ptr)
	case ir.Store:
		b = fmt.Appendf(b, "store v%d to v%d", x.Val, x.Ptr)
	case ir.PtrToInt:
		b = fmt.Appendf(b, "v%d = ptr_to_int v%d to %v", id, x.X, f.EType[id])
	case ir.Add:
		b = fmt.Appendf(b, "v%d = add v%d, v%d", id, x.L, x.R)
	case ir.Cmp:
		b = fmt.Appendf(b, "v%d = cmp %v v%d, v%d", id, x.Cond, x.L, x.R)
	case ir.Phi:
		b = fmt.Appendf(b, "v%d = phi [", id)

		for i, br := range x {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = fmt.Appendf(b, "%v: v%d", f.Blocks[br.Block].Name, br.Expr)
		}

		b = append(b, ']')
	case ir.B:
		b = fmt.Appendf(b, "br %v", f.Blocks[x.Block].Name)
	case ir.BCond:
		b = fmt.Appendf(b, "brif v%d, %v", x.Expr, f.Blocks[x.Block].Name)
	case ir.Ret:
		if x.Val == ir.Nil {
			b = append(b, "ret"...)
		} else {
			b = fmt.Appendf(b, "ret v%d", x.Val)
		}
	default:
		return nil, errors.New("unsupported instr: %T", x)
	}

	b = append(b, '\n')

	return b, nil
}

func constant(b []byte, t tp.Type, c ir.Const) []byte {
	switch t.(type) {
	case tp.B256:
		raw := c.V.Bytes32()

		return fmt.Appendf(b, "0x%x", raw)
	default:
		return fmt.Appendf(b, "%v", c.V.Uint64())
	}
}
