// Package demote rewrites operations on values too wide for a
// machine register into memory-mediated sequences.
package demote

import (
	"context"
	"fmt"

	"tlog.app/go/tlog"

	"github.com/mirlang/mir/compiler/ir"
	"github.com/mirlang/mir/compiler/tp"
)

type (
	// Policy decides which types require demotion. Which types
	// those are is a property of the target, not of the pass.
	Policy func(t tp.Type) bool
)

// WiderThanWord demotes everything that does not fit a register.
func WiderThanWord(t tp.Type) bool {
	return t.Size() > tp.WordBits/8
}

// Types demotes exactly the listed types.
func Types(list ...tp.Type) Policy {
	return func(t tp.Type) bool {
		for _, x := range list {
			if t == x {
				return true
			}
		}

		return false
	}
}

// PtrToInt rewrites every ptr_to_int applied directly to a demotable
// value, as opposed to an address. The value is stored into a fresh
// local of the same type and the conversion reads the address of
// that local instead:
//
//	v2 = ptr_to_int v1 to u64
//
// becomes
//
//	v3 = get_local tmp
//	store v1 to v3
//	v4 = ptr_to_int v3 to u64
//
// with every use of v2 rewired to v4. Addresses never match, so the
// pass is a no-op on its own output.
func PtrToInt(ctx context.Context, f *ir.Func, pol Policy) (changed bool, err error) {
	tr := tlog.SpanFromContext(ctx)

	if pol == nil {
		pol = WiderThanWord
	}

	tmps := 0
	rename := map[ir.Expr]ir.Expr{}

	for bi := range f.Blocks {
		code := f.Blocks[bi].Code
		out := make([]ir.Expr, 0, len(code))

		for _, id := range code {
			conv, ok := f.Exprs[id].(ir.PtrToInt)
			if !ok || !demotable(f.EType[conv.X], pol) {
				out = append(out, id)
				continue
			}

			t := f.EType[conv.X]

			l := f.AddLocal(tmpName(f, &tmps), t, nil)
			addr := f.Alloc(ir.GetLocal{Local: l}, tp.Ptr{X: t})
			st := f.Alloc(ir.Store{Ptr: addr, Val: conv.X}, tp.Unit{})
			ni := f.Alloc(ir.PtrToInt{X: addr}, f.EType[id])

			out = append(out, addr, st, ni)

			rename[id] = ni
			changed = true

			tr.V("demote").Printw("demote ptr_to_int", "func", f.Name, "block", f.Blocks[bi].Name, "id", id, "new", ni, "tmp", f.Locals[l].Name, "tp", t)
		}

		f.Blocks[bi].Code = out
	}

	if !changed {
		return false, nil
	}

	ren := func(x ir.Expr) ir.Expr {
		for {
			y, ok := rename[x]
			if !ok {
				return x
			}

			x = y
		}
	}

	for bi := range f.Blocks {
		for _, id := range f.Blocks[bi].Code {
			f.Exprs[id] = ir.MapOperands(f.Exprs[id], ren)
		}
	}

	return true, nil
}

func demotable(t tp.Type, pol Policy) bool {
	if _, ok := t.(tp.Ptr); ok {
		return false
	}

	return pol(t)
}

// tmpName picks a fresh local name. The counter is scoped to one
// pass invocation, so names are deterministic.
func tmpName(f *ir.Func, n *int) string {
	for {
		name := "tmp"
		if *n != 0 {
			name = fmt.Sprintf("tmp%d", *n)
		}

		*n++

		if f.FindLocal(name) < 0 {
			return name
		}
	}
}
