package demote

import (
	"context"
	"testing"

	"github.com/mirlang/mir/compiler/format"
	"github.com/mirlang/mir/compiler/ir"
	"github.com/mirlang/mir/compiler/tp"
)

// wideFunc is the reference pattern: a b256 local loaded and
// converted to an integer directly.
//
//	func main() -> u64 {
//		local b256 foo = 0x0101...01
//	entry:
//		v0 = get_local foo
//		v1 = load v0
//		v2 = ptr_to_int v1 to u64
//		ret v2
//	}
func wideFunc() *ir.Func {
	f := &ir.Func{Name: "main", Out: tp.U64}

	var raw [32]byte
	for i := range raw {
		raw[i] = 0x01
	}

	init := ir.B256(raw)

	foo := f.AddLocal("foo", tp.B256{}, &init)

	v0 := f.Alloc(ir.GetLocal{Local: foo}, tp.Ptr{X: tp.B256{}})
	v1 := f.Alloc(ir.Load{Ptr: v0}, tp.B256{})
	v2 := f.Alloc(ir.PtrToInt{X: v1}, tp.U64)
	r := f.Alloc(ir.Ret{Val: v2}, tp.Unit{})

	f.Blocks = []ir.Block{{Name: "entry", Code: []ir.Expr{v0, v1, v2, r}}}

	return f
}

func TestPtrToInt(t *testing.T) {
	ctx := context.Background()

	f := wideFunc()

	changed, err := PtrToInt(ctx, f, nil)
	if err != nil {
		t.Fatalf("demote: %v", err)
	}
	if !changed {
		t.Fatalf("pattern not matched")
	}

	err = ir.Validate(f)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	if len(f.Locals) != 2 {
		t.Fatalf("locals: %v", f.Locals)
	}
	if l := f.Locals[1]; l.Name != "tmp" || l.Type != (tp.B256{}) || l.Init != nil {
		t.Errorf("synthetic local: %+v", l)
	}

	code := f.Blocks[0].Code
	if len(code) != 6 {
		t.Fatalf("code: %v", code)
	}

	load := code[1]

	addr, ok := f.Exprs[code[2]].(ir.GetLocal)
	if !ok || addr.Local != 1 {
		t.Errorf("expected address of tmp, got %T %+v", f.Exprs[code[2]], f.Exprs[code[2]])
	}

	st, ok := f.Exprs[code[3]].(ir.Store)
	if !ok || st.Ptr != code[2] || st.Val != load {
		t.Errorf("expected store of loaded value into tmp, got %T %+v", f.Exprs[code[3]], f.Exprs[code[3]])
	}

	conv, ok := f.Exprs[code[4]].(ir.PtrToInt)
	if !ok || conv.X != code[2] {
		t.Errorf("conversion reads %+v, expected address of tmp v%d", f.Exprs[code[4]], code[2])
	}
	if f.EType[code[4]] != tp.U64 {
		t.Errorf("conversion type: %v", f.EType[code[4]])
	}

	ret, ok := f.Exprs[code[5]].(ir.Ret)
	if !ok || ret.Val != code[4] {
		t.Errorf("ret not rewired: %+v", f.Exprs[code[5]])
	}

	b, err := format.Func(ctx, nil, f)
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	t.Logf("demoted:\n%s", b)
}

func TestPtrToIntIdempotent(t *testing.T) {
	ctx := context.Background()

	f := wideFunc()

	_, err := PtrToInt(ctx, f, nil)
	if err != nil {
		t.Fatalf("demote: %v", err)
	}

	before, err := format.Func(ctx, nil, f)
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	changed, err := PtrToInt(ctx, f, nil)
	if err != nil {
		t.Fatalf("demote: %v", err)
	}
	if changed {
		t.Errorf("own output re-demoted")
	}

	after, err := format.Func(ctx, nil, f)
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	if string(before) != string(after) {
		t.Errorf("second run changed the func\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func TestPtrToIntNoMatch(t *testing.T) {
	ctx := context.Background()

	// address converted, not a value: nothing to demote
	f := &ir.Func{Name: "narrow", Out: tp.U64}

	l := f.AddLocal("x", tp.U64, nil)

	v0 := f.Alloc(ir.GetLocal{Local: l}, tp.Ptr{X: tp.U64})
	v1 := f.Alloc(ir.PtrToInt{X: v0}, tp.U64)
	r := f.Alloc(ir.Ret{Val: v1}, tp.Unit{})

	f.Blocks = []ir.Block{{Name: "entry", Code: []ir.Expr{v0, v1, r}}}

	before, _ := format.Func(ctx, nil, f)

	changed, err := PtrToInt(ctx, f, nil)
	if err != nil {
		t.Fatalf("demote: %v", err)
	}
	if changed {
		t.Errorf("no-op input rewritten")
	}

	after, _ := format.Func(ctx, nil, f)

	if string(before) != string(after) {
		t.Errorf("no-op input changed:\n%s", after)
	}
}

func TestPtrToIntCrossBlockUses(t *testing.T) {
	ctx := context.Background()

	f := &ir.Func{Name: "split", Out: tp.U64}

	foo := f.AddLocal("foo", tp.B256{}, nil)

	v0 := f.Alloc(ir.GetLocal{Local: foo}, tp.Ptr{X: tp.B256{}})
	v1 := f.Alloc(ir.Load{Ptr: v0}, tp.B256{})
	v2 := f.Alloc(ir.PtrToInt{X: v1}, tp.U64)
	br := f.Alloc(ir.B{Block: 1}, tp.Unit{})
	r := f.Alloc(ir.Ret{Val: v2}, tp.Unit{})

	f.Blocks = []ir.Block{
		{Name: "entry", Code: []ir.Expr{v0, v1, v2, br}},
		{Name: "exit", Code: []ir.Expr{r}},
	}

	changed, err := PtrToInt(ctx, f, nil)
	if err != nil {
		t.Fatalf("demote: %v", err)
	}
	if !changed {
		t.Fatalf("pattern not matched")
	}

	err = ir.Validate(f)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	if len(f.Blocks) != 2 {
		t.Fatalf("block count changed: %v", len(f.Blocks))
	}

	conv := f.Blocks[0].Code[len(f.Blocks[0].Code)-2]

	ret := f.Exprs[f.Blocks[1].Code[0]].(ir.Ret)
	if ret.Val != conv {
		t.Errorf("use in another block not rewired: %+v, conv v%d", ret, conv)
	}
}

func TestPtrToIntNameCollision(t *testing.T) {
	ctx := context.Background()

	f := wideFunc()
	f.AddLocal("tmp", tp.U64, nil)

	_, err := PtrToInt(ctx, f, nil)
	if err != nil {
		t.Fatalf("demote: %v", err)
	}

	last := f.Locals[len(f.Locals)-1]
	if last.Name != "tmp1" {
		t.Errorf("synthetic name: %v", last.Name)
	}
}

func TestPolicy(t *testing.T) {
	ctx := context.Background()

	f := wideFunc()

	changed, err := PtrToInt(ctx, f, Types(tp.U64))
	if err != nil {
		t.Fatalf("demote: %v", err)
	}
	if changed {
		t.Errorf("b256 matched by u64-only policy")
	}

	changed, err = PtrToInt(ctx, f, Types(tp.B256{}))
	if err != nil {
		t.Fatalf("demote: %v", err)
	}
	if !changed {
		t.Errorf("b256 not matched by explicit policy")
	}
}
