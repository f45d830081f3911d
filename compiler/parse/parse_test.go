package parse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirlang/mir/compiler/format"
	"github.com/mirlang/mir/compiler/ir"
	"github.com/mirlang/mir/compiler/tp"
)

const wide = `
; the reference demotion input
func main() -> u64 {
	local b256 foo = 0x0101010101010101010101010101010101010101010101010101010101010101

entry:
	v0 = get_local foo
	v1 = load v0
	v2 = ptr_to_int v1 to u64
	ret v2
}
`

const loop = `
func count(v0: u64) -> u64 {
entry:
	v1 = const u64 0
	br head
head:
	v2 = phi [entry: v1, body: v5]
	v3 = cmp gt v2, v0
	brif v3, exit
body:
	v4 = const u64 1
	v5 = add v2, v4
	br head
exit:
	ret v2
}
`

func TestParseWide(t *testing.T) {
	ctx := context.Background()

	pkg, err := Parse(ctx, "wide.mir", []byte(wide))
	require.NoError(t, err)
	require.Len(t, pkg.Funcs, 1)

	f := pkg.Funcs[0]

	require.NoError(t, ir.Validate(f))

	assert.Equal(t, "main", f.Name)
	assert.Equal(t, tp.U64, f.Out)

	require.Len(t, f.Locals, 1)
	assert.Equal(t, "foo", f.Locals[0].Name)
	assert.Equal(t, tp.B256{}, f.Locals[0].Type)
	require.NotNil(t, f.Locals[0].Init)
	assert.Equal(t, 256, f.Locals[0].Init.V.BitLen())

	require.Len(t, f.Blocks, 1)
	require.Len(t, f.Blocks[0].Code, 4)

	code := f.Blocks[0].Code

	_, ok := f.Exprs[code[1]].(ir.Load)
	require.True(t, ok)
	assert.Equal(t, tp.B256{}, f.EType[code[1]])

	conv, ok := f.Exprs[code[2]].(ir.PtrToInt)
	require.True(t, ok)
	assert.Equal(t, code[1], conv.X)
	assert.Equal(t, tp.U64, f.EType[code[2]])
}

func TestParseForwardRefs(t *testing.T) {
	ctx := context.Background()

	pkg, err := Parse(ctx, "loop.mir", []byte(loop))
	require.NoError(t, err)

	f := pkg.Funcs[0]

	require.NoError(t, ir.Validate(f))

	require.Len(t, f.Blocks, 4)

	head := f.Blocks[1]

	phi, ok := f.Exprs[head.Code[0]].(ir.Phi)
	require.True(t, ok, "%T", f.Exprs[head.Code[0]])
	require.Len(t, phi, 2)

	assert.Equal(t, 0, phi[0].Block)
	assert.Equal(t, 2, phi[1].Block)

	// the forward-referenced branch value is the body add
	add, ok := f.Exprs[phi[1].Expr].(ir.Add)
	require.True(t, ok, "%T", f.Exprs[phi[1].Expr])
	assert.Equal(t, head.Code[0], add.L)

	assert.Equal(t, tp.U64, f.EType[head.Code[0]])
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, text := range []string{wide, loop} {
		pkg, err := Parse(ctx, "t.mir", []byte(text))
		require.NoError(t, err)

		out1, err := format.Package(ctx, nil, pkg)
		require.NoError(t, err)

		pkg2, err := Parse(ctx, "t.mir", out1)
		require.NoError(t, err)

		out2, err := format.Package(ctx, nil, pkg2)
		require.NoError(t, err)

		require.Equal(t, string(out1), string(out2))
	}
}

func TestParseErrors(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name string
		text string
	}{
		{"unknown local", "func f() {\nentry:\n\tv0 = get_local nope\n\tret\n}\n"},
		{"undefined value", "func f() -> u64 {\nentry:\n\tret v7\n}\n"},
		{"redefined value", "func f() {\nentry:\n\tv0 = const u64 1\n\tv0 = const u64 2\n\tret\n}\n"},
		{"redefined block", "func f() {\nentry:\n\tbr entry\nentry:\n\tret\n}\n"},
		{"unknown block", "func f() {\nentry:\n\tbr nowhere\n}\n"},
		{"redeclared local", "func f() {\n\tlocal u64 x\n\tlocal u64 x\nentry:\n\tret\n}\n"},
		{"wide int", "func f() {\n\tlocal u64 x = 0x10000000000000000\nentry:\n\tret\n}\n"},
		{"wide b256", "func f() {\n\tlocal b256 x = 0x010101010101010101010101010101010101010101010101010101010101010101\nentry:\n\tret\n}\n"},
		{"junk after instr", "func f() {\nentry:\n\tret 1 2\n}\n"},
	} {
		_, err := Parse(ctx, tc.name, []byte(tc.text))
		assert.Error(t, err, tc.name)
		t.Logf("%v: %v", tc.name, err)
	}
}
