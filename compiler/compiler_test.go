package compiler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// demoteWide is the wide ptr_to_int regression input. The embedded
// directives assert the store/reload sequence through the synthetic
// local replaces the direct conversion.
const demoteWide = `
func main() -> u64 {
	local b256 foo = 0x0101010101010101010101010101010101010101010101010101010101010101

entry:
	v0 = get_local foo
	v1 = load v0
	v2 = ptr_to_int v1 to u64
	ret v2
}

; check: local b256 foo
; check: local b256 $tmp
; check: $loaded = load
; check: $addr = get_local $tmp
; check: store $loaded to $addr
; check: $res = ptr_to_int $addr to u64
; check: ret $res
; not: ptr_to_int $loaded
`

func TestDemoteWide(t *testing.T) {
	ctx := context.Background()

	var c Compiler

	err := c.Check(ctx, "demote_wide.mir", []byte(demoteWide))
	require.NoError(t, err)

	out, err := c.Process(ctx, "demote_wide.mir", []byte(demoteWide))
	require.NoError(t, err)

	t.Logf("output:\n%s", out)

	assert.False(t, strings.Contains(string(out), "ptr_to_int v1 "), "direct conversion survived:\n%s", out)
}

func TestProcessIdempotent(t *testing.T) {
	ctx := context.Background()

	// value ids renumber densely on the first reprocess and are
	// stable from then on; the demotion itself must not reapply
	out1, err := Process(ctx, "t.mir", []byte(demoteWide))
	require.NoError(t, err)

	out2, err := Process(ctx, "t.mir", out1)
	require.NoError(t, err)

	out3, err := Process(ctx, "t.mir", out2)
	require.NoError(t, err)

	require.Equal(t, string(out2), string(out3))

	require.Equal(t, strings.Count(string(out1), "local"), strings.Count(string(out2), "local"), "demotion reapplied:\n%s", out2)
}

func TestProcessNoOp(t *testing.T) {
	ctx := context.Background()

	// narrow conversion of an address: already in demoted shape
	in := `func f() -> u64 {
	local u64 x = 42

entry:
	v0 = get_local x
	v1 = ptr_to_int v0 to u64
	ret v1
}
`

	out, err := Process(ctx, "t.mir", []byte(in))
	require.NoError(t, err)
	require.Equal(t, in, string(out))
}

func TestCheckMismatch(t *testing.T) {
	ctx := context.Background()

	in := `func f() {
entry:
	ret
}

; check: ptr_to_int
`

	var c Compiler

	err := c.Check(ctx, "t.mir", []byte(in))
	require.Error(t, err)
	t.Logf("err: %v", err)
}

func TestProcessBadInput(t *testing.T) {
	ctx := context.Background()

	_, err := Process(ctx, "t.mir", []byte("func f() {\nentry:\n\tv0 = load v0\n\tret\n}\n"))
	require.Error(t, err)
	t.Logf("err: %v", err)
}
