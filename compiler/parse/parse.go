// Package parse builds ir from the textual grammar.
//
// The grammar is line oriented: one instruction per line, blocks
// introduced by `name:` labels, `;` comments to end of line. Value
// names (v0, v1, ...) and block labels may be referenced before they
// are defined; references are resolved when the function ends.
package parse

import (
	"context"
	"encoding/hex"
	"os"
	"strconv"

	"tlog.app/go/errors"

	"github.com/mirlang/mir/compiler/ir"
	"github.com/mirlang/mir/compiler/tp"
)

type (
	state struct {
		b []byte
		i int

		f *ir.Func

		vals    map[string]ir.Expr
		defined map[string]bool

		// defs parsed before a forward-referenced name point at
		// the preallocated id; remap chases to the canonical one.
		remap map[ir.Expr]ir.Expr

		labelPatches []func(labels map[string]int) error
		typePatches  []func(strict bool) error
	}
)

func ParseFile(ctx context.Context, name string) (*ir.Package, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	p, err := Parse(ctx, name, text)
	if err != nil {
		return nil, errors.Wrap(err, "%v", name)
	}

	return p, nil
}

func Parse(ctx context.Context, name string, text []byte) (*ir.Package, error) {
	s := &state{b: text}

	pkg := &ir.Package{Path: name}

	for {
		s.skipLines()

		if s.i == len(s.b) {
			break
		}

		f, err := s.parseFunc(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "line %v", s.line())
		}

		pkg.Funcs = append(pkg.Funcs, f)
	}

	return pkg, nil
}

func (s *state) parseFunc(ctx context.Context) (_ *ir.Func, err error) {
	s.f = &ir.Func{Out: tp.Unit{}}
	s.vals = map[string]ir.Expr{}
	s.defined = map[string]bool{}
	s.remap = map[ir.Expr]ir.Expr{}
	s.labelPatches = nil
	s.typePatches = nil

	if !s.word("func") {
		return nil, errors.New("func expected")
	}

	s.f.Name, err = s.ident()
	if err != nil {
		return nil, errors.Wrap(err, "func name")
	}

	err = s.parseParams()
	if err != nil {
		return nil, err
	}

	if s.word("->") {
		s.f.Out, err = s.parseType()
		if err != nil {
			return nil, errors.Wrap(err, "result type")
		}
	}

	if !s.word("{") {
		return nil, errors.New("func body expected")
	}

	s.skipLines()

	for s.word("local") {
		err = s.parseLocal()
		if err != nil {
			return nil, errors.Wrap(err, "local")
		}

		s.skipLines()
	}

	labels := map[string]int{}

	for !s.word("}") {
		err = s.parseBlock(labels)
		if err != nil {
			return nil, err
		}
	}

	for name, id := range s.vals {
		if !s.defined[name] {
			return nil, errors.New("%v used but never defined (as v%d)", name, id)
		}
	}

	for _, p := range s.labelPatches {
		err = p(labels)
		if err != nil {
			return nil, err
		}
	}

	// types of loads, adds and phis copy from operands which may
	// themselves be patched later in the list, so propagate
	for round := 0; round < len(s.typePatches); round++ {
		for _, p := range s.typePatches {
			_ = p(false)
		}
	}

	for _, p := range s.typePatches {
		err = p(true)
		if err != nil {
			return nil, err
		}
	}

	return s.f, nil
}

func (s *state) parseParams() (err error) {
	if !s.word("(") {
		return errors.New("params expected")
	}

	for !s.word(")") {
		if len(s.f.In) != 0 && !s.word(",") {
			return errors.New("comma expected")
		}

		name, err := s.ident()
		if err != nil {
			return errors.Wrap(err, "param name")
		}

		if !s.word(":") {
			return errors.New("param type expected")
		}

		t, err := s.parseType()
		if err != nil {
			return errors.Wrap(err, "param type")
		}

		id, err := s.bind(name, s.f.Alloc(ir.Arg(len(s.f.In)), t))
		if err != nil {
			return err
		}

		s.f.In = append(s.f.In, ir.Param{Name: name, Expr: id})
	}

	return nil
}

func (s *state) parseLocal() (err error) {
	t, err := s.parseType()
	if err != nil {
		return errors.Wrap(err, "type")
	}

	name, err := s.ident()
	if err != nil {
		return errors.Wrap(err, "name")
	}

	if s.f.FindLocal(name) >= 0 {
		return errors.New("local %v redeclared", name)
	}

	var init *ir.Const

	if s.word("=") {
		c, err := s.parseConst(t)
		if err != nil {
			return errors.Wrap(err, "init")
		}

		init = &c
	}

	if !s.endOfLine() {
		return errors.New("end of line expected")
	}

	s.f.AddLocal(name, t, init)

	return nil
}

func (s *state) parseBlock(labels map[string]int) (err error) {
	name, err := s.ident()
	if err != nil {
		return errors.Wrap(err, "label (line %v)", s.line())
	}

	if !s.word(":") {
		return errors.New("colon expected after label %v (line %v)", name, s.line())
	}

	if _, ok := labels[name]; ok {
		return errors.New("block %v redefined (line %v)", name, s.line())
	}

	labels[name] = len(s.f.Blocks)
	s.f.Blocks = append(s.f.Blocks, ir.Block{Name: name})
	bi := len(s.f.Blocks) - 1

	s.skipLines()

	for {
		done, err := s.parseInstr(bi)
		if err != nil {
			return errors.Wrap(err, "block %v (line %v)", name, s.line())
		}

		s.skipLines()

		if done {
			return nil
		}
	}
}

// parseInstr parses one instruction line into the current block.
// It reports true after the block terminator.
func (s *state) parseInstr(bi int) (done bool, err error) {
	push := func(id ir.Expr) {
		s.f.Blocks[bi].Code = append(s.f.Blocks[bi].Code, id)
	}

	switch {
	case s.word("store"):
		val, err := s.value()
		if err != nil {
			return false, errors.Wrap(err, "store value")
		}

		if !s.word("to") {
			return false, errors.New("store destination expected")
		}

		ptr, err := s.value()
		if err != nil {
			return false, errors.Wrap(err, "store destination")
		}

		push(s.f.Alloc(ir.Store{Ptr: ptr, Val: val}, tp.Unit{}))

	case s.word("br"):
		lab, err := s.ident()
		if err != nil {
			return false, errors.Wrap(err, "branch target")
		}

		id := s.f.Alloc(ir.B{}, tp.Unit{})
		push(id)

		s.patchLabel(lab, func(b int) { s.f.Exprs[id] = ir.B{Block: b} })

		done = true

	case s.word("brif"):
		cond, err := s.value()
		if err != nil {
			return false, errors.Wrap(err, "condition")
		}

		if !s.word(",") {
			return false, errors.New("branch target expected")
		}

		lab, err := s.ident()
		if err != nil {
			return false, errors.Wrap(err, "branch target")
		}

		id := s.f.Alloc(ir.BCond{Expr: cond}, tp.Unit{})
		push(id)

		s.patchLabel(lab, func(b int) { s.f.Exprs[id] = ir.BCond{Expr: cond, Block: b} })

		done = true

	case s.word("ret"):
		val := ir.Nil

		if !s.atEndOfLine() {
			val, err = s.value()
			if err != nil {
				return false, errors.Wrap(err, "ret value")
			}
		}

		push(s.f.Alloc(ir.Ret{Val: val}, tp.Unit{}))

		done = true

	default:
		name, err := s.ident()
		if err != nil {
			return false, errors.Wrap(err, "instr")
		}

		if !s.word("=") {
			return false, errors.New("assignment expected")
		}

		id, err := s.parseExpr()
		if err != nil {
			return false, err
		}

		id, err = s.bind(name, id)
		if err != nil {
			return false, err
		}

		push(id)
	}

	if !s.endOfLine() {
		return false, errors.New("end of line expected")
	}

	return done, nil
}

func (s *state) parseExpr() (_ ir.Expr, err error) {
	switch {
	case s.word("const"):
		t, err := s.parseType()
		if err != nil {
			return ir.Nil, errors.Wrap(err, "const type")
		}

		c, err := s.parseConst(t)
		if err != nil {
			return ir.Nil, errors.Wrap(err, "const")
		}

		return s.f.Alloc(c, t), nil

	case s.word("get_local"):
		name, err := s.ident()
		if err != nil {
			return ir.Nil, errors.Wrap(err, "local name")
		}

		l := s.f.FindLocal(name)
		if l < 0 {
			return ir.Nil, errors.New("unknown local: %v", name)
		}

		return s.f.Alloc(ir.GetLocal{Local: l}, tp.Ptr{X: s.f.Locals[l].Type}), nil

	case s.word("load"):
		ptr, err := s.value()
		if err != nil {
			return ir.Nil, errors.Wrap(err, "load")
		}

		id := s.f.Alloc(ir.Load{Ptr: ptr}, tp.Unit{})

		s.patchType(id, func(id ir.Expr, strict bool) error {
			p, ok := s.f.EType[ptr].(tp.Ptr)
			if !ok {
				if strict {
					return errors.New("load of non-pointer v%d", ptr)
				}

				return nil
			}

			s.f.EType[id] = p.X

			return nil
		})

		return id, nil

	case s.word("ptr_to_int"):
		x, err := s.value()
		if err != nil {
			return ir.Nil, errors.Wrap(err, "operand")
		}

		if !s.word("to") {
			return ir.Nil, errors.New("target type expected")
		}

		t, err := s.parseType()
		if err != nil {
			return ir.Nil, errors.Wrap(err, "target type")
		}

		return s.f.Alloc(ir.PtrToInt{X: x}, t), nil

	case s.word("add"):
		l, r, err := s.valuePair()
		if err != nil {
			return ir.Nil, err
		}

		id := s.f.Alloc(ir.Add{L: l, R: r}, tp.Unit{})

		s.patchType(id, func(id ir.Expr, strict bool) error {
			s.f.EType[id] = s.f.EType[l]
			return nil
		})

		return id, nil

	case s.word("cmp"):
		cond, err := s.ident()
		if err != nil {
			return ir.Nil, errors.Wrap(err, "condition")
		}

		l, r, err := s.valuePair()
		if err != nil {
			return ir.Nil, err
		}

		return s.f.Alloc(ir.Cmp{Cond: ir.Cond(cond), L: l, R: r}, tp.Bool{}), nil

	case s.word("phi"):
		return s.parsePhi()

	default:
		return ir.Nil, errors.New("expr expected")
	}
}

func (s *state) parsePhi() (_ ir.Expr, err error) {
	if !s.word("[") {
		return ir.Nil, errors.New("phi branches expected")
	}

	type branch struct {
		label string
		val   ir.Expr
	}

	var brs []branch

	for !s.word("]") {
		if len(brs) != 0 && !s.word(",") {
			return ir.Nil, errors.New("comma expected")
		}

		lab, err := s.ident()
		if err != nil {
			return ir.Nil, errors.Wrap(err, "phi block")
		}

		if !s.word(":") {
			return ir.Nil, errors.New("phi value expected")
		}

		val, err := s.value()
		if err != nil {
			return ir.Nil, errors.Wrap(err, "phi value")
		}

		brs = append(brs, branch{label: lab, val: val})
	}

	if len(brs) == 0 {
		return ir.Nil, errors.New("empty phi")
	}

	id := s.f.Alloc(ir.Phi(nil), tp.Unit{})

	s.labelPatches = append(s.labelPatches, func(labels map[string]int) error {
		phi := make(ir.Phi, len(brs))

		for i, br := range brs {
			b, ok := labels[br.label]
			if !ok {
				return errors.New("unknown block: %v", br.label)
			}

			phi[i] = ir.PhiBranch{Block: b, Expr: br.val}
		}

		s.f.Exprs[s.canon(id)] = phi

		return nil
	})

	s.patchType(id, func(id ir.Expr, strict bool) error {
		s.f.EType[id] = s.f.EType[brs[0].val]
		return nil
	})

	return id, nil
}

func (s *state) parseType() (tp.Type, error) {
	switch {
	case s.word("unit"):
		return tp.Unit{}, nil
	case s.word("bool"):
		return tp.Bool{}, nil
	case s.word("u8"):
		return tp.U8, nil
	case s.word("u16"):
		return tp.U16, nil
	case s.word("u32"):
		return tp.U32, nil
	case s.word("u64"):
		return tp.U64, nil
	case s.word("b256"):
		return tp.B256{}, nil
	case s.word("ptr"):
		x, err := s.parseType()
		if err != nil {
			return nil, errors.Wrap(err, "pointee")
		}

		return tp.Ptr{X: x}, nil
	default:
		return nil, errors.New("type expected")
	}
}

func (s *state) parseConst(t tp.Type) (c ir.Const, err error) {
	tok, err := s.ident()
	if err != nil {
		return c, errors.Wrap(err, "value")
	}

	if _, ok := t.(tp.B256); ok {
		if len(tok) < 2 || tok[0] != '0' || tok[1] != 'x' {
			return c, errors.New("hex value expected: %v", tok)
		}

		h := tok[2:]
		if len(h)%2 != 0 {
			h = "0" + h
		}

		raw, err := hex.DecodeString(h)
		if err != nil {
			return c, errors.Wrap(err, "hex value")
		}

		if len(raw) > 32 {
			return c, errors.New("value is too wide: %v bytes", len(raw))
		}

		c.V.SetBytes(raw)

		return c, nil
	}

	v, err := strconv.ParseUint(tok, 0, 64)
	if err != nil {
		return c, errors.Wrap(err, "int value")
	}

	return ir.Word(v), nil
}

// bind makes name the definition of id and returns the canonical id:
// if the name was forward-referenced the instr moves onto the
// preallocated slot.
func (s *state) bind(name string, id ir.Expr) (ir.Expr, error) {
	if s.defined[name] {
		return ir.Nil, errors.New("%v redefined", name)
	}

	if old, ok := s.vals[name]; ok {
		s.f.Exprs[old] = s.f.Exprs[id]
		s.f.EType[old] = s.f.EType[id]
		s.f.Exprs[id] = nil

		s.remap[id] = old

		id = old
	}

	s.vals[name] = id
	s.defined[name] = true

	return id, nil
}

func (s *state) canon(id ir.Expr) ir.Expr {
	for {
		to, ok := s.remap[id]
		if !ok {
			return id
		}

		id = to
	}
}

func (s *state) patchType(id ir.Expr, fix func(id ir.Expr, strict bool) error) {
	s.typePatches = append(s.typePatches, func(strict bool) error {
		return fix(s.canon(id), strict)
	})
}

func (s *state) value() (ir.Expr, error) {
	name, err := s.ident()
	if err != nil {
		return ir.Nil, errors.Wrap(err, "value name")
	}

	if id, ok := s.vals[name]; ok {
		return id, nil
	}

	id := s.f.Alloc(nil, tp.Unit{})
	s.vals[name] = id

	return id, nil
}

func (s *state) valuePair() (l, r ir.Expr, err error) {
	l, err = s.value()
	if err != nil {
		return ir.Nil, ir.Nil, errors.Wrap(err, "left")
	}

	if !s.word(",") {
		return ir.Nil, ir.Nil, errors.New("comma expected")
	}

	r, err = s.value()
	if err != nil {
		return ir.Nil, ir.Nil, errors.Wrap(err, "right")
	}

	return l, r, nil
}

func (s *state) patchLabel(lab string, fix func(b int)) {
	s.labelPatches = append(s.labelPatches, func(labels map[string]int) error {
		b, ok := labels[lab]
		if !ok {
			return errors.New("unknown block: %v", lab)
		}

		fix(b)

		return nil
	})
}
