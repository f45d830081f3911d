package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/mirlang/mir/compiler/demote"
	"github.com/mirlang/mir/compiler/filecheck"
	"github.com/mirlang/mir/compiler/format"
	"github.com/mirlang/mir/compiler/ir"
	"github.com/mirlang/mir/compiler/parse"
	"github.com/mirlang/mir/compiler/pass"
)

type (
	Compiler struct {
		// Policy selects the types the demotion passes apply to.
		// Nil means everything wider than a machine word.
		Policy demote.Policy

		Workers int
	}
)

func ProcessFile(ctx context.Context, name string) (out []byte, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Process(ctx, name, text)
}

func Process(ctx context.Context, name string, text []byte) ([]byte, error) {
	var c Compiler

	return c.Process(ctx, name, text)
}

func (c *Compiler) Process(ctx context.Context, name string, text []byte) (out []byte, err error) {
	pkg, err := c.Transform(ctx, name, text)
	if err != nil {
		return nil, err
	}

	out, err = format.Package(ctx, nil, pkg)
	if err != nil {
		return nil, errors.Wrap(err, "format")
	}

	return out, nil
}

func (c *Compiler) Transform(ctx context.Context, name string, text []byte) (pkg *ir.Package, err error) {
	pkg, err = parse.Parse(ctx, name, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse text")
	}

	err = validate(pkg)
	if err != nil {
		return nil, errors.Wrap(err, "validate input")
	}

	m := pass.Manager{Workers: c.Workers}

	m.Register("demote_ptr_to_int", func(ctx context.Context, f *ir.Func) (bool, error) {
		return demote.PtrToInt(ctx, f, c.Policy)
	})

	err = m.RunPackage(ctx, pkg)
	if err != nil {
		return nil, errors.Wrap(err, "passes")
	}

	err = validate(pkg)
	if err != nil {
		return nil, errors.Wrap(err, "validate output")
	}

	return pkg, nil
}

// Check processes the input and verifies the output against
// filecheck directives embedded in the input comments.
func (c *Compiler) Check(ctx context.Context, name string, text []byte) error {
	out, err := c.Process(ctx, name, text)
	if err != nil {
		return err
	}

	ch, err := filecheck.FromComments(text)
	if err != nil {
		return errors.Wrap(err, "directives")
	}

	err = ch.Check(out)
	if err != nil {
		return errors.Wrap(err, "%v", name)
	}

	return nil
}

func validate(pkg *ir.Package) error {
	for _, f := range pkg.Funcs {
		err := ir.Validate(f)
		if err != nil {
			return errors.Wrap(err, "func %v", f.Name)
		}
	}

	return nil
}
