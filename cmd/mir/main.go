package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/mirlang/mir/compiler"
	"github.com/mirlang/mir/compiler/format"
	"github.com/mirlang/mir/compiler/parse"
)

func main() {
	fmtCmd := &cli.Command{
		Name:   "fmt",
		Action: fmtAct,
		Args:   cli.Args{},
	}

	demoteCmd := &cli.Command{
		Name:   "demote",
		Action: demoteAct,
		Args:   cli.Args{},
	}

	checkCmd := &cli.Command{
		Name:   "check",
		Action: checkAct,
		Args:   cli.Args{},
	}

	app := &cli.Command{
		Name:        "mir",
		Description: "mir is a tool for managing mir intermediate representation",
		Commands: []*cli.Command{
			fmtCmd,
			demoteCmd,
			checkCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func fmtAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		pkg, err := parse.ParseFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		out, err := format.Package(ctx, nil, pkg)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}

		fmt.Printf("%s", out)
	}

	return nil
}

func demoteAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		out, err := compiler.ProcessFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "process %v", a)
		}

		fmt.Printf("%s", out)
	}

	return nil
}

func checkAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		var comp compiler.Compiler

		err = comp.Check(ctx, a, text)
		if err != nil {
			return errors.Wrap(err, "check %v", a)
		}

		fmt.Printf("%v: ok\n", a)
	}

	return nil
}
