// Package pass runs registered ir transformations over a package.
package pass

import (
	"context"
	"runtime"
	"sync"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/mirlang/mir/compiler/ir"
)

type (
	Run func(ctx context.Context, f *ir.Func) (changed bool, err error)

	Pass struct {
		Name string
		Run  Run

		from loc.PC
	}

	// Manager applies passes in registration order. Functions do
	// not share mutable state, so they are processed by a bounded
	// pool of workers, biggest first. The result does not depend
	// on Workers.
	Manager struct {
		Workers int

		passes []Pass
	}

	job struct {
		f    *ir.Func
		size int
	}
)

func (m *Manager) Register(name string, run Run) {
	m.passes = append(m.passes, Pass{Name: name, Run: run, from: loc.Caller(1)})
}

func (m *Manager) RunPackage(ctx context.Context, pkg *ir.Package) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "run passes", "pkg", pkg.Path, "funcs", len(pkg.Funcs), "passes", len(m.passes))
	defer tr.Finish("err", &err)

	if tr.If("dump_passes") {
		for _, p := range m.passes {
			tr.Printw("pass", "name", p.Name, "from", p.from)
		}
	}

	if len(pkg.Funcs) == 0 || len(m.passes) == 0 {
		return nil
	}

	jobs := heap.Heap[job]{Less: jobsLess}

	for _, f := range pkg.Funcs {
		jobs.Push(job{f: f, size: size(f)})
	}

	workers := m.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > jobs.Len() {
		workers = jobs.Len()
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	ch := make(chan job)

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := range ch {
				e := m.runFunc(ctx, j)
				if e == nil {
					continue
				}

				mu.Lock()
				if err == nil {
					err = errors.Wrap(e, "func %v", j.f.Name)
				}
				mu.Unlock()
			}
		}()
	}

	for jobs.Len() != 0 {
		ch <- jobs.Pop()
	}

	close(ch)
	wg.Wait()

	return err
}

func (m *Manager) runFunc(ctx context.Context, j job) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "func passes", "name", j.f.Name, "size", j.size)
	defer tr.Finish("err", &err)

	for _, p := range m.passes {
		changed, err := p.Run(ctx, j.f)
		if err != nil {
			return errors.Wrap(err, "%v", p.Name)
		}

		tr.V("pass").Printw("pass done", "name", p.Name, "changed", changed)
	}

	return nil
}

func size(f *ir.Func) (s int) {
	for _, b := range f.Blocks {
		s += len(b.Code)
	}

	return s
}

func jobsLess(d []job, i, j int) bool {
	if d[i].size != d[j].size {
		return d[i].size > d[j].size
	}

	return d[i].f.Name < d[j].f.Name
}

func (j job) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)

	b = e.AppendKeyValue(b, "func", j.f.Name)
	b = e.AppendKeyInt(b, "size", j.size)

	return b
}
