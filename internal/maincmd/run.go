package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/lovm/internal/config"
	"github.com/mna/lovm/lang/compiler"
	"github.com/mna/lovm/lang/heap"
	"github.com/mna/lovm/lang/machine"
	"github.com/mna/mainer"
)

// compileError wraps the compiler's diagnostics so Main can map it to the
// compile-error exit code (§6) instead of the generic failure one.
type compileError struct{ errs []error }

func (e *compileError) Error() string {
	msg := "compile error"
	if len(e.errs) > 0 {
		msg = e.errs[0].Error()
	}
	if len(e.errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(e.errs)-1)
	}
	return msg
}

// runtimeFailure wraps a machine.RuntimeError so Main can map it to the
// runtime-error exit code (§6) instead of the generic failure one.
type runtimeFailure struct{ err error }

func (e *runtimeFailure) Error() string { return e.err.Error() }
func (e *runtimeFailure) Unwrap() error { return e.err }

// Run compiles and executes the single script named by args[0].
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return err
	}

	h := heap.New(cfg.HeapConfig())
	fn, errs := compiler.Compile(string(src), h)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(stdio.Stderr, "%s\n", e)
		}
		return &compileError{errs: errs}
	}

	vm := machine.New(h, stdio.Stdout)
	if err := vm.Interpret(fn); err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return &runtimeFailure{err: err}
	}
	return nil
}
