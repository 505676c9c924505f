package maincmd

import (
	"bufio"
	"context"
	"fmt"
	"sort"

	"github.com/mna/lovm/internal/config"
	"github.com/mna/lovm/lang/compiler"
	"github.com/mna/lovm/lang/heap"
	"github.com/mna/lovm/lang/machine"
	"github.com/mna/lovm/lang/value"
	"github.com/mna/mainer"
	"golang.org/x/exp/maps"
)

// Repl runs an interactive read-eval-print loop, compiling and running each
// line in a VM that shares one heap (and so one globals table) across the
// whole session (§6 "interactive REPL... in a shared VM/heap").
//
// A line consisting of exactly ":globals" is a debug command that lists the
// currently defined global names instead of being compiled as a program.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return err
	}

	h := heap.New(cfg.HeapConfig())
	vm := machine.New(h, stdio.Stdout)

	scanner := bufio.NewScanner(stdio.Stdin)
	for {
		fmt.Fprint(stdio.Stdout, cfg.ReplPrompt)
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !scanner.Scan() {
			return nil
		}
		line := scanner.Text()

		if line == ":globals" {
			printGlobals(stdio, h)
			continue
		}
		if line == "" {
			continue
		}

		fn, errs := compiler.Compile(line, h)
		if len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(stdio.Stderr, "%s\n", e)
			}
			continue
		}
		if err := vm.Interpret(fn); err != nil {
			fmt.Fprintf(stdio.Stderr, "%s\n", err)
		}
	}
}

func printGlobals(stdio mainer.Stdio, h *heap.Heap) {
	snapshot := make(map[string]value.Value)
	h.Globals.Iter(func(name *heap.String, v value.Value) bool {
		snapshot[name.Chars] = v
		return false
	})

	names := maps.Keys(snapshot)
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(stdio.Stdout, "%s = %s\n", name, snapshot[name].String())
	}
}
