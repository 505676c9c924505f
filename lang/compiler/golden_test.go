package compiler_test

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/mna/lovm/lang/compiler"
	"github.com/mna/lovm/lang/heap"
	"github.com/stretchr/testify/require"
)

// TestDisassemblyIsDeterministic compiles the same program twice and diffs
// the disassembly text with pretty, the same tool a golden-file regression
// test would reach for once bytecode shape needs to be pinned down.
func TestDisassemblyIsDeterministic(t *testing.T) {
	const src = `
		class Greeter {
			init(name) { this.name = name; }
			greet() { print "hi " + this.name; }
		}
		var g = Greeter("world");
		g.greet();
	`

	disassemble := func() string {
		h := heap.New(heap.DefaultConfig())
		fn, errs := compiler.Compile(src, h)
		require.Empty(t, errs)
		return fn.Chunk.Disassemble("script")
	}

	first := disassemble()
	second := disassemble()

	if diff := pretty.Compare(first, second); diff != "" {
		t.Errorf("disassembly is not deterministic across identical compiles:\n%s", diff)
	}
}
