package heap_test

import (
	"testing"

	"github.com/mna/lovm/lang/chunk"
	"github.com/mna/lovm/lang/heap"
	"github.com/mna/lovm/lang/value"
	"github.com/stretchr/testify/require"
)

func TestInternStringUniqueness(t *testing.T) {
	h := heap.New(heap.DefaultConfig())
	a := h.InternString("hello")
	b := h.InternString("hello")
	require.Same(t, a, b)

	c := h.InternString("world")
	require.NotSame(t, a, c)
}

func TestConcatInterns(t *testing.T) {
	h := heap.New(heap.DefaultConfig())
	foo := h.InternString("foo")
	bar := h.InternString("bar")
	foobar := h.Concat(foo, bar)
	require.Equal(t, "foobar", foobar.Chars)
	require.Same(t, foobar, h.InternString("foobar"))
}

func TestFunctionDisplay(t *testing.T) {
	h := heap.New(heap.DefaultConfig())
	top := h.NewFunction(nil, chunk.New())
	require.Equal(t, "<script>", top.String())

	named := h.NewFunction(h.InternString("fib"), chunk.New())
	require.Equal(t, "<fn fib>", named.String())
}

func TestGCMarkSweepReclaimsUnreachable(t *testing.T) {
	h := heap.New(heap.DefaultConfig())
	kept := h.InternString("kept")
	_ = h.InternString("garbage")

	before := h.NumObjects()
	require.Equal(t, 3, before) // "init" + kept + garbage

	// mark only "init" and "kept" reachable, leave "garbage" white
	h.MarkValue(h.InitString())
	h.MarkValue(kept)
	h.SweepStrings()
	h.Sweep()

	require.Equal(t, 2, h.NumObjects())
}

func TestGCBlackenClosureReachesFunctionAndUpvalues(t *testing.T) {
	h := heap.New(heap.DefaultConfig())
	fn := h.NewFunction(h.InternString("f"), chunk.New())
	fn.UpvalueCount = 1
	clo := h.NewClosure(fn)
	var captured value.Value = value.Number(1)
	clo.Upvalues[0] = h.NewUpvalue(0, &captured)
	clo.Upvalues[0].Close()

	var marked []heap.Object
	mark := func(v value.Value) {
		if obj, ok := v.(heap.Object); ok {
			if h.MarkObject(obj) {
				marked = append(marked, obj)
			}
		}
	}
	mark(clo)
	for len(marked) > 0 {
		o := marked[len(marked)-1]
		marked = marked[:len(marked)-1]
		h.Blacken(o, mark)
	}

	h.SweepStrings()
	h.Sweep()
	// clo, fn, its name string, and the upvalue should all survive
	require.GreaterOrEqual(t, h.NumObjects(), 4)
}

func TestCompilerRootsSurviveCollectionBeforeWiring(t *testing.T) {
	h := heap.New(heap.DefaultConfig())
	orphan := h.InternString("orphan-but-rooted")
	h.PushCompilerRoot(orphan)

	for _, root := range h.CompilerRoots() {
		h.MarkObject(root)
	}
	h.MarkValue(h.InitString())
	h.SweepStrings()
	h.Sweep()

	require.Equal(t, 2, h.NumObjects())
	h.PopCompilerRoot()
}
