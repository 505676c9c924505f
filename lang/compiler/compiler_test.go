package compiler_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/mna/lovm/lang/compiler"
	"github.com/mna/lovm/lang/heap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileOK(t *testing.T, src string) (*heap.Function, *heap.Heap) {
	t.Helper()
	h := heap.New(heap.DefaultConfig())
	fn, errs := compiler.Compile(src, h)
	require.Empty(t, errs)
	require.NotNil(t, fn)
	return fn, h
}

// disassembleAll renders fn's chunk followed by the chunks of every function
// nested in its constant pool, recursively, since Disassemble only covers
// the one chunk it is called on.
func disassembleAll(fn *heap.Function) string {
	var b strings.Builder
	b.WriteString(fn.Chunk.Disassemble(fn.String()))
	for _, k := range fn.Chunk.Constants {
		if nested, ok := k.(*heap.Function); ok {
			b.WriteString(disassembleAll(nested))
		}
	}
	return b.String()
}

func TestCompileArithmeticPrecedence(t *testing.T) {
	fn, _ := compileOK(t, "print 1 + 2 * 3;")
	dis := fn.Chunk.Disassemble("top")
	// multiplication must be emitted before the addition it feeds.
	mulAt := strings.Index(dis, "OP_MULTIPLY")
	addAt := strings.Index(dis, "OP_ADD")
	require.NotEqual(t, -1, mulAt)
	require.NotEqual(t, -1, addAt)
	assert.Less(t, mulAt, addAt)
}

func TestCompilePropertyAccessBindsTighterThanUnary(t *testing.T) {
	fn, _ := compileOK(t, "print -a.b;")
	dis := fn.Chunk.Disassemble("top")
	propAt := strings.Index(dis, "OP_GET_PROPERTY")
	negAt := strings.Index(dis, "OP_NEGATE")
	require.NotEqual(t, -1, propAt)
	require.NotEqual(t, -1, negAt)
	assert.Less(t, propAt, negAt)
}

func TestCompileGlobalRoundTrip(t *testing.T) {
	fn, _ := compileOK(t, "var x = 10; print x;")
	dis := fn.Chunk.Disassemble("top")
	assert.Contains(t, dis, "OP_DEFINE_GLOBAL")
	assert.Contains(t, dis, "OP_GET_GLOBAL")
}

func TestCompileLocalUsesSlotNotGlobal(t *testing.T) {
	fn, _ := compileOK(t, "{ var x = 10; print x; }")
	dis := fn.Chunk.Disassemble("top")
	assert.Contains(t, dis, "OP_GET_LOCAL")
	assert.NotContains(t, dis, "OP_GET_GLOBAL")
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	fn, _ := compileOK(t, `
		fun outer() {
			var x = "captured";
			fun inner() { print x; }
			return inner;
		}
	`)
	dis := disassembleAll(fn)
	assert.Contains(t, dis, "OP_CLOSURE")
	assert.Contains(t, dis, "local 1")
}

func TestCompileClassWithSuperAndInit(t *testing.T) {
	fn, _ := compileOK(t, `
		class Animal {
			speak() { print "..."; }
		}
		class Dog < Animal {
			init() { this.name = "Rex"; }
			speak() { super.speak(); }
		}
	`)
	dis := disassembleAll(fn)
	assert.Contains(t, dis, "OP_INHERIT")
	assert.Contains(t, dis, "OP_METHOD")
	assert.Contains(t, dis, "OP_SUPER_INVOKE")
}

func TestCompileForDesugarsToWhileShapedJumps(t *testing.T) {
	fn, _ := compileOK(t, `
		for (var i = 0; i < 3; i = i + 1) {
			print i;
		}
	`)
	dis := fn.Chunk.Disassemble("top")
	assert.Contains(t, dis, "OP_LOOP")
	assert.Contains(t, dis, "OP_JUMP_IF_FALSE")
}

func TestCompileErrorsCollectMultipleDiagnostics(t *testing.T) {
	h := heap.New(heap.DefaultConfig())
	_, errs := compiler.Compile(`
		var;
		print 1 +;
	`, h)
	require.NotEmpty(t, errs)
	for _, err := range errs {
		var ce *compiler.Error
		require.ErrorAs(t, err, &ce)
		assert.Greater(t, ce.Line, 0)
	}
}

func TestCompileReturnOutsideFunctionIsError(t *testing.T) {
	h := heap.New(heap.DefaultConfig())
	_, errs := compiler.Compile("return 1;", h)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "Can't return from top-level code.")
}

func TestCompileSelfInheritanceIsError(t *testing.T) {
	h := heap.New(heap.DefaultConfig())
	_, errs := compiler.Compile("class A < A {}", h)
	require.NotEmpty(t, errs)
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "inherit from itself") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompileTooManyConstantsOverflowsPool(t *testing.T) {
	h := heap.New(heap.DefaultConfig())
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("print \"s")
		b.WriteString(strconv.Itoa(i))
		b.WriteString("\";\n")
	}
	_, errs := compiler.Compile(b.String(), h)
	require.NotEmpty(t, errs)
}
