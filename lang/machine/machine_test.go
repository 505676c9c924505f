package machine_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mna/lovm/lang/compiler"
	"github.com/mna/lovm/lang/heap"
	"github.com/mna/lovm/lang/machine"
	"github.com/mna/lovm/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type scenario struct {
	Name    string `yaml:"name"`
	Source  string `yaml:"source"`
	Output  string `yaml:"output"`
	WantErr string `yaml:"wantErr"`
}

func loadScenarios(t *testing.T) []scenario {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", "scenarios.yaml"))
	require.NoError(t, err)
	var scenarios []scenario
	require.NoError(t, yaml.Unmarshal(b, &scenarios))
	require.NotEmpty(t, scenarios)
	return scenarios
}

// TestScenarios runs every literal source -> expected-output case from
// spec §8's end-to-end scenario table (A-F).
func TestScenarios(t *testing.T) {
	for _, sc := range loadScenarios(t) {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			h := heap.New(heap.DefaultConfig())
			fn, errs := compiler.Compile(sc.Source, h)
			require.Empty(t, errs)

			var out bytes.Buffer
			vm := machine.New(h, &out)
			err := vm.Interpret(fn)

			if sc.WantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), sc.WantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, sc.Output, out.String())
		})
	}
}

func mustRun(t *testing.T, src string) (string, error) {
	t.Helper()
	h := heap.New(heap.DefaultConfig())
	fn, errs := compiler.Compile(src, h)
	require.Empty(t, errs)

	var out bytes.Buffer
	vm := machine.New(h, &out)
	err := vm.Interpret(fn)
	return out.String(), err
}

func TestArityMismatchReportsExpectedAndGot(t *testing.T) {
	_, err := mustRun(t, `
		fun add(a, b) { return a + b; }
		add(1);
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected 2 arguments but got 1.")
}

func TestCallingNonCallableIsRuntimeError(t *testing.T) {
	_, err := mustRun(t, `
		var x = 1;
		x();
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Can only call functions and classes.")
}

func TestUndefinedGlobalGetIsRuntimeError(t *testing.T) {
	_, err := mustRun(t, "print nope;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Undefined variable 'nope'.")
}

func TestUndefinedGlobalSetIsRuntimeError(t *testing.T) {
	_, err := mustRun(t, "nope = 1;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Undefined variable 'nope'.")
}

func TestRuntimeErrorIncludesBacktraceInnermostFirst(t *testing.T) {
	_, err := mustRun(t, `
		fun a() { return 1 + "x"; }
		fun b() { return a(); }
		b();
	`)
	require.Error(t, err)
	re, ok := err.(*machine.RuntimeError)
	require.True(t, ok)
	assert.Contains(t, re.Error(), "in a()")
	assert.Contains(t, re.Error(), "in b()")
}

func TestClockNativeReturnsNumber(t *testing.T) {
	h := heap.New(heap.DefaultConfig())
	fn, errs := compiler.Compile("var t = clock();", h)
	require.Empty(t, errs)
	var out bytes.Buffer
	vm := machine.New(h, &out)
	require.NoError(t, vm.Interpret(fn))

	tVal, ok := h.Globals.Get(h.InternString("t"))
	require.True(t, ok)
	_, isNumber := tVal.(value.Number)
	assert.True(t, isNumber)
}

func TestStrNativeStringifiesNumber(t *testing.T) {
	out, err := mustRun(t, `print str(42);`)
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestStressGCKeepsRunningCorrect(t *testing.T) {
	h := heap.New(heap.Config{GrowthFactor: 2, InitialThreshold: 1, StressGC: true})
	fn, errs := compiler.Compile(`
		fun concatN(n) {
			var s = "";
			var i = 0;
			while (i < n) {
				s = s + "x";
				i = i + 1;
			}
			return s;
		}
		print concatN(50);
	`, h)
	require.Empty(t, errs)
	var out bytes.Buffer
	vm := machine.New(h, &out)
	require.NoError(t, vm.Interpret(fn))
	assert.Equal(t, 50, len(bytes.TrimRight(out.Bytes(), "\n")))
}

func TestUndefinedPropertyIsRuntimeError(t *testing.T) {
	_, err := mustRun(t, `
		class A {}
		var a = A();
		print a.missing;
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Undefined property 'missing'.")
}

func TestInitializerArityIsEnforced(t *testing.T) {
	_, err := mustRun(t, `
		class Point {
			init(x, y) { this.x = x; this.y = y; }
		}
		Point(1);
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected 2 arguments but got 1.")
}
