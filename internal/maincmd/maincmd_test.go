package maincmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mna/lovm/internal/maincmd"
	"github.com/mna/mainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args []string, stdin string) (string, string, mainer.ExitCode) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	stdio := mainer.Stdio{
		Stdin:  bytes.NewBufferString(stdin),
		Stdout: &stdout,
		Stderr: &stderr,
	}
	c := maincmd.Cmd{BuildVersion: "test", BuildDate: "2026-07-30"}
	code := c.Main(append([]string{"lovm"}, args...), stdio)
	return stdout.String(), stderr.String(), code
}

func writeScript(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "script.lox")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestRunSuccessExitsZero(t *testing.T) {
	path := writeScript(t, `print 1 + 2;`)
	stdout, _, code := runCLI(t, []string{"run", path}, "")
	assert.Equal(t, "3\n", stdout)
	assert.Equal(t, mainer.Success, code)
}

func TestRunCompileErrorExits65(t *testing.T) {
	path := writeScript(t, `var = ;`)
	_, stderr, code := runCLI(t, []string{"run", path}, "")
	assert.NotEmpty(t, stderr)
	assert.EqualValues(t, 65, code)
}

func TestRunRuntimeErrorExits70(t *testing.T) {
	path := writeScript(t, `print 1 + "x";`)
	_, stderr, code := runCLI(t, []string{"run", path}, "")
	assert.Contains(t, stderr, "Operands must be two numbers or two strings.")
	assert.EqualValues(t, 70, code)
}

func TestUnknownCommandExitsUsageError(t *testing.T) {
	_, stderr, code := runCLI(t, []string{"bogus"}, "")
	assert.NotEmpty(t, stderr)
	assert.EqualValues(t, 64, code)
}

func TestReplEvaluatesEachLineInSharedHeap(t *testing.T) {
	stdout, _, code := runCLI(t, []string{"repl"}, "var x = 1;\nprint x + 1;\n")
	assert.Contains(t, stdout, "2\n")
	assert.Equal(t, mainer.Success, code)
}

func TestReplGlobalsDebugCommandListsDefinedNames(t *testing.T) {
	stdout, _, code := runCLI(t, []string{"repl"}, "var answer = 42;\n:globals\n")
	assert.Contains(t, stdout, "answer = 42\n")
	assert.Equal(t, mainer.Success, code)
}
