package chunk_test

import (
	"testing"

	"github.com/mna/lovm/lang/chunk"
	"github.com/mna/lovm/lang/value"
	"github.com/stretchr/testify/require"
)

func TestLineTableRoundTrip(t *testing.T) {
	c := chunk.New()
	c.WriteOp(chunk.OpNil, 1)
	c.WriteOp(chunk.OpNil, 1)
	c.WriteOp(chunk.OpPop, 2)
	c.WriteOp(chunk.OpPop, 2)
	c.WriteOp(chunk.OpReturn, 3)

	require.Equal(t, 1, c.GetLine(0))
	require.Equal(t, 1, c.GetLine(1))
	require.Equal(t, 2, c.GetLine(2))
	require.Equal(t, 2, c.GetLine(3))
	require.Equal(t, 3, c.GetLine(4))
}

func TestJumpRoundTrip(t *testing.T) {
	c := chunk.New()
	offset := c.WriteJump(chunk.OpJump, 1)
	c.WriteOp(chunk.OpNil, 2) // filler so the jump lands past something
	c.WriteOp(chunk.OpNil, 2)
	require.NoError(t, c.PatchJump(offset))

	// operand should equal the 2 filler bytes
	require.Equal(t, byte(0), c.Code[offset])
	require.Equal(t, byte(2), c.Code[offset+1])
}

func TestLoopRewindsBackward(t *testing.T) {
	c := chunk.New()
	loopStart := len(c.Code)
	c.WriteOp(chunk.OpNil, 1)
	require.NoError(t, c.WriteLoop(loopStart, 1))

	// OP_LOOP is at offset 1 (after OP_NIL), operand at 2..4
	jumpOp := len(c.Code) - 3
	require.Equal(t, byte(chunk.OpLoop), c.Code[jumpOp])
}

func TestConstantPoolOverflow(t *testing.T) {
	c := chunk.New()
	for i := 0; i < 256; i++ {
		_, err := c.AddConstant(value.Number(i))
		require.NoError(t, err)
	}
	_, err := c.AddConstant(value.Number(256))
	require.Error(t, err)
}

func TestDisassembleConstant(t *testing.T) {
	c := chunk.New()
	idx, err := c.AddConstant(value.Number(7))
	require.NoError(t, err)
	c.WriteOpU8(chunk.OpConstant, byte(idx), 1)
	c.WriteOp(chunk.OpReturn, 1)

	out := c.Disassemble("test")
	require.Contains(t, out, "OP_CONSTANT")
	require.Contains(t, out, "'7'")
	require.Contains(t, out, "OP_RETURN")
}
