package compiler

import "github.com/mna/lovm/lang/chunk"
import "github.com/mna/lovm/lang/value"

// This file holds the thin wrappers around Chunk's Write*/AddConstant that
// thread through the current token's line number and turn a Chunk-level
// failure (pool overflow, oversized jump) into a compile Error instead of a
// panic (§4.3, §4.5).

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().WriteByte(b, c.previous.Line)
}

func (c *Compiler) emitOp(op chunk.OpCode) {
	c.currentChunk().WriteOp(op, c.previous.Line)
}

func (c *Compiler) emitOpU8(op chunk.OpCode, operand byte) {
	c.currentChunk().WriteOpU8(op, operand, c.previous.Line)
}

func (c *Compiler) emitOpU8U8(op chunk.OpCode, a, b byte) {
	c.currentChunk().WriteOpU8U8(op, a, b, c.previous.Line)
}

// emitJump writes op with a placeholder u16 operand and returns the offset
// patchJump needs.
func (c *Compiler) emitJump(op chunk.OpCode) int {
	return c.currentChunk().WriteJump(op, c.previous.Line)
}

func (c *Compiler) patchJump(operandOffset int) {
	if err := c.currentChunk().PatchJump(operandOffset); err != nil {
		c.error(err.Error())
	}
}

func (c *Compiler) emitLoop(loopStart int) {
	if err := c.currentChunk().WriteLoop(loopStart, c.previous.Line); err != nil {
		c.error(err.Error())
	}
}

func (c *Compiler) emitReturn() {
	if c.fs.fnType == TypeInitializer {
		c.emitOpU8(chunk.OpGetLocal, 0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
}

// makeConstant adds v to the current function's constant pool, reporting a
// compile error instead of failing outright if the pool has overflowed
// (§4.3 invariant: at most 256 constants per chunk).
func (c *Compiler) makeConstant(v value.Value) int {
	idx, err := c.currentChunk().AddConstant(v)
	if err != nil {
		c.error(err.Error())
		return 0
	}
	return idx
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpU8(chunk.OpConstant, byte(c.makeConstant(v)))
}

// identifierConstant interns name and adds it to the constant pool,
// guarding the freshly interned String with a compiler root for the brief
// window before AddConstant wires it into the (already-rooted) current
// function's chunk (§4.8 "Safety contract with the compiler").
func (c *Compiler) identifierConstant(name string) int {
	s := c.h.InternString(name)
	c.h.PushCompilerRoot(s)
	idx := c.makeConstant(s)
	c.h.PopCompilerRoot()
	return idx
}
