package chunk

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble renders every instruction in the chunk as human-readable
// text, one line per instruction, prefixed by name as a header. It is
// debugging instrumentation only (spec §1: "Disassembly/trace formatting"
// is an optional, out-of-core concern); nothing in lang/machine depends on
// it.
func (c *Chunk) Disassemble(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		line, next := c.DisassembleInstruction(offset)
		b.WriteString(line)
		b.WriteByte('\n')
		offset = next
	}
	return b.String()
}

// DisassembleInstruction renders the single instruction at offset and
// returns the offset of the instruction that follows it.
func (c *Chunk) DisassembleInstruction(offset int) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "%04d ", offset)
	if offset > 0 && c.GetLine(offset) == c.GetLine(offset-1) {
		b.WriteString("   | ")
	} else {
		fmt.Fprintf(&b, "%4d ", c.GetLine(offset))
	}

	op := OpCode(c.Code[offset])
	kind := operandNone
	if int(op) < len(opcodeOperands) {
		kind = opcodeOperands[op]
	}

	switch kind {
	case operandNone:
		fmt.Fprintf(&b, "%s", op)
		return b.String(), offset + 1

	case operandU8:
		idx := c.Code[offset+1]
		fmt.Fprintf(&b, "%-16s %4d", op, idx)
		if op == OpConstant || op == OpGetGlobal || op == OpDefineGlobal || op == OpSetGlobal ||
			op == OpGetProperty || op == OpSetProperty || op == OpGetSuper || op == OpClass || op == OpMethod {
			if int(idx) < len(c.Constants) {
				fmt.Fprintf(&b, " '%s'", c.Constants[idx])
			}
		}
		return b.String(), offset + 2

	case operandU8U8:
		idx := c.Code[offset+1]
		argc := c.Code[offset+2]
		fmt.Fprintf(&b, "%-16s (%d args) %4d", op, argc, idx)
		if int(idx) < len(c.Constants) {
			fmt.Fprintf(&b, " '%s'", c.Constants[idx])
		}
		return b.String(), offset + 3

	case operandU16:
		jump := binary.BigEndian.Uint16(c.Code[offset+1 : offset+3])
		sign := 1
		if op == OpLoop {
			sign = -1
		}
		fmt.Fprintf(&b, "%-16s %4d -> %d", op, offset, offset+3+sign*int(jump))
		return b.String(), offset + 3

	case operandClosure:
		idx := c.Code[offset+1]
		fmt.Fprintf(&b, "%-16s %4d", op, idx)
		next := offset + 2
		if int(idx) < len(c.Constants) {
			fmt.Fprintf(&b, " %s", c.Constants[idx])
			if fn, ok := c.Constants[idx].(interface{ UpvalueCountHint() int }); ok {
				n := fn.UpvalueCountHint()
				for i := 0; i < n; i++ {
					isLocal := c.Code[next]
					index := c.Code[next+1]
					kindStr := "upvalue"
					if isLocal != 0 {
						kindStr = "local"
					}
					fmt.Fprintf(&b, "\n%04d      |                     %s %d", next, kindStr, index)
					next += 2
				}
			}
		}
		return b.String(), next

	default:
		fmt.Fprintf(&b, "unknown opcode %d", op)
		return b.String(), offset + 1
	}
}
