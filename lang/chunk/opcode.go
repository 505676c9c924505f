package chunk

import "fmt"

// OpCode identifies a single bytecode instruction. Every opcode is one
// byte; its operands, if any, immediately follow in the code stream (see
// spec §4.3's opcode table).
type OpCode uint8

//nolint:revive
const (
	OpConstant OpCode = iota // u8 idx            -    push constants[idx]
	OpNil                    // -                 -    push Nil
	OpTrue                   // -                 -    push true
	OpFalse                  // -                 -    push false
	OpPop                    // -                 -    pop

	OpGetLocal    // u8 slot       -    push frame.slots[slot]
	OpSetLocal    // u8 slot       -    frame.slots[slot] = peek
	OpGetGlobal   // u8 name_idx   -    push globals[name] or fail
	OpDefineGlobal // u8 name_idx  -    globals[name] = pop
	OpSetGlobal   // u8 name_idx   -    require exists; assign peek
	OpGetUpvalue  // u8 slot       -    push *upvalues[slot]
	OpSetUpvalue  // u8 slot       -    *upvalues[slot] = peek
	OpGetProperty // u8 name_idx   -    instance -> field or bound method
	OpSetProperty // u8 name_idx   -    instance.field = peek
	OpGetSuper    // u8 name_idx   -    bind superclass method

	OpEqual   // -  -  binary compare
	OpGreater // -  -  binary compare
	OpLess    // -  -  binary compare

	OpAdd      // -  -  binary arithmetic
	OpSubtract // -  -  binary arithmetic
	OpMultiply // -  -  binary arithmetic
	OpDivide   // -  -  binary arithmetic

	OpNot    // -  -  unary
	OpNegate // -  -  unary

	OpPrint // -  -  pop, print

	OpJump        // u16 offset (big-endian)  -  ip += offset
	OpJumpIfFalse // u16 offset               -  if peek falsey: ip += offset
	OpLoop        // u16 offset               -  ip -= offset

	OpCall        // u8 arg_count             -  call value at peek(arg_count)
	OpInvoke      // u8 name_idx, u8 argc     -  method call shorthand
	OpSuperInvoke // u8 name_idx, u8 argc     -  superclass method shorthand

	OpClosure      // u8 fn_idx, then (u8 is_local, u8 index) per upvalue  -  wrap function
	OpCloseUpvalue // -  -  close top-of-stack upvalue, pop
	OpReturn       // -  -  return from function

	OpClass   // u8 name_idx  -  push new class
	OpInherit // -  -  copy superclass's methods into subclass
	OpMethod  // u8 name_idx  -  define method on class below

	numOpcodes
)

var opcodeNames = [numOpcodes]string{
	OpConstant:     "OP_CONSTANT",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpGetProperty:  "OP_GET_PROPERTY",
	OpSetProperty:  "OP_SET_PROPERTY",
	OpGetSuper:     "OP_GET_SUPER",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpLoop:         "OP_LOOP",
	OpCall:         "OP_CALL",
	OpInvoke:       "OP_INVOKE",
	OpSuperInvoke:  "OP_SUPER_INVOKE",
	OpClosure:      "OP_CLOSURE",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpReturn:       "OP_RETURN",
	OpClass:        "OP_CLASS",
	OpInherit:      "OP_INHERIT",
	OpMethod:       "OP_METHOD",
}

func (op OpCode) String() string {
	if op < numOpcodes {
		return opcodeNames[op]
	}
	return fmt.Sprintf("illegal opcode (%d)", op)
}

// operandKind describes how many bytes, and of what shape, an opcode's
// operand occupies in the code stream.
type operandKind uint8

const (
	operandNone   operandKind = iota // no operand
	operandU8                        // one byte
	operandU8U8                      // two one-byte operands (e.g. name_idx, argc)
	operandU16                       // one big-endian 16-bit jump offset
	operandClosure                   // u8 fn_idx followed by UpvalueCount (is_local, index) pairs
)

var opcodeOperands = [numOpcodes]operandKind{
	OpConstant:     operandU8,
	OpGetLocal:     operandU8,
	OpSetLocal:     operandU8,
	OpGetGlobal:    operandU8,
	OpDefineGlobal: operandU8,
	OpSetGlobal:    operandU8,
	OpGetUpvalue:   operandU8,
	OpSetUpvalue:   operandU8,
	OpGetProperty:  operandU8,
	OpSetProperty:  operandU8,
	OpGetSuper:     operandU8,
	OpJump:         operandU16,
	OpJumpIfFalse:  operandU16,
	OpLoop:         operandU16,
	OpCall:         operandU8,
	OpInvoke:       operandU8U8,
	OpSuperInvoke:  operandU8U8,
	OpClosure:      operandClosure,
	OpClass:        operandU8,
	OpMethod:       operandU8,
}
