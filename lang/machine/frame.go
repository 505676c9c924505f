package machine

import "github.com/mna/lovm/lang/heap"

// FramesMax bounds the call-frame stack (§4.6); exceeding it is a runtime
// stack-overflow error, not a panic.
const FramesMax = 64

// StackMax is the total value-stack capacity shared across all active
// frames (§3: "stack_top - stack_bottom <= STACK_MAX").
const StackMax = FramesMax * 256

// CallFrame is one activation record: the running closure, its instruction
// pointer (a byte offset into closure.Fn.Chunk.Code), and the base of its
// locals within the VM's value stack (§4.6). Frame 0's slotsBase is 0.
type CallFrame struct {
	closure   *heap.Closure
	ip        int
	slotsBase int
}
