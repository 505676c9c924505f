// Package machine implements the stack-based virtual machine (§4.6, §4.7):
// call-frame management, the opcode dispatch loop, call/return/closure
// semantics, and the root-marking side of the mark-sweep collector whose
// primitives live in package heap.
package machine

import (
	"fmt"
	"io"

	"github.com/mna/lovm/lang/chunk"
	"github.com/mna/lovm/lang/heap"
	"github.com/mna/lovm/lang/value"
	"golang.org/x/exp/slices"
)

// VM owns one program's execution: the value stack, the call-frame stack,
// the open-upvalue list, and the Heap it runs against. Per §9 "Globally
// mutable VM", it is an ordinary object with new/run lifecycle — nothing
// process-wide is mandated, so a REPL can keep one VM/Heap pair alive
// across many compiles while a file runner uses a fresh one per process.
type VM struct {
	h   *heap.Heap
	out io.Writer

	stack    [StackMax]value.Value
	stackTop int

	frames     [FramesMax]CallFrame
	frameCount int

	openUpvalues *heap.Upvalue
}

// New returns a VM bound to h, writing Print output to out, with the
// standard library natives (§4 "Supplemented features") installed into
// h.Globals.
func New(h *heap.Heap, out io.Writer) *VM {
	vm := &VM{h: h, out: out}
	h.SetCollectHook(vm.collectGarbage)
	vm.defineNatives()
	return vm
}

// Interpret wraps fn in a Closure, pushes its initial frame, and runs the
// dispatch loop to completion. It returns a *RuntimeError if the program
// raised one; a nil error means the script ran to completion with both
// stacks empty (§8 invariant 1).
func (vm *VM) Interpret(fn *heap.Function) error {
	// fn is no longer a compiler root, so keep it on the stack while the
	// closure allocation may trigger a collection.
	vm.push(fn)
	closure := vm.h.NewClosure(fn)
	vm.pop()
	vm.push(closure)
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	v := vm.stack[vm.stackTop]
	vm.stack[vm.stackTop] = nil
	return v
}

func (vm *VM) peek(distance int) value.Value { return vm.stack[vm.stackTop-1-distance] }

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) frame() *CallFrame { return &vm.frames[vm.frameCount-1] }

func (vm *VM) readByte() byte {
	f := vm.frame()
	b := f.closure.Fn.Chunk.Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readU16() uint16 {
	f := vm.frame()
	hi, lo := f.closure.Fn.Chunk.Code[f.ip], f.closure.Fn.Chunk.Code[f.ip+1]
	f.ip += 2
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) constantAt(idx byte) value.Value {
	return vm.frame().closure.Fn.Chunk.Constants[idx]
}

func (vm *VM) readConstant() value.Value { return vm.constantAt(vm.readByte()) }

func (vm *VM) readString() *heap.String { return vm.readConstant().(*heap.String) }

// run is the dispatch loop proper: fetch-decode-execute against the
// current top frame until a OP_RETURN unwinds the last frame or a runtime
// error aborts the interpretation (§4.7).
func (vm *VM) run() error {
	for {
		op := chunk.OpCode(vm.readByte())
		switch op {
		case chunk.OpConstant:
			vm.push(vm.readConstant())
		case chunk.OpNil:
			vm.push(value.NilValue)
		case chunk.OpTrue:
			vm.push(value.Bool(true))
		case chunk.OpFalse:
			vm.push(value.Bool(false))
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			slot := vm.readByte()
			vm.push(vm.stack[vm.frame().slotsBase+int(slot)])
		case chunk.OpSetLocal:
			slot := vm.readByte()
			vm.stack[vm.frame().slotsBase+int(slot)] = vm.peek(0)

		case chunk.OpGetGlobal:
			name := vm.readString()
			v, ok := vm.h.Globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case chunk.OpDefineGlobal:
			name := vm.readString()
			vm.h.Globals.Put(name, vm.peek(0))
			vm.pop()
		case chunk.OpSetGlobal:
			name := vm.readString()
			if _, ok := vm.h.Globals.Get(name); !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.h.Globals.Put(name, vm.peek(0))

		case chunk.OpGetUpvalue:
			slot := vm.readByte()
			vm.push(vm.frame().closure.Upvalues[slot].Get())
		case chunk.OpSetUpvalue:
			slot := vm.readByte()
			vm.frame().closure.Upvalues[slot].Set(vm.peek(0))

		case chunk.OpGetProperty:
			if err := vm.getProperty(); err != nil {
				return err
			}
		case chunk.OpSetProperty:
			if err := vm.setProperty(); err != nil {
				return err
			}
		case chunk.OpGetSuper:
			if err := vm.getSuper(); err != nil {
				return err
			}

		case chunk.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case chunk.OpGreater, chunk.OpLess:
			if err := vm.binaryCompare(op); err != nil {
				return err
			}

		case chunk.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case chunk.OpSubtract, chunk.OpMultiply, chunk.OpDivide:
			if err := vm.binaryArith(op); err != nil {
				return err
			}

		case chunk.OpNot:
			vm.push(value.Bool(!value.Truthy(vm.pop())))
		case chunk.OpNegate:
			n, ok := vm.peek(0).(value.Number)
			if !ok {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.pop()
			vm.push(-n)

		case chunk.OpPrint:
			fmt.Fprintln(vm.out, vm.pop().String())

		case chunk.OpJump:
			offset := vm.readU16()
			vm.frame().ip += int(offset)
		case chunk.OpJumpIfFalse:
			offset := vm.readU16()
			if !value.Truthy(vm.peek(0)) {
				vm.frame().ip += int(offset)
			}
		case chunk.OpLoop:
			offset := vm.readU16()
			vm.frame().ip -= int(offset)

		case chunk.OpCall:
			argCount := int(vm.readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
		case chunk.OpInvoke:
			name := vm.readString()
			argCount := int(vm.readByte())
			if err := vm.invoke(name, argCount); err != nil {
				return err
			}
		case chunk.OpSuperInvoke:
			name := vm.readString()
			argCount := int(vm.readByte())
			superclass, ok := vm.pop().(*heap.Class)
			if !ok {
				return vm.runtimeError("Superclass must be a class.")
			}
			if err := vm.invokeFromClass(superclass, name, argCount); err != nil {
				return err
			}

		case chunk.OpClosure:
			if err := vm.closureOp(); err != nil {
				return err
			}
		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()
		case chunk.OpReturn:
			if done, err := vm.returnOp(); err != nil {
				return err
			} else if done {
				return nil
			}

		case chunk.OpClass:
			name := vm.readString()
			vm.push(vm.h.NewClass(name))
		case chunk.OpInherit:
			if err := vm.inherit(); err != nil {
				return err
			}
		case chunk.OpMethod:
			name := vm.readString()
			method := vm.peek(0).(*heap.Closure)
			class := vm.peek(1).(*heap.Class)
			class.Methods.Put(name, method)
			vm.pop()

		default:
			return vm.runtimeError("unknown opcode %d", op)
		}
	}
}

func (vm *VM) binaryCompare(op chunk.OpCode) error {
	bv, bOK := vm.peek(0).(value.Number)
	av, aOK := vm.peek(1).(value.Number)
	if !aOK || !bOK {
		return vm.runtimeError("Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	switch op {
	case chunk.OpGreater:
		vm.push(value.Bool(av > bv))
	case chunk.OpLess:
		vm.push(value.Bool(av < bv))
	}
	return nil
}

func (vm *VM) binaryArith(op chunk.OpCode) error {
	bv, bOK := vm.peek(0).(value.Number)
	av, aOK := vm.peek(1).(value.Number)
	if !aOK || !bOK {
		return vm.runtimeError("Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	switch op {
	case chunk.OpSubtract:
		vm.push(av - bv)
	case chunk.OpMultiply:
		vm.push(av * bv)
	case chunk.OpDivide:
		vm.push(av / bv)
	}
	return nil
}

// add implements overloaded `+` (§4.1): number+number or string+string
// only, checked without popping until the combination is known to be
// valid, so the collector still sees both operands as stack roots while
// Concat potentially allocates (§4.7 "operands are peeked, not popped").
func (vm *VM) add() error {
	b, a := vm.peek(0), vm.peek(1)
	if bn, ok := b.(value.Number); ok {
		if an, ok := a.(value.Number); ok {
			vm.pop()
			vm.pop()
			vm.push(an + bn)
			return nil
		}
	}
	if bs, ok := b.(*heap.String); ok {
		if as, ok := a.(*heap.String); ok {
			result := vm.h.Concat(as, bs)
			vm.pop()
			vm.pop()
			vm.push(result)
			return nil
		}
	}
	return vm.runtimeError("Operands must be two numbers or two strings.")
}

func (vm *VM) getProperty() error {
	instance, ok := vm.peek(0).(*heap.Instance)
	if !ok {
		return vm.runtimeError("Only instances have properties.")
	}
	name := vm.readString()
	if v, ok := instance.Fields.Get(name); ok {
		vm.pop()
		vm.push(v)
		return nil
	}
	return vm.bindMethod(instance.Class, name)
}

func (vm *VM) setProperty() error {
	instance, ok := vm.peek(1).(*heap.Instance)
	if !ok {
		return vm.runtimeError("Only instances have fields.")
	}
	name := vm.readString()
	instance.Fields.Put(name, vm.peek(0))
	v := vm.pop()
	vm.pop()
	vm.push(v)
	return nil
}

func (vm *VM) bindMethod(class *heap.Class, name *heap.String) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	bound := vm.h.NewBoundMethod(vm.peek(0), method)
	vm.pop()
	vm.push(bound)
	return nil
}

func (vm *VM) getSuper() error {
	name := vm.readString()
	superclass, ok := vm.pop().(*heap.Class)
	if !ok {
		return vm.runtimeError("Superclass must be a class.")
	}
	receiver := vm.pop()
	method, ok := superclass.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	vm.push(vm.h.NewBoundMethod(receiver, method))
	return nil
}

func (vm *VM) invoke(name *heap.String, argCount int) error {
	receiver, ok := vm.peek(argCount).(*heap.Instance)
	if !ok {
		return vm.runtimeError("Only instances have methods.")
	}
	if v, ok := receiver.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argCount-1] = v
		return vm.callValue(v, argCount)
	}
	return vm.invokeFromClass(receiver.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *heap.Class, name *heap.String, argCount int) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.call(method, argCount)
}

// callValue dispatches a call against whatever kind of value sits in
// callee position (§4.7 "Call semantics").
func (vm *VM) callValue(callee value.Value, argCount int) error {
	switch c := callee.(type) {
	case *heap.Closure:
		return vm.call(c, argCount)
	case *heap.BoundMethod:
		vm.stack[vm.stackTop-argCount-1] = c.Receiver
		return vm.call(c.Method, argCount)
	case *heap.Class:
		vm.stack[vm.stackTop-argCount-1] = vm.h.NewInstance(c)
		if initializer, ok := c.Methods.Get(vm.h.InitString()); ok {
			return vm.call(initializer, argCount)
		}
		if argCount != 0 {
			return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
		}
		return nil
	case *heap.Native:
		return vm.callNative(c, argCount)
	default:
		return vm.runtimeError("Can only call functions and classes.")
	}
}

func (vm *VM) callNative(n *heap.Native, argCount int) error {
	if argCount != n.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", n.Arity, argCount)
	}
	args := make([]value.Value, argCount)
	copy(args, vm.stack[vm.stackTop-argCount:vm.stackTop])
	result, err := n.Fn(args)
	if err != nil {
		return vm.runtimeError("%s", err.Error())
	}
	vm.stackTop -= argCount + 1
	vm.push(result)
	return nil
}

// call pushes a new frame for closure, checking arity and the frame-depth
// limit first (§4.6).
func (vm *VM) call(closure *heap.Closure, argCount int) error {
	if argCount != closure.Fn.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Fn.Arity, argCount)
	}
	if vm.frameCount == FramesMax {
		return vm.runtimeError("Stack overflow.")
	}
	f := &vm.frames[vm.frameCount]
	f.closure = closure
	f.ip = 0
	f.slotsBase = vm.stackTop - argCount - 1
	vm.frameCount++
	return nil
}

// closureOp implements OP_CLOSURE: the freshly allocated Closure is pushed
// before its upvalue slots are filled in, so it is already reachable from
// the value stack (a GC root) while captureUpvalue performs its own
// allocations (§4.8 "Safety contract with the compiler" applies equally to
// the VM's own allocation points).
func (vm *VM) closureOp() error {
	fn, ok := vm.readConstant().(*heap.Function)
	if !ok {
		return vm.runtimeError("corrupt bytecode: OP_CLOSURE constant is not a function")
	}
	closure := vm.h.NewClosure(fn)
	vm.push(closure)
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := vm.readByte()
		index := vm.readByte()
		if isLocal != 0 {
			closure.Upvalues[i] = vm.captureUpvalue(vm.frame().slotsBase + int(index))
		} else {
			closure.Upvalues[i] = vm.frame().closure.Upvalues[index]
		}
	}
	return nil
}

// captureUpvalue finds or creates the Upvalue aliasing the given stack
// slot, keeping the VM's open-upvalue list strictly descending by slot so
// two closures that capture the same variable share one Upvalue (§8
// invariant 3).
func (vm *VM) captureUpvalue(slot int) *heap.Upvalue {
	var prev *heap.Upvalue
	cur := vm.openUpvalues
	for cur != nil && cur.Slot() > slot {
		prev = cur
		cur = cur.Next()
	}
	if cur != nil && cur.Slot() == slot {
		return cur
	}

	created := vm.h.NewUpvalue(slot, &vm.stack[slot])
	created.SetNext(cur)
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.SetNext(created)
	}
	return created
}

// closeUpvalues migrates every open upvalue at or above threshold onto the
// heap, per the close protocol of §4.7.
func (vm *VM) closeUpvalues(threshold int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot() >= threshold {
		u := vm.openUpvalues
		next := u.Next()
		u.Close()
		vm.openUpvalues = next
	}
}

// returnOp implements OP_RETURN. The bool result reports whether the whole
// program has finished (the last frame just returned).
func (vm *VM) returnOp() (bool, error) {
	result := vm.pop()
	returning := vm.frame()
	vm.closeUpvalues(returning.slotsBase)
	vm.frameCount--
	if vm.frameCount == 0 {
		vm.pop() // discard the top-level script closure
		return true, nil
	}
	vm.stackTop = returning.slotsBase
	vm.push(result)
	return false, nil
}

func (vm *VM) inherit() error {
	subclass, subOK := vm.peek(0).(*heap.Class)
	superclass, superOK := vm.peek(1).(*heap.Class)
	if !subOK || !superOK {
		return vm.runtimeError("Superclass must be a class.")
	}
	superclass.Methods.Iter(func(name *heap.String, m *heap.Closure) bool {
		subclass.Methods.Put(name, m)
		return false
	})
	vm.pop() // subclass; superclass remains bound to the "super" local
	return nil
}

// runtimeError renders msg, captures a backtrace from the current frame
// outward (§7 "Runtime errors"), and resets both stacks so the VM is ready
// for the next REPL input.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)

	frames := make([]frameInfo, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Fn
		line := fn.Chunk.GetLine(f.ip - 1)
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		frames = append(frames, frameInfo{funcName: name, line: line})
	}
	vm.resetStack()
	return &RuntimeError{Message: msg, frames: frames}
}

// collectGarbage drives one mark-sweep cycle (§4.8): it marks every VM
// root, drains the gray worklist by blackening, then delegates
// string-table pruning, sweep, and threshold recomputation to the Heap.
// Installed as the Heap's collect hook by New.
func (vm *VM) collectGarbage() {
	var gray []heap.Object
	mark := func(v value.Value) {
		if obj, ok := v.(heap.Object); ok {
			if vm.h.MarkObject(obj) {
				gray = append(gray, obj)
			}
		}
	}

	for i := 0; i < vm.stackTop; i++ {
		mark(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		mark(vm.frames[i].closure)
	}
	for u := vm.openUpvalues; u != nil; u = u.Next() {
		mark(u)
	}
	vm.h.Globals.Iter(func(k *heap.String, v value.Value) bool {
		mark(k)
		mark(v)
		return false
	})
	for _, root := range vm.h.CompilerRoots() {
		if vm.h.MarkObject(root) {
			gray = append(gray, root)
		}
	}
	mark(vm.h.InitString())

	for len(gray) > 0 {
		last := len(gray) - 1
		obj := gray[last]
		gray = slices.Delete(gray, last, last+1)
		vm.h.Blacken(obj, mark)
	}

	vm.h.SweepStrings()
	vm.h.Sweep()
	vm.h.AfterCollect()
}
