// Package heap implements the object model (§3, §4.2): heap-allocated,
// variant-tagged Objects, the allocation list that threads them together for
// the garbage collector, content-based string interning, and the globals
// table. See gc.go for the mark-sweep collector itself.
package heap

import (
	"github.com/dolthub/swiss"
	"github.com/mna/lovm/lang/chunk"
	"github.com/mna/lovm/lang/value"
)

// Object is satisfied by every heap-allocated value kind: String, Function,
// Native, Closure, Upvalue, Class, Instance, BoundMethod. Every Object
// carries a mark bit used only during GC (§3: "Every object carries a
// marked bit").
type Object interface {
	value.Value
	marked() bool
	setMarked(bool)
}

// header is embedded by every concrete Object to provide the GC mark bit.
type header struct{ mark bool }

func (h *header) marked() bool     { return h.mark }
func (h *header) setMarked(m bool) { h.mark = m }

// String is an immutable byte sequence, interned by content: see
// Heap.InternString. Two reachable Strings with equal Chars are always the
// same object (spec §3, invariant 2 of §8).
type String struct {
	header
	Chars string
}

func (s *String) String() string { return s.Chars }
func (s *String) Type() string   { return "string" }

// Function is a compiled function body: its arity, how many upvalues its
// closures must capture, and the Chunk of bytecode that implements it. A
// nil Name denotes the implicit top-level script function.
type Function struct {
	header
	Name         *String
	Arity        int
	UpvalueCount int
	Chunk        *chunk.Chunk
}

func (f *Function) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return "<fn " + f.Name.Chars + ">"
}
func (f *Function) Type() string { return "function" }

// UpvalueCountHint lets the chunk disassembler (which cannot import package
// heap without a cycle) read how many upvalue-capture pairs follow an
// OP_CLOSURE's function-index operand.
func (f *Function) UpvalueCountHint() int { return f.UpvalueCount }

// NativeFn is the signature of a host-provided function installed as a
// Native object. It receives the evaluated argument values and returns the
// result or a runtime error.
type NativeFn func(args []value.Value) (value.Value, error)

// Native wraps a host-provided Go function so it can be called like any
// other Lox callable (§3: "Native: function pointer (host-provided), arity
// (implicit)").
type Native struct {
	header
	Name  string
	Arity int
	Fn    NativeFn
}

func (n *Native) String() string { return "<native fn " + n.Name + ">" }
func (n *Native) Type() string   { return "native function" }

// Upvalue is either open — aliasing a live slot in the VM's value stack —
// or closed, owning a captured Value directly. Open upvalues form a
// singly-linked list threaded by the VM in strictly descending Slot order
// (§3, §4.7 "Upvalue close protocol").
type Upvalue struct {
	header
	slot     int // original stack slot index; only meaningful while open
	location *value.Value
	closed   value.Value
	next     *Upvalue
}

// NewOpenUpvalue returns an Upvalue aliasing the given stack slot.
func NewOpenUpvalue(slot int, loc *value.Value) *Upvalue {
	return &Upvalue{slot: slot, location: loc}
}

func (u *Upvalue) String() string { return "upvalue" }
func (u *Upvalue) Type() string   { return "upvalue" }

// Slot returns the stack slot this upvalue was opened at. It is only
// meaningful while IsOpen is true; it is used to order the VM's open
// upvalue list and to decide which upvalues a scope exit must close.
func (u *Upvalue) Slot() int { return u.slot }

// IsOpen reports whether the upvalue still aliases a live stack slot.
func (u *Upvalue) IsOpen() bool { return u.location != nil }

// Next returns the next open upvalue in the VM's linked list.
func (u *Upvalue) Next() *Upvalue { return u.next }

// SetNext links the upvalue to the next open upvalue in the VM's list.
func (u *Upvalue) SetNext(n *Upvalue) { u.next = n }

// Get returns the current value: through the stack pointer while open, or
// the closed-over value once closed.
func (u *Upvalue) Get() value.Value {
	if u.location != nil {
		return *u.location
	}
	return u.closed
}

// Set assigns the current value, through the stack pointer while open, or
// to the closed field once closed.
func (u *Upvalue) Set(v value.Value) {
	if u.location != nil {
		*u.location = v
		return
	}
	u.closed = v
}

// Close migrates the captured value from the stack slot onto the heap and
// marks the upvalue closed. Called when the owning stack slot is about to
// be popped (scope exit or return).
func (u *Upvalue) Close() {
	u.closed = *u.location
	u.location = nil
	u.next = nil
}

// Closure pairs a Function with the specific Upvalues captured at the
// moment of its creation (one per Function.UpvalueCount).
type Closure struct {
	header
	Fn       *Function
	Upvalues []*Upvalue
}

func (c *Closure) String() string { return c.Fn.String() }
func (c *Closure) Type() string   { return "closure" }

// Class is a named bag of methods (String name -> Closure). Method lookup
// walks the class only; inheritance is implemented by copying the
// superclass's method table at class-declaration time (INHERIT opcode).
type Class struct {
	header
	Name    *String
	Methods *swiss.Map[*String, *Closure]
}

func (c *Class) String() string { return c.Name.Chars }
func (c *Class) Type() string   { return "class" }

// Instance is a Class reference plus a mutable field table (String ->
// Value), created at call time when a Class value is called.
type Instance struct {
	header
	Class  *Class
	Fields *swiss.Map[*String, value.Value]
}

func (i *Instance) String() string { return i.Class.Name.Chars + " instance" }
func (i *Instance) Type() string   { return "instance" }

// BoundMethod pairs a receiver value with the Closure of one of its
// class's methods, produced by property access on an instance when the
// property names a method rather than a field.
type BoundMethod struct {
	header
	Receiver value.Value
	Method   *Closure
}

func (b *BoundMethod) String() string { return b.Method.String() }
func (b *BoundMethod) Type() string   { return "bound method" }

var (
	_ Object = (*String)(nil)
	_ Object = (*Function)(nil)
	_ Object = (*Native)(nil)
	_ Object = (*Upvalue)(nil)
	_ Object = (*Closure)(nil)
	_ Object = (*Class)(nil)
	_ Object = (*Instance)(nil)
	_ Object = (*BoundMethod)(nil)
)
