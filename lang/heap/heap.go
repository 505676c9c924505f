package heap

import (
	"github.com/dolthub/swiss"
	"github.com/mna/lovm/lang/chunk"
	"github.com/mna/lovm/lang/value"
)

// Config controls the collector's trigger and growth behavior (§4.8
// "Trigger"). It is normally populated from internal/config so the
// thresholds can be tuned from the environment without touching code.
type Config struct {
	// GrowthFactor multiplies bytesAllocated to compute the next collection
	// threshold after a sweep. Defaults to 2 if <= 1.
	GrowthFactor int
	// InitialThreshold is the byte threshold before the very first
	// collection. Defaults to 1MiB if <= 0.
	InitialThreshold int
	// StressGC, when true, collects on every single allocation. Used to
	// flush latent rooting bugs (§9 GLOSSARY "Stress GC").
	StressGC bool
}

// DefaultConfig returns the Config the VM uses when the caller does not
// specify one explicitly.
func DefaultConfig() Config {
	return Config{GrowthFactor: 2, InitialThreshold: 1 << 20}
}

// Heap owns every allocation made while compiling and running one program:
// the allocation list, the string intern table, and the globals map. It
// also holds the mark-sweep collector's bookkeeping (gc.go).
type Heap struct {
	cfg Config

	objects []Object // allocation list, in insertion order
	strings *swiss.Map[string, *String]
	Globals *swiss.Map[*String, value.Value]

	bytesAllocated int
	nextGC         int

	// compilerRoots holds objects (typically in-progress Functions and
	// interned name Strings) that the compiler has allocated but not yet
	// wired into any chunk or constant pool, and which must therefore
	// survive a collection triggered mid-compile (§4.8 "Safety contract
	// with the compiler").
	compilerRoots []Object

	// onThreshold is invoked whenever an allocation crosses the collection
	// threshold (or always, under StressGC). It is set by the VM, which is
	// the only component that knows the full root set (value stack, call
	// frames, open upvalues). A nil hook means no GC runs, which is exactly
	// right while the Heap is used standalone (e.g. compiler-only tests).
	onThreshold func()

	initString *String
}

// New returns an empty Heap configured by cfg.
func New(cfg Config) *Heap {
	if cfg.GrowthFactor <= 1 {
		cfg.GrowthFactor = 2
	}
	if cfg.InitialThreshold <= 0 {
		cfg.InitialThreshold = 1 << 20
	}
	h := &Heap{
		cfg:     cfg,
		strings: swiss.NewMap[string, *String](64),
		Globals: swiss.NewMap[*String, value.Value](16),
		nextGC:  cfg.InitialThreshold,
	}
	h.initString = h.InternString("init")
	return h
}

// SetCollectHook installs the callback invoked when an allocation crosses
// the GC threshold. The VM calls this once at construction time with a
// closure that knows how to mark its roots.
func (h *Heap) SetCollectHook(fn func()) { h.onThreshold = fn }

// InitString returns the interned "init" string, a permanent GC root (every
// class's initializer method is looked up by this exact String identity).
func (h *Heap) InitString() *String { return h.initString }

func approxSize(o Object) int {
	// A rough, deliberately simple accounting: enough to make the
	// threshold-based trigger meaningful without tracking exact struct
	// sizes per kind.
	switch o := o.(type) {
	case *String:
		return 16 + len(o.Chars)
	default:
		return 48
	}
}

// track registers a freshly allocated object. The threshold check runs
// *before* o is appended to the allocation list, matching the original's
// reallocate()-triggers-before-the-new-block-exists ordering: a collection
// provoked by this very allocation can never see o (it isn't reachable
// from any root yet) and so can never mistakenly sweep it. Only objects
// that survive from a prior track() call are at risk, which is exactly
// what compiler roots and the VM's stack/frame roots exist to cover.
func (h *Heap) track(o Object) {
	if h.onThreshold != nil && (h.cfg.StressGC || h.bytesAllocated > h.nextGC) {
		h.onThreshold()
	}
	h.objects = append(h.objects, o)
	h.bytesAllocated += approxSize(o)
}

// InternString returns the canonical String object for s, allocating and
// inserting it into the intern table on first use. Two calls with equal
// content always return the same object (§4.2 "intern_string").
func (h *Heap) InternString(s string) *String {
	if existing, ok := h.strings.Get(s); ok {
		return existing
	}
	str := &String{Chars: s}
	// track before inserting: a collection triggered by track prunes every
	// unmarked intern entry, and str is not reachable from any root yet.
	h.track(str)
	h.strings.Put(s, str)
	return str
}

// NewFunction allocates an uninitialized Function with the given chunk.
// Name may be nil for the top-level script.
func (h *Heap) NewFunction(name *String, chk *chunk.Chunk) *Function {
	fn := &Function{Name: name, Chunk: chk}
	h.track(fn)
	return fn
}

// NewNative wraps a host-provided function as a callable Native object.
func (h *Heap) NewNative(name string, arity int, fn NativeFn) *Native {
	n := &Native{Name: name, Arity: arity, Fn: fn}
	h.track(n)
	return n
}

// NewClosure wraps fn with freshly allocated upvalue slots (all nil until
// the CLOSURE opcode fills them in).
func (h *Heap) NewClosure(fn *Function) *Closure {
	c := &Closure{Fn: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
	h.track(c)
	return c
}

// NewUpvalue allocates an open Upvalue aliasing the given stack slot.
func (h *Heap) NewUpvalue(slot int, loc *value.Value) *Upvalue {
	u := NewOpenUpvalue(slot, loc)
	h.track(u)
	return u
}

// NewClass allocates an empty Class named by name.
func (h *Heap) NewClass(name *String) *Class {
	c := &Class{Name: name, Methods: swiss.NewMap[*String, *Closure](4)}
	h.track(c)
	return c
}

// NewInstance allocates an Instance of class with an empty field table.
func (h *Heap) NewInstance(class *Class) *Instance {
	i := &Instance{Class: class, Fields: swiss.NewMap[*String, value.Value](4)}
	h.track(i)
	return i
}

// NewBoundMethod allocates a BoundMethod pairing receiver with method.
func (h *Heap) NewBoundMethod(receiver value.Value, method *Closure) *BoundMethod {
	b := &BoundMethod{Receiver: receiver, Method: method}
	h.track(b)
	return b
}

// Concat interns the concatenation of two strings, as required by the "+"
// operator on two String operands (§4.1).
func (h *Heap) Concat(a, b *String) *String {
	return h.InternString(a.Chars + b.Chars)
}

// PushCompilerRoot marks obj as reachable for the duration of compilation,
// protecting it from a GC cycle triggered by a later allocation before it
// has been wired into a chunk's constant pool or an enclosing function
// (§4.8 "Safety contract with the compiler").
func (h *Heap) PushCompilerRoot(obj Object) { h.compilerRoots = append(h.compilerRoots, obj) }

// PopCompilerRoot releases the most recently pushed compiler root.
func (h *Heap) PopCompilerRoot() {
	if n := len(h.compilerRoots); n > 0 {
		h.compilerRoots = h.compilerRoots[:n-1]
	}
}

// NumObjects returns the number of live objects in the allocation list,
// mostly useful for tests asserting on GC behavior.
func (h *Heap) NumObjects() int { return len(h.objects) }

// BytesAllocated returns the collector's current byte-accounting total.
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }
