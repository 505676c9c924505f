package heap

import "github.com/mna/lovm/lang/value"

// This file implements the primitives of the tri-color mark-sweep
// collector (§4.8). The Heap only knows how to mark an object, blacken
// (mark the referents of) an already-marked object, prune the intern
// table, and sweep; it does not know the VM's root set. Package machine
// drives the collection, calling these in the order §4.8 specifies:
// mark every root, drain the gray worklist by blackening, prune the
// string table, sweep, then recompute the next threshold.

// MarkObject marks obj as reachable (black-list bit) if it was previously
// white (unmarked), and reports whether it was newly marked — the caller
// should enqueue newly-marked objects onto its gray worklist so their
// referents get blackened too.
func (h *Heap) MarkObject(obj Object) bool {
	if obj == nil || obj.marked() {
		return false
	}
	obj.setMarked(true)
	return true
}

// MarkValue marks v if it denotes a heap Object; primitive values (Nil,
// Bool, Number) need no marking. It returns whether v was a previously
// unmarked Object, exactly like MarkObject.
func (h *Heap) MarkValue(v value.Value) bool {
	obj, ok := v.(Object)
	if !ok {
		return false
	}
	return h.MarkObject(obj)
}

// Blacken marks every value directly referenced by obj, via mark (which
// the caller should wire to also enqueue newly-marked objects onto its
// gray worklist, so the whole reachable graph eventually gets processed).
func (h *Heap) Blacken(obj Object, mark func(value.Value)) {
	switch o := obj.(type) {
	case *String:
		// no references
	case *Function:
		if o.Name != nil {
			mark(o.Name)
		}
		for _, c := range o.Chunk.Constants {
			mark(c)
		}
	case *Native:
		// no references
	case *Closure:
		mark(o.Fn)
		for _, uv := range o.Upvalues {
			if uv != nil {
				mark(uv)
			}
		}
	case *Upvalue:
		if !o.IsOpen() {
			mark(o.closed)
		}
	case *Class:
		mark(o.Name)
		o.Methods.Iter(func(name *String, m *Closure) bool {
			mark(name)
			mark(m)
			return false
		})
	case *Instance:
		mark(o.Class)
		o.Fields.Iter(func(name *String, v value.Value) bool {
			mark(name)
			mark(v)
			return false
		})
	case *BoundMethod:
		mark(o.Receiver)
		mark(o.Method)
	}
}

// CompilerRoots returns the objects currently protected by
// PushCompilerRoot, for the collector's root-marking pass.
func (h *Heap) CompilerRoots() []Object { return h.compilerRoots }

// SweepStrings removes every intern-table entry whose String has not been
// marked, run after the mark phase and before Sweep so the weak intern
// table never holds a dangling reference to a freed string (§4.8
// "String-table pruning").
func (h *Heap) SweepStrings() {
	var dead []string
	h.strings.Iter(func(chars string, s *String) bool {
		if !s.marked() {
			dead = append(dead, chars)
		}
		return false
	})
	for _, chars := range dead {
		h.strings.Delete(chars)
	}
}

// Sweep walks the allocation list, keeps every marked object (clearing its
// mark bit for the next cycle), and discards the rest.
func (h *Heap) Sweep() {
	kept := h.objects[:0]
	for _, obj := range h.objects {
		if obj.marked() {
			obj.setMarked(false)
			kept = append(kept, obj)
		}
	}
	h.objects = kept
	// recompute bytesAllocated from what survived, since we don't track
	// per-object free accounting otherwise.
	total := 0
	for _, obj := range h.objects {
		total += approxSize(obj)
	}
	h.bytesAllocated = total
}

// AfterCollect recomputes the next collection threshold from the current
// live-byte total (§4.8 "Trigger": next_gc := bytes_allocated * growth_factor).
func (h *Heap) AfterCollect() {
	h.nextGC = h.bytesAllocated * h.cfg.GrowthFactor
	if h.nextGC < h.cfg.InitialThreshold {
		h.nextGC = h.cfg.InitialThreshold
	}
}
