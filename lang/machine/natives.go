package machine

import (
	"time"

	"github.com/mna/lovm/lang/heap"
	"github.com/mna/lovm/lang/value"
)

// defineNatives installs the small standard-library surface the original
// Rust implementation carried beyond the distilled spec (SPEC_FULL.md §4
// "Supplemented features"): clock() for benchmarking scripts and str() for
// stringifying any value without string-concatenation tricks.
func (vm *VM) defineNatives() {
	vm.defineNative("clock", 0, func(args []value.Value) (value.Value, error) {
		return value.Number(float64(time.Now().UnixNano()) / float64(time.Second)), nil
	})
	vm.defineNative("str", 1, func(args []value.Value) (value.Value, error) {
		return vm.h.InternString(args[0].String()), nil
	})
}

func (vm *VM) defineNative(name string, arity int, fn heap.NativeFn) {
	nameStr := vm.h.InternString(name)
	vm.push(nameStr) // rooted while NewNative may trigger a collection
	native := vm.h.NewNative(name, arity, fn)
	vm.pop()
	vm.h.Globals.Put(nameStr, native)
}
