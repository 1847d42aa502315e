package value

import (
	"github.com/dressupgeekout/mrubyc/irep"
	"github.com/dressupgeekout/mrubyc/symtab"
)

// stringBytes returns the logical (NUL-excluded) byte slice backing a
// STRING value, read directly out of the pool it was allocated from —
// every string remembers its own pool, so this needs no *Heap in hand
// (package-level Compare relies on that).
func (v Value) stringBytes() []byte {
	sd := v.obj.str
	return sd.pool.Bytes(sd.ptr)[:sd.len]
}

// String returns the logical (NUL-excluded) contents of a STRING value.
func (v Value) String() string {
	if v.Tag != STRING {
		return ""
	}
	return string(v.stringBytes())
}

// Len returns a STRING value's byte length, excluding the NUL
// terminator.
func (v Value) Len() int {
	if v.Tag != STRING || v.obj == nil {
		return 0
	}
	return v.obj.str.len
}

// ArrayElems returns the backing slice of an ARRAY value. Callers must
// not retain it past a mutating operation on the array.
func (v Value) ArrayElems() []Value {
	if v.Tag != ARRAY || v.obj == nil {
		return nil
	}
	return v.obj.arr.elems
}

// ArrayAppend appends elem to an ARRAY value, taking a reference.
func (h *Heap) ArrayAppend(v Value, elem Value) {
	if v.Tag != ARRAY {
		return
	}
	h.IncRef(elem)
	v.obj.arr.elems = append(v.obj.arr.elems, elem)
}

// HashPairs returns the backing pair list of a HASH value.
func (v Value) HashPairs() []HashPair {
	if v.Tag != HASH || v.obj == nil {
		return nil
	}
	return v.obj.hsh.pairs
}

// HashGet performs a linear search for key, per spec §3.4.
func (v Value) HashGet(key Value) (Value, bool) {
	if v.Tag != HASH || v.obj == nil {
		return Value{}, false
	}
	for _, pr := range v.obj.hsh.pairs {
		if Equal(pr.Key, key) {
			return pr.Val, true
		}
	}
	return Value{}, false
}

// HashSet inserts or overwrites the value for key, taking references on
// both. Linear search + in-place update, per spec §3.4.
func (h *Heap) HashSet(v Value, key, val Value) {
	if v.Tag != HASH {
		return
	}
	for i, pr := range v.obj.hsh.pairs {
		if Equal(pr.Key, key) {
			h.DecRef(pr.Val)
			h.IncRef(val)
			v.obj.hsh.pairs[i].Val = val
			return
		}
	}
	h.IncRef(key)
	h.IncRef(val)
	v.obj.hsh.pairs = append(v.obj.hsh.pairs, HashPair{Key: key, Val: val})
}

// IVarGet performs a linear search of an OBJECT's ivar table (spec
// §3.4).
func (v Value) IVarGet(sym symtab.ID) (Value, bool) {
	if v.Tag != OBJECT || v.obj == nil {
		return Value{}, false
	}
	for _, iv := range v.obj.inst.ivars {
		if iv.Sym == sym {
			return iv.Val, true
		}
	}
	return Value{}, false
}

// IVarSet inserts or overwrites an OBJECT's ivar in insertion order,
// taking a reference on val (spec §3.4).
func (h *Heap) IVarSet(v Value, sym symtab.ID, val Value) {
	if v.Tag != OBJECT {
		return
	}
	for i, iv := range v.obj.inst.ivars {
		if iv.Sym == sym {
			h.DecRef(iv.Val)
			h.IncRef(val)
			v.obj.inst.ivars[i].Val = val
			return
		}
	}
	h.IncRef(val)
	v.obj.inst.ivars = append(v.obj.inst.ivars, IVarPair{Sym: sym, Val: val})
}

// RangeBounds returns a RANGE value's endpoints and exclusivity.
func (v Value) RangeBounds() (low, high Value, exclusive bool) {
	if v.Tag != RANGE || v.obj == nil {
		return Value{}, Value{}, false
	}
	return v.obj.rng.low, v.obj.rng.high, v.obj.rng.exclusive
}

// ProcIrep returns the script irep a PROC value wraps, or nil if it
// wraps a native function instead.
func (v Value) ProcIrep() *irep.Irep {
	if v.Tag != PROC || v.obj == nil {
		return nil
	}
	return v.obj.prc.irep
}

// ProcNative returns the native function a PROC value wraps, or nil if
// it wraps a script irep instead.
func (v Value) ProcNative() NativeFunc {
	if v.Tag != PROC || v.obj == nil {
		return nil
	}
	return v.obj.prc.native
}

// ExceptionClass returns an EXCEPTION value's class.
func (v Value) ExceptionClass() *Class {
	if v.Tag != EXCEPTION || v.obj == nil {
		return nil
	}
	return v.obj.exc.class
}

// ExceptionMessage returns an EXCEPTION value's message text.
func (v Value) ExceptionMessage() string {
	if v.Tag != EXCEPTION || v.obj == nil {
		return ""
	}
	return v.obj.exc.message
}

