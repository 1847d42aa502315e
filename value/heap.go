package value

import (
	"github.com/pkg/errors"

	"github.com/dressupgeekout/mrubyc/irep"
	"github.com/dressupgeekout/mrubyc/pool"
)

// ErrOutOfMemory is returned whenever a Heap constructor cannot
// satisfy an allocation. Per spec §7, callers must check for this and
// either raise NoMemoryError or abandon the operation cleanly; nothing
// here panics.
var ErrOutOfMemory = errors.New("value: out of memory")

// Heap is the explicit environment handle every heap-payload
// constructor and refcount operation is threaded through, per spec §9's
// design note that process-wide state (here: the backing pool) should be
// modeled as an explicit handle rather than a package global so tests
// can instantiate isolated runtimes.
type Heap struct {
	Pool *pool.Pool
}

// NewHeap wraps p as a Heap.
func NewHeap(p *pool.Pool) *Heap { return &Heap{Pool: p} }

// shadow-accounting footprints for Go-native container headers that are
// not themselves byte-shaped (see value.go's object doc comment).
const (
	arrayHeaderFootprint     = 16
	hashHeaderFootprint      = 16
	instanceHeaderFootprint  = 16
	rangeHeaderFootprint     = 16
	procHeaderFootprint      = 8
	exceptionHeaderFootprint = 16
)

func (h *Heap) acquire(footprint uint32) (pool.Ptr, error) {
	p := h.Pool.Alloc(footprint)
	if p == pool.NoPtr {
		return pool.NoPtr, ErrOutOfMemory
	}
	return p, nil
}

// NewString allocates a byte-safe, NUL-terminated string payload,
// copied from s (spec §3.5).
func (h *Heap) NewString(s string) (Value, error) {
	n := uint32(len(s) + 1)
	ptr := h.Pool.Alloc(n)
	if ptr == pool.NoPtr {
		return Value{}, ErrOutOfMemory
	}
	dst := h.Pool.Bytes(ptr)
	copy(dst, s)
	dst[len(s)] = 0
	return Value{Tag: STRING, obj: &object{rc: 1, tag: STRING, str: &stringData{pool: h.Pool, ptr: ptr, len: len(s)}}}, nil
}

// NewArray allocates an ARRAY payload over a copy of elems, incrementing
// each element's refcount since the array now also holds a reference.
func (h *Heap) NewArray(elems []Value) (Value, error) {
	acct, err := h.acquire(arrayHeaderFootprint)
	if err != nil {
		return Value{}, err
	}
	cp := make([]Value, len(elems))
	copy(cp, elems)
	for _, e := range cp {
		h.IncRef(e)
	}
	return Value{Tag: ARRAY, obj: &object{rc: 1, tag: ARRAY, arr: &arrayData{elems: cp}, acct: acct}}, nil
}

// NewHash allocates an empty HASH payload.
func (h *Heap) NewHash() (Value, error) {
	acct, err := h.acquire(hashHeaderFootprint)
	if err != nil {
		return Value{}, err
	}
	return Value{Tag: HASH, obj: &object{rc: 1, tag: HASH, hsh: &hashData{}, acct: acct}}, nil
}

// NewInstance allocates an OBJECT payload and an empty ivar table sized
// to nivars, initial refcount 1 — the instance_new operation of spec
// §4.4.
func (h *Heap) NewInstance(cls *Class, nivars int) (Value, error) {
	acct, err := h.acquire(instanceHeaderFootprint)
	if err != nil {
		return Value{}, err
	}
	return Value{Tag: OBJECT, obj: &object{
		rc:   1,
		tag:  OBJECT,
		inst: &instanceData{class: cls, ivars: make([]IVarPair, 0, nivars)},
		acct: acct,
	}}, nil
}

// NewRange allocates a RANGE payload, taking references on low and high.
func (h *Heap) NewRange(low, high Value, exclusive bool) (Value, error) {
	acct, err := h.acquire(rangeHeaderFootprint)
	if err != nil {
		return Value{}, err
	}
	h.IncRef(low)
	h.IncRef(high)
	return Value{Tag: RANGE, obj: &object{rc: 1, tag: RANGE, rng: &rangeData{low: low, high: high, exclusive: exclusive}, acct: acct}}, nil
}

// NewProcScript allocates a PROC payload wrapping a script method body.
func (h *Heap) NewProcScript(ir *irep.Irep) (Value, error) {
	acct, err := h.acquire(procHeaderFootprint)
	if err != nil {
		return Value{}, err
	}
	return Value{Tag: PROC, obj: &object{rc: 1, tag: PROC, prc: &procData{irep: ir}, acct: acct}}, nil
}

// NewProcNative allocates a PROC payload wrapping a native method body.
func (h *Heap) NewProcNative(fn NativeFunc) (Value, error) {
	acct, err := h.acquire(procHeaderFootprint)
	if err != nil {
		return Value{}, err
	}
	return Value{Tag: PROC, obj: &object{rc: 1, tag: PROC, prc: &procData{native: fn}, acct: acct}}, nil
}

// NewException allocates an EXCEPTION payload carrying cls and an
// optional message (spec §4.6).
func (h *Heap) NewException(cls *Class, message string) (Value, error) {
	acct, err := h.acquire(exceptionHeaderFootprint)
	if err != nil {
		return Value{}, err
	}
	return Value{Tag: EXCEPTION, obj: &object{rc: 1, tag: EXCEPTION, exc: &exceptionData{class: cls, message: message}, acct: acct}}, nil
}

// NewClassValue wraps cls as a first-class CLASS value. Classes are
// append-only and never torn down (spec §5), so this allocation is not
// pool-accounted: the Class itself is owned by the class registry, not
// by any one Value's refcount.
func NewClassValue(cls *Class) Value {
	return Value{Tag: CLASS, obj: &object{rc: 1, tag: CLASS, cls: cls}}
}

// DupInstance allocates a new OBJECT with a copy of v's ivar table,
// taking a fresh reference on every ivar value (spec §8's refcount
// invariant: duplicating into a second value must increment, never
// share, the payload). Only OBJECT is supported; v must already be of
// tag OBJECT, per spec.md's open question preserving the source's
// OBJECT-only `dup` (PROC and RANGE are deliberately not handled here —
// see DESIGN.md).
func (h *Heap) DupInstance(v Value) (Value, error) {
	acct, err := h.acquire(instanceHeaderFootprint)
	if err != nil {
		return Value{}, err
	}
	src := v.obj.inst
	ivars := make([]IVarPair, len(src.ivars))
	copy(ivars, src.ivars)
	for _, iv := range ivars {
		h.IncRef(iv.Val)
	}
	return Value{Tag: OBJECT, obj: &object{
		rc:   1,
		tag:  OBJECT,
		inst: &instanceData{class: src.class, ivars: ivars},
		acct: acct,
	}}, nil
}

// IncRef increments the payload refcount of v. A no-op on immediates
// (spec §4.4).
func (h *Heap) IncRef(v Value) {
	if v.Tag.immediate() || v.obj == nil {
		return
	}
	v.obj.rc++
}

// DecRef decrements the payload refcount of v, tearing down the payload
// and recursively releasing every value it references once the count
// reaches zero (spec §4.4, invariant 1).
func (h *Heap) DecRef(v Value) {
	if v.Tag.immediate() || v.obj == nil {
		return
	}
	obj := v.obj
	obj.rc--
	if obj.rc > 0 {
		return
	}
	if obj.rc < 0 {
		// Undefined per spec (§4.1 invariant: count is positive; reaching
		// zero triggers teardown) — a double-decref is a VM bug, not a
		// condition this layer recovers from.
		return
	}

	switch obj.tag {
	case STRING:
		h.Pool.Free(obj.str.ptr)
	case ARRAY:
		for _, e := range obj.arr.elems {
			h.DecRef(e)
		}
		h.freeAcct(obj)
	case HASH:
		for _, pr := range obj.hsh.pairs {
			h.DecRef(pr.Key)
			h.DecRef(pr.Val)
		}
		h.freeAcct(obj)
	case OBJECT:
		for _, iv := range obj.inst.ivars {
			h.DecRef(iv.Val)
		}
		// obj.inst.class is a weak reference: classes are append-only and
		// never released (spec §4.4 decref contract).
		h.freeAcct(obj)
	case RANGE:
		h.DecRef(obj.rng.low)
		h.DecRef(obj.rng.high)
		h.freeAcct(obj)
	case PROC:
		// The irep a script proc wraps belongs to the loader's ownership
		// tree, not to this proc; native procs carry no payload.
		h.freeAcct(obj)
	case EXCEPTION:
		h.freeAcct(obj)
	case CLASS:
		// Never torn down; see NewClassValue.
	}
}

func (h *Heap) freeAcct(obj *object) {
	if obj.acct != pool.NoPtr {
		h.Pool.Free(obj.acct)
		obj.acct = pool.NoPtr
	}
}
