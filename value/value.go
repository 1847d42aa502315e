// Package value implements the tagged value representation described in
// spec §3.1–3.2 and §4.4: a closed-tag discriminated union over
// immediates and reference-counted heap payloads, together with the
// class/method lookup graph spec §1 groups into the same subsystem.
//
// Values never use host dynamic dispatch on their tag: every operation
// here branches explicitly on Tag, per spec §9's design note.
package value

import (
	"math"

	"github.com/dressupgeekout/mrubyc/irep"
	"github.com/dressupgeekout/mrubyc/pool"
	"github.com/dressupgeekout/mrubyc/symtab"
)

// Tag is the closed enumeration a Value is discriminated by.
type Tag uint8

const (
	NIL Tag = iota
	FALSE
	TRUE
	INTEGER
	FLOAT
	SYMBOL
	CLASS
	OBJECT
	PROC
	ARRAY
	HASH
	STRING
	RANGE
	EXCEPTION
	// EMPTY marks a register cell that has been moved out of; reading one
	// back is a bug in the VM, never in script-visible semantics.
	EMPTY
	HANDLE
)

func (t Tag) String() string {
	switch t {
	case NIL:
		return "nil"
	case FALSE:
		return "false"
	case TRUE:
		return "true"
	case INTEGER:
		return "integer"
	case FLOAT:
		return "float"
	case SYMBOL:
		return "symbol"
	case CLASS:
		return "class"
	case OBJECT:
		return "object"
	case PROC:
		return "proc"
	case ARRAY:
		return "array"
	case HASH:
		return "hash"
	case STRING:
		return "string"
	case RANGE:
		return "range"
	case EXCEPTION:
		return "exception"
	case EMPTY:
		return "empty"
	case HANDLE:
		return "handle"
	default:
		return "?unknown-tag?"
	}
}

// immediate reports whether values of this tag carry their payload
// inline (spec §3.1) rather than through a refcounted heap object.
func (t Tag) immediate() bool {
	switch t {
	case NIL, FALSE, TRUE, INTEGER, FLOAT, SYMBOL, EMPTY:
		return true
	default:
		return false
	}
}

// Value is the discriminated union. Immediates carry their payload in
// ival/fval; every other tag carries a pointer to a refcounted object.
type Value struct {
	Tag  Tag
	ival int64
	fval float64
	obj  *object
}

// object is the shared heap payload header plus one nilable field per
// concrete payload kind, mirroring the source's tagged C union without
// host-runtime dynamic dispatch: DecRef switches on obj.tag explicitly.
//
// Array/Hash/Instance/Proc/Exception bodies are ordinary Go-managed
// memory (they hold Go pointers/slices, which cannot live inside a raw
// byte pool without unsafe tricks this module deliberately avoids — see
// DESIGN.md). Each object still makes one accounting-only pool.Alloc
// call sized to its logical footprint so the pool allocator's
// statistics and the net-zero-on-release invariant (spec §8 invariant 5)
// hold for the whole runtime, not just the byte-shaped payloads (STRING,
// the symbol table) that are genuinely pool-backed.
type object struct {
	rc   int32
	tag  Tag
	str  *stringData
	arr  *arrayData
	hsh  *hashData
	inst *instanceData
	rng  *rangeData
	prc  *procData
	exc  *exceptionData
	cls  *Class // CLASS tag: classes are append-only and never torn down

	acct pool.Ptr // shadow pool accounting block, or pool.NoPtr
}

type stringData struct {
	pool *pool.Pool // the pool ptr was allocated from, so bytes can be
	// read without a *Heap in hand (e.g. from package-level Compare)
	ptr pool.Ptr // real pool-backed bytes, length+NUL per spec §3.5
	len int
}

type arrayData struct {
	elems []Value
}

// HashPair is one (key, value) entry in a Hash's backing list.
type HashPair struct {
	Key Value
	Val Value
}

type hashData struct {
	pairs []HashPair
}

// IVarPair is one (symbol, value) entry in an instance's ivar table.
type IVarPair struct {
	Sym symtab.ID
	Val Value
}

type instanceData struct {
	class *Class
	ivars []IVarPair
}

type rangeData struct {
	low, high Value
	exclusive bool
}

type procData struct {
	irep   *irep.Irep
	native NativeFunc
}

type exceptionData struct {
	class   *Class
	message string
}

// Caller is the minimal surface a built-in method body needs from its
// invoking VM: access to the shared heap for allocating results, and the
// ability to raise a script-visible exception (spec §4.6). The VM itself
// implements this; value never imports package vm, which imports value.
type Caller interface {
	Heap() *Heap
	Raise(class *Class, msg string)
}

// NativeFunc is a built-in method body: (vm, registers, argc), per
// spec §3.2.
type NativeFunc func(c Caller, regs []Value, argc int) (Value, error)

// --- immediate constructors -------------------------------------------------

func Nil() Value  { return Value{Tag: NIL} }
func True() Value { return Value{Tag: TRUE} }
func False() Value { return Value{Tag: FALSE} }

func Bool(b bool) Value {
	if b {
		return True()
	}
	return False()
}

func Empty() Value           { return Value{Tag: EMPTY} }
func Int(n int64) Value      { return Value{Tag: INTEGER, ival: n} }
func Float(f float64) Value  { return Value{Tag: FLOAT, fval: f} }
func Sym(id symtab.ID) Value { return Value{Tag: SYMBOL, ival: int64(id)} }

// Int64 returns the payload of an INTEGER value.
func (v Value) Int64() int64 { return v.ival }

// Float64 returns the payload of a FLOAT value.
func (v Value) Float64() float64 { return v.fval }

// SymID returns the payload of a SYMBOL value.
func (v Value) SymID() symtab.ID { return symtab.ID(v.ival) }

// Truthy implements mruby truthiness: everything except nil and false.
func (v Value) Truthy() bool { return v.Tag != NIL && v.Tag != FALSE }

// IsImmediate reports whether v's tag carries its payload inline.
func (v Value) IsImmediate() bool { return v.Tag.immediate() }

// Incomparable is the reserved sentinel Compare returns when two values
// have no defined order (spec §9 open question on typed receivers).
const Incomparable = math.MinInt32
