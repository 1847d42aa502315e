package value

import "golang.org/x/exp/constraints"

// Compare implements spec §4.4's total order across comparable tags:
// numeric promotion between INTEGER and FLOAT, lexicographic byte
// compare for STRING, identity for SYMBOL by id, structural comparison
// for ARRAY (element-wise with a length tiebreak), 0 for two NILs, two
// TRUEs or two FALSEs, and the reserved Incomparable sentinel for
// everything else (spec §9 open question).
func Compare(a, b Value) int {
	switch {
	case a.Tag == INTEGER && b.Tag == INTEGER:
		return cmpInt64(a.ival, b.ival)
	case a.Tag == FLOAT && b.Tag == FLOAT:
		return cmpFloat64(a.fval, b.fval)
	case a.Tag == INTEGER && b.Tag == FLOAT:
		return cmpFloat64(float64(a.ival), b.fval)
	case a.Tag == FLOAT && b.Tag == INTEGER:
		return cmpFloat64(a.fval, float64(b.ival))
	case a.Tag == STRING && b.Tag == STRING:
		return cmpBytes(a.stringBytes(), b.stringBytes())
	case a.Tag == SYMBOL && b.Tag == SYMBOL:
		return cmpInt64(a.ival, b.ival)
	case a.Tag == ARRAY && b.Tag == ARRAY:
		return cmpArray(a.obj.arr.elems, b.obj.arr.elems)
	case a.Tag == NIL && b.Tag == NIL:
		return 0
	case a.Tag == TRUE && b.Tag == TRUE:
		return 0
	case a.Tag == FALSE && b.Tag == FALSE:
		return 0
	default:
		return Incomparable
	}
}

// cmpOrdered generalizes the teacher's per-type numeric compare helpers
// to any constraints.Integer | constraints.Float, so the INTEGER,
// FLOAT, and cross-promoted branches of Compare all route through one
// implementation instead of duplicating the three-way branch per type.
func cmpOrdered[T constraints.Integer | constraints.Float](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int     { return cmpOrdered(a, b) }
func cmpFloat64(a, b float64) int { return cmpOrdered(a, b) }

func cmpBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return cmpInt64(int64(len(a)), int64(len(b)))
}

func cmpArray(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		c := Compare(a[i], b[i])
		if c == Incomparable {
			return Incomparable
		}
		if c != 0 {
			return c
		}
	}
	return cmpInt64(int64(len(a)), int64(len(b)))
}

// Equal reports whether Compare(a, b) is defined and zero. It is the
// building block for `==`; `!=` is its logical negation on the same
// defined comparison, per spec §9 (the sentinel is reserved for callers
// that need to distinguish "false" from "no defined order").
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// ClassOf returns the CLASS payload's underlying Class, or nil if v is
// not itself a CLASS value.
func (v Value) ClassOf() *Class {
	if v.Tag != CLASS || v.obj == nil {
		return nil
	}
	return v.obj.cls
}

// InstanceClass returns an OBJECT or EXCEPTION value's dynamic class.
func (v Value) InstanceClass() *Class {
	switch v.Tag {
	case OBJECT:
		return v.obj.inst.class
	case EXCEPTION:
		return v.obj.exc.class
	default:
		return nil
	}
}

// RebindClass re-asserts an OBJECT value's class, used defensively by
// Object.new after running a user initializer that may have reassigned
// self's class (spec §4.5).
func (v Value) RebindClass(cls *Class) {
	if v.Tag == OBJECT {
		v.obj.inst.class = cls
	}
}
