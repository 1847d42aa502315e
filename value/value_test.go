package value_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dressupgeekout/mrubyc/pool"
	"github.com/dressupgeekout/mrubyc/symtab"
	"github.com/dressupgeekout/mrubyc/value"
)

func newTestHeap(t *testing.T) *value.Heap {
	t.Helper()
	p, err := pool.New(make([]byte, 64*1024))
	require.NoError(t, err)
	return value.NewHeap(p)
}

func TestImmediatesCarryNoHeapPayload(t *testing.T) {
	require.True(t, value.Nil().IsImmediate())
	require.True(t, value.Int(42).IsImmediate())
	require.True(t, value.Float(1.5).IsImmediate())
	require.False(t, value.Nil().Truthy())
	require.False(t, value.False().Truthy())
	require.True(t, value.True().Truthy())
	require.True(t, value.Int(0).Truthy(), "zero is truthy, unlike Go's zero value convention")
}

func TestCompareNumericPromotion(t *testing.T) {
	require.Equal(t, 0, value.Compare(value.Int(3), value.Float(3.0)))
	require.Equal(t, -1, value.Compare(value.Int(2), value.Float(3.0)))
	require.Equal(t, 1, value.Compare(value.Float(3.5), value.Int(3)))
}

// TestCompareAntisymmetric covers spec.md §8's comparison law:
// compare(a,b) == -compare(b,a) whenever both sides are comparable.
func TestCompareAntisymmetric(t *testing.T) {
	pairs := [][2]value.Value{
		{value.Int(2), value.Int(9)},
		{value.Int(9), value.Int(2)},
		{value.Float(3.5), value.Int(3)},
	}
	for _, p := range pairs {
		require.Equal(t, -value.Compare(p[0], p[1]), value.Compare(p[1], p[0]))
	}
}

func TestCompareIncomparableAcrossUnrelatedTags(t *testing.T) {
	require.Equal(t, value.Incomparable, value.Compare(value.Int(1), value.True()))
	require.False(t, value.Equal(value.Int(1), value.True()))
}

func TestStringRoundTripAndDecRefFreesPoolBytes(t *testing.T) {
	h := newTestHeap(t)
	before := h.Pool.Statistics()

	s, err := h.NewString("hello")
	require.NoError(t, err)
	require.Equal(t, "hello", s.String())
	require.Equal(t, 5, s.Len())

	h.DecRef(s)
	after := h.Pool.Statistics()
	require.Equal(t, before.Used, after.Used, "decref to zero must return the string's bytes to the pool")
}

func TestArrayIncRefOnElementsAndRecursiveDecRef(t *testing.T) {
	h := newTestHeap(t)
	before := h.Pool.Statistics()

	inner, err := h.NewString("x")
	require.NoError(t, err)
	arr, err := h.NewArray([]value.Value{inner, value.Int(7)})
	require.NoError(t, err)

	// the array now holds its own reference to inner; dropping our local
	// one must not free the bytes out from under the array.
	h.DecRef(inner)
	require.Equal(t, "x", arr.ArrayElems()[0].String())

	h.DecRef(arr)
	after := h.Pool.Statistics()
	require.Equal(t, before.Used, after.Used, "releasing the array must release its own reference to inner too")
}

func TestIVarSetGetOverwritesInPlace(t *testing.T) {
	h := newTestHeap(t)
	cls := value.NewClass(1, nil)
	inst, err := h.NewInstance(cls, 0)
	require.NoError(t, err)

	h.IVarSet(inst, symID(5), value.Int(1))
	h.IVarSet(inst, symID(5), value.Int(2))

	v, ok := inst.IVarGet(symID(5))
	require.True(t, ok)
	require.Equal(t, int64(2), v.Int64())

	_, missing := inst.IVarGet(symID(6))
	require.False(t, missing)
}

func TestMethodLookupWalksParentChainAndShadows(t *testing.T) {
	base := value.NewClass(1, nil)
	mid := value.NewClass(2, base)
	leaf := value.NewClass(3, mid)

	base.DefineMethod(symID(10), value.Method{Kind: value.MethodNative})
	method, owner, ok := leaf.Lookup(symID(10))
	require.True(t, ok)
	require.Same(t, base, owner)
	require.Equal(t, value.MethodNative, method.Kind)

	mid.DefineMethod(symID(10), value.Method{Kind: value.MethodScript})
	method, owner, ok = leaf.Lookup(symID(10))
	require.True(t, ok)
	require.Same(t, mid, owner, "a closer override must shadow the inherited one")
	require.Equal(t, value.MethodScript, method.Kind)

	_, _, ok = leaf.Lookup(symID(999))
	require.False(t, ok)
}

func TestIsKindOfAncestryAndSelf(t *testing.T) {
	base := value.NewClass(1, nil)
	mid := value.NewClass(2, base)
	leaf := value.NewClass(3, mid)
	other := value.NewClass(4, nil)

	require.True(t, value.IsKindOf(leaf, leaf))
	require.True(t, value.IsKindOf(leaf, mid))
	require.True(t, value.IsKindOf(leaf, base))
	require.False(t, value.IsKindOf(leaf, other))
	require.False(t, value.IsKindOf(nil, base))
}

// TestRefcountSurvivesNRegisterFanout covers spec.md §8's refcount law:
// duplicating a value into N registers (N increfs) and then releasing
// each exactly once (N decrefs) returns the original refcount — observed
// here through the pool, since the payload must stay alive across every
// decref but the last.
func TestRefcountSurvivesNRegisterFanout(t *testing.T) {
	h := newTestHeap(t)
	before := h.Pool.Statistics()

	s, err := h.NewString("shared")
	require.NoError(t, err)

	const n = 4
	for i := 0; i < n; i++ {
		h.IncRef(s)
	}
	for i := 0; i < n; i++ {
		h.DecRef(s)
		require.Equal(t, "shared", s.String(), "payload must survive every decref but the last")
	}

	h.DecRef(s) // the original reference
	after := h.Pool.Statistics()
	require.Equal(t, before.Used, after.Used, "releasing every fanned-out reference once must return to the pre-dup baseline")
}

// symID is a tiny local helper: the tests above only need stable,
// distinct symbol ids, not real interning.
func symID(n int) symtab.ID { return symtab.ID(n) }

