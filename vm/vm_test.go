package vm_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/dressupgeekout/mrubyc/class"
	"github.com/dressupgeekout/mrubyc/irep"
	"github.com/dressupgeekout/mrubyc/pool"
	"github.com/dressupgeekout/mrubyc/symtab"
	"github.com/dressupgeekout/mrubyc/value"
	"github.com/dressupgeekout/mrubyc/vm"
)

type fixture struct {
	heap     *value.Heap
	syms     *symtab.Table
	registry *class.Registry
	log      *logrus.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p, err := pool.New(make([]byte, 64*1024))
	require.NoError(t, err)

	syms := symtab.New(symtab.Linear, 256, nil)
	registry, err := class.NewRegistry(syms)
	require.NoError(t, err)
	require.NoError(t, vm.RegisterBuiltins(registry, syms))

	log := logrus.New()
	log.SetOutput(io.Discard)

	return &fixture{heap: value.NewHeap(p), syms: syms, registry: registry, log: log}
}

func (f *fixture) sym(t *testing.T, name string) symtab.ID {
	t.Helper()
	id, err := f.syms.StrToSymID(name)
	require.NoError(t, err)
	return id
}

func TestIVarSetGetRoundTripsThroughDispatch(t *testing.T) {
	f := newFixture(t)
	ivarSym := f.sym(t, "@count")

	a := vm.NewAsm()
	a.LoadSelf(0)
	a.LoadI(1, 42)
	a.SetIV(0, 1)
	a.GetIV(2, 0)
	a.Return(2)

	ir := &irep.Irep{
		NLocals: 1,
		NRegs:   3,
		ILen:    uint16(a.Len()),
		Code:    a.Bytes(),
		Syms:    []symtab.ID{ivarSym},
	}

	self, err := f.heap.NewInstance(f.registry.Object, 0)
	require.NoError(t, err)

	m := vm.New(f.heap, f.syms, f.registry, f.log, self)
	result, ok, err := m.Run(ir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), result.Int64())
}

// TestClassNewRunsScriptInitializeViaStackSwap covers the spec's
// Object.new scenario: defining a class with a script initialize and
// calling .new on it must synchronously run that initializer against
// the freshly allocated instance before returning it.
func TestClassNewRunsScriptInitializeViaStackSwap(t *testing.T) {
	f := newFixture(t)

	fooSym := f.sym(t, "Foo")
	initSym := f.sym(t, "initialize")
	newSym := f.sym(t, "new")
	ivarSym := f.sym(t, "@tag")

	childAsm := vm.NewAsm()
	childAsm.LoadSelf(0)
	childAsm.LoadI(1, 99)
	childAsm.SetIV(0, 1)
	childAsm.Return(0)

	child := &irep.Irep{
		NLocals: 0,
		NRegs:   2,
		ILen:    uint16(childAsm.Len()),
		Code:    childAsm.Bytes(),
		Syms:    []symtab.ID{ivarSym},
	}

	topAsm := vm.NewAsm()
	topAsm.Class(0, 0, vm.ClassNoParent)
	topAsm.Def(0, 1, 0)
	topAsm.Send(0, 2, 0)
	topAsm.Return(0)

	top := &irep.Irep{
		NLocals:  0,
		NRegs:    2,
		ILen:     uint16(topAsm.Len()),
		Code:     topAsm.Bytes(),
		Syms:     []symtab.ID{fooSym, initSym, newSym},
		Children: []*irep.Irep{child},
	}

	self, err := f.heap.NewInstance(f.registry.Object, 0)
	require.NoError(t, err)

	m := vm.New(f.heap, f.syms, f.registry, f.log, self)
	result, ok, err := m.Run(top)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, value.OBJECT, result.Tag)

	tagVal, found := result.IVarGet(ivarSym)
	require.True(t, found, "script initialize must have run against the new instance")
	require.Equal(t, int64(99), tagVal.Int64())
}

// TestRaiseUnwindsToMatchingRescueHandler covers spec scenario 4: a
// raised RuntimeError must land at the rescue handler whose byte range
// brackets the faulting instruction, bypassing the straight-line code
// that follows the raise.
func TestRaiseUnwindsToMatchingRescueHandler(t *testing.T) {
	f := newFixture(t)
	runtimeErrSym := f.sym(t, "RuntimeError")

	a := vm.NewAsm()
	raiseStart := a.Len()
	a.LoadL(0, 0)
	a.Raise(vm.RaiseString, 0, 0)
	raiseEnd := a.Len()
	a.LoadI(1, 111) // unreachable straight-line path
	a.Return(1)
	handlerTarget := a.Len()
	a.LoadI(1, 222)
	a.Return(1)

	ir := &irep.Irep{
		NLocals: 0,
		NRegs:   2,
		ILen:    uint16(a.Len()),
		Code:    a.Bytes(),
		Pool:    []irep.PoolEntry{{Kind: irep.PoolStr, Str: "boom"}},
		Catch: []irep.CatchHandler{
			{
				Type:     irep.CatchRescue,
				ExcClass: runtimeErrSym,
				Begin:    uint32(raiseStart),
				End:      uint32(raiseEnd),
				Target:   uint32(handlerTarget),
			},
		},
	}

	self, err := f.heap.NewInstance(f.registry.Object, 0)
	require.NoError(t, err)

	m := vm.New(f.heap, f.syms, f.registry, f.log, self)
	result, ok, err := m.Run(ir)
	require.NoError(t, err)
	require.True(t, ok, "the rescue handler must clear the pending exception")
	require.Equal(t, int64(222), result.Int64())
	require.Equal(t, value.NIL, m.Exc.Tag)
}

// TestUncaughtRaisePropagatesToTopLevel covers the complementary case:
// no handler matches, so the task finishes with ok == false and the
// exception still set.
func TestUncaughtRaisePropagatesToTopLevel(t *testing.T) {
	f := newFixture(t)

	a := vm.NewAsm()
	a.LoadL(0, 0)
	a.Raise(vm.RaiseString, 0, 0)
	a.LoadI(1, 111)
	a.Return(1)

	ir := &irep.Irep{
		NLocals: 0,
		NRegs:   2,
		ILen:    uint16(a.Len()),
		Code:    a.Bytes(),
		Pool:    []irep.PoolEntry{{Kind: irep.PoolStr, Str: "boom"}},
	}

	self, err := f.heap.NewInstance(f.registry.Object, 0)
	require.NoError(t, err)

	m := vm.New(f.heap, f.syms, f.registry, f.log, self)
	_, ok, err := m.Run(ir)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, value.EXCEPTION, m.Exc.Tag)
	require.Equal(t, "boom", m.Exc.ExceptionMessage())
}

// TestDupCopiesIvarsOfObjectButRejectsOtherTags covers spec.md's open
// question: dup is only defined for OBJECT receivers, copying its ivar
// table into a distinct instance; every other tag raises TypeError
// rather than silently broadening the operation.
func TestDupCopiesIvarsOfObjectButRejectsOtherTags(t *testing.T) {
	f := newFixture(t)
	dupSym := f.sym(t, "dup")
	ivarSym := f.sym(t, "@x")

	a := vm.NewAsm()
	a.LoadSelf(0)
	a.LoadI(1, 7)
	a.SetIV(1, 1) // @x = 7
	a.Send(0, 0, 0) // self.dup
	a.Return(0)

	ir := &irep.Irep{
		NLocals: 0,
		NRegs:   2,
		ILen:    uint16(a.Len()),
		Code:    a.Bytes(),
		Syms:    []symtab.ID{dupSym, ivarSym},
	}

	self, err := f.heap.NewInstance(f.registry.Object, 0)
	require.NoError(t, err)

	m := vm.New(f.heap, f.syms, f.registry, f.log, self)
	result, ok, err := m.Run(ir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, value.OBJECT, result.Tag)

	v, found := result.IVarGet(ivarSym)
	require.True(t, found)
	require.Equal(t, int64(7), v.Int64())

	// dup must produce a distinct instance, not an alias of self.
	f.heap.IVarSet(self, ivarSym, value.Int(99))
	v, _ = result.IVarGet(ivarSym)
	require.Equal(t, int64(7), v.Int64(), "mutating self after dup must not affect the copy")
}

func TestDupRejectsNonObjectReceiverWithTypeError(t *testing.T) {
	f := newFixture(t)
	dupSym := f.sym(t, "dup")

	a := vm.NewAsm()
	a.LoadI(0, 5)
	a.Send(0, 0, 0) // 5.dup
	a.Return(0)

	ir := &irep.Irep{
		NLocals: 0,
		NRegs:   1,
		ILen:    uint16(a.Len()),
		Code:    a.Bytes(),
		Syms:    []symtab.ID{dupSym},
	}

	self, err := f.heap.NewInstance(f.registry.Object, 0)
	require.NoError(t, err)

	m := vm.New(f.heap, f.syms, f.registry, f.log, self)
	_, ok, err := m.Run(ir)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, value.EXCEPTION, m.Exc.Tag)
	require.True(t, value.IsKindOf(m.Exc.ExceptionClass(), f.registry.TypeError))
}

// TestOverwritingARegisterReleasesItsPriorStringPayload covers spec
// §3.1's refcount invariant at the dispatcher itself: loading a second
// literal into a register that already holds a heap payload must release
// the first one, not merely drop it from sight. A VM whose registers leak
// on every overwrite would permanently exhaust the fixed-size pool over a
// long-running script.
func TestOverwritingARegisterReleasesItsPriorStringPayload(t *testing.T) {
	f := newFixture(t)
	self, err := f.heap.NewInstance(f.registry.Object, 0)
	require.NoError(t, err)

	before := f.heap.Pool.Statistics()

	// Measure one string's footprint against this same pool as ground
	// truth for what "exactly one surviving allocation" should cost.
	probe, err := f.heap.NewString("bb")
	require.NoError(t, err)
	singleStringUsed := f.heap.Pool.Statistics().Used - before.Used
	f.heap.DecRef(probe)
	require.Equal(t, before.Used, f.heap.Pool.Statistics().Used, "probe string must fully release")

	a := vm.NewAsm()
	a.LoadL(0, 0) // "aaaa"
	a.LoadL(0, 1) // overwrite with "bb" -- must release "aaaa"'s bytes
	a.Return(0)

	ir := &irep.Irep{
		NLocals: 0,
		NRegs:   1,
		ILen:    uint16(a.Len()),
		Code:    a.Bytes(),
		Pool: []irep.PoolEntry{
			{Kind: irep.PoolStr, Str: "aaaa"},
			{Kind: irep.PoolStr, Str: "bb"},
		},
	}

	m := vm.New(f.heap, f.syms, f.registry, f.log, self)
	result, ok, err := m.Run(ir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "bb", result.String())

	after := f.heap.Pool.Statistics()
	require.Equal(t, singleStringUsed, after.Used-before.Used,
		"overwriting register 0 with the second literal must release the first literal's pool bytes")
}

// TestClassNewDiscardsInitializeReturnValueWithoutLeaking covers the
// stack-swap call's result handling: Class#new never uses initialize's
// own return value, and discarding it must not leak the reference Invoke
// handed back.
func TestClassNewDiscardsInitializeReturnValueWithoutLeaking(t *testing.T) {
	f := newFixture(t)
	fooSym := f.sym(t, "Foo")
	initSym := f.sym(t, "initialize")
	newSym := f.sym(t, "new")

	childAsm := vm.NewAsm()
	childAsm.LoadL(0, 0) // a fresh string, implicitly returned and discarded
	childAsm.Return(0)

	child := &irep.Irep{
		NLocals: 0,
		NRegs:   1,
		ILen:    uint16(childAsm.Len()),
		Code:    childAsm.Bytes(),
		Pool:    []irep.PoolEntry{{Kind: irep.PoolStr, Str: "discarded"}},
	}

	topAsm := vm.NewAsm()
	topAsm.Class(0, 0, vm.ClassNoParent)
	topAsm.Def(0, 1, 0)
	topAsm.Send(0, 2, 0)
	topAsm.Return(0)

	top := &irep.Irep{
		NLocals:  0,
		NRegs:    2,
		ILen:     uint16(topAsm.Len()),
		Code:     topAsm.Bytes(),
		Syms:     []symtab.ID{fooSym, initSym, newSym},
		Children: []*irep.Irep{child},
	}

	self, err := f.heap.NewInstance(f.registry.Object, 0)
	require.NoError(t, err)

	before := f.heap.Pool.Statistics()

	// Measure a bare instance's footprint as ground truth for what the
	// surviving Class#new result alone should cost.
	probeInst, err := f.heap.NewInstance(f.registry.Object, 0)
	require.NoError(t, err)
	instanceUsed := f.heap.Pool.Statistics().Used - before.Used
	f.heap.DecRef(probeInst)
	require.Equal(t, before.Used, f.heap.Pool.Statistics().Used, "probe instance must fully release")

	m := vm.New(f.heap, f.syms, f.registry, f.log, self)
	result, ok, err := m.Run(top)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, value.OBJECT, result.Tag)

	after := f.heap.Pool.Statistics()
	require.Equal(t, instanceUsed, after.Used-before.Used,
		"only the returned instance may remain allocated; initialize's discarded string must not leak")
}

// TestPutsAndPWriteToStdout covers scenario 6: the p/puts sinks must
// write through the VM's configured Stdout writer.
func TestPutsAndPWriteToStdout(t *testing.T) {
	f := newFixture(t)
	putsSym := f.sym(t, "puts")
	pSym := f.sym(t, "p")

	a := vm.NewAsm()
	a.LoadSelf(0)
	a.LoadL(1, 0)
	a.Send(0, 0, 1) // self.puts("hi")
	a.LoadSelf(0)
	a.LoadL(1, 1)
	a.Send(0, 1, 1) // self.p("yo")
	a.Return(0)

	ir := &irep.Irep{
		NLocals: 0,
		NRegs:   2,
		ILen:    uint16(a.Len()),
		Code:    a.Bytes(),
		Pool: []irep.PoolEntry{
			{Kind: irep.PoolStr, Str: "hi"},
			{Kind: irep.PoolStr, Str: "yo"},
		},
		Syms: []symtab.ID{putsSym, pSym},
	}

	self, err := f.heap.NewInstance(f.registry.Object, 0)
	require.NoError(t, err)

	m := vm.New(f.heap, f.syms, f.registry, f.log, self)
	var out bytes.Buffer
	m.Stdout = &out

	_, ok, err := m.Run(ir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hi\n\"yo\"\n", out.String())
}
