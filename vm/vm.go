package vm

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/dressupgeekout/mrubyc/class"
	"github.com/dressupgeekout/mrubyc/irep"
	"github.com/dressupgeekout/mrubyc/symtab"
	"github.com/dressupgeekout/mrubyc/value"
)

// regChunk is how many cells VM.Regs grows by when a frame's window
// would overflow it — register-windowed execution means a deep call
// stack grows the shared file, not a per-frame stack (spec §4.2).
const regChunk = 64

// VM is one task's execution state: a shared, growable register file
// windowed by the active call frames, plus the pending-exception slot
// catch/raise unwinding reads and clears (spec §4.6). A VM borrows its
// heap, symbol table and class registry from the owning Runtime; it
// owns nothing that outlives a single Run call except through those
// shared handles.
type VM struct {
	heap     *value.Heap
	syms     *symtab.Table
	registry *class.Registry
	log      *logrus.Logger

	Regs   []value.Value
	Frames []*frame
	Exc    value.Value // NIL when no exception is pending

	self value.Value // the task's top-level self (an Object instance)

	// Stdout is where the p/puts builtins write (spec's testable sink
	// scenario); defaults to os.Stdout.
	Stdout io.Writer

	aborted    bool
	lastReturn value.Value
}

// New builds a VM bound to the given shared handles. self is the
// top-level receiver new frames without an explicit receiver run
// against.
func New(heap *value.Heap, syms *symtab.Table, registry *class.Registry, log *logrus.Logger, self value.Value) *VM {
	return &VM{
		heap:     heap,
		syms:     syms,
		registry: registry,
		log:      log,
		Regs:     make([]value.Value, regChunk),
		Exc:      value.Nil(),
		self:     self,
		Stdout:   os.Stdout,
	}
}

// Heap implements value.Caller.
func (vm *VM) Heap() *value.Heap { return vm.heap }

// Raise implements value.Caller by constructing an EXCEPTION value and
// handing it to the VM's own raise machinery (spec §4.6).
func (vm *VM) Raise(cls *value.Class, msg string) {
	exc, err := vm.heap.NewException(cls, msg)
	if err != nil {
		// Out of memory while constructing the exception payload itself:
		// per spec §7 there is no lower fallback to raise from, so the
		// task aborts outright rather than leaving Exc in a half-set
		// state.
		vm.log.WithError(err).Error("vm: out of memory constructing exception payload")
		vm.aborted = true
		vm.lastReturn = value.Nil()
		return
	}
	vm.Exc = exc
}

func (vm *VM) ensureRegCapacity(n int) {
	for len(vm.Regs) < n {
		vm.Regs = append(vm.Regs, make([]value.Value, regChunk)...)
	}
}

// pushFrame allocates a fresh register window for ir atop the current
// register file and pushes a new frame onto the call stack.
func (vm *VM) pushFrame(ir *irep.Irep, self value.Value, retReg int) *frame {
	base := 0
	if n := len(vm.Frames); n > 0 {
		top := vm.Frames[n-1]
		base = top.base + int(top.ir.NRegs)
	}
	vm.ensureRegCapacity(base + int(ir.NRegs))
	f := &frame{ir: ir, pc: 0, base: base, self: self, retReg: retReg}
	vm.Frames = append(vm.Frames, f)
	return f
}

// popFrame tears down f's register window, releasing f's own reference
// to every value left in it (spec §3.1's refcount invariant extends to a
// frame's locals going out of scope, not just explicit overwrites) before
// the shared register file hands those indices to the next frame pushed
// at this depth.
func (vm *VM) popFrame() *frame {
	n := len(vm.Frames)
	f := vm.Frames[n-1]
	vm.Frames = vm.Frames[:n-1]
	end := f.base + int(f.ir.NRegs)
	for i := f.base; i < end; i++ {
		vm.heap.DecRef(vm.Regs[i])
		vm.Regs[i] = value.Nil()
	}
	return f
}

// moveReg installs v into register idx, releasing whatever reference the
// register previously held. v must already carry the one reference this
// register is taking ownership of — a freshly allocated payload, an
// immediate, or a value a caller has already dup'd on our behalf.
func (vm *VM) moveReg(idx int, v value.Value) {
	vm.heap.DecRef(vm.Regs[idx])
	vm.Regs[idx] = v
}

// dupReg installs v into register idx as an additional reference to a
// payload some other holder (self, an ivar, another register) keeps
// referencing too (spec §3.1: "duplicating into a second register must
// increment"). Increments before releasing the register's previous
// content so assigning a register to itself never touches a freed
// payload in between.
func (vm *VM) dupReg(idx int, v value.Value) {
	vm.heap.IncRef(v)
	vm.heap.DecRef(vm.Regs[idx])
	vm.Regs[idx] = v
}

func (vm *VM) current() *frame { return vm.Frames[len(vm.Frames)-1] }

// Run executes ir to completion (normal return, uncaught raise, or an
// explicit abort), returning the top-level result. err is always nil:
// pool exhaustion during execution is raised as a script-level
// NoMemoryError, and a script-level exception is left readable via
// vm.Exc after Run returns with ok == false.
func (vm *VM) Run(ir *irep.Irep) (result value.Value, ok bool, err error) {
	vm.pushFrame(ir, vm.self, -1)
	return vm.runUntilDepth(0)
}

// Invoke synchronously runs method against self and args, re-entering
// the dispatch loop for a script method (the stack-swap pattern spec
// §4.5 uses for Object.new calling a user-defined initialize) or calling
// straight through for a native one. If the call raises and nothing
// within its own nested frames catches it, Invoke returns with vm.Exc
// still set; callers must check vm.Exc after every Invoke and abandon
// their own remaining work without overwriting it.
func (vm *VM) Invoke(method value.Method, self value.Value, args []value.Value) (value.Value, error) {
	switch method.Kind {
	case value.MethodNative:
		regs := make([]value.Value, 1+len(args))
		regs[0] = self
		copy(regs[1:], args)
		result, err := method.Native(vm, regs, len(args))
		if err != nil {
			vm.Raise(vm.registry.RuntimeError, err.Error())
			vm.unwind()
			return value.Value{}, nil
		}
		return result, nil
	case value.MethodScript:
		depth := len(vm.Frames)
		f := vm.pushFrame(method.ScriptIrep, self, -1)
		for i, a := range args {
			vm.dupReg(f.reg(i+1), a)
		}
		result, ok, err := vm.runUntilDepth(depth)
		if err != nil {
			return value.Value{}, err
		}
		if !ok {
			return value.Value{}, nil
		}
		return result, nil
	default:
		return value.Nil(), nil
	}
}
