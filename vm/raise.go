package vm

import (
	"github.com/dressupgeekout/mrubyc/irep"
	"github.com/dressupgeekout/mrubyc/symtab"
	"github.com/dressupgeekout/mrubyc/value"
)

// doReturn pops the current frame, records its result as the call's
// return value, and — if a caller frame remains — writes that result
// into the register the original send designated (spec §4.2).
//
// val is typically the contents of one of the popping frame's own
// registers, so it must be dup'd before popFrame releases that frame's
// window out from under it: the incref here and the decref popFrame
// issues for val's home register cancel out, leaving exactly one
// surviving reference — owned by the caller's register below, or by
// vm.lastReturn when this is the outermost frame returning to the Go
// caller of Run.
func (vm *VM) doReturn(val value.Value) {
	vm.heap.IncRef(val)
	f := vm.popFrame()
	vm.lastReturn = val
	if len(vm.Frames) > 0 && f.retReg >= 0 {
		caller := vm.current()
		vm.moveReg(caller.reg(f.retReg), val)
	}
}

// doRaise implements raise()'s four argument forms (spec §4.6): it only
// sets vm.Exc. Unwinding is a separate step so the caller can decide
// when to begin searching (OpRaise always does, immediately).
func (vm *VM) doRaise(f *frame, mode RaiseMode, a1, a2 int) {
	switch mode {
	case RaiseReraise:
		if vm.Exc.Tag == value.NIL {
			vm.Raise(vm.registry.RuntimeError, "")
		}
	case RaiseString:
		msg := vm.Regs[f.reg(a1)].String()
		vm.Raise(vm.registry.RuntimeError, msg)
	case RaiseClass:
		cls := vm.Regs[f.reg(a1)].ClassOf()
		if cls == nil {
			cls = vm.registry.RuntimeError
		}
		vm.Raise(cls, "")
	case RaiseClassMessage:
		cls := vm.Regs[f.reg(a1)].ClassOf()
		if cls == nil {
			cls = vm.registry.RuntimeError
		}
		msg := vm.Regs[f.reg(a2)].String()
		vm.Raise(cls, msg)
	}
}

// unwind searches outward from the current frame for a catch handler
// whose bytecode range covers the fault point and whose exception class
// matches the pending exception (spec §4.6). It pops every frame with
// no matching handler; on a match it lands the matching frame's pc at
// the handler's target and, for a rescue handler, clears vm.Exc (the
// exception is now considered caught). An ensure handler's target runs
// with the exception still pending — its bytecode is expected to end
// with a bare reraise to continue propagation once ensure cleanup runs.
// If no frame matches, vm.Frames empties out with vm.Exc still set.
func (vm *VM) unwind() {
	for len(vm.Frames) > 0 {
		f := vm.current()
		// By the time unwinding begins, pc has already advanced past the
		// instruction that raised (OpRaise in the innermost frame, or the
		// OpSend that called into the next frame down in every frame
		// above it) — the fault point is always one instruction back.
		faultPC := uint32(f.pc - 1)
		if h, ok := vm.findHandler(f.ir.Catch, faultPC); ok {
			f.pc = int(h.Target)
			if h.Type == irep.CatchRescue {
				vm.Exc = value.Nil()
			}
			return
		}
		vm.popFrame()
	}
}

func (vm *VM) findHandler(handlers []irep.CatchHandler, faultPC uint32) (irep.CatchHandler, bool) {
	for _, h := range handlers {
		if faultPC >= h.Begin && faultPC < h.End && vm.excMatches(h.ExcClass) {
			return h, true
		}
	}
	return irep.CatchHandler{}, false
}

func (vm *VM) excMatches(want symtab.ID) bool {
	if want == irep.ExcClassAny {
		return true
	}
	cls, ok := vm.registry.ByName(want)
	if !ok {
		return false
	}
	return value.IsKindOf(vm.Exc.InstanceClass(), cls)
}
