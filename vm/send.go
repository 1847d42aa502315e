package vm

import (
	"github.com/dressupgeekout/mrubyc/symtab"
	"github.com/dressupgeekout/mrubyc/value"
)

// doSend implements OP_SEND (spec §3.2, §4.5): resolve recv's method
// via the class lookup chain, then either call a native body directly
// or push a new register-windowed frame for a script body, writing the
// call's eventual result back into the receiver's register.
func (vm *VM) doSend(f *frame, recvReg int, methodSym symtab.ID, argc int) {
	recv := vm.Regs[f.reg(recvReg)]
	cls := vm.classOf(recv)
	method, _, ok := cls.Lookup(methodSym)
	if !ok {
		vm.Raise(vm.registry.NoMethodError, "undefined method")
		vm.unwind()
		return
	}

	argBase := f.reg(recvReg + 1)
	args := vm.Regs[argBase : argBase+argc]

	switch method.Kind {
	case value.MethodNative:
		regs := make([]value.Value, 1+argc)
		regs[0] = recv
		copy(regs[1:], args)
		result, err := method.Native(vm, regs, argc)
		if err != nil {
			vm.Raise(vm.registry.RuntimeError, err.Error())
			vm.unwind()
			return
		}
		if vm.Exc.Tag != value.NIL {
			// The native body raised via vm.Raise directly (e.g. a
			// built-in arity check) rather than returning a Go error.
			vm.unwind()
			return
		}
		// A NativeFunc's result already carries the one reference this
		// register is taking ownership of: either a fresh allocation, an
		// immediate, or a value the body dup'd itself before handing out
		// an existing register's contents (see builtinP).
		vm.moveReg(f.reg(recvReg), result)

	case value.MethodScript:
		nf := vm.pushFrame(method.ScriptIrep, recv, recvReg)
		for i := 0; i < argc; i++ {
			vm.dupReg(nf.reg(i+1), args[i])
		}
	}
}
