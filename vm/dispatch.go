package vm

import (
	"github.com/dressupgeekout/mrubyc/irep"
	"github.com/dressupgeekout/mrubyc/value"
)

// runUntilDepth executes instructions until the call stack unwinds back
// to depth frames (normal return, or an exception that propagated past
// depth) or an abort is hit. It is re-entrant: Invoke calls back into it
// after pushing a nested frame, the "stack-swap" pattern spec §4.5
// describes for Object.new invoking a user-defined initialize and then
// resuming the caller exactly where it left off.
func (vm *VM) runUntilDepth(depth int) (value.Value, bool, error) {
	for len(vm.Frames) > depth {
		if vm.aborted {
			return vm.lastReturn, false, nil
		}
		f := vm.current()
		if f.pc >= len(f.ir.Code) {
			// Falling off the end of a body with no explicit OP_RETURN
			// returns nil, matching an implicit method-body return.
			vm.doReturn(value.Nil())
			continue
		}
		vm.step(f)
	}
	return vm.lastReturn, vm.Exc.Tag == value.NIL, nil
}

// step decodes and executes exactly one instruction in f.
func (vm *VM) step(f *frame) {
	d := &decoder{code: f.ir.Code, pc: f.pc}
	op := Op(d.u8())

	switch op {
	case OpNop:

	case OpLoadNil:
		reg := d.u8()
		vm.moveReg(f.reg(int(reg)), value.Nil())

	case OpLoadSelf:
		reg := d.u8()
		vm.dupReg(f.reg(int(reg)), f.self)

	case OpLoadBool:
		reg := d.u8()
		v := d.u8()
		vm.moveReg(f.reg(int(reg)), value.Bool(v != 0))

	case OpLoadI:
		reg := d.u8()
		n := d.i32()
		vm.moveReg(f.reg(int(reg)), value.Int(int64(n)))

	case OpLoadSym:
		reg := d.u8()
		idx := d.u16()
		vm.moveReg(f.reg(int(reg)), value.Sym(f.ir.Syms[idx]))

	case OpLoadL:
		reg := d.u8()
		idx := d.u16()
		v, err := vm.loadLiteral(f.ir.Pool[idx])
		f.pc = d.pc
		if err != nil {
			vm.Raise(vm.registry.NoMemoryError, err.Error())
			vm.unwind()
			return
		}
		vm.moveReg(f.reg(int(reg)), v)
		return

	case OpMove:
		dst := d.u8()
		src := d.u8()
		vm.dupReg(f.reg(int(dst)), vm.Regs[f.reg(int(src))])

	case OpGetIV:
		reg := d.u8()
		idx := d.u16()
		sym := f.ir.Syms[idx]
		val, ok := f.self.IVarGet(sym)
		if !ok {
			val = value.Nil()
		}
		vm.dupReg(f.reg(int(reg)), val)

	case OpSetIV:
		idx := d.u16()
		src := d.u8()
		sym := f.ir.Syms[idx]
		vm.heap.IVarSet(f.self, sym, vm.Regs[f.reg(int(src))])

	case OpGetConst:
		reg := d.u8()
		idx := d.u16()
		sym := f.ir.Syms[idx]
		f.pc = d.pc
		cls, ok := vm.registry.ByName(sym)
		if !ok {
			vm.Raise(vm.registry.NameError, "uninitialized constant")
			vm.unwind()
			return
		}
		vm.Regs[f.reg(int(reg))] = value.NewClassValue(cls)
		return

	case OpClass:
		dst := d.u8()
		nameIdx := d.u16()
		parentReg := d.u8()
		name := f.ir.Syms[nameIdx]
		parent := vm.registry.Object
		if parentReg != ClassNoParent {
			if pc := vm.Regs[f.reg(int(parentReg))].ClassOf(); pc != nil {
				parent = pc
			}
		}
		cls := value.NewClass(name, parent)
		vm.registry.Define(cls)
		vm.Regs[f.reg(int(dst))] = value.NewClassValue(cls)

	case OpDef:
		classReg := d.u8()
		nameIdx := d.u16()
		childIdx := d.u8()
		cls := vm.Regs[f.reg(int(classReg))].ClassOf()
		name := f.ir.Syms[nameIdx]
		child := f.ir.Children[childIdx]
		cls.DefineMethod(name, value.Method{Kind: value.MethodScript, ScriptIrep: child})

	case OpSend:
		recvReg := d.u8()
		symIdx := d.u16()
		argc := d.u8()
		f.pc = d.pc
		vm.doSend(f, int(recvReg), f.ir.Syms[symIdx], int(argc))
		return

	case OpJmp:
		target := d.u16()
		f.pc = int(target)
		return

	case OpJmpIf:
		cond := d.u8()
		target := d.u16()
		f.pc = d.pc
		if vm.Regs[f.reg(int(cond))].Truthy() {
			f.pc = int(target)
		}
		return

	case OpJmpNot:
		cond := d.u8()
		target := d.u16()
		f.pc = d.pc
		if !vm.Regs[f.reg(int(cond))].Truthy() {
			f.pc = int(target)
		}
		return

	case OpRaise:
		mode := RaiseMode(d.u8())
		a1 := d.u8()
		a2 := d.u8()
		f.pc = d.pc
		vm.doRaise(f, mode, int(a1), int(a2))
		vm.unwind()
		return

	case OpReturn:
		reg := d.u8()
		f.pc = d.pc
		vm.doReturn(vm.Regs[f.reg(int(reg))])
		return

	case OpAbort:
		vm.aborted = true
		vm.lastReturn = value.Nil()
		return

	default:
		f.pc = d.pc
		vm.Raise(vm.registry.BytecodeError, "unrecognized opcode")
		vm.unwind()
		return
	}

	f.pc = d.pc
}

// loadLiteral materializes a pool entry as a heap or immediate Value.
func (vm *VM) loadLiteral(e irep.PoolEntry) (value.Value, error) {
	switch e.Kind {
	case irep.PoolStr, irep.PoolSStr:
		return vm.heap.NewString(e.Str)
	case irep.PoolInt32:
		return value.Int(int64(e.I32)), nil
	case irep.PoolInt64:
		return value.Int(e.I64), nil
	case irep.PoolFloat:
		return value.Float(e.F64), nil
	default:
		return value.Nil(), nil
	}
}
