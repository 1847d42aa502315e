package vm

import "encoding/binary"

// Asm is a tiny builder for hand-assembled instruction streams, used by
// tests the same way the
// teacher's tests build programs directly from Instruction values
// instead of routing through a compiler.
type Asm struct {
	buf []byte
}

func NewAsm() *Asm { return &Asm{} }

func (a *Asm) Bytes() []byte { return a.buf }

// Len reports the current length of the assembled stream — useful for
// computing jump targets before they're known.
func (a *Asm) Len() int { return len(a.buf) }

func (a *Asm) u8(v byte)     { a.buf = append(a.buf, v) }
func (a *Asm) u16(v uint16)  { a.buf = append(a.buf, 0, 0); binary.BigEndian.PutUint16(a.buf[len(a.buf)-2:], v) }
func (a *Asm) i32(v int32)   { a.buf = append(a.buf, 0, 0, 0, 0); binary.BigEndian.PutUint32(a.buf[len(a.buf)-4:], uint32(v)) }

func (a *Asm) Nop()               { a.u8(byte(OpNop)) }
func (a *Asm) Abort()             { a.u8(byte(OpAbort)) }
func (a *Asm) LoadNil(reg byte)   { a.u8(byte(OpLoadNil)); a.u8(reg) }
func (a *Asm) LoadSelf(reg byte)  { a.u8(byte(OpLoadSelf)); a.u8(reg) }
func (a *Asm) Return(reg byte)    { a.u8(byte(OpReturn)); a.u8(reg) }

func (a *Asm) LoadBool(reg byte, v bool) {
	a.u8(byte(OpLoadBool))
	a.u8(reg)
	if v {
		a.u8(1)
	} else {
		a.u8(0)
	}
}

func (a *Asm) Move(dst, src byte) { a.u8(byte(OpMove)); a.u8(dst); a.u8(src) }

func (a *Asm) LoadI(reg byte, v int32) { a.u8(byte(OpLoadI)); a.u8(reg); a.i32(v) }

func (a *Asm) LoadSym(reg byte, symIdx uint16) { a.u8(byte(OpLoadSym)); a.u8(reg); a.u16(symIdx) }
func (a *Asm) LoadL(reg byte, poolIdx uint16)  { a.u8(byte(OpLoadL)); a.u8(reg); a.u16(poolIdx) }
func (a *Asm) GetIV(reg byte, symIdx uint16)   { a.u8(byte(OpGetIV)); a.u8(reg); a.u16(symIdx) }
func (a *Asm) SetIV(symIdx uint16, src byte)   { a.u8(byte(OpSetIV)); a.u16(symIdx); a.u8(src) }
func (a *Asm) GetConst(reg byte, symIdx uint16) {
	a.u8(byte(OpGetConst))
	a.u8(reg)
	a.u16(symIdx)
}

func (a *Asm) Class(dst byte, nameSymIdx uint16, parentReg byte) {
	a.u8(byte(OpClass))
	a.u8(dst)
	a.u16(nameSymIdx)
	a.u8(parentReg)
}

func (a *Asm) Def(classReg byte, nameSymIdx uint16, childIdx byte) {
	a.u8(byte(OpDef))
	a.u8(classReg)
	a.u16(nameSymIdx)
	a.u8(childIdx)
}

func (a *Asm) Send(recv byte, methodSymIdx uint16, argc byte) {
	a.u8(byte(OpSend))
	a.u8(recv)
	a.u16(methodSymIdx)
	a.u8(argc)
}

func (a *Asm) Jmp(target uint16)              { a.u8(byte(OpJmp)); a.u16(target) }
func (a *Asm) JmpIf(cond byte, target uint16)  { a.u8(byte(OpJmpIf)); a.u8(cond); a.u16(target) }
func (a *Asm) JmpNot(cond byte, target uint16) { a.u8(byte(OpJmpNot)); a.u8(cond); a.u16(target) }

func (a *Asm) Raise(mode RaiseMode, a1, a2 byte) {
	a.u8(byte(OpRaise))
	a.u8(byte(mode))
	a.u8(a1)
	a.u8(a2)
}

// decoder reads fixed-width big-endian operands out of an irep's code
// slice, tracking a cursor the way the loader tracks its own position.
type decoder struct {
	code []byte
	pc   int
}

func (d *decoder) u8() byte {
	v := d.code[d.pc]
	d.pc++
	return v
}

func (d *decoder) u16() uint16 {
	v := binary.BigEndian.Uint16(d.code[d.pc:])
	d.pc += 2
	return v
}

func (d *decoder) i32() int32 {
	v := int32(binary.BigEndian.Uint32(d.code[d.pc:]))
	d.pc += 4
	return v
}
