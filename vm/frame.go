package vm

import (
	"github.com/dressupgeekout/mrubyc/irep"
	"github.com/dressupgeekout/mrubyc/value"
)

// frame is one activation record in the call stack: the irep being
// executed, a program counter into its Code, the base index into the
// VM's shared register file this frame's window starts at, and the
// receiver of the call (spec §4.2's register-windowed execution model).
type frame struct {
	ir   *irep.Irep
	pc   int
	base int
	self value.Value

	// retReg is the register index, in the *calling* frame's window,
	// that the call's result should be written back into once this
	// frame returns. -1 for the outermost frame (nothing to write back
	// to).
	retReg int
}

// reg resolves a frame-relative register index into the VM's shared
// register file index.
func (f *frame) reg(n int) int { return f.base + n }
