// Package vm implements the opcode dispatcher, method invocation
// (including the Object.new stack-swap protocol of spec §4.5), and
// catch/raise unwinding (spec §4.6) that sit on top of the value,
// class, irep, symtab, and pool packages.
//
// The bytecode compiler/parser producing the opcode stream is explicitly
// out of scope (spec §1 non-goals); the opcode set below is this
// implementation's own concrete choice of instruction encoding, sized to
// exercise every operation spec.md names (SEND dispatch, ivar read/write,
// control flow, class/method definition, raise/rescue) without needing
// an external compiler — tests construct instruction streams directly,
// the way the teacher's own tests build programs from hand-assembled
// instructions.
package vm

// Op is a single-byte opcode. Operand layouts are documented per opcode
// below and enforced by the encoder/decoder in encode.go.
type Op byte

const (
	OpNop Op = iota
	OpLoadNil
	OpLoadSelf
	OpLoadBool
	OpLoadI
	OpLoadSym
	OpLoadL
	OpMove
	OpGetIV
	OpSetIV
	OpGetConst
	OpClass
	OpDef
	OpSend
	OpJmp
	OpJmpIf
	OpJmpNot
	OpRaise
	OpReturn
	OpAbort
)

func (o Op) String() string {
	switch o {
	case OpNop:
		return "nop"
	case OpLoadNil:
		return "loadnil"
	case OpLoadSelf:
		return "loadself"
	case OpLoadBool:
		return "loadbool"
	case OpLoadI:
		return "loadi"
	case OpLoadSym:
		return "loadsym"
	case OpLoadL:
		return "loadl"
	case OpMove:
		return "move"
	case OpGetIV:
		return "getiv"
	case OpSetIV:
		return "setiv"
	case OpGetConst:
		return "getconst"
	case OpClass:
		return "class"
	case OpDef:
		return "def"
	case OpSend:
		return "send"
	case OpJmp:
		return "jmp"
	case OpJmpIf:
		return "jmpif"
	case OpJmpNot:
		return "jmpnot"
	case OpRaise:
		return "raise"
	case OpReturn:
		return "return"
	case OpAbort:
		return "abort"
	default:
		return "?unknown?"
	}
}

// OpSize returns the total encoded size (opcode byte included) of an
// instruction, or 0 if op is not recognized.
func OpSize(op Op) int {
	switch op {
	case OpNop, OpAbort:
		return 1
	case OpLoadNil, OpLoadSelf, OpReturn:
		return 2
	case OpLoadBool, OpMove, OpJmp:
		return 3
	case OpLoadSym, OpLoadL, OpGetIV, OpSetIV, OpGetConst, OpJmpIf, OpJmpNot, OpRaise:
		return 4
	case OpLoadI:
		return 6
	case OpClass, OpSend, OpDef:
		return 5
	default:
		return 0
	}
}

// RaiseMode selects which of raise's four argument forms (spec §4.6) an
// OpRaise instruction uses.
type RaiseMode byte

const (
	// RaiseReraise re-raises the pending exception already set on the
	// VM (or, if none is pending, raises a bare RuntimeError).
	RaiseReraise RaiseMode = iota
	// RaiseString raises a RuntimeError with the message in register a.
	RaiseString
	// RaiseClass raises an instance of the class in register a, with no
	// message.
	RaiseClass
	// RaiseClassMessage raises an instance of the class in register a,
	// with the message string in register b.
	RaiseClassMessage
)

// ClassNoParent is the sentinel parent-register operand of OpClass
// meaning "inherit from Object".
const ClassNoParent = 0xFF
