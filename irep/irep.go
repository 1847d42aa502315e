// Package irep implements the immutable instruction-record tree produced
// by the RITE02 bytecode loader (spec §3.3, §4.3, §6.1). An Irep owns its
// children and borrows its instruction bytes in place from the caller's
// buffer; it never copies bytecode.
package irep

import (
	"github.com/dressupgeekout/mrubyc/pool"
	"github.com/dressupgeekout/mrubyc/symtab"
)

// PoolKind is the literal pool entry tag byte from spec §6.1.
type PoolKind uint8

const (
	PoolStr   PoolKind = 0
	PoolInt32 PoolKind = 1
	PoolSStr  PoolKind = 2
	PoolInt64 PoolKind = 3
	PoolFloat PoolKind = 5
)

// PoolEntry is one literal pool entry. Only the fields matching Kind are
// meaningful.
type PoolEntry struct {
	Kind PoolKind
	Str  string // PoolStr, PoolSStr
	I32  int32  // PoolInt32
	I64  int64  // PoolInt64
	F64  float64 // PoolFloat

	// Offset is the entry's byte offset within the irep's pool section in
	// the original buffer. Spec §4.3 step 4 calls for a per-entry offset
	// table so the VM can address pool entry n in O(1); since this loader
	// parses eagerly into a []PoolEntry slice, direct indexing already is
	// O(1) and Offset is retained only as provenance for disassembly, not
	// as a load-bearing addressing mechanism.
	Offset uint32
}

// CatchHandlerType distinguishes a rescue clause from an ensure clause.
type CatchHandlerType uint8

const (
	CatchRescue CatchHandlerType = 0
	CatchEnsure CatchHandlerType = 1
)

// CatchHandler is one 13-byte catch-handler record (spec §6.1). ExcClass
// is the symbol id of the exception class name this handler matches;
// ExcClassAny means "matches any exception" (a bare `rescue` with no
// class listed).
type CatchHandler struct {
	Type     CatchHandlerType
	ExcClass symtab.ID
	Begin    uint32 // bytecode offset, inclusive
	End      uint32 // bytecode offset, exclusive
	Target   uint32 // handler entry point
}

// ExcClassAny is the sentinel ExcClass value meaning "catch-all".
const ExcClassAny symtab.ID = symtab.InvalidID

// CatchHandlerSize is the fixed on-disk size of one CatchHandler entry:
// 1 (type) + 2 (exc class symbol id) + 4 (begin) + 4 (end) + 2 (target).
const CatchHandlerSize = 13

// Irep is one immutable instruction record (spec §3.3). Ireps form an
// ownership tree rooted at the runtime; Release tears down a parent and
// every descendant.
type Irep struct {
	NLocals uint16
	NRegs   uint16
	ILen    uint16

	// Code borrows directly into the loader's input buffer: it is valid
	// only as long as that buffer is (spec §4.3 step 2, §9 "pointer-into-
	// buffer borrowing").
	Code []byte

	Pool  []PoolEntry
	Catch []CatchHandler
	// Syms maps a per-irep symbol index (as referenced by bytecode
	// operands) to the process-wide interned id.
	Syms     []symtab.ID
	Children []*Irep

	// acct is a pool.Pool accounting block sized to this irep's header
	// plus its symbol/pool/child tables, standing in for the single
	// contiguous allocation spec §4.3 describes. See DESIGN.md: the
	// tables themselves (Go slices of symtab.ID / PoolEntry / *Irep) stay
	// in ordinary Go memory because they hold Go pointers that cannot
	// safely live inside a raw byte pool without unsafe tricks this
	// module avoids.
	acct pool.Ptr
}

// footprint estimates the byte cost spec §4.3 says one contiguous
// allocation covers: the irep header plus its three flat tables.
func footprint(symCount, poolCount, childCount int) uint32 {
	const headerBytes = 24
	return uint32(headerBytes + symCount*2 + poolCount*4 + childCount*8)
}

// Release tears down ir and every descendant, returning their accounting
// blocks to p. Safe to call on a partially-built tree (e.g. after a
// mid-load failure): children already linked in are released too.
func (ir *Irep) Release(p *pool.Pool) {
	if ir == nil {
		return
	}
	for _, c := range ir.Children {
		c.Release(p)
	}
	if ir.acct != pool.NoPtr {
		p.Free(ir.acct)
		ir.acct = pool.NoPtr
	}
}
