// Package pool implements the fixed-size, first-fit, coalescing byte
// allocator that every heap payload in this runtime is carved from. No
// component here ever calls into the Go allocator for VM-managed memory;
// callers supply one contiguous []byte up front and everything else is
// served out of it.
package pool

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Ptr is an offset into a Pool's backing buffer. Unlike a Go pointer it
// has no lifetime tied to the GC: it is only meaningful in combination
// with the Pool it was handed out by.
type Ptr int32

// NoPtr is the NULL sentinel returned on allocation failure, and the
// value stored in free-list links that terminate a chain.
const NoPtr Ptr = -1

const (
	// headerSize is the per-block bookkeeping overhead: 4 bytes packing
	// (used-flag | payload size), plus 4 bytes recording the payload size
	// of the immediately preceding block so Free can walk backward
	// without rescanning from the start of the pool.
	headerSize = 8

	// minPayload is the smallest payload a free block can hold: enough
	// room for the two free-list links (next, prev) that are threaded
	// through free payloads. A split that would leave a remainder smaller
	// than headerSize+minPayload is not performed.
	minPayload = 8

	usedFlag uint32 = 1 << 31
	sizeMask uint32 = usedFlag - 1
)

var (
	// ErrOutOfMemory names the condition of a request the pool cannot
	// satisfy. Alloc and Realloc do not return it: they report that case
	// by returning NoPtr, never by panicking, and every caller in this
	// module checks for NoPtr explicitly.
	ErrOutOfMemory = errors.New("pool: out of memory")
	// ErrTooLarge names a single request that exceeds the entire backing
	// buffer. Alloc reports that case as NoPtr as well; this package does
	// not return the error itself.
	ErrTooLarge = errors.New("pool: requested size exceeds pool capacity")
)

// Stats reports a point-in-time snapshot of pool occupancy.
type Stats struct {
	Total       uint32
	Used        uint32
	Free        uint32
	Fragments   uint32 // number of distinct free blocks
	UsedBlocks  uint32
}

// Pool partitions a caller-supplied byte region into used and free
// blocks. It is not safe for concurrent use; per the runtime's
// single-threaded cooperative model (spec §5) callers serialize access
// themselves.
type Pool struct {
	buf      []byte
	freeHead Ptr
}

// New partitions buf into a single free block spanning its entirety.
// buf must be at least headerSize+minPayload bytes.
func New(buf []byte) (*Pool, error) {
	if len(buf) < headerSize+minPayload {
		return nil, errors.Errorf("pool: backing buffer too small: %d bytes", len(buf))
	}
	p := &Pool{buf: buf, freeHead: NoPtr}
	payload := uint32(len(buf)) - headerSize
	p.writeHeader(0, payload, false, 0)
	p.pushFree(0)
	return p, nil
}

// Size returns the total size of the backing buffer, including all
// block headers.
func (p *Pool) Size() uint32 { return uint32(len(p.buf)) }

func align4[T constraints.Integer](n T) T {
	const a = 4
	return (n + a - 1) / a * a
}

func (p *Pool) readHeader(off Ptr) (payload uint32, used bool, prevSize uint32) {
	raw := beUint32(p.buf[off:])
	return raw & sizeMask, raw&usedFlag != 0, beUint32(p.buf[off+4:])
}

func (p *Pool) writeHeader(off Ptr, payload uint32, used bool, prevSize uint32) {
	raw := payload & sizeMask
	if used {
		raw |= usedFlag
	}
	putBeUint32(p.buf[off:], raw)
	putBeUint32(p.buf[off+4:], prevSize)
}

func (p *Pool) dataOffset(block Ptr) Ptr { return block + headerSize }

func (p *Pool) blockOf(data Ptr) Ptr { return data - headerSize }

func (p *Pool) totalSpan(block Ptr) uint32 {
	payload, _, _ := p.readHeader(block)
	return headerSize + payload
}

func (p *Pool) nextBlock(block Ptr) (Ptr, bool) {
	n := block + Ptr(p.totalSpan(block))
	if int(n) >= len(p.buf) {
		return NoPtr, false
	}
	return n, true
}

// free-list links are stored in the first 8 bytes of a free block's
// payload: [next Ptr (4 bytes)] [prev Ptr (4 bytes)].
func (p *Pool) readLinks(block Ptr) (next, prev Ptr) {
	d := p.dataOffset(block)
	return Ptr(int32(beUint32(p.buf[d:]))), Ptr(int32(beUint32(p.buf[d+4:])))
}

func (p *Pool) writeLinks(block Ptr, next, prev Ptr) {
	d := p.dataOffset(block)
	putBeUint32(p.buf[d:], uint32(int32(next)))
	putBeUint32(p.buf[d+4:], uint32(int32(prev)))
}

func (p *Pool) pushFree(block Ptr) {
	oldHead := p.freeHead
	p.writeLinks(block, oldHead, NoPtr)
	if oldHead != NoPtr {
		headNext, _ := p.readLinks(oldHead)
		p.writeLinks(oldHead, headNext, block)
	}
	p.freeHead = block
}

func (p *Pool) unlinkFree(block Ptr) {
	next, prev := p.readLinks(block)
	if prev != NoPtr {
		n, pp := p.readLinks(prev)
		_ = n
		p.writeLinks(prev, next, pp)
	} else {
		p.freeHead = next
	}
	if next != NoPtr {
		nn, _ := p.readLinks(next)
		p.writeLinks(next, nn, prev)
	}
}

// Alloc returns a Ptr to a block of at least n usable bytes, or NoPtr if
// no free block satisfies the request after coalescing is attempted.
// Policy is first-fit over the free list; a chosen block is split when
// the remainder would be large enough to host a header plus minPayload.
func (p *Pool) Alloc(n uint32) Ptr {
	if n == 0 {
		n = 1
	}
	n = align4(n)
	if headerSize+n > uint32(len(p.buf)) {
		return NoPtr
	}

	cur := p.freeHead
	for cur != NoPtr {
		payload, _, _ := p.readHeader(cur)
		next, _ := p.readLinks(cur)
		if payload >= n {
			p.unlinkFree(cur)
			p.splitAndUse(cur, n)
			return p.dataOffset(cur)
		}
		cur = next
	}
	return NoPtr
}

// AllocNoFree behaves exactly like Alloc: the distinction between the two
// is a caller contract (the returned block is never passed to Free), not
// a different allocation strategy. It exists so call sites — notably
// symtab's never-freed string storage — can document intent.
func (p *Pool) AllocNoFree(n uint32) Ptr {
	return p.Alloc(n)
}

func (p *Pool) splitAndUse(block Ptr, n uint32) {
	payload, _, prevSize := p.readHeader(block)
	remainder := payload - n
	if remainder >= headerSize+minPayload {
		p.writeHeader(block, n, true, prevSize)
		newBlock := block + Ptr(headerSize+n)
		p.writeHeader(newBlock, remainder-headerSize, false, n)
		p.pushFree(newBlock)
		if nb, ok := p.nextBlock(newBlock); ok {
			p.fixupPrevSize(nb, remainder-headerSize)
		}
	} else {
		p.writeHeader(block, payload, true, prevSize)
	}
}

func (p *Pool) fixupPrevSize(block Ptr, prevSize uint32) {
	payload, used, _ := p.readHeader(block)
	p.writeHeader(block, payload, used, prevSize)
}

// Free marks the block owning ptr as free and coalesces with free
// neighbors on both sides. Double-free and freeing an unknown pointer
// are undefined behavior, per spec: this allocator does not detect them.
func (p *Pool) Free(ptr Ptr) {
	if ptr == NoPtr {
		return
	}
	block := p.blockOf(ptr)
	payload, _, prevSize := p.readHeader(block)
	p.writeHeader(block, payload, false, prevSize)

	// Coalesce with the following block if it is free.
	if nb, ok := p.nextBlock(block); ok {
		nbPayload, usedNext, _ := p.readHeader(nb)
		if !usedNext {
			p.unlinkFree(nb)
			payload, _, prevSize = p.readHeader(block)
			payload = payload + headerSize + nbPayload
			p.writeHeader(block, payload, false, prevSize)
		}
	}

	// Coalesce with the preceding block if it is free.
	if block > 0 {
		prevBlock := block - Ptr(headerSize+prevSize)
		_, usedPrev, prevPrevSize := p.readHeader(prevBlock)
		if !usedPrev {
			p.unlinkFree(prevBlock)
			payload, _, _ = p.readHeader(block)
			merged := prevSize + headerSize + payload
			p.writeHeader(prevBlock, merged, false, prevPrevSize)
			block = prevBlock
			payload = merged
		}
	}

	p.pushFree(block)
	if nb, ok := p.nextBlock(block); ok {
		p.fixupPrevSize(nb, payload)
	}
}

// Realloc resizes the block owning ptr to hold at least n bytes.
// If ptr is NoPtr, Realloc behaves as Alloc(n). If the immediately
// following block is free and large enough, the resize happens in
// place; otherwise a fresh block is allocated, min(old,new) bytes are
// copied, and the old block is freed.
func (p *Pool) Realloc(ptr Ptr, n uint32) Ptr {
	if ptr == NoPtr {
		return p.Alloc(n)
	}
	n = align4(n)
	block := p.blockOf(ptr)
	payload, _, prevSize := p.readHeader(block)
	if n <= payload {
		return ptr
	}

	if nb, ok := p.nextBlock(block); ok {
		nbPayload, usedNext, _ := p.readHeader(nb)
		if !usedNext && payload+headerSize+nbPayload >= n {
			p.unlinkFree(nb)
			merged := payload + headerSize + nbPayload
			p.writeHeader(block, merged, true, prevSize)
			if after, ok := p.nextBlock(block); ok {
				p.fixupPrevSize(after, merged)
			}
			p.splitAndUse(block, n)
			return ptr
		}
	}

	fresh := p.Alloc(n)
	if fresh == NoPtr {
		return NoPtr
	}
	copy(p.buf[fresh:int(fresh)+int(payload)], p.buf[ptr:int(ptr)+int(payload)])
	p.Free(ptr)
	return fresh
}

// Bytes exposes the raw backing buffer starting at a data offset, sized
// to the block's current payload. Used by payload readers/writers in
// package value to address heap data without a second copy.
func (p *Pool) Bytes(ptr Ptr) []byte {
	block := p.blockOf(ptr)
	payload, _, _ := p.readHeader(block)
	return p.buf[ptr : int(ptr)+int(payload)]
}

// Statistics reports total/used/free bytes and the number of distinct
// free blocks (a proxy for fragmentation).
func (p *Pool) Statistics() Stats {
	var s Stats
	s.Total = uint32(len(p.buf))
	var off Ptr
	for int(off) < len(p.buf) {
		payload, used, _ := p.readHeader(off)
		if used {
			s.Used += headerSize + payload
			s.UsedBlocks++
		} else {
			s.Free += headerSize + payload
			s.Fragments++
		}
		off += Ptr(headerSize + payload)
	}
	return s
}
