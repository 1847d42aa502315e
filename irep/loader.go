package irep

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/dressupgeekout/mrubyc/pool"
	"github.com/dressupgeekout/mrubyc/symtab"
)

// ErrBytecode is the sentinel wrapped with call-site context for every
// loader failure: bad magic, truncated buffer, unknown pool tag, or
// allocator exhaustion while materializing the irep tree (spec §4.3
// Failure).
var ErrBytecode = errors.New("irep: malformed bytecode")

const (
	headerMagic        = "RITE"
	headerVersionMajor  = "02"
	headerSize          = 20
	sectionHeaderSize   = 8
)

var tagIREP = [4]byte{'I', 'R', 'E', 'P'}
var tagEND = [4]byte{'E', 'N', 'D', 0}

// Loader parses a RITE02 container into an owned Irep tree. Every string
// encountered in an irep's symbol table is interned through syms via
// SymbolNew, since the loader's buffer is not guaranteed to outlive the
// table (spec §4.2).
type Loader struct {
	buf  []byte
	pos  int
	syms *symtab.Table
	pool *pool.Pool
}

// NewLoader constructs a Loader over buf. buf must outlive every Irep
// this Loader produces, since instruction bytes are borrowed, not
// copied (spec §4.3 step 2, §9).
func NewLoader(buf []byte, syms *symtab.Table, p *pool.Pool) *Loader {
	return &Loader{buf: buf, syms: syms, pool: p}
}

// Load parses the container and returns its root irep. On any failure
// the partially-built tree is released back to the pool before a nil
// Irep and wrapped error are returned (spec §4.3 Failure).
func (l *Loader) Load() (root *Irep, err error) {
	defer func() {
		if err != nil && root != nil {
			root.Release(l.pool)
			root = nil
		}
	}()

	if err := l.readFileHeader(); err != nil {
		return nil, err
	}

	for {
		tag, sectionLen, err := l.readSectionHeader()
		if err != nil {
			return root, err
		}
		switch tag {
		case tagIREP:
			sectionEnd := l.pos - sectionHeaderSize + int(sectionLen)
			ir, err := l.readIrep()
			if err != nil {
				return ir, err
			}
			root = ir
			l.pos = sectionEnd
		case tagEND:
			return root, nil
		default:
			// Unknown tag: skip by length, per spec §6.1.
			skipTo := l.pos - sectionHeaderSize + int(sectionLen)
			if skipTo < l.pos || skipTo > len(l.buf) {
				return root, errors.Wrap(ErrBytecode, "irep: corrupt section length")
			}
			l.pos = skipTo
		}
	}
}

func (l *Loader) readFileHeader() error {
	if len(l.buf) < headerSize {
		return errors.Wrap(ErrBytecode, "irep: buffer shorter than file header")
	}
	if string(l.buf[0:4]) != headerMagic {
		return errors.Wrapf(ErrBytecode, "irep: bad magic %q", l.buf[0:4])
	}
	if string(l.buf[4:6]) != headerVersionMajor {
		return errors.Wrapf(ErrBytecode, "irep: unsupported version %q", l.buf[4:6])
	}
	l.pos = headerSize
	return nil
}

func (l *Loader) readSectionHeader() ([4]byte, uint32, error) {
	if l.pos+sectionHeaderSize > len(l.buf) {
		return [4]byte{}, 0, errors.Wrap(ErrBytecode, "irep: truncated section header")
	}
	var tag [4]byte
	copy(tag[:], l.buf[l.pos:l.pos+4])
	sectionLen := binary.BigEndian.Uint32(l.buf[l.pos+4 : l.pos+8])
	l.pos += sectionHeaderSize
	return tag, sectionLen, nil
}

func (l *Loader) need(n int) error {
	if l.pos+n > len(l.buf) {
		return errors.Wrap(ErrBytecode, "irep: truncated record")
	}
	return nil
}

func (l *Loader) u16() (uint16, error) {
	if err := l.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(l.buf[l.pos:])
	l.pos += 2
	return v, nil
}

func (l *Loader) u32() (uint32, error) {
	if err := l.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(l.buf[l.pos:])
	l.pos += 4
	return v, nil
}

// readIrep parses one irep record, recursively loading its children.
// Endianness is handled uniformly via encoding/binary regardless of host
// architecture or alignment requirements, which resolves spec §4.3's
// "handle any combination of host endianness and alignment" concern by
// construction rather than by manual byte-wise fallback code (see
// DESIGN.md).
func (l *Loader) readIrep() (*Irep, error) {
	if _, err := l.u32(); err != nil { // record_size: read and not used
		return nil, err
	}

	nlocals, err := l.u16()
	if err != nil {
		return nil, err
	}
	nregs, err := l.u16()
	if err != nil {
		return nil, err
	}
	rlen, err := l.u16()
	if err != nil {
		return nil, err
	}
	clen, err := l.u16()
	if err != nil {
		return nil, err
	}
	ilen, err := l.u16()
	if err != nil {
		return nil, err
	}

	if err := l.need(int(ilen)); err != nil {
		return nil, err
	}
	code := l.buf[l.pos : l.pos+int(ilen)] // borrowed, zero-copy
	l.pos += int(ilen)

	catches, err := l.readCatchHandlers(int(clen))
	if err != nil {
		return nil, err
	}

	poolEntries, err := l.readPool()
	if err != nil {
		return nil, err
	}

	syms, err := l.readSymbols()
	if err != nil {
		return nil, err
	}

	ir := &Irep{
		NLocals: nlocals,
		NRegs:   nregs,
		ILen:    ilen,
		Code:    code,
		Pool:    poolEntries,
		Catch:   catches,
		Syms:    syms,
		acct:    pool.NoPtr,
	}

	acct := l.pool.Alloc(footprint(len(syms), len(poolEntries), int(rlen)))
	if acct == pool.NoPtr {
		return ir, errors.Wrap(ErrBytecode, "irep: pool exhausted while materializing irep")
	}
	ir.acct = acct

	ir.Children = make([]*Irep, 0, rlen)
	for i := 0; i < int(rlen); i++ {
		child, err := l.readIrep()
		if child != nil {
			ir.Children = append(ir.Children, child)
		}
		if err != nil {
			return ir, err
		}
	}

	return ir, nil
}

func (l *Loader) readCatchHandlers(n int) ([]CatchHandler, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]CatchHandler, 0, n)
	for i := 0; i < n; i++ {
		if err := l.need(CatchHandlerSize); err != nil {
			return out, err
		}
		typ := CatchHandlerType(l.buf[l.pos])
		l.pos++
		excSym, err := l.u16()
		if err != nil {
			return out, err
		}
		begin, err := l.u32()
		if err != nil {
			return out, err
		}
		end, err := l.u32()
		if err != nil {
			return out, err
		}
		target, err := l.u16()
		if err != nil {
			return out, err
		}
		out = append(out, CatchHandler{
			Type:     typ,
			ExcClass: symtab.ID(excSym),
			Begin:    begin,
			End:      end,
			Target:   uint32(target),
		})
	}
	return out, nil
}

func (l *Loader) readPool() ([]PoolEntry, error) {
	plen, err := l.u16()
	if err != nil {
		return nil, err
	}
	out := make([]PoolEntry, 0, plen)
	for i := 0; i < int(plen); i++ {
		if err := l.need(1); err != nil {
			return out, err
		}
		offset := uint32(l.pos)
		kind := PoolKind(l.buf[l.pos])
		l.pos++

		var entry PoolEntry
		entry.Kind = kind
		entry.Offset = offset

		switch kind {
		case PoolStr, PoolSStr:
			slen, err := l.u16()
			if err != nil {
				return out, err
			}
			if err := l.need(int(slen) + 1); err != nil {
				return out, err
			}
			entry.Str = string(l.buf[l.pos : l.pos+int(slen)])
			l.pos += int(slen) + 1 // + NUL
		case PoolInt32:
			v, err := l.u32()
			if err != nil {
				return out, err
			}
			entry.I32 = int32(v)
		case PoolInt64:
			if err := l.need(8); err != nil {
				return out, err
			}
			entry.I64 = int64(binary.BigEndian.Uint64(l.buf[l.pos:]))
			l.pos += 8
		case PoolFloat:
			if err := l.need(8); err != nil {
				return out, err
			}
			bits := binary.BigEndian.Uint64(l.buf[l.pos:])
			entry.F64 = math.Float64frombits(bits)
			l.pos += 8
		default:
			return out, errors.Wrapf(ErrBytecode, "irep: unknown pool entry tag %d", kind)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (l *Loader) readSymbols() ([]symtab.ID, error) {
	slen, err := l.u16()
	if err != nil {
		return nil, err
	}
	out := make([]symtab.ID, 0, slen)
	for i := 0; i < int(slen); i++ {
		nlen, err := l.u16()
		if err != nil {
			return out, err
		}
		if err := l.need(int(nlen) + 1); err != nil {
			return out, err
		}
		name := string(l.buf[l.pos : l.pos+int(nlen)])
		l.pos += int(nlen) + 1 // + NUL

		id, err := l.syms.SymbolNew(name)
		if err != nil {
			return out, errors.Wrap(err, "irep: interning irep symbol table")
		}
		out = append(out, id)
	}
	return out, nil
}
