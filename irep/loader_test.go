package irep_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dressupgeekout/mrubyc/irep"
	"github.com/dressupgeekout/mrubyc/pool"
	"github.com/dressupgeekout/mrubyc/symtab"
)

// buildMinimalImage assembles a RITE02 buffer with a single root irep
// (nlocals=1, nregs=1, 1-byte OP_RETURN-equivalent body, no catch
// handlers, no pool entries, no symbols, no children), per spec
// scenario 5.
func buildMinimalImage(t *testing.T) []byte {
	t.Helper()
	var buf []byte

	buf = append(buf, []byte("RITE")...)
	buf = append(buf, []byte("02")...)
	buf = append(buf, make([]byte, 20-6)...) // pad to 20-byte file header

	irepBody := buildIrepRecord()

	sectionTag := []byte("IREP")
	sectionLen := make([]byte, 4)
	binary.BigEndian.PutUint32(sectionLen, uint32(8+len(irepBody)))
	buf = append(buf, sectionTag...)
	buf = append(buf, sectionLen...)
	buf = append(buf, irepBody...)

	buf = append(buf, []byte{'E', 'N', 'D', 0}...)
	endLen := make([]byte, 4)
	binary.BigEndian.PutUint32(endLen, 8)
	buf = append(buf, endLen...)

	return buf
}

func buildIrepRecord() []byte {
	var b []byte
	u16 := func(v uint16) { b = append(b, 0, 0); binary.BigEndian.PutUint16(b[len(b)-2:], v) }
	u32 := func(v uint32) { b = append(b, 0, 0, 0, 0); binary.BigEndian.PutUint32(b[len(b)-4:], v) }

	u32(0) // record_size placeholder, informational only
	u16(1) // nlocals
	u16(1) // nregs
	u16(0) // rlen (no children)
	u16(0) // clen (no catch handlers)
	u16(1) // ilen
	b = append(b, 0x00)
	u16(0) // plen
	u16(0) // slen
	return b
}

func TestLoadMinimalImageRoundTrip(t *testing.T) {
	buf := buildMinimalImage(t)

	syms := symtab.New(symtab.Linear, 16, nil)
	p, err := pool.New(make([]byte, 4096))
	require.NoError(t, err)

	before := p.Statistics()

	ldr := irep.NewLoader(buf, syms, p)
	root, err := ldr.Load()
	require.NoError(t, err)
	require.NotNil(t, root)

	require.Equal(t, uint16(1), root.NLocals)
	require.Equal(t, uint16(1), root.NRegs)
	require.Equal(t, uint16(1), root.ILen)
	require.Len(t, root.Code, 1)
	require.Empty(t, root.Children)
	require.Empty(t, root.Pool)
	require.Empty(t, root.Syms)

	root.Release(p)
	after := p.Statistics()
	require.Equal(t, before.Used, after.Used, "releasing the irep tree must return the pool to its prior used count")
}

func TestLoadRejectsBadMagic(t *testing.T) {
	buf := buildMinimalImage(t)
	buf[0] = 'X'

	syms := symtab.New(symtab.Linear, 16, nil)
	p, err := pool.New(make([]byte, 4096))
	require.NoError(t, err)

	_, err = irep.NewLoader(buf, syms, p).Load()
	require.Error(t, err)
}

func TestLoadRejectsTruncatedBuffer(t *testing.T) {
	buf := buildMinimalImage(t)
	buf = buf[:len(buf)-5]

	syms := symtab.New(symtab.Linear, 16, nil)
	p, err := pool.New(make([]byte, 4096))
	require.NoError(t, err)

	_, err = irep.NewLoader(buf, syms, p).Load()
	require.Error(t, err)

	require.Equal(t, uint32(0), p.Statistics().Used, "a failed load must not leak pool accounting")
}
