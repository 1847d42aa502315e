// Package symtab implements the process-wide (here: per-Table, so tests
// can instantiate isolated copies) symbol interner: a content-addressed
// string-to-id mapping with an optional in-table binary-search-tree
// index, per spec §4.2.
package symtab

import (
	"github.com/pkg/errors"

	"github.com/dressupgeekout/mrubyc/pool"
)

// ID is a dense, monotonically increasing, stable symbol id. The source
// runtime narrows this to a u8 when MaxSymbols <= 255 to save RAM on
// embedded targets; that micro-optimization does not carry over
// meaningfully to Go, so ID is uniformly uint16 here,
// which covers every capacity this package allows.
type ID uint16

// InvalidID is returned by lookups that miss; it is never a valid
// interned id.
const InvalidID ID = 0xFFFF

// Strategy selects the search algorithm used by StrToSymID/SymIDToStr.
type Strategy int

const (
	// Linear scans entries 0..n matching on hash && string equality.
	Linear Strategy = iota
	// BST keeps a binary search tree keyed by hash, rooted at index 0,
	// with 0 doubling as the null-child sentinel (entry 0 is the root
	// and can never be any other entry's child).
	BST
)

type entry struct {
	hash        uint16
	str         string
	left, right ID
}

// Table is the interner. It is not safe for concurrent use; callers
// serialize access per the single-threaded cooperative model (spec §5).
type Table struct {
	strategy Strategy
	cap      int
	entries  []entry
	index    map[string]ID // accelerates Linear mode without changing its documented semantics
	backing  *pool.Pool     // optional: if set, SymbolNew copies strings into pool.AllocNoFree storage
}

// ErrTableFull is returned once a Table has interned cap distinct
// strings and a new one is requested.
var ErrTableFull = errors.New("symtab: table at capacity")

// New creates an interner with the given strategy and maximum capacity.
// backing may be nil; if non-nil, SymbolNew copies caller strings into
// never-freed pool storage rather than trusting the caller's string to
// outlive the table.
func New(strategy Strategy, capacity int, backing *pool.Pool) *Table {
	return &Table{
		strategy: strategy,
		cap:      capacity,
		entries:  make([]entry, 0, capacity),
		index:    make(map[string]ID, capacity),
		backing:  backing,
	}
}

func hashOf(s string) uint16 {
	var h uint16
	for i := 0; i < len(s); i++ {
		h = h*17 + uint16(s[i])
	}
	return h
}

// StrToSymID returns the id for s, appending a new entry if s has not
// been seen before. The caller's string is assumed to outlive the table
// (it is stored by Go string value, which is safe since Go strings are
// immutable and GC-owned — unlike the C source this wraps, there is no
// dangling-pointer risk here even without a copy into pool storage).
func (t *Table) StrToSymID(s string) (ID, error) {
	if id, ok := t.lookup(s); ok {
		return id, nil
	}
	return t.insert(s)
}

// SymbolNew behaves like StrToSymID but additionally copies s into the
// table's backing pool (if one was configured) via AllocNoFree, for
// callers whose source string is only transiently valid — e.g. the
// bytecode loader, which reads symbol names out of a buffer it does not
// own past the load call in the original C runtime. The copy is kept
// alive for the process lifetime, matching the never-freed contract of
// AllocNoFree.
func (t *Table) SymbolNew(s string) (ID, error) {
	if id, ok := t.lookup(s); ok {
		return id, nil
	}
	if t.backing != nil {
		ptr := t.backing.AllocNoFree(uint32(len(s) + 1))
		if ptr == pool.NoPtr {
			return InvalidID, errors.Wrap(ErrTableFull, "symtab: backing pool exhausted")
		}
		dst := t.backing.Bytes(ptr)
		copy(dst, s)
		dst[len(s)] = 0
		s = string(dst[:len(s)])
	}
	return t.insert(s)
}

func (t *Table) lookup(s string) (ID, bool) {
	switch t.strategy {
	case BST:
		return t.bstSearch(s)
	default:
		id, ok := t.index[s]
		return id, ok
	}
}

func (t *Table) insert(s string) (ID, error) {
	if len(t.entries) >= t.cap {
		return InvalidID, ErrTableFull
	}
	id := ID(len(t.entries))
	h := hashOf(s)
	t.entries = append(t.entries, entry{hash: h, str: s})
	t.index[s] = id

	if t.strategy == BST && id != 0 {
		t.bstInsert(id, h)
	}
	return id, nil
}

// bstInsert walks from the root (index 0) per spec: at each node, go
// left if the new hash is strictly less, otherwise go right (covers
// both '>' and the right-biased '==' tie-break), stopping at the first
// empty child slot.
func (t *Table) bstInsert(id ID, h uint16) {
	node := ID(0)
	for {
		var next *ID
		if h < t.entries[node].hash {
			next = &t.entries[node].left
		} else {
			next = &t.entries[node].right
		}
		if *next == 0 {
			// 0 doubles as "no child" here; that never collides with a
			// real entry because the root itself owns index 0 and is
			// never pointed to as anyone's child.
			*next = id
			return
		}
		node = *next
	}
}

func (t *Table) bstSearch(s string) (ID, bool) {
	if len(t.entries) == 0 {
		return InvalidID, false
	}
	h := hashOf(s)
	node := ID(0)
	for {
		e := &t.entries[node]
		if e.hash == h && e.str == s {
			return node, true
		}
		var next ID
		if h < e.hash {
			next = e.left
		} else {
			next = e.right
		}
		if next == 0 {
			return InvalidID, false
		}
		node = next
	}
}

// SymIDToStr returns the string for id, or ("", false) if id is out of
// range. Valid results are stable and valid for the table's lifetime.
func (t *Table) SymIDToStr(id ID) (string, bool) {
	if int(id) < 0 || int(id) >= len(t.entries) {
		return "", false
	}
	return t.entries[id].str, true
}

// Len reports the number of interned symbols.
func (t *Table) Len() int { return len(t.entries) }
