// Package class builds the bootstrap class hierarchy (spec §3.2, §5) on
// top of value.Class, and gives it a name-indexed Registry the way a
// real mrubyc runtime would expose Object/Integer/String/etc. as
// well-known constants rather than re-deriving them per task.
package class

import (
	"github.com/dressupgeekout/mrubyc/symtab"
	"github.com/dressupgeekout/mrubyc/value"
)

// Registry owns every class reachable from script code, keyed by its
// name symbol. Classes are never deleted for the registry's lifetime
// (spec §5); Define may point an existing name at a new *value.Class,
// leaving the previous class object itself untouched.
type Registry struct {
	syms    *symtab.Table
	byName  map[symtab.ID]*value.Class

	Object       *value.Class
	NilClass     *value.Class
	TrueClass    *value.Class
	FalseClass   *value.Class
	Integer      *value.Class
	Float        *value.Class
	Symbol       *value.Class
	String       *value.Class
	Array        *value.Class
	Hash         *value.Class
	Range        *value.Class
	Proc         *value.Class
	ClassClass   *value.Class
	Exception    *value.Class
	StandardError *value.Class
	RuntimeError  *value.Class
	TypeError     *value.Class
	ArgumentError *value.Class
	IndexError    *value.Class
	RangeError    *value.Class
	NoMemoryError *value.Class
	BytecodeError *value.Class
	NameError     *value.Class
	NoMethodError *value.Class
}

// NewRegistry bootstraps the class hierarchy described in spec §3.2 and
// §4.6's exception taxonomy. syms is used to intern every class's name
// symbol. The only error path is the symbol table running out of
// capacity before bootstrap finishes — a configuration error, since
// SPEC_FULL.md's default symbol capacity is sized well above the fixed
// bootstrap set.
func NewRegistry(syms *symtab.Table) (*Registry, error) {
	r := &Registry{syms: syms, byName: make(map[symtab.ID]*value.Class)}
	var err error

	must := func(name string, parent *value.Class) *value.Class {
		if err != nil {
			return nil
		}
		var c *value.Class
		c, err = r.define(name, parent)
		return c
	}

	r.Object = must("Object", nil)
	r.NilClass = must("NilClass", r.Object)
	r.TrueClass = must("TrueClass", r.Object)
	r.FalseClass = must("FalseClass", r.Object)
	r.Integer = must("Integer", r.Object)
	r.Float = must("Float", r.Object)
	r.Symbol = must("Symbol", r.Object)
	r.String = must("String", r.Object)
	r.Array = must("Array", r.Object)
	r.Hash = must("Hash", r.Object)
	r.Range = must("Range", r.Object)
	r.Proc = must("Proc", r.Object)
	r.ClassClass = must("Class", r.Object)

	r.Exception = must("Exception", r.Object)
	r.StandardError = must("StandardError", r.Exception)
	r.RuntimeError = must("RuntimeError", r.StandardError)
	r.TypeError = must("TypeError", r.StandardError)
	r.ArgumentError = must("ArgumentError", r.StandardError)
	r.IndexError = must("IndexError", r.StandardError)
	r.RangeError = must("RangeError", r.StandardError)
	r.NoMemoryError = must("NoMemoryError", r.Exception)
	r.BytecodeError = must("BytecodeError", r.Exception)
	r.NameError = must("NameError", r.StandardError)
	r.NoMethodError = must("NoMethodError", r.NameError)

	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) define(name string, parent *value.Class) (*value.Class, error) {
	id, err := r.syms.StrToSymID(name)
	if err != nil {
		return nil, err
	}
	c := value.NewClass(id, parent)
	r.byName[id] = c
	return c, nil
}

// Define registers an additional, script- or host-defined class (the
// target of OpClass), keyed by its name symbol. Redefining a name that
// already resolves to a different *value.Class replaces the mapping —
// the prior class object is left exactly as it was, reachable through
// any value that already points at it, per the append-only contract
// naming only applies to "classes once defined are never deleted," not
// to which *object* a name currently resolves to.
func (r *Registry) Define(c *value.Class) {
	r.byName[c.Name] = c
}

// ByName resolves a name symbol to its class, or false if undefined.
func (r *Registry) ByName(id symtab.ID) (*value.Class, bool) {
	c, ok := r.byName[id]
	return c, ok
}
