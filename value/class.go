package value

import (
	"github.com/dressupgeekout/mrubyc/irep"
	"github.com/dressupgeekout/mrubyc/symtab"
)

// MethodKind distinguishes a native (Go) method body from a script
// method that points into an irep (spec §3.2).
type MethodKind uint8

const (
	MethodNative MethodKind = iota
	MethodScript
)

// Method is either a built-in (native function pointer) or a script
// method (index into an irep's children). Methods are never
// unregistered once added (spec §5).
type Method struct {
	Kind       MethodKind
	Native     NativeFunc
	ScriptIrep *irep.Irep // meaningful when Kind == MethodScript
}

type methodNode struct {
	sym    symtab.ID
	method Method
	next   *methodNode
}

// Class has a symbol id for its name, an optional parent, and a singly
// linked method chain prepended at registration time (spec §3.2).
type Class struct {
	Name    symtab.ID
	Parent  *Class
	methods *methodNode
}

// NewClass creates a class named by sym with the given (possibly nil)
// parent.
func NewClass(sym symtab.ID, parent *Class) *Class {
	return &Class{Name: sym, Parent: parent}
}

// DefineMethod prepends a method onto the class's method chain, per
// spec §3.2. Redefining a name makes the new definition shadow the old
// one without removing it — methods are never unregistered.
func (c *Class) DefineMethod(sym symtab.ID, m Method) {
	c.methods = &methodNode{sym: sym, method: m, next: c.methods}
}

// Lookup walks c's own method chain, then ascends to each parent in
// turn, stopping at the first match (spec §3.2).
func (c *Class) Lookup(sym symtab.ID) (Method, *Class, bool) {
	for cls := c; cls != nil; cls = cls.Parent {
		for n := cls.methods; n != nil; n = n.next {
			if n.sym == sym {
				return n.method, cls, true
			}
		}
	}
	return Method{}, nil, false
}

// IsKindOf walks c's parent chain looking for target, implementing
// spec §4.4's is_kind_of?. A class is considered a kind of itself.
func IsKindOf(c *Class, target *Class) bool {
	if c == nil || target == nil {
		return false
	}
	for cur := c; cur != nil; cur = cur.Parent {
		if cur == target {
			return true
		}
	}
	return false
}
