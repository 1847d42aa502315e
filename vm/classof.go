package vm

import "github.com/dressupgeekout/mrubyc/value"

// classOf resolves v's method-lookup class (spec §3.2, §4.5), the
// starting point for OpSend's method search.
func (vm *VM) classOf(v value.Value) *value.Class {
	switch v.Tag {
	case value.NIL:
		return vm.registry.NilClass
	case value.TRUE:
		return vm.registry.TrueClass
	case value.FALSE:
		return vm.registry.FalseClass
	case value.INTEGER:
		return vm.registry.Integer
	case value.FLOAT:
		return vm.registry.Float
	case value.SYMBOL:
		return vm.registry.Symbol
	case value.STRING:
		return vm.registry.String
	case value.ARRAY:
		return vm.registry.Array
	case value.HASH:
		return vm.registry.Hash
	case value.RANGE:
		return vm.registry.Range
	case value.PROC:
		return vm.registry.Proc
	case value.CLASS:
		return vm.registry.ClassClass
	case value.OBJECT, value.EXCEPTION:
		return v.InstanceClass()
	default:
		return vm.registry.Object
	}
}
