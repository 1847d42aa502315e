// Package rtenv assembles one Runtime — the pool, symbol table, class
// registry, and logger a set of tasks share — and the per-task handle
// (Task) that loads bytecode and drives a VM to completion (spec §5,
// §6.2).
package rtenv

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dressupgeekout/mrubyc/class"
	"github.com/dressupgeekout/mrubyc/irep"
	"github.com/dressupgeekout/mrubyc/pool"
	"github.com/dressupgeekout/mrubyc/symtab"
	"github.com/dressupgeekout/mrubyc/value"
	"github.com/dressupgeekout/mrubyc/vm"
)

// Config controls the fixed resources a Runtime bootstraps with, the
// Go-native stand-in for the source's build-time RAM budget constants
// (spec §5, AMBIENT STACK).
type Config struct {
	PoolSize         int
	SymbolCapacity   int
	InternerStrategy symtab.Strategy
	LogLevel         logrus.Level
	LogFormatJSON    bool
	Stdout           io.Writer
}

// DefaultConfig matches the defaults documented in SPEC_FULL.md's
// Configuration section.
func DefaultConfig() Config {
	return Config{
		PoolSize:         64 * 1024,
		SymbolCapacity:   256,
		InternerStrategy: symtab.Linear,
		LogLevel:         logrus.InfoLevel,
		Stdout:           os.Stdout,
	}
}

// Runtime is the shared environment every Task in a process runs
// against: one pool, one symbol table, one class registry, one logger
// (spec §5's single cooperative-scheduling domain).
type Runtime struct {
	Pool     *pool.Pool
	Heap     *value.Heap
	Symtab   *symtab.Table
	Classes  *class.Registry
	Log      *logrus.Logger
	cfg      Config
}

// NewRuntime allocates the pool, bootstraps the symbol table and class
// hierarchy, and wires the built-in method bodies (spec §5 step 1).
func NewRuntime(cfg Config) (*Runtime, error) {
	buf := make([]byte, cfg.PoolSize)
	p, err := pool.New(buf)
	if err != nil {
		return nil, errors.Wrap(err, "rtenv: allocating pool")
	}

	syms := symtab.New(cfg.InternerStrategy, cfg.SymbolCapacity, nil)
	registry, err := class.NewRegistry(syms)
	if err != nil {
		return nil, errors.Wrap(err, "rtenv: bootstrapping class hierarchy")
	}
	if err := vm.RegisterBuiltins(registry, syms); err != nil {
		return nil, errors.Wrap(err, "rtenv: registering builtins")
	}

	log := logrus.New()
	log.SetLevel(cfg.LogLevel)
	if cfg.LogFormatJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{})
	}

	return &Runtime{
		Pool:    p,
		Heap:    value.NewHeap(p),
		Symtab:  syms,
		Classes: registry,
		Log:     log,
		cfg:     cfg,
	}, nil
}

// Task is one loaded program bound to its own VM (spec §6.2): tasks
// share the Runtime's pool/symtab/classes but never each other's
// register files or call stacks.
type Task struct {
	ID  uuid.UUID
	rt  *Runtime
	ir  *irep.Irep
	vm  *vm.VM
}

// CreateTask loads a RITE02 bytecode image into the runtime's shared
// pool and symbol table, and builds a VM ready to run it (spec §6.2's
// task_create()). The bytecode buffer must outlive the task: code
// sections are borrowed, not copied (spec §4.3).
func (rt *Runtime) CreateTask(bytecode []byte) (*Task, error) {
	ldr := irep.NewLoader(bytecode, rt.Symtab, rt.Pool)
	root, err := ldr.Load()
	if err != nil {
		return nil, errors.Wrap(err, "rtenv: loading bytecode")
	}

	self, err := rt.Heap.NewInstance(rt.Classes.Object, 0)
	if err != nil {
		root.Release(rt.Pool)
		return nil, errors.Wrap(err, "rtenv: allocating task self")
	}

	m := vm.New(rt.Heap, rt.Symtab, rt.Classes, rt.Log, self)
	if rt.cfg.Stdout != nil {
		m.Stdout = rt.cfg.Stdout
	}

	return &Task{ID: uuid.New(), rt: rt, ir: root, vm: m}, nil
}

// Run drives the task's VM to completion (spec §6.2's task_run()),
// returning the top-level result and whether it completed without an
// uncaught exception. The task's irep tree is released back to the
// runtime's pool before returning, whatever the outcome — tasks are
// single-shot.
func (t *Task) Run() (result value.Value, ok bool, err error) {
	defer t.ir.Release(t.rt.Pool)
	result, ok, err = t.vm.Run(t.ir)
	if err != nil {
		t.rt.Log.WithError(err).WithField("task", t.ID).Error("task run failed")
	} else if !ok {
		t.rt.Log.WithField("task", t.ID).Warn("task raised an uncaught exception")
	}
	return result, ok, err
}

// Exception returns the task's pending/uncaught exception, valid after
// Run returns ok == false with a nil error.
func (t *Task) Exception() value.Value { return t.vm.Exc }
