// Package vm executes compiled chunks on an operand stack.
package vm

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/loxbc/compiler"
	"github.com/chazu/loxbc/pkg/bytecode"
)

const initialStackSize = 256

// VM executes bytecode chunks. A VM runs one chunk at a time and must not
// be shared between goroutines.
type VM struct {
	chunk *bytecode.Chunk // Current bytecode chunk
	ip    int             // Instruction pointer
	stack []bytecode.Value
	sp    int // Stack pointer

	trace bool
	log   commonlog.Logger
}

// Option configures a VM.
type Option func(*VM)

// WithTrace logs the stack and each instruction at debug level before it
// executes.
func WithTrace(trace bool) Option {
	return func(vm *VM) {
		vm.trace = trace
	}
}

// WithLogger sets the logger used for tracing.
func WithLogger(log commonlog.Logger) Option {
	return func(vm *VM) {
		vm.log = log
	}
}

// New creates a new VM instance.
func New(opts ...Option) *VM {
	vm := &VM{
		stack: make([]bytecode.Value, initialStackSize),
		log:   commonlog.GetLogger("loxbc.vm"),
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Execute runs chunk on a fresh VM.
func Execute(chunk *bytecode.Chunk, opts ...Option) (bytecode.Value, error) {
	return New(opts...).Execute(chunk)
}

// Interpret compiles source and executes the result. Compile errors are
// returned as-is; the VM only runs when compilation succeeds.
func Interpret(source string, opts ...compiler.Option) (bytecode.Value, error) {
	chunk, err := compiler.Compile(source, opts...)
	if err != nil {
		return bytecode.Nil, err
	}
	return New().Execute(chunk)
}

// Execute runs chunk from its first instruction against an empty stack and
// returns the value popped by OP_RETURN.
func (vm *VM) Execute(chunk *bytecode.Chunk) (bytecode.Value, error) {
	vm.chunk = chunk
	vm.ip = 0
	vm.sp = 0
	defer func() {
		vm.chunk = nil
	}()

	return vm.run()
}

// run is the main execution loop.
func (vm *VM) run() (bytecode.Value, error) {
	code := vm.chunk.Code
	for vm.ip < len(code) {
		inst := code[vm.ip]

		if vm.trace && vm.log.AllowLevel(commonlog.Debug) {
			vm.log.Debugf("%-24s %s", vm.stackString(), vm.chunk.DisassembleInstruction(vm.ip))
		}

		switch inst.Op {
		case bytecode.OpReturn:
			if vm.sp == 0 {
				return bytecode.Nil, vm.fault(inst.Op, ErrStackUnderflow, "return with empty stack")
			}
			return vm.pop(), nil

		case bytecode.OpConstant:
			vm.push(vm.chunk.Constants[inst.Operand])

		case bytecode.OpNegate:
			if vm.sp == 0 {
				return bytecode.Nil, vm.fault(inst.Op, ErrStackUnderflow, "")
			}
			top := &vm.stack[vm.sp-1]
			if !top.IsNumber() {
				return bytecode.Nil, vm.fault(inst.Op, ErrTypeMismatch, fmt.Sprintf("cannot negate %s", top.Kind()))
			}
			*top = bytecode.FromFloat64(-top.Float64())

		case bytecode.OpAdd, bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
			b, err := vm.popNumber(inst.Op)
			if err != nil {
				return bytecode.Nil, err
			}
			a, err := vm.popNumber(inst.Op)
			if err != nil {
				return bytecode.Nil, err
			}
			vm.push(bytecode.FromFloat64(arith(inst.Op, a, b)))

		default:
			return bytecode.Nil, vm.fault(inst.Op, ErrUnknownOpcode, fmt.Sprintf("unknown opcode 0x%02X", byte(inst.Op)))
		}

		vm.ip++
	}

	return bytecode.Nil, &RuntimeError{
		Op:     bytecode.OpReturn,
		Offset: len(code),
		Line:   vm.chunk.Line(len(code) - 1),
		Err:    ErrMissingReturn,
	}
}

// arith applies a binary arithmetic opcode with IEEE-754 semantics; division
// by zero yields an infinity or NaN.
func arith(op bytecode.Opcode, a, b float64) float64 {
	switch op {
	case bytecode.OpAdd:
		return a + b
	case bytecode.OpSubtract:
		return a - b
	case bytecode.OpMultiply:
		return a * b
	default:
		return a / b
	}
}

// ---------------------------------------------------------------------------
// Stack helpers
// ---------------------------------------------------------------------------

func (vm *VM) push(v bytecode.Value) {
	if vm.sp >= len(vm.stack) {
		newStack := make([]bytecode.Value, len(vm.stack)*2)
		copy(newStack, vm.stack)
		vm.stack = newStack
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

// pop assumes the caller checked vm.sp > 0.
func (vm *VM) pop() bytecode.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) popNumber(op bytecode.Opcode) (float64, error) {
	if vm.sp == 0 {
		return 0, vm.fault(op, ErrStackUnderflow, "")
	}
	v := vm.pop()
	if !v.IsNumber() {
		return 0, vm.fault(op, ErrTypeMismatch, fmt.Sprintf("operand must be a number, got %s", v.Kind()))
	}
	return v.Float64(), nil
}

func (vm *VM) fault(op bytecode.Opcode, kind error, message string) *RuntimeError {
	return &RuntimeError{
		Op:      op,
		Offset:  vm.ip,
		Line:    vm.chunk.Line(vm.ip),
		Err:     kind,
		Message: message,
	}
}

func (vm *VM) stackString() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < vm.sp; i++ {
		sb.WriteString(" ")
		sb.WriteString(vm.stack[i].String())
	}
	sb.WriteString(" ]")
	return sb.String()
}
