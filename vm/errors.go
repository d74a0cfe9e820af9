package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/loxbc/pkg/bytecode"
)

// Runtime error kinds. A RuntimeError wraps exactly one of these.
var (
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrMissingReturn  = errors.New("no return statement in chunk")
	ErrUnknownOpcode  = errors.New("unknown opcode")
)

// RuntimeError reports the instruction at which execution failed.
type RuntimeError struct {
	Op      bytecode.Opcode
	Offset  int    // instruction offset, or len(code) for a missing return
	Line    int    // source line from the chunk's line table, 0 if unknown
	Err     error  // one of the Err* kinds above
	Message string // specific description, e.g. "cannot negate bool"
}

func (e *RuntimeError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Err.Error()
	}
	if e.Line > 0 {
		return fmt.Sprintf("[line %d] runtime error: %s", e.Line, msg)
	}
	return fmt.Sprintf("runtime error: %s", msg)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
