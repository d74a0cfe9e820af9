package bytecode

import (
	"errors"
	"fmt"
)

// ErrInvalidChunk is wrapped by every error returned from Chunk.Validate.
var ErrInvalidChunk = errors.New("invalid chunk")

// Chunk is a compiled unit: an instruction sequence, its constant pool and a
// parallel line table with one entry per instruction.
//
// A chunk is built once by the compiler and is read-only afterwards.
type Chunk struct {
	Code      []Instruction
	Constants []Value
	Lines     []int
}

// NewChunk creates a new empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]Instruction, 0, 16),
		Constants: make([]Value, 0, 8),
		Lines:     make([]int, 0, 16),
	}
}

// Write appends an instruction and the source line it came from.
// Returns the offset of the instruction.
func (c *Chunk) Write(inst Instruction, line int) int {
	offset := len(c.Code)
	c.Code = append(c.Code, inst)
	c.Lines = append(c.Lines, line)
	return offset
}

// Emit appends an operand-less instruction.
func (c *Chunk) Emit(op Opcode, line int) int {
	return c.Write(Op(op), line)
}

// AddConstant appends a value to the constant pool and returns its index.
// Indices are stable: the pool is append-only and never deduplicated.
func (c *Chunk) AddConstant(value Value) int {
	c.Constants = append(c.Constants, value)
	return len(c.Constants) - 1
}

// WriteConstant adds value to the pool and emits OpConstant for it.
func (c *Chunk) WriteConstant(value Value, line int) int {
	return c.Write(Constant(c.AddConstant(value)), line)
}

// GetConstant returns the constant at the given index.
// Panics if the index is out of bounds.
func (c *Chunk) GetConstant(index int) Value {
	return c.Constants[index]
}

// Line returns the source line for the instruction at offset, or 0 when the
// offset has no entry.
func (c *Chunk) Line(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// CodeLen returns the number of instructions.
func (c *Chunk) CodeLen() int {
	return len(c.Code)
}

// ConstantCount returns the number of constants in the pool.
func (c *Chunk) ConstantCount() int {
	return len(c.Constants)
}

// Validate checks the structural invariants a compiler guarantees by
// construction. Chunks that arrive from outside the compiler (decoded from
// the wire or the cache) are validated before use.
func (c *Chunk) Validate() error {
	if len(c.Code) != len(c.Lines) {
		return fmt.Errorf("%w: %d instructions but %d line entries", ErrInvalidChunk, len(c.Code), len(c.Lines))
	}
	for offset, inst := range c.Code {
		if !inst.Op.IsKnown() {
			return fmt.Errorf("%w: unknown opcode 0x%02X at offset %d", ErrInvalidChunk, byte(inst.Op), offset)
		}
		if inst.Op == OpConstant && (inst.Operand < 0 || inst.Operand >= len(c.Constants)) {
			return fmt.Errorf("%w: constant index %d out of range at offset %d (pool has %d)",
				ErrInvalidChunk, inst.Operand, offset, len(c.Constants))
		}
	}
	return nil
}
