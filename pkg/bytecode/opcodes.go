package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
type Opcode byte

const (
	OpReturn   Opcode = 0x00 // Pop and return top of stack
	OpConstant Opcode = 0x01 // Push constant from pool: OpConstant <index>
	OpNegate   Opcode = 0x02 // Negate top of stack in place

	// Arithmetic (0x10-0x1F)
	OpAdd      Opcode = 0x10 // Pop two, push sum
	OpSubtract Opcode = 0x11 // Pop two, push difference (a - b where b is TOS)
	OpMultiply Opcode = 0x12 // Pop two, push product
	OpDivide   Opcode = 0x13 // Pop two, push quotient (a / b where b is TOS)
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack
	StackPush  int    // How many values pushed to stack
	HasOperand bool   // Whether Instruction.Operand is meaningful
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpReturn:   {"OP_RETURN", 1, 0, false},
	OpConstant: {"OP_CONSTANT", 0, 1, true},
	OpNegate:   {"OP_NEGATE", 1, 1, false},

	OpAdd:      {"OP_ADD", 2, 1, false},
	OpSubtract: {"OP_SUBTRACT", 2, 1, false},
	OpMultiply: {"OP_MULTIPLY", 2, 1, false},
	OpDivide:   {"OP_DIVIDE", 2, 1, false},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsKnown reports whether op is part of the instruction set.
func (op Opcode) IsKnown() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsArithmetic returns true for the binary arithmetic opcodes.
func (op Opcode) IsArithmetic() bool {
	return op >= OpAdd && op <= OpDivide
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}

// Instruction is one decoded instruction. Operand is only meaningful for
// opcodes whose info has HasOperand set; for OpConstant it is the index into
// the owning chunk's constant pool.
type Instruction struct {
	Op      Opcode
	Operand int
}

// Op builds an operand-less instruction.
func Op(op Opcode) Instruction {
	return Instruction{Op: op}
}

// Constant builds an OpConstant instruction for the given pool index.
func Constant(index int) Instruction {
	return Instruction{Op: OpConstant, Operand: index}
}

func (i Instruction) String() string {
	if GetOpcodeInfo(i.Op).HasOperand {
		return fmt.Sprintf("%s %d", i.Op, i.Operand)
	}
	return i.Op.String()
}
