package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the chunk.
func (c *Chunk) Disassemble() string {
	return c.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable bytecode listing with a name header.
//
// Each line shows the instruction offset, its source line ("   |" when it
// repeats the previous instruction's line), the opcode and, for constants,
// the pool index and value.
func (c *Chunk) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("== %s ==\n", name))
	}

	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range c.Constants {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, v))
		}
		sb.WriteString("\n")
	}

	for offset := range c.Code {
		sb.WriteString(c.DisassembleInstruction(offset))
		sb.WriteString("\n")
	}

	return sb.String()
}

// DisassembleInstruction formats the instruction at offset.
func (c *Chunk) DisassembleInstruction(offset int) string {
	if offset < 0 || offset >= len(c.Code) {
		return fmt.Sprintf("%04d <end of code>", offset)
	}

	var lineCol string
	if offset > 0 && c.Line(offset) == c.Line(offset-1) {
		lineCol = "   |"
	} else {
		lineCol = fmt.Sprintf("%4d", c.Line(offset))
	}

	inst := c.Code[offset]
	switch inst.Op {
	case OpConstant:
		constVal := "<bad index>"
		if inst.Operand >= 0 && inst.Operand < len(c.Constants) {
			constVal = c.Constants[inst.Operand].String()
		}
		return fmt.Sprintf("%04d %s %-16s %4d '%s'", offset, lineCol, inst.Op, inst.Operand, constVal)
	default:
		return fmt.Sprintf("%04d %s %s", offset, lineCol, inst.Op)
	}
}
