package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleEmpty(t *testing.T) {
	c := NewChunk()

	output := c.DisassembleWithName("empty")

	if !strings.Contains(output, "== empty ==") {
		t.Error("Disassembly missing header")
	}
}

func TestDisassembleSimple(t *testing.T) {
	c := NewChunk()
	c.WriteConstant(FromFloat64(1.2), 123)
	c.Emit(OpNegate, 123)
	c.Emit(OpReturn, 124)

	output := c.Disassemble()

	for _, want := range []string{"Constants:", "OP_CONSTANT", "'1.2'", "OP_NEGATE", "OP_RETURN"} {
		if !strings.Contains(output, want) {
			t.Errorf("Disassembly missing %q:\n%s", want, output)
		}
	}
}

func TestDisassembleInstructionLines(t *testing.T) {
	c := NewChunk()
	c.WriteConstant(FromFloat64(1), 7)
	c.Emit(OpNegate, 7)
	c.Emit(OpReturn, 8)

	if got := c.DisassembleInstruction(0); !strings.HasPrefix(got, "0000    7 OP_CONSTANT") {
		t.Errorf("instruction 0 = %q", got)
	}
	if got := c.DisassembleInstruction(1); got != "0001    | OP_NEGATE" {
		t.Errorf("instruction 1 = %q, want repeated-line marker", got)
	}
	if got := c.DisassembleInstruction(2); got != "0002    8 OP_RETURN" {
		t.Errorf("instruction 2 = %q", got)
	}
	if got := c.DisassembleInstruction(3); !strings.Contains(got, "<end of code>") {
		t.Errorf("instruction 3 = %q, want end marker", got)
	}
}

func TestDisassembleBadConstantIndex(t *testing.T) {
	c := &Chunk{Code: []Instruction{Constant(5)}, Lines: []int{1}}

	if got := c.DisassembleInstruction(0); !strings.Contains(got, "<bad index>") {
		t.Errorf("instruction 0 = %q, want bad index marker", got)
	}
}
