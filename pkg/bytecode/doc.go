// Package bytecode defines the compiled form of loxbc programs: the runtime
// Value model, the instruction set, and the Chunk that carries them.
//
// # Architecture Overview
//
//   - Value: a tagged variant over nil, bool and float64. Values are plain
//     comparable structs shared by the compiler (constants) and the VM
//     (stack slots and results).
//
//   - Opcodes: a closed set of stack instructions (OP_RETURN, OP_CONSTANT,
//     OP_NEGATE and the four binary arithmetic operators). Each opcode has
//     an OpcodeInfo entry describing its stack effect.
//
//   - Chunk: an instruction sequence, an append-only constant pool, and a
//     per-instruction line table used for diagnostics. A Chunk satisfies
//     len(Code) == len(Lines) and every OP_CONSTANT operand indexes the pool.
//
//   - Wire format: chunks encode to canonical CBOR prefixed with the "LXBC"
//     magic so they can be written to disk or cached and executed later
//     without recompiling. Decoding validates the chunk invariants.
//
// The compiler package produces chunks; the vm package executes them.
package bytecode
