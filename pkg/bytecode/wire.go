package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is the current wire format version.
// Increment when making incompatible changes to the format.
const FormatVersion uint16 = 1

// FormatMagic prefixes every encoded chunk: "LXBC" (Lox ByteCode).
const FormatMagic = "LXBC"

// wireChunk is the CBOR shape of a Chunk.
type wireChunk struct {
	Magic     string            `cbor:"1,keyasint"`
	Version   uint16            `cbor:"2,keyasint"`
	Code      []wireInstruction `cbor:"3,keyasint"`
	Constants []wireValue       `cbor:"4,keyasint,omitempty"`
	Lines     []int             `cbor:"5,keyasint"`
}

type wireInstruction struct {
	Op      Opcode `cbor:"1,keyasint"`
	Operand int    `cbor:"2,keyasint,omitempty"`
}

type wireValue struct {
	Kind   ValueKind `cbor:"1,keyasint"`
	Bool   bool      `cbor:"2,keyasint,omitempty"`
	Number float64   `cbor:"3,keyasint"`
}

// Canonical mode keeps encoding deterministic, so identical chunks produce
// identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalChunk serializes a Chunk to CBOR bytes.
func MarshalChunk(c *Chunk) ([]byte, error) {
	w := wireChunk{
		Magic:   FormatMagic,
		Version: FormatVersion,
		Code:    make([]wireInstruction, len(c.Code)),
		Lines:   c.Lines,
	}
	for i, inst := range c.Code {
		w.Code[i] = wireInstruction{Op: inst.Op, Operand: inst.Operand}
	}
	for _, v := range c.Constants {
		w.Constants = append(w.Constants, wireValue{Kind: v.kind, Bool: v.b, Number: v.n})
	}
	return cborEncMode.Marshal(&w)
}

// UnmarshalChunk deserializes a Chunk from CBOR bytes and validates it.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	var w wireChunk
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal chunk: %w", err)
	}
	if w.Magic != FormatMagic {
		return nil, fmt.Errorf("bytecode: invalid magic: expected %q, got %q", FormatMagic, w.Magic)
	}
	if w.Version > FormatVersion {
		return nil, fmt.Errorf("bytecode: format version %d is newer than supported version %d", w.Version, FormatVersion)
	}

	c := &Chunk{
		Code:      make([]Instruction, len(w.Code)),
		Constants: make([]Value, 0, len(w.Constants)),
		Lines:     w.Lines,
	}
	if c.Lines == nil {
		c.Lines = []int{}
	}
	for i, inst := range w.Code {
		c.Code[i] = Instruction{Op: inst.Op, Operand: inst.Operand}
	}
	for i, v := range w.Constants {
		switch v.Kind {
		case KindNil:
			c.Constants = append(c.Constants, Nil)
		case KindBool:
			c.Constants = append(c.Constants, FromBool(v.Bool))
		case KindNumber:
			c.Constants = append(c.Constants, FromFloat64(v.Number))
		default:
			return nil, fmt.Errorf("bytecode: constant %d has unknown kind %d", i, v.Kind)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("bytecode: %w", err)
	}
	return c, nil
}
