package bytecode

import (
	"fmt"
	"strconv"
)

// ValueKind tags the variant held by a Value.
//
// New variants (strings, functions, instances) are added here; code that
// switches on Kind must keep a default branch so it stays total.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindBool
	KindNumber
)

var valueKindNames = map[ValueKind]string{
	KindNil:    "nil",
	KindBool:   "bool",
	KindNumber: "number",
}

func (k ValueKind) String() string {
	if name, ok := valueKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ValueKind(%d)", uint8(k))
}

// Value is a runtime value: nil, a boolean, or a 64-bit float.
//
// Values are small and comparable; copy them freely. The zero Value is nil.
// Only the payload field matching the kind is ever set, so == on two Values
// is structural equality within a variant and false across variants
// (with the usual float caveat that NaN != NaN).
type Value struct {
	kind ValueKind
	b    bool
	n    float64
}

// Pre-defined values
var (
	Nil   = Value{}
	True  = Value{kind: KindBool, b: true}
	False = Value{kind: KindBool, b: false}
)

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// FromBool returns True or False.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromFloat64 wraps a number.
func FromFloat64(f float64) Value {
	return Value{kind: KindNumber, n: f}
}

// ---------------------------------------------------------------------------
// Type checking and access
// ---------------------------------------------------------------------------

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNil() bool    { return v.kind == KindNil }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsNumber() bool { return v.kind == KindNumber }

// Bool returns the boolean payload. It is false for non-bool values.
func (v Value) Bool() bool { return v.kind == KindBool && v.b }

// Float64 returns the numeric payload. It is 0 for non-number values.
func (v Value) Float64() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.n
}

// Equal reports whether v and other hold the same variant and payload.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	default:
		return v == other
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}

// GoString makes test failures show the variant, e.g. Number(7).
func (v Value) GoString() string {
	switch v.kind {
	case KindNil:
		return "Nil"
	case KindBool:
		return fmt.Sprintf("Bool(%t)", v.b)
	case KindNumber:
		return fmt.Sprintf("Number(%s)", strconv.FormatFloat(v.n, 'g', -1, 64))
	default:
		return fmt.Sprintf("Value(%s)", v.kind)
	}
}
