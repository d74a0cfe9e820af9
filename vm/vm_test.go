package vm

import (
	"errors"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/chazu/loxbc/compiler"
	"github.com/chazu/loxbc/pkg/bytecode"
)

// buildChunk assembles a chunk by hand; every instruction is on line 1.
func buildChunk(constants []bytecode.Value, code ...bytecode.Instruction) *bytecode.Chunk {
	c := bytecode.NewChunk()
	for _, v := range constants {
		c.AddConstant(v)
	}
	for _, inst := range code {
		c.Write(inst, 1)
	}
	return c
}

func op(o bytecode.Opcode) bytecode.Instruction { return bytecode.Op(o) }

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// ---------------------------------------------------------------------------
// Basic execution tests
// ---------------------------------------------------------------------------

func TestExecuteReturnConstant(t *testing.T) {
	chunk := buildChunk([]bytecode.Value{bytecode.FromFloat64(1.5)},
		bytecode.Constant(0),
		op(bytecode.OpReturn),
	)

	got, err := Execute(chunk)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != bytecode.FromFloat64(1.5) {
		t.Errorf("result = %v, want 1.5", got)
	}
}

func TestExecuteLiteralProgram(t *testing.T) {
	chunk := buildChunk(
		[]bytecode.Value{bytecode.FromFloat64(50.0), bytecode.FromFloat64(-1.0), bytecode.FromFloat64(13.9)},
		bytecode.Constant(0),
		bytecode.Constant(1),
		bytecode.Constant(2),
		op(bytecode.OpNegate),
		op(bytecode.OpSubtract),
		op(bytecode.OpDivide),
		op(bytecode.OpReturn),
	)

	got, err := Execute(chunk)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	a, b, c := 50.0, -1.0, 13.9
	want := a / (b - (-c))
	if !got.IsNumber() || got.Float64() != want {
		t.Errorf("result = %v, want %v", got, want)
	}
}

func TestExecuteReturnsStackTopOnly(t *testing.T) {
	chunk := buildChunk([]bytecode.Value{bytecode.FromFloat64(1), bytecode.FromFloat64(2)},
		bytecode.Constant(0),
		bytecode.Constant(1),
		op(bytecode.OpReturn),
	)

	got, err := Execute(chunk)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != bytecode.FromFloat64(2) {
		t.Errorf("result = %v, want 2", got)
	}
}

func TestExecuteNonNumericConstants(t *testing.T) {
	for _, v := range []bytecode.Value{bytecode.Nil, bytecode.True, bytecode.False} {
		got, err := Execute(buildChunk([]bytecode.Value{v}, bytecode.Constant(0), op(bytecode.OpReturn)))
		if err != nil {
			t.Errorf("Execute(%v): %v", v, err)
			continue
		}
		if !got.Equal(v) {
			t.Errorf("result = %v, want %v", got, v)
		}
	}
}

func TestExecuteReusesVM(t *testing.T) {
	machine := New()
	first := buildChunk([]bytecode.Value{bytecode.FromFloat64(1), bytecode.FromFloat64(2)},
		bytecode.Constant(0), bytecode.Constant(1), op(bytecode.OpReturn))
	second := buildChunk([]bytecode.Value{bytecode.FromFloat64(3)},
		bytecode.Constant(0), bytecode.Constant(0), op(bytecode.OpAdd), op(bytecode.OpReturn))

	if _, err := machine.Execute(first); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	// The leftover value from the first run must not be visible.
	got, err := machine.Execute(second)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if got != bytecode.FromFloat64(6) {
		t.Errorf("result = %v, want 6", got)
	}
}

func TestExecuteDeepStack(t *testing.T) {
	c := bytecode.NewChunk()
	idx := c.AddConstant(bytecode.FromFloat64(1))
	const depth = initialStackSize * 3
	for i := 0; i < depth; i++ {
		c.Write(bytecode.Constant(idx), 1)
	}
	for i := 1; i < depth; i++ {
		c.Emit(bytecode.OpAdd, 1)
	}
	c.Emit(bytecode.OpReturn, 1)

	got, err := Execute(c)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != bytecode.FromFloat64(depth) {
		t.Errorf("result = %v, want %d", got, depth)
	}
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func TestExecuteArithmetic(t *testing.T) {
	tenth, fifth := 0.1, 0.2
	tests := []struct {
		op   bytecode.Opcode
		a, b float64
		want float64
	}{
		{bytecode.OpAdd, 1, 2, 3},
		{bytecode.OpSubtract, 1, 2, -1},
		{bytecode.OpMultiply, 3, 4, 12},
		{bytecode.OpDivide, 1, 4, 0.25},
		{bytecode.OpDivide, 1, 0, math.Inf(1)},
		{bytecode.OpDivide, -1, 0, math.Inf(-1)},
		{bytecode.OpDivide, 0, 0, math.NaN()},
		{bytecode.OpAdd, tenth, fifth, tenth + fifth},
	}

	for _, tc := range tests {
		chunk := buildChunk([]bytecode.Value{bytecode.FromFloat64(tc.a), bytecode.FromFloat64(tc.b)},
			bytecode.Constant(0),
			bytecode.Constant(1),
			op(tc.op),
			op(bytecode.OpReturn),
		)
		got, err := Execute(chunk)
		if err != nil {
			t.Errorf("%v %v %v: %v", tc.a, tc.op, tc.b, err)
			continue
		}
		if !sameFloat(got.Float64(), tc.want) {
			t.Errorf("%v %v %v = %v, want %v", tc.a, tc.op, tc.b, got, tc.want)
		}
	}
}

func TestExecuteNegate(t *testing.T) {
	chunk := buildChunk([]bytecode.Value{bytecode.FromFloat64(4)},
		bytecode.Constant(0),
		op(bytecode.OpNegate),
		op(bytecode.OpNegate),
		op(bytecode.OpNegate),
		op(bytecode.OpReturn),
	)

	got, err := Execute(chunk)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != bytecode.FromFloat64(-4) {
		t.Errorf("result = %v, want -4", got)
	}
}

// ---------------------------------------------------------------------------
// Runtime errors
// ---------------------------------------------------------------------------

func TestExecuteNegateTypeError(t *testing.T) {
	tests := []struct {
		value   bytecode.Value
		message string
	}{
		{bytecode.Nil, "cannot negate nil"},
		{bytecode.True, "cannot negate bool"},
		{bytecode.False, "cannot negate bool"},
	}

	for _, tc := range tests {
		chunk := buildChunk([]bytecode.Value{tc.value},
			bytecode.Constant(0),
			op(bytecode.OpNegate),
			op(bytecode.OpReturn),
		)
		_, err := Execute(chunk)
		if !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("negate %v error = %v, want ErrTypeMismatch", tc.value, err)
			continue
		}
		var rtErr *RuntimeError
		if !errors.As(err, &rtErr) {
			t.Fatalf("error %v is not a *RuntimeError", err)
		}
		if rtErr.Message != tc.message || rtErr.Op != bytecode.OpNegate || rtErr.Offset != 1 {
			t.Errorf("error = %+v, want %q at OP_NEGATE offset 1", rtErr, tc.message)
		}
	}
}

func TestExecuteBinaryTypeError(t *testing.T) {
	for _, arith := range []bytecode.Opcode{bytecode.OpAdd, bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide} {
		chunk := buildChunk([]bytecode.Value{bytecode.FromFloat64(1), bytecode.True},
			bytecode.Constant(0),
			bytecode.Constant(1),
			op(arith),
			op(bytecode.OpReturn),
		)
		_, err := Execute(chunk)
		if !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("%v error = %v, want ErrTypeMismatch", arith, err)
			continue
		}
		if !strings.Contains(err.Error(), "operand must be a number, got bool") {
			t.Errorf("%v error = %q", arith, err)
		}
	}
}

func TestExecuteStackUnderflow(t *testing.T) {
	one := []bytecode.Value{bytecode.FromFloat64(1)}
	tests := []struct {
		name  string
		chunk *bytecode.Chunk
	}{
		{"negate empty", buildChunk(nil, op(bytecode.OpNegate), op(bytecode.OpReturn))},
		{"add empty", buildChunk(nil, op(bytecode.OpAdd), op(bytecode.OpReturn))},
		{"add one", buildChunk(one, bytecode.Constant(0), op(bytecode.OpAdd), op(bytecode.OpReturn))},
		{"subtract one", buildChunk(one, bytecode.Constant(0), op(bytecode.OpSubtract), op(bytecode.OpReturn))},
		{"multiply one", buildChunk(one, bytecode.Constant(0), op(bytecode.OpMultiply), op(bytecode.OpReturn))},
		{"divide one", buildChunk(one, bytecode.Constant(0), op(bytecode.OpDivide), op(bytecode.OpReturn))},
		{"return empty", buildChunk(nil, op(bytecode.OpReturn))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Execute(tc.chunk)
			if !errors.Is(err, ErrStackUnderflow) {
				t.Errorf("error = %v, want ErrStackUnderflow", err)
			}
			if errors.Is(err, ErrTypeMismatch) || errors.Is(err, ErrMissingReturn) {
				t.Errorf("error %v matches more than one kind", err)
			}
		})
	}
}

func TestExecuteMissingReturn(t *testing.T) {
	tests := []struct {
		name  string
		chunk *bytecode.Chunk
	}{
		{"empty", buildChunk(nil)},
		{"constant only", buildChunk([]bytecode.Value{bytecode.FromFloat64(1)}, bytecode.Constant(0))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Execute(tc.chunk)
			if !errors.Is(err, ErrMissingReturn) {
				t.Fatalf("error = %v, want ErrMissingReturn", err)
			}
			var rtErr *RuntimeError
			if !errors.As(err, &rtErr) || rtErr.Offset != len(tc.chunk.Code) {
				t.Errorf("error = %+v, want offset %d", rtErr, len(tc.chunk.Code))
			}
			if !strings.Contains(err.Error(), "no return statement in chunk") {
				t.Errorf("error = %q", err)
			}
		})
	}
}

func TestExecuteUnknownOpcode(t *testing.T) {
	chunk := buildChunk(nil, bytecode.Instruction{Op: 0x7F}, op(bytecode.OpReturn))

	_, err := Execute(chunk)
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("error = %v, want ErrUnknownOpcode", err)
	}
	if !strings.Contains(err.Error(), "0x7F") {
		t.Errorf("error %q should name the opcode", err)
	}
}

func TestRuntimeErrorLine(t *testing.T) {
	tests := []struct {
		source string
		line   int
		kind   error
	}{
		{"1 +\nnil", 1, ErrTypeMismatch},
		{"\n\n-\ntrue", 3, ErrTypeMismatch},
		{"2 *\n\n(false)", 1, ErrTypeMismatch},
	}

	for _, tc := range tests {
		_, err := Interpret(tc.source)
		if !errors.Is(err, tc.kind) {
			t.Errorf("Interpret(%q) error = %v, want %v", tc.source, err, tc.kind)
			continue
		}
		var rtErr *RuntimeError
		if !errors.As(err, &rtErr) || rtErr.Line != tc.line {
			t.Errorf("Interpret(%q) error = %+v, want line %d", tc.source, rtErr, tc.line)
		}
		if !strings.HasPrefix(err.Error(), "[line "+strconv.Itoa(tc.line)+"] runtime error: ") {
			t.Errorf("Interpret(%q) error = %q", tc.source, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Interpret: compile then execute
// ---------------------------------------------------------------------------

func TestInterpret(t *testing.T) {
	fifty, thirteenNine := 50.0, 13.9
	tests := []struct {
		source string
		want   bytecode.Value
	}{
		{"1 + 2 * 3", bytecode.FromFloat64(7)},
		{"(1 + 2) * 3", bytecode.FromFloat64(9)},
		{"8 - 4 - 2", bytecode.FromFloat64(2)},
		{"8 / 4 / 2", bytecode.FromFloat64(1)},
		{"-2 * 3", bytecode.FromFloat64(-6)},
		{"--5", bytecode.FromFloat64(5)},
		{"50 / (-1 - -13.9)", bytecode.FromFloat64(fifty / (-1 - -thirteenNine))},
		{"true", bytecode.True},
		{"nil", bytecode.Nil},
		{"  42  ", bytecode.FromFloat64(42)},
	}

	for _, tc := range tests {
		got, err := Interpret(tc.source)
		if err != nil {
			t.Errorf("Interpret(%q): %v", tc.source, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("Interpret(%q) = %v, want %v", tc.source, got, tc.want)
		}
	}
}

func TestInterpretCompileError(t *testing.T) {
	_, err := Interpret("1 +")
	var ce *compiler.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *compiler.CompileError", err)
	}
	var rtErr *RuntimeError
	if errors.As(err, &rtErr) {
		t.Error("compile error reported as runtime error")
	}

	if _, err := Interpret("@"); !errors.Is(err, compiler.ErrUnexpectedCharacter) {
		t.Errorf("error = %v, want ErrUnexpectedCharacter", err)
	}
}

func TestInterpretLexerOptions(t *testing.T) {
	got, err := Interpret("1 + // one\n2", compiler.WithLexerOptions(compiler.WithLineComments()))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if got != bytecode.FromFloat64(3) {
		t.Errorf("result = %v, want 3", got)
	}
}

func TestExecuteWithTrace(t *testing.T) {
	chunk, err := compiler.Compile("(1 + 2) * -3")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	got, err := New(WithTrace(true)).Execute(chunk)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != bytecode.FromFloat64(-9) {
		t.Errorf("result = %v, want -9", got)
	}
}

// ---------------------------------------------------------------------------
// Round-trip: compiled arithmetic matches direct evaluation
// ---------------------------------------------------------------------------

// expr is a randomly generated arithmetic expression.
type expr struct {
	op          byte // 0 for a literal, 'n' for unary minus, else + - * /
	literal     string
	left, right *expr
}

func (e *expr) prec() int {
	switch e.op {
	case 0:
		return 4
	case 'n':
		return 3
	case '*', '/':
		return 2
	default:
		return 1
	}
}

func (e *expr) eval() float64 {
	switch e.op {
	case 0:
		f, _ := strconv.ParseFloat(e.literal, 64)
		return f
	case 'n':
		return -e.left.eval()
	}
	a, b := e.left.eval(), e.right.eval()
	// Explicit conversions keep each operation individually rounded.
	switch e.op {
	case '+':
		return float64(a + b)
	case '-':
		return float64(a - b)
	case '*':
		return float64(a * b)
	default:
		return float64(a / b)
	}
}

// render prints e with the minimal parentheses needed to preserve its shape.
func (e *expr) render(sb *strings.Builder) {
	switch e.op {
	case 0:
		sb.WriteString(e.literal)
		return
	case 'n':
		sb.WriteString("-")
		renderOperand(sb, e.left, e.left.prec() < 3)
		return
	}
	renderOperand(sb, e.left, e.left.prec() < e.prec())
	sb.WriteString(" ")
	sb.WriteByte(e.op)
	sb.WriteString(" ")
	renderOperand(sb, e.right, e.right.prec() <= e.prec())
}

func renderOperand(sb *strings.Builder, e *expr, paren bool) {
	if paren {
		sb.WriteString("(")
	}
	e.render(sb)
	if paren {
		sb.WriteString(")")
	}
}

func randomExpr(r *rand.Rand, depth int) *expr {
	if depth == 0 || r.Intn(4) == 0 {
		lit := strconv.Itoa(r.Intn(100))
		if r.Intn(2) == 0 {
			lit += "." + strconv.Itoa(r.Intn(1000))
		}
		return &expr{literal: lit}
	}
	if r.Intn(5) == 0 {
		return &expr{op: 'n', left: randomExpr(r, depth-1)}
	}
	ops := "+-*/"
	return &expr{
		op:    ops[r.Intn(len(ops))],
		left:  randomExpr(r, depth-1),
		right: randomExpr(r, depth-1),
	}
}

func TestInterpretMatchesDirectEvaluation(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		e := randomExpr(r, 5)
		var sb strings.Builder
		e.render(&sb)
		source := sb.String()

		got, err := Interpret(source)
		if err != nil {
			t.Fatalf("Interpret(%q): %v", source, err)
		}
		if want := e.eval(); !got.IsNumber() || !sameFloat(got.Float64(), want) {
			t.Errorf("Interpret(%q) = %v, want %v", source, got, want)
		}
	}
}
