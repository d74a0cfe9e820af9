package compiler

import (
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/chazu/loxbc/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Compiler: single-pass Pratt parser emitting bytecode directly
// ---------------------------------------------------------------------------

// Precedence orders binary operators; higher binds tighter.
type Precedence int

const (
	PrecNone   Precedence = iota
	PrecTerm              // + -
	PrecFactor            // * /
	PrecUnary             // unary -
)

// binaryRule describes an infix operator.
type binaryRule struct {
	prec Precedence
	op   bytecode.Opcode
}

// All binary operators are left-associative.
var binaryRules = map[TokenKind]binaryRule{
	TokenPlus:  {PrecTerm, bytecode.OpAdd},
	TokenMinus: {PrecTerm, bytecode.OpSubtract},
	TokenStar:  {PrecFactor, bytecode.OpMultiply},
	TokenSlash: {PrecFactor, bytecode.OpDivide},
}

// Option configures compilation.
type Option func(*Compiler)

// WithLexerOptions passes options through to the lexer used by Compile.
func WithLexerOptions(opts ...LexerOption) Option {
	return func(c *Compiler) {
		c.lexerOpts = append(c.lexerOpts, opts...)
	}
}

// WithLogger sets the logger that receives the disassembly of each compiled
// chunk at debug level.
func WithLogger(log commonlog.Logger) Option {
	return func(c *Compiler) {
		c.log = log
	}
}

// Compiler turns a token stream into a Chunk in one pass. A Compiler is
// single use.
type Compiler struct {
	lexer    *Lexer
	current  Token
	previous Token
	chunk    *bytecode.Chunk

	lexerOpts []LexerOption
	log       commonlog.Logger
}

// NewCompiler creates a compiler that reads tokens from lexer.
func NewCompiler(lexer *Lexer, opts ...Option) *Compiler {
	c := &Compiler{
		lexer: lexer,
		chunk: bytecode.NewChunk(),
		log:   commonlog.GetLogger("loxbc.compiler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile compiles a single expression to a chunk ending in OP_RETURN.
//
// The error is a *LexError or a *CompileError carrying the source line.
// No chunk is returned on failure.
func Compile(source string, opts ...Option) (*bytecode.Chunk, error) {
	c := NewCompiler(nil, opts...)
	c.lexer = NewLexer(source, c.lexerOpts...)
	return c.Compile()
}

// Compile runs the compiler over its lexer.
func (c *Compiler) Compile() (*bytecode.Chunk, error) {
	if err := c.advance(); err != nil {
		return nil, err
	}
	if err := c.expression(); err != nil {
		return nil, err
	}
	if err := c.consume(TokenEOF, "expected end of expression"); err != nil {
		return nil, err
	}
	c.emit(bytecode.OpReturn, c.previous.Line)

	if c.log.AllowLevel(commonlog.Debug) {
		c.log.Debugf("compiled chunk:\n%s", c.chunk.DisassembleWithName("code"))
	}
	return c.chunk, nil
}

// ---------------------------------------------------------------------------
// Token handling
// ---------------------------------------------------------------------------

func (c *Compiler) advance() error {
	c.previous = c.current
	tok, err := c.lexer.Next()
	if err != nil {
		return err
	}
	c.current = tok
	return nil
}

func (c *Compiler) consume(kind TokenKind, message string) error {
	if c.current.Kind != kind {
		return c.errorAt(c.current, message)
	}
	return c.advance()
}

func (c *Compiler) errorAt(tok Token, message string) error {
	return &CompileError{
		Line:    tok.Line,
		Lexeme:  tok.Lexeme,
		AtEnd:   tok.Kind == TokenEOF,
		Message: message,
	}
}

func (c *Compiler) emit(op bytecode.Opcode, line int) {
	c.chunk.Emit(op, line)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Compiler) expression() error {
	return c.parsePrecedence(PrecTerm)
}

// parsePrecedence parses a prefix expression and then every infix operator
// binding at least as tightly as min. The right operand of an operator is
// parsed one level tighter, which makes the operators left-associative.
func (c *Compiler) parsePrecedence(min Precedence) error {
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.prefix(c.previous); err != nil {
		return err
	}

	for {
		rule, ok := binaryRules[c.current.Kind]
		if !ok || rule.prec < min {
			return nil
		}
		if err := c.advance(); err != nil {
			return err
		}
		operator := c.previous
		if err := c.parsePrecedence(rule.prec + 1); err != nil {
			return err
		}
		c.emit(rule.op, operator.Line)
	}
}

func (c *Compiler) prefix(tok Token) error {
	switch tok.Kind {
	case TokenNumber:
		return c.number(tok)
	case TokenLeftParen:
		return c.grouping()
	case TokenMinus:
		return c.unary(tok)
	case TokenTrue:
		c.chunk.WriteConstant(bytecode.True, tok.Line)
		return nil
	case TokenFalse:
		c.chunk.WriteConstant(bytecode.False, tok.Line)
		return nil
	case TokenNil:
		c.chunk.WriteConstant(bytecode.Nil, tok.Line)
		return nil
	default:
		return c.errorAt(tok, "expected expression")
	}
}

func (c *Compiler) number(tok Token) error {
	n, err := strconv.ParseFloat(tok.Lexeme, 64)
	if err != nil {
		return c.errorAt(tok, "invalid number literal")
	}
	c.chunk.WriteConstant(bytecode.FromFloat64(n), tok.Line)
	return nil
}

func (c *Compiler) grouping() error {
	if err := c.expression(); err != nil {
		return err
	}
	return c.consume(TokenRightParen, "expected ')' after expression")
}

func (c *Compiler) unary(operator Token) error {
	if err := c.parsePrecedence(PrecUnary); err != nil {
		return err
	}
	c.emit(bytecode.OpNegate, operator.Line)
	return nil
}
