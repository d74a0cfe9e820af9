package compiler

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedCharacter is wrapped by a LexError for a character that
	// starts no token.
	ErrUnexpectedCharacter = errors.New("unexpected character")

	// ErrUnterminatedString is wrapped by a LexError for a string literal
	// that reaches end of input.
	ErrUnterminatedString = errors.New("unterminated string")
)

// LexError reports a tokenization failure.
type LexError struct {
	Line   int
	Offset int
	Err    error  // ErrUnexpectedCharacter or ErrUnterminatedString
	Detail string // optional context, e.g. the offending character
}

func (e *LexError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[line %d] error: %v: %s", e.Line, e.Err, e.Detail)
	}
	return fmt.Sprintf("[line %d] error: %v", e.Line, e.Err)
}

func (e *LexError) Unwrap() error { return e.Err }

// CompileError reports a syntax error at a token.
type CompileError struct {
	Line    int
	Lexeme  string // lexeme of the offending token
	AtEnd   bool   // the offending token was EOF
	Message string
}

func (e *CompileError) Error() string {
	if e.AtEnd {
		return fmt.Sprintf("[line %d] error at end: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("[line %d] error at '%s': %s", e.Line, e.Lexeme, e.Message)
}

// ErrorLine returns the source line of a LexError or CompileError anywhere
// in err's chain, and false for other errors.
func ErrorLine(err error) (int, bool) {
	var lexErr *LexError
	if errors.As(err, &lexErr) {
		return lexErr.Line, true
	}
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return compileErr.Line, true
	}
	return 0, false
}
