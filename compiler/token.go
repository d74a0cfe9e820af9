package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the lexer
// ---------------------------------------------------------------------------

// TokenKind represents the type of a token.
//
// The keyword and operator kinds cover the whole language surface even
// though the compiler only accepts expressions; new kinds are appended, and
// switches over TokenKind keep a default branch.
type TokenKind int

const (
	// Special tokens
	TokenEOF TokenKind = iota

	// Single-character tokens
	TokenLeftParen  // (
	TokenRightParen // )
	TokenLeftBrace  // {
	TokenRightBrace // }
	TokenSemicolon  // ;
	TokenComma      // ,
	TokenDot        // .
	TokenPlus       // +
	TokenMinus      // -
	TokenStar       // *
	TokenSlash      // /

	// One or two character tokens
	TokenEqual        // =
	TokenEqualEqual   // ==
	TokenBang         // !
	TokenBangEqual    // !=
	TokenGreater      // >
	TokenGreaterEqual // >=
	TokenLess         // <
	TokenLessEqual    // <=

	// Literals
	TokenString     // "hello"
	TokenNumber     // 42, 3.14
	TokenIdentifier // foo, _bar

	// Keywords
	TokenAnd
	TokenClass
	TokenElse
	TokenFalse
	TokenFor
	TokenFun
	TokenIf
	TokenNil
	TokenOr
	TokenPrint
	TokenReturn
	TokenSuper
	TokenThis
	TokenTrue
	TokenVar
	TokenWhile
)

var tokenNames = map[TokenKind]string{
	TokenEOF:          "EOF",
	TokenLeftParen:    "(",
	TokenRightParen:   ")",
	TokenLeftBrace:    "{",
	TokenRightBrace:   "}",
	TokenSemicolon:    ";",
	TokenComma:        ",",
	TokenDot:          ".",
	TokenPlus:         "+",
	TokenMinus:        "-",
	TokenStar:         "*",
	TokenSlash:        "/",
	TokenEqual:        "=",
	TokenEqualEqual:   "==",
	TokenBang:         "!",
	TokenBangEqual:    "!=",
	TokenGreater:      ">",
	TokenGreaterEqual: ">=",
	TokenLess:         "<",
	TokenLessEqual:    "<=",
	TokenString:       "STRING",
	TokenNumber:       "NUMBER",
	TokenIdentifier:   "IDENTIFIER",
	TokenAnd:          "and",
	TokenClass:        "class",
	TokenElse:         "else",
	TokenFalse:        "false",
	TokenFor:          "for",
	TokenFun:          "fun",
	TokenIf:           "if",
	TokenNil:          "nil",
	TokenOr:           "or",
	TokenPrint:        "print",
	TokenReturn:       "return",
	TokenSuper:        "super",
	TokenThis:         "this",
	TokenTrue:         "true",
	TokenVar:          "var",
	TokenWhile:        "while",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", int(k))
}

// IsKeyword reports whether k is a reserved word.
func (k TokenKind) IsKeyword() bool {
	return k >= TokenAnd && k <= TokenWhile
}

// Token represents a lexical token.
//
// Lexeme is a substring of the source, so [Offset, Offset+len(Lexeme)) is
// the token's byte range in the text it was scanned from.
type Token struct {
	Kind   TokenKind
	Lexeme string // the raw text
	Offset int    // byte offset of the first character
	Line   int    // line on which the token starts (1-based)
}

// End returns the byte offset just past the token.
func (t Token) End() int {
	return t.Offset + len(t.Lexeme)
}

func (t Token) String() string {
	if t.Kind == TokenEOF {
		return "EOF"
	}
	if len(t.Lexeme) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Kind, t.Lexeme[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Kind, t.Lexeme)
}

// Reserved words mapped to their token kinds.
var keywords = map[string]TokenKind{
	"and":    TokenAnd,
	"class":  TokenClass,
	"else":   TokenElse,
	"false":  TokenFalse,
	"for":    TokenFor,
	"fun":    TokenFun,
	"if":     TokenIf,
	"nil":    TokenNil,
	"or":     TokenOr,
	"print":  TokenPrint,
	"return": TokenReturn,
	"super":  TokenSuper,
	"this":   TokenThis,
	"true":   TokenTrue,
	"var":    TokenVar,
	"while":  TokenWhile,
}

// LookupIdent returns the keyword kind for ident, or TokenIdentifier.
func LookupIdent(ident string) TokenKind {
	if kind, ok := keywords[ident]; ok {
		return kind
	}
	return TokenIdentifier
}
