package compiler

import (
	"fmt"
	"iter"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: single forward pass over the source text
// ---------------------------------------------------------------------------

// Lexer tokenizes source code lazily, one token per Next call.
//
// A Lexer cannot be rewound; scan the text again with a fresh Lexer. After
// the first error it is finished and keeps returning that error.
type Lexer struct {
	input   string
	pos     int  // offset of ch
	readPos int  // offset after ch
	ch      rune // current character
	line    int  // line of ch (1-based)

	lineComments bool
	err          error
}

// LexerOption configures a Lexer.
type LexerOption func(*Lexer)

// WithLineComments makes the lexer skip `//` comments as whitespace.
// Comments are not part of the base grammar and are off by default.
func WithLineComments() LexerOption {
	return func(l *Lexer) {
		l.lineComments = true
	}
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string, opts ...LexerOption) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.readChar()
	return l
}

// Tokenize scans all of input and returns its tokens, excluding EOF.
func Tokenize(input string, opts ...LexerOption) ([]Token, error) {
	var tokens []Token
	for tok, err := range NewLexer(input, opts...).All() {
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// All returns the remaining tokens as a lazy sequence. The sequence ends
// before EOF, or right after yielding the first error.
func (l *Lexer) All() iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		for {
			tok, err := l.Next()
			if err != nil {
				yield(Token{}, err)
				return
			}
			if tok.Kind == TokenEOF {
				return
			}
			if !yield(tok, nil) {
				return
			}
		}
	}
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size

	if r == '\n' {
		l.line++
	}
}

// peekChar returns the character after ch without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// match consumes ch if it equals expected.
func (l *Lexer) match(expected rune) bool {
	if l.atEOF() || l.ch != expected {
		return false
	}
	l.readChar()
	return true
}

// Next returns the next token. At end of input it returns an EOF token,
// and keeps doing so on further calls.
func (l *Lexer) Next() (Token, error) {
	if l.err != nil {
		return Token{}, l.err
	}

	l.skipWhitespace()

	start, line := l.pos, l.line
	if l.atEOF() {
		return Token{Kind: TokenEOF, Offset: start, Line: line}, nil
	}

	ch := l.ch
	l.readChar()

	var kind TokenKind
	switch {
	case ch == '(':
		kind = TokenLeftParen
	case ch == ')':
		kind = TokenRightParen
	case ch == '{':
		kind = TokenLeftBrace
	case ch == '}':
		kind = TokenRightBrace
	case ch == ';':
		kind = TokenSemicolon
	case ch == ',':
		kind = TokenComma
	case ch == '.':
		kind = TokenDot
	case ch == '+':
		kind = TokenPlus
	case ch == '-':
		kind = TokenMinus
	case ch == '*':
		kind = TokenStar
	case ch == '/':
		kind = TokenSlash

	case ch == '=':
		kind = l.either('=', TokenEqualEqual, TokenEqual)
	case ch == '!':
		kind = l.either('=', TokenBangEqual, TokenBang)
	case ch == '>':
		kind = l.either('=', TokenGreaterEqual, TokenGreater)
	case ch == '<':
		kind = l.either('=', TokenLessEqual, TokenLess)

	case ch == '"':
		if !l.readString() {
			return Token{}, l.fail(&LexError{Line: line, Offset: start, Err: ErrUnterminatedString})
		}
		kind = TokenString

	case isDigit(ch):
		l.readNumber()
		kind = TokenNumber

	case isLetter(ch) || ch == '_':
		l.readIdentifier()
		kind = LookupIdent(l.input[start:l.pos])

	default:
		return Token{}, l.fail(&LexError{
			Line:   line,
			Offset: start,
			Err:    ErrUnexpectedCharacter,
			Detail: fmt.Sprintf("%q", ch),
		})
	}

	return Token{Kind: kind, Lexeme: l.input[start:l.pos], Offset: start, Line: line}, nil
}

func (l *Lexer) fail(err *LexError) error {
	l.err = err
	return err
}

// either picks the two-character kind when the next character is expected.
func (l *Lexer) either(expected rune, long, short TokenKind) TokenKind {
	if l.match(expected) {
		return long
	}
	return short
}

// skipWhitespace skips whitespace, and `//` comments when enabled.
func (l *Lexer) skipWhitespace() {
	for !l.atEOF() {
		switch {
		case unicode.IsSpace(l.ch):
			l.readChar()
		case l.lineComments && l.ch == '/' && l.peekChar() == '/':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		default:
			return
		}
	}
}

// readString consumes the rest of a string literal, including the closing
// quote. The opening quote has already been read. Reports false when input
// ends first.
func (l *Lexer) readString() bool {
	for !l.atEOF() && l.ch != '"' {
		l.readChar()
	}
	if l.atEOF() {
		return false
	}
	l.readChar()
	return true
}

// readNumber consumes the rest of a number. A '.' belongs to the number only
// when a digit follows it.
func (l *Lexer) readNumber() {
	for !l.atEOF() && isDigit(l.ch) {
		l.readChar()
	}
	if !l.atEOF() && l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for !l.atEOF() && isDigit(l.ch) {
			l.readChar()
		}
	}
}

func (l *Lexer) readIdentifier() {
	for !l.atEOF() && (isLetter(l.ch) || isDigit(l.ch) || l.ch == '_') {
		l.readChar()
	}
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}

func isLetter(ch rune) bool {
	return unicode.IsLetter(ch)
}
