// Package scanner implements the lexer: it tokenizes Lox source text into
// the Token stream the compiler consumes. It is a self-contained producer
// with no knowledge of the compiler, the heap, or bytecode (see spec §4.4,
// "Lexer Interface (external)").
package scanner

import (
	"strings"

	"github.com/mna/lovm/lang/token"
)

// A Scanner tokenizes a single chunk of Lox source. It is eager in the sense
// that the compiler drives it one token at a time via Scan; there is no
// internal buffering or lookahead beyond two bytes (peek and peekNext).
type Scanner struct {
	src []byte

	start int // byte offset of the token currently being scanned
	cur   int // byte offset of the next unread byte
	line  int // line of cur
}

// Init prepares the scanner to tokenize src from the beginning.
func (s *Scanner) Init(src []byte) {
	s.src = src
	s.start = 0
	s.cur = 0
	s.line = 1
}

func (s *Scanner) isAtEnd() bool { return s.cur >= len(s.src) }

func (s *Scanner) advance() byte {
	c := s.src[s.cur]
	s.cur++
	return c
}

func (s *Scanner) peek() byte {
	if s.isAtEnd() {
		return 0
	}
	return s.src[s.cur]
}

func (s *Scanner) peekNext() byte {
	if s.cur+1 >= len(s.src) {
		return 0
	}
	return s.src[s.cur+1]
}

// match consumes the current byte and returns true if it equals want,
// otherwise leaves the scanner position untouched and returns false.
func (s *Scanner) match(want byte) bool {
	if s.isAtEnd() || s.src[s.cur] != want {
		return false
	}
	s.cur++
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (s *Scanner) skipWhitespaceAndComments() {
	for {
		switch s.peek() {
		case ' ', '\r', '\t':
			s.advance()
		case '\n':
			s.line++
			s.advance()
		case '/':
			if s.peekNext() == '/' {
				for s.peek() != '\n' && !s.isAtEnd() {
					s.advance()
				}
			} else {
				return
			}
		default:
			return
		}
	}
}

func (s *Scanner) make(kind token.Kind) token.Token {
	return token.Token{Kind: kind, Lexeme: string(s.src[s.start:s.cur]), Line: s.line}
}

func (s *Scanner) errorTok(msg string) token.Token {
	return token.Token{Kind: token.ERROR, Lexeme: msg, Line: s.line}
}

func (s *Scanner) string() token.Token {
	startLine := s.line
	for s.peek() != '"' && !s.isAtEnd() {
		if s.peek() == '\n' {
			s.line++
		}
		s.advance()
	}
	if s.isAtEnd() {
		return s.errorTok("Unterminated string.")
	}
	s.advance() // closing quote
	return token.Token{Kind: token.STRING, Lexeme: string(s.src[s.start:s.cur]), Line: startLine}
}

func (s *Scanner) number() token.Token {
	for isDigit(s.peek()) {
		s.advance()
	}
	if s.peek() == '.' && isDigit(s.peekNext()) {
		s.advance() // consume '.'
		for isDigit(s.peek()) {
			s.advance()
		}
	}
	return s.make(token.NUMBER)
}

func (s *Scanner) identifier() token.Token {
	for isAlpha(s.peek()) || isDigit(s.peek()) {
		s.advance()
	}
	word := string(s.src[s.start:s.cur])
	if kind, ok := token.Keywords[word]; ok {
		return s.make(kind)
	}
	return s.make(token.IDENT)
}

// Scan returns the next Token in the source. Once EOF has been returned,
// every subsequent call returns EOF again.
func (s *Scanner) Scan() token.Token {
	s.skipWhitespaceAndComments()
	s.start = s.cur
	if s.isAtEnd() {
		return token.Token{Kind: token.EOF, Line: s.line}
	}

	c := s.advance()
	switch {
	case isAlpha(c):
		return s.identifier()
	case isDigit(c):
		return s.number()
	}

	switch c {
	case '(':
		return s.make(token.LEFT_PAREN)
	case ')':
		return s.make(token.RIGHT_PAREN)
	case '{':
		return s.make(token.LEFT_BRACE)
	case '}':
		return s.make(token.RIGHT_BRACE)
	case ';':
		return s.make(token.SEMICOLON)
	case ',':
		return s.make(token.COMMA)
	case '.':
		return s.make(token.DOT)
	case '-':
		return s.make(token.MINUS)
	case '+':
		return s.make(token.PLUS)
	case '/':
		return s.make(token.SLASH)
	case '*':
		return s.make(token.STAR)
	case '!':
		if s.match('=') {
			return s.make(token.BANG_EQUAL)
		}
		return s.make(token.BANG)
	case '=':
		if s.match('=') {
			return s.make(token.EQUAL_EQUAL)
		}
		return s.make(token.EQUAL)
	case '<':
		if s.match('=') {
			return s.make(token.LESS_EQUAL)
		}
		return s.make(token.LESS)
	case '>':
		if s.match('=') {
			return s.make(token.GREATER_EQUAL)
		}
		return s.make(token.GREATER)
	case '"':
		return s.string()
	}

	return s.errorTok("Unexpected character '" + strings.TrimSpace(string(c)) + "'.")
}
