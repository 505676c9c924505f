package scanner_test

import (
	"testing"

	"github.com/mna/lovm/lang/scanner"
	"github.com/mna/lovm/lang/token"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	var s scanner.Scanner
	s.Init([]byte(src))
	var toks []token.Token
	for {
		tok := s.Scan()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	return toks
}

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, tok := range toks {
		out[i] = tok.Kind
	}
	return out
}

func TestScanPunctuationAndKeywords(t *testing.T) {
	toks := scanAll(t, `var x = 1 + 2 * 3; print x;`)
	require.Equal(t, []token.Kind{
		token.VAR, token.IDENT, token.EQUAL, token.NUMBER, token.PLUS,
		token.NUMBER, token.STAR, token.NUMBER, token.SEMICOLON,
		token.PRINT, token.IDENT, token.SEMICOLON, token.EOF,
	}, kinds(toks))
}

func TestScanTwoCharOperators(t *testing.T) {
	toks := scanAll(t, `a == b != c <= d >= e`)
	require.Equal(t, []token.Kind{
		token.IDENT, token.EQUAL_EQUAL, token.IDENT, token.BANG_EQUAL,
		token.IDENT, token.LESS_EQUAL, token.IDENT, token.GREATER_EQUAL,
		token.IDENT, token.EOF,
	}, kinds(toks))
}

func TestScanStringKeepsQuotes(t *testing.T) {
	toks := scanAll(t, `"hello world"`)
	require.Equal(t, token.STRING, toks[0].Kind)
	require.Equal(t, `"hello world"`, toks[0].Lexeme)
}

func TestScanUnterminatedString(t *testing.T) {
	toks := scanAll(t, `"hello`)
	require.Equal(t, token.ERROR, toks[0].Kind)
	require.Equal(t, "Unterminated string.", toks[0].Lexeme)
}

func TestScanNumber(t *testing.T) {
	toks := scanAll(t, `1234 12.34`)
	require.Equal(t, token.NUMBER, toks[0].Kind)
	require.Equal(t, "1234", toks[0].Lexeme)
	require.Equal(t, token.NUMBER, toks[1].Kind)
	require.Equal(t, "12.34", toks[1].Lexeme)
}

func TestScanLineTracking(t *testing.T) {
	toks := scanAll(t, "var a = 1;\nvar b = 2;\nprint a + b;")
	var lines []int
	for _, tok := range toks {
		lines = append(lines, tok.Line)
	}
	require.Equal(t, 1, toks[0].Line)
	// "print" is on line 3
	idx := -1
	for i, tok := range toks {
		if tok.Kind == token.PRINT {
			idx = i
		}
	}
	require.Equal(t, 3, toks[idx].Line)
	_ = lines
}

func TestScanCommentsAreSkipped(t *testing.T) {
	toks := scanAll(t, "// a comment\nvar x = 1; // trailing\n")
	require.Equal(t, token.VAR, toks[0].Kind)
}

func TestScanUnexpectedCharacter(t *testing.T) {
	toks := scanAll(t, `@`)
	require.Equal(t, token.ERROR, toks[0].Kind)
}
