package compiler

import "fmt"

// Error is a single compile-time diagnostic (§7.2 "Parse errors" and lexer
// errors surfaced through the compiler). Where is either the offending
// lexeme (Error renders it in single quotes), "end" for EOF, or empty for
// lexer-originated errors that have no specific token to point at.
type Error struct {
	Line    int
	Where   string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Where == "":
		return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
	case e.Where == "end":
		return fmt.Sprintf("[line %d] Error at end: %s", e.Line, e.Message)
	default:
		return fmt.Sprintf("[line %d] Error at '%s': %s", e.Line, e.Where, e.Message)
	}
}
