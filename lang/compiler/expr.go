package compiler

import (
	"strconv"

	"github.com/mna/lovm/lang/chunk"
	"github.com/mna/lovm/lang/token"
	"github.com/mna/lovm/lang/value"
)

// Precedence orders binding power from loosest to tightest, following the
// Pratt table in §4.5.
type Precedence uint8

const (
	PrecNone       Precedence = iota
	PrecAssignment            // =
	PrecOr                    // or
	PrecAnd                   // and
	PrecEquality              // == !=
	PrecComparison            // < > <= >=
	PrecTerm                  // + -
	PrecFactor                // * /
	PrecUnary                 // ! -
	PrecCall                  // . ()
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

var rules map[token.Kind]parseRule

func init() {
	rules = map[token.Kind]parseRule{
		token.LEFT_PAREN:    {prefix: grouping, infix: call, precedence: PrecCall},
		token.DOT:           {infix: dot, precedence: PrecCall},
		token.MINUS:         {prefix: unary, infix: binary, precedence: PrecTerm},
		token.PLUS:          {infix: binary, precedence: PrecTerm},
		token.SLASH:         {infix: binary, precedence: PrecFactor},
		token.STAR:          {infix: binary, precedence: PrecFactor},
		token.BANG:          {prefix: unary},
		token.BANG_EQUAL:    {infix: binary, precedence: PrecEquality},
		token.EQUAL_EQUAL:   {infix: binary, precedence: PrecEquality},
		token.GREATER:       {infix: binary, precedence: PrecComparison},
		token.GREATER_EQUAL: {infix: binary, precedence: PrecComparison},
		token.LESS:          {infix: binary, precedence: PrecComparison},
		token.LESS_EQUAL:    {infix: binary, precedence: PrecComparison},
		token.IDENT:         {prefix: variable},
		token.STRING:        {prefix: stringLit},
		token.NUMBER:        {prefix: number},
		token.AND:           {infix: and_, precedence: PrecAnd},
		token.OR:            {infix: or_, precedence: PrecOr},
		token.FALSE:         {prefix: literal},
		token.NIL:           {prefix: literal},
		token.TRUE:          {prefix: literal},
		token.THIS:          {prefix: this},
		token.SUPER:         {prefix: super},
	}
}

func getRule(kind token.Kind) parseRule { return rules[kind] }

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

// parsePrecedence parses and emits bytecode for the expression starting at
// the current token, consuming any infix operator whose precedence is at
// least prec (§4.5, §8 invariant: "the precedence table induces the exact
// total order of the grammar's documented precedence rules").
func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	prefixRule := getRule(c.previous.Kind).prefix
	if prefixRule == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= PrecAssignment
	prefixRule(c, canAssign)

	for prec <= getRule(c.current.Kind).precedence {
		c.advance()
		infixRule := getRule(c.previous.Kind).infix
		infixRule(c, canAssign)
	}

	if canAssign && c.matchTok(token.EQUAL) {
		c.error("Invalid assignment target.")
	}
}

func number(c *Compiler, _ bool) {
	n, _ := strconv.ParseFloat(c.previous.Lexeme, 64)
	c.emitConstant(value.Number(n))
}

// stringLit strips the surrounding quotes the scanner intentionally kept in
// the lexeme (§4.4) before interning.
func stringLit(c *Compiler, _ bool) {
	lexeme := c.previous.Lexeme
	s := c.h.InternString(lexeme[1 : len(lexeme)-1])
	c.emitConstant(s)
}

func literal(c *Compiler, _ bool) {
	switch c.previous.Kind {
	case token.FALSE:
		c.emitOp(chunk.OpFalse)
	case token.TRUE:
		c.emitOp(chunk.OpTrue)
	case token.NIL:
		c.emitOp(chunk.OpNil)
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expect ')' after expression.")
}

// unary handles both `!` and prefix `-`, the latter parsed at PrecUnary so
// that `-a.b` binds as `-(a.b)` and `-2^2`-style precedence traps don't
// arise (§4.5 "Supplemented: unary/binary minus precedence").
func unary(c *Compiler, _ bool) {
	opKind := c.previous.Kind
	c.parsePrecedence(PrecUnary)

	switch opKind {
	case token.BANG:
		c.emitOp(chunk.OpNot)
	case token.MINUS:
		c.emitOp(chunk.OpNegate)
	}
}

func binary(c *Compiler, _ bool) {
	opKind := c.previous.Kind
	rule := getRule(opKind)
	c.parsePrecedence(rule.precedence + 1)

	switch opKind {
	case token.BANG_EQUAL:
		c.emitOp(chunk.OpEqual)
		c.emitOp(chunk.OpNot)
	case token.EQUAL_EQUAL:
		c.emitOp(chunk.OpEqual)
	case token.GREATER:
		c.emitOp(chunk.OpGreater)
	case token.GREATER_EQUAL:
		c.emitOp(chunk.OpLess)
		c.emitOp(chunk.OpNot)
	case token.LESS:
		c.emitOp(chunk.OpLess)
	case token.LESS_EQUAL:
		c.emitOp(chunk.OpGreater)
		c.emitOp(chunk.OpNot)
	case token.PLUS:
		c.emitOp(chunk.OpAdd)
	case token.MINUS:
		c.emitOp(chunk.OpSubtract)
	case token.STAR:
		c.emitOp(chunk.OpMultiply)
	case token.SLASH:
		c.emitOp(chunk.OpDivide)
	}
}

// and_ short-circuits: if the left operand is falsey, skip the right
// operand entirely, leaving the falsey value as the result.
func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

// or_ short-circuits the other way: if the left operand is truthy, skip the
// right operand.
func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOpU8(chunk.OpCall, argCount)
}

func (c *Compiler) argumentList() byte {
	var count int
	if !c.check(token.RIGHT_PAREN) {
		for {
			c.expression()
			if count == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.matchTok(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RIGHT_PAREN, "Expect ')' after arguments.")
	return byte(count)
}

// dot handles property access, assignment, and the `obj.method(args)`
// shorthand that compiles straight to OP_INVOKE instead of a separate
// OP_GET_PROPERTY + OP_CALL pair (§4.5 "Method-call shorthand").
func dot(c *Compiler, canAssign bool) {
	c.consume(token.IDENT, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous.Lexeme)

	switch {
	case canAssign && c.matchTok(token.EQUAL):
		c.expression()
		c.emitOpU8(chunk.OpSetProperty, byte(name))
	case c.matchTok(token.LEFT_PAREN):
		argCount := c.argumentList()
		c.emitOpU8U8(chunk.OpInvoke, byte(name), argCount)
	default:
		c.emitOpU8(chunk.OpGetProperty, byte(name))
	}
}

func variable(c *Compiler, canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

func this(c *Compiler, _ bool) {
	if c.cs == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.namedVariable(c.previous, false)
}

// super handles `super.method` and its call shorthand `super.method(args)`,
// loading the bound superclass method via a dedicated this/super pair of
// variable reads (§4.5, mirrors the dot-call shorthand above).
func super(c *Compiler, _ bool) {
	switch {
	case c.cs == nil:
		c.error("Can't use 'super' outside of a class.")
	case !c.cs.hasSuperclass:
		c.error("Can't use 'super' in a class with no superclass.")
	}

	superTok := c.previous
	c.consume(token.DOT, "Expect '.' after 'super'.")
	c.consume(token.IDENT, "Expect superclass method name.")
	name := c.identifierConstant(c.previous.Lexeme)

	c.namedVariable(token.Token{Kind: token.IDENT, Lexeme: "this", Line: superTok.Line}, false)
	if c.matchTok(token.LEFT_PAREN) {
		argCount := c.argumentList()
		c.namedVariable(token.Token{Kind: token.IDENT, Lexeme: "super", Line: superTok.Line}, false)
		c.emitOpU8U8(chunk.OpSuperInvoke, byte(name), argCount)
	} else {
		c.namedVariable(token.Token{Kind: token.IDENT, Lexeme: "super", Line: superTok.Line}, false)
		c.emitOpU8(chunk.OpGetSuper, byte(name))
	}
}
