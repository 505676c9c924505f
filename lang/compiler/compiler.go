// Package compiler implements the single-pass Pratt parser that is also
// the bytecode emitter (§4.5): there is no intermediate AST. Tokens come
// from package scanner; bytecode goes straight into a lang/chunk.Chunk by
// way of a heap.Function, one per nested `fun`/method/script.
package compiler

import (
	"github.com/mna/lovm/lang/chunk"
	"github.com/mna/lovm/lang/heap"
	"github.com/mna/lovm/lang/scanner"
	"github.com/mna/lovm/lang/token"
)

// FunctionType distinguishes the handful of ways a function body is
// compiled differently: the implicit top-level script, an ordinary `fun`,
// a class method, and a class's `init` method (which returns `this`
// implicitly and may not return a value, §9).
type FunctionType uint8

const (
	TypeScript FunctionType = iota
	TypeFunction
	TypeMethod
	TypeInitializer
)

// local is one entry of a funcState's locals array. depth == -1 marks
// "declared but not yet initialized" (§4.5).
type local struct {
	name     string
	depth    int
	captured bool
}

// upvalueRef is one entry of a funcState's upvalue descriptor array.
type upvalueRef struct {
	index   uint8
	isLocal bool
}

// funcState holds the compiler state for one nested function (or the
// top-level script). funcStates form a stack via enclosing, innermost on
// top, mirroring the call stack the compiled closures will eventually run
// on (§4.5: "The compiler owns a compiler stack").
type funcState struct {
	enclosing *funcState

	fnType   FunctionType
	function *heap.Function
	chunk    *chunk.Chunk

	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
}

// classState tracks the class currently being compiled, for `this`/`super`
// resolution and for rejecting `class A < A`. classStates form a stack via
// enclosing so nested class declarations (a method that declares a local
// class) resolve correctly.
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Compiler is single-use: construct it via Compile, not directly.
type Compiler struct {
	sc scanner.Scanner

	current  token.Token
	previous token.Token

	h *heap.Heap

	fs *funcState
	cs *classState

	errors    []error
	panicMode bool
}

// Compile compiles source into a top-level Function ready to be wrapped in
// a Closure and run. On any compile error, it returns (nil, errs) with
// every diagnostic collected during panic-mode recovery (§4.5 "Error
// recovery"); the function is never partially usable.
func Compile(source string, h *heap.Heap) (*heap.Function, []error) {
	c := &Compiler{h: h}
	c.sc.Init([]byte(source))
	c.fs = newFuncState(c, TypeScript, nil)

	c.advance()
	for !c.matchTok(token.EOF) {
		c.declaration()
	}
	c.consume(token.EOF, "Expect end of expression.")

	fn, _ := c.endFuncState()
	if len(c.errors) > 0 {
		return nil, c.errors
	}
	return fn, nil
}

func newFuncState(c *Compiler, fnType FunctionType, name *heap.String) *funcState {
	chk := chunk.New()
	fn := c.h.NewFunction(name, chk)
	c.h.PushCompilerRoot(fn)

	fs := &funcState{enclosing: c.fs, fnType: fnType, function: fn, chunk: chk}
	// Reserve local slot 0: it holds the receiver for methods/initializers,
	// and the callee closure itself for plain functions and the script.
	slotName := ""
	if fnType == TypeMethod || fnType == TypeInitializer {
		slotName = "this"
	}
	fs.locals = append(fs.locals, local{name: slotName, depth: 0})
	return fs
}

// endFuncState finishes the innermost funcState, emitting the implicit
// trailing return, and pops back to the enclosing one. It returns the
// finished Function and the upvalue descriptors the caller (the enclosing
// funcState, via OP_CLOSURE) needs to capture.
func (c *Compiler) endFuncState() (*heap.Function, []upvalueRef) {
	c.emitReturn()
	fn := c.fs.function
	fn.UpvalueCount = len(c.fs.upvalues)
	upvalues := c.fs.upvalues

	c.h.PopCompilerRoot()
	c.fs = c.fs.enclosing
	return fn, upvalues
}

func (c *Compiler) currentChunk() *chunk.Chunk { return c.fs.chunk }

// --- token stream plumbing ---

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.sc.Scan()
		if c.current.Kind != token.ERROR {
			break
		}
		c.errorAt(c.current, c.current.Lexeme)
	}
}

func (c *Compiler) check(kind token.Kind) bool { return c.current.Kind == kind }

func (c *Compiler) matchTok(kind token.Kind) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(kind token.Kind, msg string) {
	if c.current.Kind == kind {
		c.advance()
		return
	}
	c.errorAt(c.current, msg)
}

func (c *Compiler) errorAt(tok token.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true

	where := tok.Lexeme
	switch tok.Kind {
	case token.EOF:
		where = "end"
	case token.ERROR:
		where = ""
	}
	c.errors = append(c.errors, &Error{Line: tok.Line, Where: where, Message: msg})
}

// error reports a diagnostic anchored at the token just consumed
// (c.previous), the common case for semantic checks performed after
// parsing a construct.
func (c *Compiler) error(msg string) { c.errorAt(c.previous, msg) }

// synchronize discards tokens until a statement boundary, so compilation
// can continue (and surface further diagnostics) after a parse error
// (§4.5 "Error recovery").
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != token.EOF {
		if c.previous.Kind == token.SEMICOLON {
			return
		}
		switch c.current.Kind {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		c.advance()
	}
}

// --- declarations ---

func (c *Compiler) declaration() {
	switch {
	case c.matchTok(token.CLASS):
		c.classDeclaration()
	case c.matchTok(token.FUN):
		c.funDeclaration()
	case c.matchTok(token.VAR):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(token.IDENT, "Expect class name.")
	classNameTok := c.previous
	nameConstant := c.identifierConstant(classNameTok.Lexeme)
	c.declareVariable()

	c.emitOpU8(chunk.OpClass, byte(nameConstant))
	c.defineVariable(nameConstant, c.fs.scopeDepth > 0)

	cs := &classState{enclosing: c.cs}
	c.cs = cs

	if c.matchTok(token.LESS) {
		c.consume(token.IDENT, "Expect superclass name.")
		superNameTok := c.previous
		c.namedVariable(superNameTok, false)

		if superNameTok.Lexeme == classNameTok.Lexeme {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal("super")
		c.markInitialized()

		c.namedVariable(classNameTok, false)
		c.emitOp(chunk.OpInherit)
		cs.hasSuperclass = true
	}

	c.namedVariable(classNameTok, false)
	c.consume(token.LEFT_BRACE, "Expect '{' before class body.")
	for !c.check(token.RIGHT_BRACE) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RIGHT_BRACE, "Expect '}' after class body.")
	c.emitOp(chunk.OpPop)

	if cs.hasSuperclass {
		c.endScope()
	}
	c.cs = c.cs.enclosing
}

func (c *Compiler) method() {
	c.consume(token.IDENT, "Expect method name.")
	name := c.previous.Lexeme
	constant := c.identifierConstant(name)

	fnType := TypeMethod
	if name == "init" {
		fnType = TypeInitializer
	}
	c.function(fnType)
	c.emitOpU8(chunk.OpMethod, byte(constant))
}

func (c *Compiler) funDeclaration() {
	global, isLocal := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(TypeFunction)
	c.defineVariable(global, isLocal)
}

// function compiles a nested function's parameter list and body, then
// emits OP_CLOSURE (with its upvalue-capture pairs) into the *enclosing*
// funcState, leaving the new closure on the stack.
func (c *Compiler) function(fnType FunctionType) {
	nameStr := c.h.InternString(c.previous.Lexeme)
	c.h.PushCompilerRoot(nameStr)
	c.fs = newFuncState(c, fnType, nameStr)
	c.h.PopCompilerRoot()
	c.beginScope()

	c.consume(token.LEFT_PAREN, "Expect '(' after function name.")
	if !c.check(token.RIGHT_PAREN) {
		for {
			c.fs.function.Arity++
			if c.fs.function.Arity > 255 {
				c.errorAt(c.current, "Can't have more than 255 parameters.")
			}
			constant, isLocal := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant, isLocal)
			if !c.matchTok(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RIGHT_PAREN, "Expect ')' after parameters.")
	c.consume(token.LEFT_BRACE, "Expect '{' before function body.")
	c.block()

	fn, upvalues := c.endFuncState()
	idx := c.makeConstant(fn)
	c.emitOpU8(chunk.OpClosure, byte(idx))
	for _, uv := range upvalues {
		isLocal := byte(0)
		if uv.isLocal {
			isLocal = 1
		}
		c.emitByte(isLocal)
		c.emitByte(uv.index)
	}
}

func (c *Compiler) varDeclaration() {
	global, isLocal := c.parseVariable("Expect variable name.")
	if c.matchTok(token.EQUAL) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.consume(token.SEMICOLON, "Expect ';' after variable declaration.")
	c.defineVariable(global, isLocal)
}

// --- statements ---

func (c *Compiler) statement() {
	switch {
	case c.matchTok(token.PRINT):
		c.printStatement()
	case c.matchTok(token.IF):
		c.ifStatement()
	case c.matchTok(token.RETURN):
		c.returnStatement()
	case c.matchTok(token.WHILE):
		c.whileStatement()
	case c.matchTok(token.FOR):
		c.forStatement()
	case c.matchTok(token.LEFT_BRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RIGHT_BRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RIGHT_BRACE, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LEFT_PAREN, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.matchTok(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.consume(token.LEFT_PAREN, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LEFT_PAREN, "Expect '(' after 'for'.")

	switch {
	case c.matchTok(token.SEMICOLON):
		// no initializer
	case c.matchTok(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.matchTok(token.SEMICOLON) {
		c.expression()
		c.consume(token.SEMICOLON, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)
	}

	if !c.matchTok(token.RIGHT_PAREN) {
		bodyJump := c.emitJump(chunk.OpJump)
		incrementStart := len(c.currentChunk().Code)
		c.expression()
		c.emitOp(chunk.OpPop)
		c.consume(token.RIGHT_PAREN, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}
	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.fs.fnType == TypeScript {
		c.error("Can't return from top-level code.")
	}
	if c.matchTok(token.SEMICOLON) {
		c.emitReturn()
		return
	}
	if c.fs.fnType == TypeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}

// --- scopes ---

func (c *Compiler) beginScope() { c.fs.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fs.scopeDepth--
	for len(c.fs.locals) > 0 && c.fs.locals[len(c.fs.locals)-1].depth > c.fs.scopeDepth {
		if c.fs.locals[len(c.fs.locals)-1].captured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.fs.locals = c.fs.locals[:len(c.fs.locals)-1]
	}
}
