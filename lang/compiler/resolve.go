package compiler

import "github.com/mna/lovm/lang/chunk"
import "github.com/mna/lovm/lang/token"

// This file implements variable resolution: locals (by stack slot),
// upvalues (captured from an enclosing function's locals or upvalues), and
// globals (by name, resolved at runtime) — §4.5 "Variable resolution".

// parseVariable consumes an identifier, declares it (as a local if inside
// a scope), and for globals returns the constant-pool index of its name.
// isLocal tells the caller (defineVariable) which emission path to take.
func (c *Compiler) parseVariable(errMsg string) (constant int, isLocal bool) {
	c.consume(token.IDENT, errMsg)
	c.declareVariable()
	if c.fs.scopeDepth > 0 {
		return 0, true
	}
	return c.identifierConstant(c.previous.Lexeme), false
}

// declareVariable registers the most recently consumed identifier as a new
// local in the current scope, rejecting a duplicate name already declared
// at the same depth (§4.5, shadowing rules). It is a no-op at global scope,
// where names resolve dynamically by the globals table instead.
func (c *Compiler) declareVariable() {
	if c.fs.scopeDepth == 0 {
		return
	}
	name := c.previous.Lexeme
	for i := len(c.fs.locals) - 1; i >= 0; i-- {
		l := c.fs.locals[i]
		if l.depth != -1 && l.depth < c.fs.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) addLocal(name string) {
	if len(c.fs.locals) >= 256 {
		c.error("Too many local variables in function.")
		return
	}
	c.fs.locals = append(c.fs.locals, local{name: name, depth: -1})
}

// markInitialized flips the most recently declared local from "declared"
// (depth -1) to usable, so a variable's own initializer cannot refer to
// itself (`var a = a;` resolves `a` on the right as a not-yet-initialized
// local and is rejected by resolveLocal).
func (c *Compiler) markInitialized() {
	if c.fs.scopeDepth == 0 {
		return
	}
	c.fs.locals[len(c.fs.locals)-1].depth = c.fs.scopeDepth
}

// defineVariable finishes a variable declaration: locals need no bytecode
// (the value is already sitting in its stack slot), globals are stored via
// OP_DEFINE_GLOBAL.
func (c *Compiler) defineVariable(global int, isLocal bool) {
	if isLocal {
		c.markInitialized()
		return
	}
	c.emitOpU8(chunk.OpDefineGlobal, byte(global))
}

// resolveLocal looks up name among fs's locals, innermost first, returning
// its slot index or -1 if not found. It reports an error if the match is
// still mid-declaration (depth -1), which only happens for a variable's own
// initializer expression referring to itself.
func resolveLocal(c *Compiler, fs *funcState, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			if fs.locals[i].depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue looks up name in the chain of enclosing functions,
// capturing it as an upvalue in every intermediate function along the way
// (§4.5, §4.7's "flattening" of transitive captures), and returns its
// upvalue index in fs, or -1 if name is not found in any enclosing scope
// (meaning it must be a global).
func resolveUpvalue(c *Compiler, fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if local := resolveLocal(c, fs.enclosing, name); local != -1 {
		fs.enclosing.locals[local].captured = true
		return addUpvalue(c, fs, uint8(local), true)
	}
	if upvalue := resolveUpvalue(c, fs.enclosing, name); upvalue != -1 {
		return addUpvalue(c, fs, uint8(upvalue), false)
	}
	return -1
}

// addUpvalue records a new upvalue descriptor in fs, reusing an existing
// one with the same (index, isLocal) pair if already present.
func addUpvalue(c *Compiler, fs *funcState, index uint8, isLocal bool) int {
	for i, uv := range fs.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) >= 256 {
		c.error("Too many closure variables in function.")
		return 0
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(fs.upvalues) - 1
}

// namedVariable compiles a read or (if canAssign and an '=' follows) a
// write of the variable named by nameTok, choosing OP_*_LOCAL, OP_*_UPVALUE,
// or OP_*_GLOBAL depending on where it resolves.
func (c *Compiler) namedVariable(nameTok token.Token, canAssign bool) {
	var getOp, setOp chunk.OpCode
	arg := resolveLocal(c, c.fs, nameTok.Lexeme)
	switch {
	case arg != -1:
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	default:
		if arg = resolveUpvalue(c, c.fs, nameTok.Lexeme); arg != -1 {
			getOp, setOp = chunk.OpGetUpvalue, chunk.OpSetUpvalue
		} else {
			arg = c.identifierConstant(nameTok.Lexeme)
			getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
		}
	}

	if canAssign && c.matchTok(token.EQUAL) {
		c.expression()
		c.emitOpU8(setOp, byte(arg))
	} else {
		c.emitOpU8(getOp, byte(arg))
	}
}
