package machine

import (
	"fmt"
	"strings"
)

// frameInfo is one rendered line of a runtime error's backtrace.
type frameInfo struct {
	funcName string
	line     int
}

// RuntimeError is returned by Interpret when the dispatch loop aborts (§7
// "Runtime errors"): a message plus a backtrace ordered innermost frame
// first, exactly as the call stack stood at the point of failure.
type RuntimeError struct {
	Message string
	frames  []frameInfo
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, f := range e.frames {
		fmt.Fprintf(&b, "\n[line %d] in %s", f.line, f.funcName)
	}
	return b.String()
}
