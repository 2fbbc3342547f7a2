package common

import (
	"runtime"

	"github.com/devlights/gomy/output"
)

func SH_Assert(condition bool, msg string) {
	if !condition {
		panic(msg)
	}
}

// SafeAssert is SH_Assert for checks which only run in safe mode. goroutine
// stacks are dumped before panicking.
func SafeAssert(cfg *Config, condition bool, msg string) {
	if cfg == nil || !cfg.SafeMode || condition {
		return
	}
	ShPrintf(FATAL, "safe mode assertion failed: %s\n", msg)
	RuntimeStack()
	panic(msg)
}

// RuntimeStack writes the stacks of all goroutines to stdout.
func RuntimeStack() {
	buf := make([]byte, 4096)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}
	output.Stdoutl("=== goroutine stacks", string(buf))
}
