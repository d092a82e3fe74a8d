// Package fatal implements the kernel-mode "halt the machine" path:
// an assertion failure or unhandled kernel-mode exception prints
// diagnostic state and terminates the process, the hosted-port
// equivalent of a real kernel's panic/halt.
package fatal

import (
	"os"

	"github.com/go-logr/logr"
)

// Context carries the diagnostic state a real fault handler would pull
// from saved registers and the stack: vCPU/process/dispatch identity
// plus whatever free-form fields the caller wants logged.
type Context struct {
	VCPU     uint32
	Process  uint32
	Dispatch string
	Fields   []any
}

// Halt logs msg and ctx through logger at error level and exits the
// process. It never returns; tests must not call it directly (use
// exitFunc override below).
func Halt(logger logr.Logger, msg string, ctx Context) {
	fields := append([]any{
		"vcpu", ctx.VCPU,
		"process", ctx.Process,
		"dispatch", ctx.Dispatch,
	}, ctx.Fields...)
	logger.Error(nil, msg, fields...)
	exitFunc(1)
}

// exitFunc is swapped out in tests so Halt's control-flow can be
// exercised without killing the test binary.
var exitFunc = os.Exit
