package util

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/duke-gcb/ddsclient/pkg/errors"
)

// HandleFatalError prints a message for the user and aborts the process.
// Friendly errors are printed as-is; everything else gets the full error
// chain so that bug reports are actionable.
func HandleFatalError(err error) {
	fmt.Fprintln(os.Stderr, errors.GetPrintableMessage(err))
	os.Exit(1)
}

// HandlePanic converts a panic into a non-zero exit with a stack trace,
// rather than the default runtime crash output.
func HandlePanic() {
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr, "ddsclient crashed: %v\n\n%s", r, debug.Stack())
		os.Exit(1)
	}
}
