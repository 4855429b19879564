package config

import (
	"fmt"
	"io"
	"os"
)

// Process hooks, swapped in tests.
var (
	errOut io.Writer = os.Stderr
	exit             = os.Exit
)

// Exitf writes a formatted error message to stderr and exits with code 1.
// It is the fatal-exit path for probe-style commands whose exit status is
// their only output.
func Exitf(format string, args ...any) {
	fmt.Fprintf(errOut, format+"\n", args...)
	exit(1)
}
