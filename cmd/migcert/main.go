// Command migcert validates migration certification documents and turns
// evidence into accept/hold/reject/rollback decisions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1 // a document or run did not pass
	exitUsage   = 2
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	if len(args) > 1 {
		root.SetArgs(args[1:])
	} else {
		root.SetArgs([]string{})
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx := context.Background()
	err := root.ExecuteContext(ctx)
	a.shutdown(ctx)
	return exitCode(err, stderr)
}

// exitError carries the process exit code of a command failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func failure(err error) error {
	if err == nil {
		return nil
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	return &exitError{code: exitFailure, err: err}
}

// exitCode maps a command error to an exit code. Errors the commands did not
// classify come from argument or flag parsing.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		return ee.code
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\nRun 'migcert --help' for usage.\n", err)
	return exitUsage
}
