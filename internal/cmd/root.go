// Package cmd implements the CLI surface: start, load-vacancies,
// tasks/task-info, status/stats/system/filters/hosts, daemon, dashboard,
// cleanup, and export. Each command talks to a freshly bootstrapped
// app.App rather than a shared daemon process, except where it needs the
// process registry to reach an already-running one.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	exitOK       = 0
	exitError    = 1
	exitWarnings = 2
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "hhwatch",
	Short: "hhwatch acquires and tracks job-listing data from a public HTTP API",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config_v4.json", "path to config file")
}

// Execute runs the CLI, returning the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if ec, ok := err.(exitCoder); ok {
			return ec.ExitCode()
		}
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	return exitOK
}

// exitCoder lets a command return a non-1 exit code (e.g. 2 for
// warnings) while still propagating through cobra's normal error path.
type exitCoder interface {
	error
	ExitCode() int
}

type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) ExitCode() int { return e.code }
func (e *codedError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}
