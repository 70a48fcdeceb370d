package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/colorstring"

	"github.com/coffeebe4code/mono/pkg/manifest"
	"github.com/coffeebe4code/mono/pkg/scheduler"
)

// Exit codes returned by the mono binary
const (
	Success        = 0
	ExecutionError = 1
	UsageError     = 2
	SchemaError    = 3
	CycleError     = 4
)

// usageError marks invalid flags or arguments.
type usageError struct {
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) Unwrap() error {
	return e.err
}

func usageErrorf(format string, args ...interface{}) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

type suggester interface {
	Suggestions() []string
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return Success
	}

	var (
		usage    *usageError
		notFound *manifest.NotFoundError
		schema   *manifest.SchemaError
		cycle    *manifest.CycleError
		exec     *scheduler.ExecutionError
	)

	switch {
	case errors.As(err, &cycle):
		return CycleError
	case errors.As(err, &schema):
		return SchemaError
	case errors.As(err, &exec):
		return ExecutionError
	case errors.As(err, &usage), errors.As(err, &notFound):
		return UsageError
	}

	// cobra reports argument problems as plain errors
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unknown command") || strings.Contains(msg, "unknown flag") ||
		strings.Contains(msg, "unknown shorthand flag") || strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "accepts ") || strings.Contains(msg, "requires at least") {
		return UsageError
	}

	return ExecutionError
}

// PrintError writes err and the suggestions attached to it.
func PrintError(out io.Writer, err error) {
	colorstring.Fprintf(out, "[red][bold]error:[reset] %s\n", err.Error())

	var hints suggester
	if errors.As(err, &hints) {
		for _, hint := range hints.Suggestions() {
			colorstring.Fprintf(out, "[yellow][bold]  ->[reset] %s\n", hint)
		}
	}
}

// PrintTask prints a headline for a step of a command.
func PrintTask(out io.Writer, msg string) {
	colorstring.Fprintf(out, "[blue][bold]==>[default] %s\n", msg)
}

// PrintSubtask prints a detail line below a headline.
func PrintSubtask(out io.Writer, msg string) {
	colorstring.Fprintf(out, "[green][bold]  ->[reset] %s\n", msg)
}
