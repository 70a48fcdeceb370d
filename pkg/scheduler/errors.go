package scheduler

import (
	"fmt"

	"github.com/coffeebe4code/mono/pkg/manifest"
)

// ExecutionError is returned when the command of a target fails.
type ExecutionError struct {
	Target manifest.TargetRef
	Err    error
}

var _ error = (*ExecutionError)(nil)

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Target, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Suggestions() []string {
	return []string{
		"fix the failing command and run the same command again",
		"targets that already succeeded are cached and won't run again",
	}
}
