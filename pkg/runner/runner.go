// Package runner executes target commands through an embedded POSIX shell (mvdan.cc/sh) so that
// command templates behave the same on every platform.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/coffeebe4code/mono/pkg/manifest"
	"github.com/coffeebe4code/mono/pkg/output"
)

// Job describes one command invocation.
type Job struct {
	Root    string
	Project *manifest.Project
	Target  *manifest.Target
}

// Runner executes the command bound to a target.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// ExitError is returned when a command exits with a non-zero status.
type ExitError struct {
	Status  int
	Command string
}

var _ error = (*ExitError)(nil)

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command, e.Status)
}

// Shell runs commands with the embedded shell interpreter.
type Shell struct {
	Stdout io.Writer
	Stderr io.Writer
	// DryRun only logs the commands.
	DryRun bool
}

var _ Runner = (*Shell)(nil)

// NewShell returns a runner that streams command output to the process' own stdout and stderr.
func NewShell(dryRun bool) *Shell {
	return &Shell{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		DryRun: dryRun,
	}
}

// Env returns the variables exported to the command of job.
func Env(job Job) []string {
	return []string{
		"MONO_ROOT=" + job.Root,
		"MONO_PROJECT=" + job.Project.Name,
		"MONO_PROJECT_PATH=" + job.Project.Path,
		"MONO_TARGET=" + string(job.Target.Kind),
		"MONO_TARGET_ID=" + job.Target.Identity,
	}
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func (s *Shell) Run(ctx context.Context, job Job) error {
	logger := output.Log(ctx).With().
		Str("project", job.Project.Name).
		Str("target", string(job.Target.Kind)).
		Logger()

	command := job.Target.Command
	if strings.TrimSpace(command) == "" {
		command = manifest.DefaultCommand
	}

	name := fmt.Sprintf("%s.%s", job.Project.Name, job.Target.Kind)
	return s.Exec(output.WithLogger(ctx, &logger), job.Root, name, command, Env(job))
}

// Exec runs an arbitrary shell script in dir. name is only used for error messages.
func (s *Shell) Exec(ctx context.Context, dir, name, command string, env []string) error {
	logger := output.Log(ctx)

	script, err := syntax.NewParser().Parse(strings.NewReader(command), name)
	if err != nil {
		return eris.Wrapf(err, "failed to parse command of %s", name)
	}

	runner, err := interp.New(
		interp.Dir(filepath.Clean(dir)),
		interp.Env(expand.ListEnviron(append(os.Environ(), env...)...)),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, s.Stdout, s.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}

	for _, stmt := range script.Stmts {
		strBuffer.Reset()
		if err = printer.Print(&strBuffer, stmt); err != nil {
			return eris.Wrapf(err, "failed to print command of %s", name)
		}

		logger.Info().
			Bool("command", true).
			Msg(strBuffer.String())

		if s.DryRun {
			continue
		}

		err = runner.Run(ctx, stmt)
		if err != nil {
			if status, ok := interp.IsExitStatus(err); ok {
				return &ExitError{Status: int(status), Command: strBuffer.String()}
			}
			return eris.Wrapf(err, "failed to run %s", strBuffer.String())
		}

		if runner.Exited() {
			return nil
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
