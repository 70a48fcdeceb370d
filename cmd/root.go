// Package cmd implements the mono command line interface.
package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coffeebe4code/mono/pkg/config"
	"github.com/coffeebe4code/mono/pkg/manifest"
	"github.com/coffeebe4code/mono/pkg/output"
	"github.com/coffeebe4code/mono/pkg/workspace"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mono",
		Short: "Task runner for JavaScript monorepos",
		Long: `mono keeps a manifest of the projects in a repository and the dependencies between them.
It runs lint, build, test, serve and install targets in dependency order and skips everything
that is already up to date.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "one of debug, info, warn or error (overrides log.level)")
	flags.Bool("json", false, "print log events as JSON lines")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	rootCmd.AddCommand(
		newInitCmd(),
		newAddCmd(),
		newTemplatesCmd(),
		newGraphCmd(),
		newInstallCmd(),
	)
	rootCmd.AddCommand(newTargetCmds()...)

	return rootCmd
}

// Execute runs the command line given in args and returns the exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		PrintError(stderr, err)
	}
	return ExitCode(err)
}

// session bundles everything a command needs to work on one workspace.
type session struct {
	ctx    context.Context
	root   string
	cfg    *config.Config
	store  *manifest.Store
	logger *zerolog.Logger
	out    io.Writer
}

// newSession loads the configuration and sets up logging. If locate is true the workspace root is
// found by searching upwards from the working directory, otherwise the working directory is used.
func newSession(cmd *cobra.Command, locate bool) (*session, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	// the manifest name may come from the environment before we know where mono.toml lives
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	root := wd
	if locate {
		root, err = workspace.FindRoot(wd, cfg.Manifest)
		if err != nil {
			return nil, err
		}
	}

	cfg, err = config.Load(root)
	if err != nil {
		return nil, err
	}

	if err = applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	var logger zerolog.Logger
	if cfg.Log.JSON {
		logger = zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(NewConsoleWriter(cmd.ErrOrStderr()))
	}
	logger = logger.Level(cfg.LogLevel())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return &session{
		ctx:    output.WithLogger(ctx, &logger),
		root:   root,
		cfg:    cfg,
		store:  manifest.NewStore(filepath.Join(root, cfg.Manifest)),
		logger: &logger,
		out:    cmd.OutOrStdout(),
	}, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("log-level") {
		level, err := flags.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.Log.Level = level
	}

	if flags.Changed("json") {
		jsonLog, err := flags.GetBool("json")
		if err != nil {
			return err
		}
		cfg.Log.JSON = jsonLog
	}

	if flags.Lookup("serial") != nil && flags.Changed("serial") {
		serial, err := flags.GetBool("serial")
		if err != nil {
			return err
		}
		cfg.Runner.Parallel = !serial
	}

	if flags.Lookup("jobs") != nil && flags.Changed("jobs") {
		jobs, err := flags.GetInt("jobs")
		if err != nil {
			return err
		}
		cfg.Runner.Jobs = jobs
	}

	if err := cfg.Validate(); err != nil {
		return &usageError{err: err}
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErrorf("%s accepts %d arg(s), received %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}
