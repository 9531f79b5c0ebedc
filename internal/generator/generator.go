// Package generator runs the build-file generator, CMake by default, for the
// renderer's build directory.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/wisp-renderer/wisp-installer/internal/logging"
)

const cacheFile = "CMakeCache.txt"

type Options struct {
	// Dir is the build directory. The generator runs in it with ".." as the
	// source directory.
	Dir          string
	Command      string
	Generator    string
	Architecture string
	UnitTests    bool
	Shared       bool
	ExtraArgs    []string

	Stdout io.Writer // Defaults to os.Stdout.
	Stderr io.Writer // Defaults to os.Stderr.
}

// Args returns the generator command line, without the command.
func (o Options) Args() []string {
	args := []string{"-G" + o.Generator}
	if o.Architecture != "" {
		args = append(args, "-A"+o.Architecture)
	}
	args = append(args,
		"-DENABLE_UNIT_TEST="+onOff(o.UnitTests),
		"-DWISP_BUILD_SHARED="+onOff(o.Shared),
	)
	args = append(args, o.ExtraArgs...)
	return append(args, "..")
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// ExitError is a generator run that completed with a non-zero status. The
// installation carries on.
type ExitError struct {
	Generator    string
	Architecture string
	Code         int
	Err          error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("generator returned with errors trying to generate %s %s project files (exit status %d)", e.Generator, e.Architecture, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type Runner struct {
	logger *logging.Logger
}

func New(logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{logger: logger}
}

// Generate prepares the build directory and runs the generator in it. A
// missing directory is created; an existing one loses its stale cache.
func (r *Runner) Generate(ctx context.Context, opts Options) error {
	r.logger.Infof("generating %s %s project files", opts.Generator, opts.Architecture)
	r.logger.Infof("enable unit tests: %t", opts.UnitTests)
	r.logger.Infof("enable shared build: %t", opts.Shared)

	if err := r.prepare(opts.Dir); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, opts.Command, opts.Args()...)
	cmd.Dir = opts.Dir
	cmd.Stdout = opts.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	r.logger.Debugf("running %v in %s", cmd.Args, opts.Dir)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			eerr := &ExitError{
				Generator:    opts.Generator,
				Architecture: opts.Architecture,
				Code:         exitErr.ExitCode(),
				Err:          exitErr,
			}
			r.logger.Errorf("%v", eerr)
			return eerr
		}
		return fmt.Errorf("failed to run %s: %w", opts.Command, err)
	}

	r.logger.Infof("finished generating %s %s project files", opts.Generator, opts.Architecture)
	return nil
}

func (r *Runner) prepare(dir string) error {
	_, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create build directory: %w", err)
		}
		r.logger.Infof("created build directory %s", dir)
		return nil
	case err != nil:
		return fmt.Errorf("failed to inspect build directory: %w", err)
	}

	r.logger.Infof("build directory %s already exists", dir)
	err = os.Remove(filepath.Join(dir, cacheFile))
	switch {
	case err == nil:
		r.logger.Infof("removed %s", cacheFile)
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("failed to remove %s: %w", cacheFile, err)
	}
	return nil
}

// Clean removes the build directory.
func (r *Runner) Clean(dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		r.logger.Infof("build directory %s doesn't exist, nothing to clean", dir)
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove build directory %s: %w", dir, err)
	}
	r.logger.Infof("removed build directory %s", dir)
	return nil
}
