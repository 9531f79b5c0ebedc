// Package installer drives an installation of the renderer: it cleans the
// build directory, clones private dependencies, synchronizes submodules,
// stages assets and generates the build files, in that order.
//
// Failures of private dependency clones and of the generator itself are
// reported and the run carries on. Any other failure aborts the run.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/wisp-renderer/wisp-installer/internal/assets"
	"github.com/wisp-renderer/wisp-installer/internal/config"
	"github.com/wisp-renderer/wisp-installer/internal/credentials"
	"github.com/wisp-renderer/wisp-installer/internal/generator"
	"github.com/wisp-renderer/wisp-installer/internal/gitsync"
	"github.com/wisp-renderer/wisp-installer/internal/logging"
	"github.com/wisp-renderer/wisp-installer/internal/metrics"
	"github.com/wisp-renderer/wisp-installer/internal/progress"
	"github.com/wisp-renderer/wisp-installer/internal/submodule"
)

type Step string

const (
	StepClean    Step = "clean"
	StepClone    Step = "clone"
	StepSync     Step = "sync"
	StepAssets   Step = "assets"
	StepGenerate Step = "generate"
)

type Synchronizer interface {
	Synchronize(ctx context.Context) error
}

type Cloner interface {
	Clone(ctx context.Context, url, dest string) error
}

type Stager interface {
	Stage(ctx context.Context, sources []string, dest string) (int64, error)
}

type Generator interface {
	Generate(ctx context.Context, opts generator.Options) error
	Clean(dir string) error
}

// ClonerFactory returns the cloner for one dependency.
type ClonerFactory func(ctx context.Context, dep *config.Dependency, creds credentials.Credentials) (Cloner, error)

// Options are the answers to the installer's questions.
type Options struct {
	UnitTests   bool
	Shared      bool
	Clean       bool
	PrivateDeps bool
	Credentials credentials.Credentials
}

// StepError is a failure that aborted the run.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Summary lists the errors reported during a run that did not abort it.
type Summary struct {
	Reported []error
}

func (s *Summary) report(step Step, err error) {
	metrics.ReportedErrors.WithLabelValues(string(step)).Inc()
	s.Reported = append(s.Reported, err)
}

func (s *Summary) Failed() bool {
	return len(s.Reported) > 0
}

type Installer struct {
	cfg  *config.Root
	root string
	log  *logging.Logger
	line *progress.Line

	synchronizer Synchronizer
	stager       Stager
	generator    Generator
	newCloner    ClonerFactory
}

// New returns an installer for the configured repository. Progress is
// rendered to out.
func New(cfg *config.Root, logger *logging.Logger, out io.Writer) *Installer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if out == nil {
		out = io.Discard
	}

	root := cfg.Repository
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	i := &Installer{
		cfg:  cfg,
		root: root,
		log:  logger,
		line: progress.NewLine(out),
	}
	i.synchronizer = submodule.New(root).WithLogger(logger).WithReporter(i.line)
	i.stager = assets.NewStager(logger).WithOutput(out)
	i.generator = generator.New(logger)
	i.newCloner = i.defaultCloner
	return i
}

func (i *Installer) WithSynchronizer(s Synchronizer) *Installer {
	i.synchronizer = s
	return i
}

func (i *Installer) WithStager(s Stager) *Installer {
	i.stager = s
	return i
}

func (i *Installer) WithGenerator(g Generator) *Installer {
	i.generator = g
	return i
}

func (i *Installer) WithClonerFactory(f ClonerFactory) *Installer {
	i.newCloner = f
	return i
}

// Run performs an installation.
func (i *Installer) Run(ctx context.Context, opts Options) (*Summary, error) {
	metrics.LastInstallStart.SetToCurrentTime()
	defer metrics.LastInstallEnd.SetToCurrentTime()

	summary := &Summary{}

	if opts.Clean {
		if err := i.step(StepClean, func() error { return i.Clean() }); err != nil {
			return summary, err
		}
	}

	if opts.PrivateDeps {
		_ = i.step(StepClone, func() error {
			i.CloneDependencies(ctx, opts.Credentials, summary)
			return nil
		})
	}

	if err := i.step(StepSync, func() error { return i.Sync(ctx) }); err != nil {
		return summary, err
	}

	if err := i.step(StepAssets, func() error { return i.StageAssets(ctx) }); err != nil {
		return summary, err
	}

	if err := i.step(StepGenerate, func() error { return i.Generate(ctx, opts) }); err != nil {
		var exitErr *generator.ExitError
		if !errors.As(err, &exitErr) {
			return summary, err
		}
		summary.report(StepGenerate, err)
	}

	if summary.Failed() {
		i.log.Warnf("installation finished with %d reported errors", len(summary.Reported))
		for _, err := range summary.Reported {
			i.log.Warnf("  %v", err)
		}
	} else {
		i.log.Infof("installation finished")
	}

	return summary, nil
}

func (i *Installer) step(step Step, fn func() error) error {
	startTime := time.Now()
	i.log.Infof("starting %s", step)
	defer metrics.StepFinished(string(step), startTime)

	if err := fn(); err != nil {
		var exitErr *generator.ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return &StepError{Step: step, Err: err}
	}
	return nil
}

// Clean removes the build directory.
func (i *Installer) Clean() error {
	return i.generator.Clean(i.path(i.cfg.Build.Directory))
}

// CloneDependencies clones every configured dependency. Failures are added to
// summary.
func (i *Installer) CloneDependencies(ctx context.Context, creds credentials.Credentials, summary *Summary) {
	for _, dep := range i.cfg.SortedDependencies() {
		dest := i.path(dep.Path)
		c, err := i.newCloner(ctx, dep, creds)
		if err == nil {
			err = c.Clone(ctx, dep.Repo, dest)
			i.line.Done()
		} else {
			i.log.Errorf("dependency %q: %v", dep.Name, err)
			err = &gitsync.CloneError{URL: dep.Repo, Dest: dest, Err: err}
		}
		if err != nil {
			summary.report(StepClone, err)
		}
	}
}

func (i *Installer) defaultCloner(ctx context.Context, dep *config.Dependency, creds credentials.Credentials) (Cloner, error) {
	c := gitsync.NewCloner(creds, i.log.With("dependency", dep.Name)).
		WithReporter(i.line).
		WithFingerprints(dep.Fingerprints).
		WithHeaders(dep.Headers)

	if dep.Credentials != nil {
		value, err := dep.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		auth, err := gitsync.AuthFromSecret(ctx, value)
		if err != nil {
			return nil, err
		}
		c.WithAuth(auth)
	}

	return c, nil
}

func (i *Installer) Sync(ctx context.Context) error {
	defer i.line.Done()
	if err := i.authenticateSubmodules(ctx); err != nil {
		return err
	}
	return i.synchronizer.Synchronize(ctx)
}

// authenticateSubmodules hands the configured submodule secret to the
// default synchronizer.
func (i *Installer) authenticateSubmodules(ctx context.Context) error {
	s, ok := i.synchronizer.(*submodule.Synchronizer)
	if !ok || i.cfg.Submodules == nil || i.cfg.Submodules.Credentials == nil {
		return nil
	}

	value, err := i.cfg.Submodules.Credentials.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("submodule credentials: %w", err)
	}
	auth, err := gitsync.AuthFromSecret(ctx, value)
	if err != nil {
		return fmt.Errorf("submodule credentials: %w", err)
	}
	s.WithAuth(auth)
	return nil
}

func (i *Installer) StageAssets(ctx context.Context) error {
	sources := make([]string, len(i.cfg.Assets.Sources))
	for n, src := range i.cfg.Assets.Sources {
		sources[n] = i.path(src)
	}
	_, err := i.stager.Stage(ctx, sources, i.path(i.cfg.Assets.Destination))
	return err
}

func (i *Installer) Generate(ctx context.Context, opts Options) error {
	args, err := i.cfg.Build.Args()
	if err != nil {
		return err
	}
	return i.generator.Generate(ctx, generator.Options{
		Dir:          i.path(i.cfg.Build.Directory),
		Command:      i.cfg.Build.Command,
		Generator:    i.cfg.Build.Generator,
		Architecture: i.cfg.Build.Architecture,
		UnitTests:    opts.UnitTests,
		Shared:       opts.Shared,
		ExtraArgs:    args,
	})
}

// path resolves p against the repository root.
func (i *Installer) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(i.root, filepath.FromSlash(p))
}
