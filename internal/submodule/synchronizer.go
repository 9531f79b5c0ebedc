// Package submodule brings the declared submodules of a repository to the
// commits recorded by the parent.
//
// Submodules are processed one at a time, in path order. Each one moves
// through link repair, initialization and a forced checkout; the first
// failure aborts the run. Local modifications inside a submodule are always
// discarded in favor of the recorded commit.
package submodule

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/wisp-renderer/wisp-installer/internal/logging"
	"github.com/wisp-renderer/wisp-installer/internal/metrics"
	"github.com/wisp-renderer/wisp-installer/internal/progress"
)

const remoteName = "origin"

type Synchronizer struct {
	root     string
	repairer *Repairer
	reporter progress.Reporter
	logger   *logging.Logger
	auth     transport.AuthMethod
}

// New creates a Synchronizer for the repository whose working tree is at
// root.
func New(root string) *Synchronizer {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	logger := logging.NewNop()
	return &Synchronizer{
		root:     root,
		repairer: NewRepairer(root, logger),
		reporter: progress.Discard,
		logger:   logger,
	}
}

func (s *Synchronizer) WithLogger(logger *logging.Logger) *Synchronizer {
	s.logger = logger
	s.repairer = NewRepairer(s.root, logger)
	return s
}

func (s *Synchronizer) WithReporter(r progress.Reporter) *Synchronizer {
	if r == nil {
		r = progress.Discard
	}
	s.reporter = r
	return s
}

// WithAuth sets the authentication used to fetch submodule remotes. By
// default the transport's own mechanisms apply.
func (s *Synchronizer) WithAuth(auth transport.AuthMethod) *Synchronizer {
	s.auth = auth
	return s
}

// Synchronize brings every declared submodule to its recorded commit. The
// returned error, if any, is an *Error.
func (s *Synchronizer) Synchronize(ctx context.Context) error {
	repo, err := git.PlainOpen(s.root)
	if err != nil {
		return &Error{Op: "open", Path: s.root, Err: err}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return &Error{Op: "open", Path: s.root, Err: err}
	}

	subs, err := wt.Submodules()
	if err != nil {
		return &Error{Op: "enumerate", Path: filepath.Join(s.root, ".gitmodules"), Err: err}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].Config().Path < subs[j].Config().Path
	})

	s.logger.Infof("found %d submodules in %s", len(subs), s.root)

	for _, sm := range subs {
		if err := ctx.Err(); err != nil {
			return &Error{Op: "update", Submodule: sm.Config().Name, Path: s.root, Err: err}
		}

		startTime := time.Now()
		if err := s.synchronize(ctx, repo, sm); err != nil {
			var e *Error
			if errors.As(err, &e) {
				metrics.SubmoduleFailed(sm.Config().Name, e.Op)
			}
			return err
		}
		metrics.SubmoduleSynced(sm.Config().Name, startTime)
	}

	return nil
}

func (s *Synchronizer) synchronize(ctx context.Context, parent *git.Repository, sm *git.Submodule) error {
	cfg := sm.Config()
	sub := Submodule{Name: cfg.Name, Path: cfg.Path, URL: cfg.URL}
	workdir := filepath.Join(s.root, filepath.FromSlash(sub.Path))

	if err := s.repairer.Repair(sub); err != nil {
		return err
	}

	if err := sm.Init(); err != nil && !errors.Is(err, git.ErrSubmoduleAlreadyInitialized) {
		return &Error{Op: "init", Submodule: sub.Name, Path: workdir, Err: err}
	}

	if err := s.update(ctx, parent, sub, workdir); err != nil {
		return &Error{Op: "update", Submodule: sub.Name, Path: workdir, Err: err}
	}

	s.logger.Infof("submodule %q synchronized", sub.Name)
	return nil
}

func (s *Synchronizer) update(ctx context.Context, parent *git.Repository, sub Submodule, workdir string) error {
	want, err := recordedCommit(parent, sub.Path)
	if err != nil {
		return err
	}

	remoteURL, err := resolveURL(parent, sub.URL)
	if err != nil {
		return err
	}

	fs := &countingFS{}
	repo, err := s.open(sub, workdir, fs)
	if err != nil {
		return err
	}

	if err := ensureRemote(repo, remoteURL); err != nil {
		return err
	}

	commit, err := repo.CommitObject(want)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		s.logger.Debugf("commit %s of submodule %q is not available locally, fetching %s", want, sub.Name, remoteURL)
		if err := s.fetch(ctx, repo); err != nil {
			return err
		}
		commit, err = repo.CommitObject(want)
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return fmt.Errorf("%s: %w", want, ErrCommitNotFound)
		}
	}
	if err != nil {
		return err
	}

	return s.checkout(repo, commit, fs)
}

// open opens the submodule storage, creating it if needed. The storage is
// the gitdir the working directory links to, or <root>/.git/modules/<path>.
func (s *Synchronizer) open(sub Submodule, workdir string, fs *countingFS) (*git.Repository, error) {
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, err
	}

	gitdir := filepath.Join(modulesDir(s.root), filepath.FromSlash(sub.Path))
	if target, err := readGitlink(workdir); err == nil {
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			gitdir = target
		}
	}

	storer := filesystem.NewStorage(osfs.New(gitdir), cache.NewObjectLRUDefault())
	fs.Filesystem = osfs.New(workdir)

	repo, err := git.Open(storer, fs)
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return repo, err
	}

	s.logger.Debugf("creating storage of submodule %q at %s", sub.Name, gitdir)
	repo, err = git.Init(storer, fs)
	if err != nil {
		return nil, err
	}
	// Init rewrites the .git file with a trailing newline.
	if err := writeGitlink(workdir, gitdir); err != nil {
		return nil, err
	}
	return repo, nil
}

// writeGitlink points the .git file in workdir at gitdir, relative to workdir.
func writeGitlink(workdir, gitdir string) error {
	rel, err := filepath.Rel(workdir, gitdir)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workdir, ".git"), []byte("gitdir: "+filepath.ToSlash(rel)), 0o644)
}

func (s *Synchronizer) fetch(ctx context.Context, repo *git.Repository) error {
	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		Auth:       s.auth,
		Force:      true,
		Progress:   progress.NewSidebandWriter(s.reporter),
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", remoteName)),
			gitconfig.RefSpec("+refs/tags/*:refs/tags/*"),
		},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}

// checkout forces the worktree to commit, detaching HEAD. Modified files are
// overwritten and deleted files recreated.
func (s *Synchronizer) checkout(repo *git.Repository, commit *object.Commit, fs *countingFS) error {
	tree, err := commit.Tree()
	if err != nil {
		return err
	}

	var total uint64
	if err := tree.Files().ForEach(func(*object.File) error {
		total++
		return nil
	}); err != nil {
		return err
	}

	var step uint64
	fs.onWrite = func() {
		if step < total {
			step++
		}
		s.reporter.Report(progress.Event{Step: step, Total: total})
	}
	defer func() { fs.onWrite = nil }()

	wt, err := repo.Worktree()
	if err != nil {
		return err
	}

	if err := wt.Checkout(&git.CheckoutOptions{Hash: commit.Hash, Force: true}); err != nil {
		return err
	}

	s.reporter.Report(progress.Event{Step: total, Total: total})
	return nil
}

func recordedCommit(parent *git.Repository, subPath string) (plumbing.Hash, error) {
	idx, err := parent.Storer.Index()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	entry, err := idx.Entry(subPath)
	if errors.Is(err, index.ErrEntryNotFound) {
		return plumbing.ZeroHash, fmt.Errorf("%s: %w", subPath, ErrNotRecorded)
	} else if err != nil {
		return plumbing.ZeroHash, err
	}
	if entry.Mode != filemode.Submodule {
		return plumbing.ZeroHash, fmt.Errorf("%s is a %v entry: %w", subPath, entry.Mode, ErrNotRecorded)
	}
	return entry.Hash, nil
}

func ensureRemote(repo *git.Repository, remoteURL string) error {
	remote, err := repo.Remote(remoteName)
	if errors.Is(err, git.ErrRemoteNotFound) {
		_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: remoteName, URLs: []string{remoteURL}})
		return err
	} else if err != nil {
		return err
	}

	if urls := remote.Config().URLs; len(urls) == 1 && urls[0] == remoteURL {
		return nil
	}

	cfg, err := repo.Config()
	if err != nil {
		return err
	}
	cfg.Remotes[remoteName].URLs = []string{remoteURL}
	return repo.Storer.SetConfig(cfg)
}

// resolveURL resolves a submodule URL relative to the parent's origin, the
// way git does for "./" and "../" URLs.
func resolveURL(parent *git.Repository, rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "./") && !strings.HasPrefix(rawURL, "../") {
		return rawURL, nil
	}

	remote, err := parent.Remote(remoteName)
	if err != nil {
		return "", fmt.Errorf("relative submodule url %q: %w", rawURL, err)
	}
	base := remote.Config().URLs[0]

	if u, err := url.Parse(base); err == nil && u.Scheme != "" && u.Host != "" {
		u.Path = path.Join(u.Path, rawURL)
		return u.String(), nil
	}
	if ep, err := transport.NewEndpoint(base); err == nil && ep.Protocol == "ssh" && !strings.Contains(base, "://") {
		host, p, _ := strings.Cut(base, ":")
		return host + ":" + path.Join(p, rawURL), nil
	}
	return filepath.Join(base, filepath.FromSlash(rawURL)), nil
}
