package submodule

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/config"

	"github.com/wisp-renderer/wisp-installer/internal/logging"
	"github.com/wisp-renderer/wisp-installer/internal/metrics"
)

// Submodule is a nested repository declared in .gitmodules.
type Submodule struct {
	Name string
	// Path of the working directory, slash separated and relative to the
	// parent's root.
	Path string
	URL  string
}

// Repairer materializes the on-disk link between a submodule working
// directory and its storage in the parent repository.
type Repairer struct {
	root   string
	logger *logging.Logger
}

func NewRepairer(root string, logger *logging.Logger) *Repairer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Repairer{root: root, logger: logger}
}

// Repair creates the working directory and gitlink of sub if they are
// missing. An existing gitlink is never rewritten.
func (r *Repairer) Repair(sub Submodule) error {
	declared, err := r.declaredInConfig(sub.Name)
	if err != nil {
		return &Error{Op: "repair", Submodule: sub.Name, Path: r.configPath(), Err: err}
	}
	if !declared {
		r.logger.Debugf("submodule %q is not configured in %s, skipping link repair", sub.Name, r.configPath())
		return nil
	}

	workdir := filepath.Join(r.root, filepath.FromSlash(sub.Path))
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return &Error{Op: "repair", Submodule: sub.Name, Path: workdir, Err: err}
	}

	link := filepath.Join(workdir, ".git")
	if _, err := os.Lstat(link); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return &Error{Op: "repair", Submodule: sub.Name, Path: link, Err: err}
	}

	content, err := Gitlink(r.root, sub.Path)
	if err != nil {
		return &Error{Op: "repair", Submodule: sub.Name, Path: link, Err: err}
	}
	if err := os.WriteFile(link, []byte(content), 0o644); err != nil {
		return &Error{Op: "repair", Submodule: sub.Name, Path: link, Err: err}
	}

	metrics.SubmoduleLinksRepaired.Inc()
	r.logger.Infof("repaired missing gitlink of submodule %q", sub.Name)
	return nil
}

// declaredInConfig reports whether name is a [submodule "<name>"] section of
// the parent's .git/config. Worktree.Submodules lists everything in
// .gitmodules, including entries that were never configured locally; only
// configured ones are repaired.
func (r *Repairer) declaredInConfig(name string) (bool, error) {
	f, err := os.Open(r.configPath())
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	defer f.Close()

	cfg, err := config.ReadConfig(f)
	if err != nil {
		return false, err
	}
	_, ok := cfg.Submodules[name]
	return ok, nil
}

func (r *Repairer) configPath() string {
	return filepath.Join(r.root, ".git", "config")
}

// Gitlink returns the content of the .git file of the submodule at path:
// a gitdir reference from its working directory to
// <root>/.git/modules/<path>.
func Gitlink(root, path string) (string, error) {
	if path == "" || !filepath.IsLocal(filepath.FromSlash(path)) {
		return "", fmt.Errorf("invalid submodule path %q", path)
	}
	workdir := filepath.Join(root, filepath.FromSlash(path))
	rel, err := filepath.Rel(workdir, modulesDir(root))
	if err != nil {
		return "", err
	}
	return "gitdir: " + filepath.ToSlash(rel) + "/" + filepath.ToSlash(filepath.Clean(filepath.FromSlash(path))), nil
}

func modulesDir(root string) string {
	return filepath.Join(root, ".git", "modules")
}

var errNoGitdir = errors.New("not a gitdir reference")

// readGitlink resolves the gitdir referenced by the .git file in workdir.
func readGitlink(workdir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(workdir, ".git"))
	if err != nil {
		return "", err
	}
	target, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "gitdir:")
	target = strings.TrimSpace(target)
	if !ok || target == "" {
		return "", errNoGitdir
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(workdir, filepath.FromSlash(target))
	}
	return target, nil
}
