package submodule

import (
	"os"

	"github.com/go-git/go-billy/v5"
)

// countingFS counts the files a checkout writes into the worktree. go-git
// writes every checked out file through OpenFile with O_CREATE, or Symlink.
type countingFS struct {
	billy.Filesystem
	onWrite func()
}

func (fs *countingFS) OpenFile(name string, flag int, perm os.FileMode) (billy.File, error) {
	f, err := fs.Filesystem.OpenFile(name, flag, perm)
	if err == nil && flag&os.O_CREATE != 0 {
		fs.written()
	}
	return f, err
}

func (fs *countingFS) Symlink(target, link string) error {
	err := fs.Filesystem.Symlink(target, link)
	if err == nil {
		fs.written()
	}
	return err
}

func (fs *countingFS) written() {
	if fs.onWrite != nil {
		fs.onWrite()
	}
}
