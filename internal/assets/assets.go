// Package assets copies large binary assets, such as the materials and models
// of the LFS repository, into the renderer's resource tree.
package assets

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/otiai10/copy"
	"golang.org/x/sync/errgroup"

	"github.com/wisp-renderer/wisp-installer/internal/logging"
	"github.com/wisp-renderer/wisp-installer/internal/progress"
)

const gitDir = ".git"

type Stager struct {
	logger *logging.Logger
	out    io.Writer
}

func NewStager(logger *logging.Logger) *Stager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stager{logger: logger}
}

// WithOutput renders a byte progress bar to w. Without it the copy is silent.
func (s *Stager) WithOutput(w io.Writer) *Stager {
	s.out = w
	return s
}

// Stage copies every source directory into dest, as dest/<base name of
// source>. Existing files are overwritten and git metadata is skipped. It
// returns the number of bytes copied.
func (s *Stager) Stage(ctx context.Context, sources []string, dest string) (int64, error) {
	total, err := size(ctx, sources)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create asset destination: %w", err)
	}

	var bar *progress.Bar
	if s.out != nil {
		bar = progress.NewBar(s.out, total, "Copying assets")
	}

	var copied atomic.Int64
	opts := copy.Options{
		Skip: func(info os.FileInfo, _, _ string) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			return info.Name() == gitDir, nil
		},
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Shallow
		},
		WrapReader: func(r io.Reader) io.Reader {
			return &countingReader{r: bar.Reader(r), n: &copied}
		},
	}

	for _, src := range sources {
		target := filepath.Join(dest, filepath.Base(filepath.Clean(src)))
		s.logger.Debugf("copying %s to %s", src, target)
		if err := copy.Copy(src, target, opts); err != nil {
			return copied.Load(), fmt.Errorf("failed to copy %s to %s: %w", src, target, err)
		}
	}

	bar.Finish()
	s.logger.Infof("copied %d MB", copied.Load()/1024/1024)

	return copied.Load(), nil
}

// size sums the regular files that Stage will copy. Sources are walked
// concurrently.
func size(ctx context.Context, sources []string) (int64, error) {
	var total atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			err := filepath.WalkDir(src, func(_ string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if d.Name() == gitDir {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				if !d.Type().IsRegular() {
					return nil
				}
				info, err := d.Info()
				if err != nil {
					return err
				}
				total.Add(info.Size())
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read asset source: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total.Load(), nil
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.n.Add(int64(n))
	return n, err
}
