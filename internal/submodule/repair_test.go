package submodule

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wisp-renderer/wisp-installer/internal/metrics"
)

func TestGitlink(t *testing.T) {
	cases := []struct {
		note string
		path string
		exp  string
		err  bool
	}{
		{note: "two levels", path: "deps/glm", exp: "gitdir: ../../.git/modules/deps/glm"},
		{note: "special characters", path: "deps/hbao+", exp: "gitdir: ../../.git/modules/deps/hbao+"},
		{note: "one level", path: "glm", exp: "gitdir: ../.git/modules/glm"},
		{note: "three levels", path: "third_party/gfx/glm", exp: "gitdir: ../../../.git/modules/third_party/gfx/glm"},
		{note: "unclean", path: "deps//glm/", exp: "gitdir: ../../.git/modules/deps/glm"},
		{note: "escapes root", path: "../glm", err: true},
		{note: "empty", path: "", err: true},
	}

	root := t.TempDir()
	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			got, err := Gitlink(root, tc.path)
			if tc.err {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.exp {
				t.Fatalf("expected %q, got %q", tc.exp, got)
			}
		})
	}
}

func TestRepairMissingWorkdir(t *testing.T) {
	p := newParent(t)
	p.configure(t, "glm", "https://example.com/glm.git")

	if err := NewRepairer(p.dir, nil).Repair(Submodule{Name: "glm", Path: "deps/glm"}); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(p.dir, "deps", "glm", ".git")); got != "gitdir: ../../.git/modules/deps/glm" {
		t.Fatalf("unexpected gitlink: %q", got)
	}
}

func TestRepairMissingGitlink(t *testing.T) {
	p := newParent(t)
	p.configure(t, "glm", "https://example.com/glm.git")
	writeFile(t, filepath.Join(p.dir, "deps", "glm", "README.md"), "stale")

	if err := NewRepairer(p.dir, nil).Repair(Submodule{Name: "glm", Path: "deps/glm"}); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(p.dir, "deps", "glm", ".git")); got != "gitdir: ../../.git/modules/deps/glm" {
		t.Fatalf("unexpected gitlink: %q", got)
	}
	if got := readFile(t, filepath.Join(p.dir, "deps", "glm", "README.md")); got != "stale" {
		t.Fatalf("repair touched working directory content: %q", got)
	}
}

func TestRepairIdempotent(t *testing.T) {
	p := newParent(t)
	p.configure(t, "glm", "https://example.com/glm.git")
	r := NewRepairer(p.dir, nil)
	sub := Submodule{Name: "glm", Path: "deps/glm"}
	link := filepath.Join(p.dir, "deps", "glm", ".git")

	before := testutil.ToFloat64(metrics.SubmoduleLinksRepaired)

	if err := r.Repair(sub); err != nil {
		t.Fatal(err)
	}
	first, err := os.Stat(link)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Repair(sub); err != nil {
		t.Fatal(err)
	}
	second, err := os.Stat(link)
	if err != nil {
		t.Fatal(err)
	}

	if !first.ModTime().Equal(second.ModTime()) || first.Size() != second.Size() {
		t.Fatal("second repair rewrote the gitlink")
	}
	if got := testutil.ToFloat64(metrics.SubmoduleLinksRepaired) - before; got != 1 {
		t.Fatalf("expected exactly one gitlink write, got %v", got)
	}
}

func TestRepairKeepsExistingGitlink(t *testing.T) {
	p := newParent(t)
	p.configure(t, "glm", "https://example.com/glm.git")
	link := filepath.Join(p.dir, "deps", "glm", ".git")
	writeFile(t, link, "gitdir: ../../.git/modules/glm\n")

	if err := NewRepairer(p.dir, nil).Repair(Submodule{Name: "glm", Path: "deps/glm"}); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, link); got != "gitdir: ../../.git/modules/glm\n" {
		t.Fatalf("existing gitlink was rewritten: %q", got)
	}
}

func TestRepairSkipsUnconfigured(t *testing.T) {
	cases := []struct {
		note       string
		configured string
		name       string
	}{
		{note: "nothing configured", name: "glm"},
		{note: "other submodule configured", configured: "imgui", name: "glm"},
		{note: "name is a prefix of a configured one", configured: "glm-extra", name: "glm"},
		{note: "configured name contains the name", configured: "deps/glm", name: "glm"},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			p := newParent(t)
			if tc.configured != "" {
				p.configure(t, tc.configured, "https://example.com/x.git")
			}

			if err := NewRepairer(p.dir, nil).Repair(Submodule{Name: tc.name, Path: "deps/" + tc.name}); err != nil {
				t.Fatal(err)
			}

			if _, err := os.Stat(filepath.Join(p.dir, "deps", tc.name)); !os.IsNotExist(err) {
				t.Fatalf("expected no working directory, got %v", err)
			}
		})
	}
}

func TestRepairWithoutConfigFile(t *testing.T) {
	root := t.TempDir()

	if err := NewRepairer(root, nil).Repair(Submodule{Name: "glm", Path: "deps/glm"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "deps")); !os.IsNotExist(err) {
		t.Fatalf("expected no working directory, got %v", err)
	}
}

func TestRepairCreateFailure(t *testing.T) {
	p := newParent(t)
	p.configure(t, "glm", "https://example.com/glm.git")
	// A regular file where the parent directory should be.
	writeFile(t, filepath.Join(p.dir, "deps"), "not a directory")

	err := NewRepairer(p.dir, nil).Repair(Submodule{Name: "glm", Path: "deps/glm"})

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if e.Op != "repair" || e.Submodule != "glm" || e.Path != filepath.Join(p.dir, "deps", "glm") {
		t.Fatalf("unexpected error: %+v", e)
	}
}

func TestReadGitlink(t *testing.T) {
	dir := t.TempDir()
	workdir := filepath.Join(dir, "deps", "glm")

	writeFile(t, filepath.Join(workdir, ".git"), "gitdir: ../../.git/modules/deps/glm\n")
	got, err := readGitlink(workdir)
	if err != nil {
		t.Fatal(err)
	}
	if exp := filepath.Join(dir, ".git", "modules", "deps", "glm"); got != exp {
		t.Fatalf("expected %q, got %q", exp, got)
	}

	writeFile(t, filepath.Join(workdir, ".git"), "garbage")
	if _, err := readGitlink(workdir); !errors.Is(err, errNoGitdir) {
		t.Fatalf("expected errNoGitdir, got %v", err)
	}
}
