package submodule

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/google/go-cmp/cmp"

	"github.com/wisp-renderer/wisp-installer/internal/progress"
)

type recorder struct {
	events []progress.Event
}

func (r *recorder) Report(e progress.Event) {
	r.events = append(r.events, e)
}

func (r *recorder) last() progress.Event {
	if len(r.events) == 0 {
		return progress.Event{}
	}
	return r.events[len(r.events)-1]
}

func assertSynchronized(t *testing.T, root, path string, want plumbing.Hash) {
	t.Helper()

	workdir := filepath.Join(root, filepath.FromSlash(path))
	exp, err := Gitlink(root, path)
	if err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(workdir, ".git")); got != exp {
		t.Fatalf("expected gitlink %q, got %q", exp, got)
	}

	if _, err := os.Stat(filepath.Join(root, ".git", "modules", filepath.FromSlash(path), "HEAD")); err != nil {
		t.Fatalf("submodule storage missing: %v", err)
	}

	repo, err := git.PlainOpen(workdir)
	if err != nil {
		t.Fatal(err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	if head.Hash() != want {
		t.Fatalf("expected HEAD at %v, got %v", want, head.Hash())
	}
}

func TestSynchronizeFreshSubmodule(t *testing.T) {
	for _, configured := range []bool{true, false} {
		t.Run(map[bool]string{true: "configured", false: "not configured"}[configured], func(t *testing.T) {
			up, commit := newUpstream(t, map[string]string{
				"README.md":       "glm",
				"glm/glm.hpp":     "#pragma once",
				"glm/vec3.hpp":    "struct vec3;",
				"doc/manual.md":   "manual",
				"test/CMakeLists": "add_test()",
			})
			p := newParent(t)
			p.declare(t, "glm", "deps/glm", up.url(), commit)
			if configured {
				p.configure(t, "glm", up.url())
			}

			rec := &recorder{}
			if err := New(p.dir).WithReporter(rec).Synchronize(t.Context()); err != nil {
				t.Fatal(err)
			}

			assertSynchronized(t, p.dir, "deps/glm", commit)
			if got := readFile(t, filepath.Join(p.dir, "deps", "glm", ".git")); got != "gitdir: ../../.git/modules/deps/glm" {
				t.Fatalf("unexpected gitlink: %q", got)
			}
			if got := readFile(t, filepath.Join(p.dir, "deps", "glm", "glm", "glm.hpp")); got != "#pragma once" {
				t.Fatalf("unexpected content: %q", got)
			}

			if diff := cmp.Diff(progress.Event{Step: 5, Total: 5}, rec.last()); diff != "" {
				t.Fatalf("unexpected final progress (-want +got):\n%s", diff)
			}
			for _, e := range rec.events {
				if e.Step > e.Total && e.Total != 0 {
					t.Fatalf("progress overshoots: %+v", e)
				}
			}

			cfg, err := p.repo.Config()
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := cfg.Submodules["glm"]; !ok {
				t.Fatal("submodule not initialized in parent configuration")
			}
		})
	}
}

func TestSynchronizeMissingGitlink(t *testing.T) {
	up, commit := newUpstream(t, map[string]string{"README.md": "imgui"})
	p := newParent(t)
	p.declare(t, "imgui", "deps/imgui", up.url(), commit)
	p.configure(t, "imgui", up.url())

	workdir := filepath.Join(p.dir, "deps", "imgui")
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := NewRepairer(p.dir, nil).Repair(Submodule{Name: "imgui", Path: "deps/imgui", URL: up.url()}); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(workdir, ".git")); got != "gitdir: ../../.git/modules/deps/imgui" {
		t.Fatalf("unexpected gitlink: %q", got)
	}

	if err := New(p.dir).Synchronize(t.Context()); err != nil {
		t.Fatal(err)
	}
	assertSynchronized(t, p.dir, "deps/imgui", commit)
}

func TestSynchronizeDiscardsLocalChanges(t *testing.T) {
	up, commit := newUpstream(t, map[string]string{
		"README.md": "original",
		"keep.txt":  "keep",
	})
	p := newParent(t)
	p.declare(t, "lib", "deps/lib", up.url(), commit)
	p.configure(t, "lib", up.url())

	s := New(p.dir)
	if err := s.Synchronize(t.Context()); err != nil {
		t.Fatal(err)
	}

	workdir := filepath.Join(p.dir, "deps", "lib")
	writeFile(t, filepath.Join(workdir, "README.md"), "local edit")
	if err := os.Remove(filepath.Join(workdir, "keep.txt")); err != nil {
		t.Fatal(err)
	}

	if err := s.Synchronize(t.Context()); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(workdir, "README.md")); got != "original" {
		t.Fatalf("local modification survived: %q", got)
	}
	if got := readFile(t, filepath.Join(workdir, "keep.txt")); got != "keep" {
		t.Fatalf("deleted file not recreated: %q", got)
	}
	assertSynchronized(t, p.dir, "deps/lib", commit)
}

func TestSynchronizeFetchesNewCommit(t *testing.T) {
	up, first := newUpstream(t, map[string]string{"VERSION": "1"})
	p := newParent(t)
	p.declare(t, "lib", "deps/lib", up.url(), first)

	s := New(p.dir)
	if err := s.Synchronize(t.Context()); err != nil {
		t.Fatal(err)
	}

	second := up.commit(t, map[string]string{"VERSION": "2"})
	p.record(t, "deps/lib", second)

	if err := s.Synchronize(t.Context()); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(p.dir, "deps", "lib", "VERSION")); got != "2" {
		t.Fatalf("expected updated content, got %q", got)
	}
	assertSynchronized(t, p.dir, "deps/lib", second)
}

func TestSynchronizeFetchesWithAuth(t *testing.T) {
	var (
		mu   sync.Mutex
		auth []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		auth = append(auth, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newParent(t)
	p.declare(t, "lfs", "deps/lfs", srv.URL+"/lfs.git", plumbing.NewHash("0123456789abcdef0123456789abcdef01234567"))

	err := New(p.dir).WithAuth(&githttp.TokenAuth{Token: "t0k"}).Synchronize(t.Context())
	if !errors.Is(err, transport.ErrAuthenticationRequired) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"Bearer t0k"}, auth); diff != "" {
		t.Fatalf("unexpected authorization headers (-want +got):\n%s", diff)
	}
}

func TestSynchronizeUpdatesRemoteURL(t *testing.T) {
	up, commit := newUpstream(t, map[string]string{"README.md": "x"})
	p := newParent(t)
	p.declare(t, "lib", "deps/lib", up.url(), commit)

	if err := New(p.dir).Synchronize(t.Context()); err != nil {
		t.Fatal(err)
	}

	repo, err := git.PlainOpen(filepath.Join(p.dir, "deps", "lib"))
	if err != nil {
		t.Fatal(err)
	}
	if err := ensureRemote(repo, "https://example.com/moved.git"); err != nil {
		t.Fatal(err)
	}
	remote, err := repo.Remote(remoteName)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"https://example.com/moved.git"}, remote.Config().URLs); diff != "" {
		t.Fatalf("unexpected remote urls (-want +got):\n%s", diff)
	}
}

func TestSynchronizeProcessesInPathOrder(t *testing.T) {
	upA, commitA := newUpstream(t, map[string]string{"a": "a"})
	upB, commitB := newUpstream(t, map[string]string{"b": "b"})
	p := newParent(t)
	p.declare(t, "zeta", "deps/b", upB.url(), commitB)
	p.declare(t, "alpha", "deps/a", upA.url(), commitA)

	if err := New(p.dir).Synchronize(t.Context()); err != nil {
		t.Fatal(err)
	}

	assertSynchronized(t, p.dir, "deps/a", commitA)
	assertSynchronized(t, p.dir, "deps/b", commitB)
}

func TestSynchronizeNoSubmodules(t *testing.T) {
	p := newParent(t)

	if err := New(p.dir).Synchronize(t.Context()); err != nil {
		t.Fatal(err)
	}
}

func TestSynchronizeErrors(t *testing.T) {
	t.Run("not a repository", func(t *testing.T) {
		dir := t.TempDir()
		err := New(dir).Synchronize(t.Context())

		var e *Error
		if !errors.As(err, &e) || e.Op != "open" {
			t.Fatalf("expected open error, got %v", err)
		}
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			t.Fatalf("expected ErrRepositoryNotExists, got %v", err)
		}
	})

	t.Run("commit not recorded", func(t *testing.T) {
		up, _ := newUpstream(t, map[string]string{"README.md": "x"})
		p := newParent(t)
		writeFile(t, filepath.Join(p.dir, ".gitmodules"), "[submodule \"lib\"]\n\tpath = deps/lib\n\turl = "+up.url()+"\n")

		err := New(p.dir).Synchronize(t.Context())

		var e *Error
		if !errors.As(err, &e) || e.Op != "update" || e.Submodule != "lib" {
			t.Fatalf("expected update error for lib, got %v", err)
		}
		if !errors.Is(err, ErrNotRecorded) {
			t.Fatalf("expected ErrNotRecorded, got %v", err)
		}
	})

	t.Run("commit missing upstream", func(t *testing.T) {
		up, _ := newUpstream(t, map[string]string{"README.md": "x"})
		p := newParent(t)
		p.declare(t, "lib", "deps/lib", up.url(), plumbing.NewHash("0123456789abcdef0123456789abcdef01234567"))

		err := New(p.dir).Synchronize(t.Context())
		if !errors.Is(err, ErrCommitNotFound) {
			t.Fatalf("expected ErrCommitNotFound, got %v", err)
		}
		if !strings.Contains(err.Error(), `submodule "lib": update`) {
			t.Fatalf("error does not name the submodule: %v", err)
		}
	})

	t.Run("unreachable remote", func(t *testing.T) {
		_, commit := newUpstream(t, map[string]string{"README.md": "x"})
		p := newParent(t)
		p.declare(t, "lib", "deps/lib", filepath.Join(t.TempDir(), "missing", ".git"), commit)

		err := New(p.dir).Synchronize(t.Context())

		var e *Error
		if !errors.As(err, &e) || e.Op != "update" {
			t.Fatalf("expected update error, got %v", err)
		}
	})

	t.Run("aborts on first failure", func(t *testing.T) {
		upA, commitA := newUpstream(t, map[string]string{"a": "a"})
		upB, _ := newUpstream(t, map[string]string{"b": "b"})
		p := newParent(t)
		p.declare(t, "a", "deps/a", upA.url(), commitA)
		p.declare(t, "b", "deps/b", upB.url(), plumbing.NewHash("0123456789abcdef0123456789abcdef01234567"))

		if err := New(p.dir).Synchronize(t.Context()); err == nil {
			t.Fatal("expected error")
		}
		assertSynchronized(t, p.dir, "deps/a", commitA)
	})
}

func TestResolveURL(t *testing.T) {
	cases := []struct {
		note   string
		origin string
		url    string
		exp    string
	}{
		{note: "absolute", origin: "https://github.com/wisp/wisp.git", url: "https://github.com/g-truc/glm.git", exp: "https://github.com/g-truc/glm.git"},
		{note: "https sibling", origin: "https://github.com/wisp/wisp.git", url: "../glm.git", exp: "https://github.com/wisp/glm.git"},
		{note: "https child", origin: "https://github.com/wisp/wisp.git", url: "./glm.git", exp: "https://github.com/wisp/wisp.git/glm.git"},
		{note: "scp-like", origin: "git@github.com:wisp/wisp.git", url: "../glm.git", exp: "git@github.com:wisp/glm.git"},
		{note: "local", origin: "/srv/git/wisp", url: "../glm", exp: filepath.Join("/srv/git", "glm")},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			p := newParent(t)
			if _, err := p.repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{tc.origin}}); err != nil {
				t.Fatal(err)
			}

			got, err := resolveURL(p.repo, tc.url)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.exp {
				t.Fatalf("expected %q, got %q", tc.exp, got)
			}
		})
	}

	t.Run("relative without origin", func(t *testing.T) {
		p := newParent(t)
		if _, err := resolveURL(p.repo, "../glm.git"); err == nil {
			t.Fatal("expected error")
		}
	})
}
