package assets

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func listFiles(t *testing.T, root string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		bs, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(bs)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func TestStage(t *testing.T) {
	lfs := t.TempDir()
	writeFile(t, filepath.Join(lfs, "materials", "brick.mtl"), "new brick")
	writeFile(t, filepath.Join(lfs, "materials", "pbr", "gold.mtl"), "gold")
	writeFile(t, filepath.Join(lfs, "materials", ".git", "config"), "[core]")
	writeFile(t, filepath.Join(lfs, "models", "sponza.obj"), "v 0 0 0")

	dest := filepath.Join(t.TempDir(), "resources")
	writeFile(t, filepath.Join(dest, "materials", "brick.mtl"), "old brick, longer than the new one")
	writeFile(t, filepath.Join(dest, "shaders", "basic.hlsl"), "float4")

	var out bytes.Buffer
	n, err := NewStager(nil).WithOutput(&out).Stage(t.Context(),
		[]string{filepath.Join(lfs, "materials") + string(filepath.Separator), filepath.Join(lfs, "models")}, dest)
	if err != nil {
		t.Fatal(err)
	}

	exp := map[string]string{
		"materials/brick.mtl":    "new brick",
		"materials/pbr/gold.mtl": "gold",
		"models/sponza.obj":      "v 0 0 0",
		"shaders/basic.hlsl":     "float4",
	}
	if diff := cmp.Diff(exp, listFiles(t, dest)); diff != "" {
		t.Fatalf("unexpected resources (-want +got):\n%s", diff)
	}

	if want := int64(len("new brick") + len("gold") + len("v 0 0 0")); n != want {
		t.Fatalf("expected %d bytes copied, got %d", want, n)
	}
	if !strings.Contains(out.String(), "Copying assets") {
		t.Fatalf("expected progress bar output, got %q", out.String())
	}
}

func TestStageMissingSource(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "resources")
	_, err := NewStager(nil).Stage(t.Context(), []string{filepath.Join(t.TempDir(), "missing")}, dest)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist error, got %v", err)
	}
}

func TestStageCanceled(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "models", "a.obj"), "a")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := NewStager(nil).Stage(ctx, []string{filepath.Join(src, "models")}, t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
