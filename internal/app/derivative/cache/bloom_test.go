package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDerivativeIndexAddAndTest(t *testing.T) {
	idx := NewDerivativeIndex(1000, 0.01)
	if idx.MightExist("img/web/a-10x10-90.jpg") {
		t.Fatal("empty filter reported a member")
	}
	if idx.Count() != 0 {
		t.Fatalf("empty filter count = %d", idx.Count())
	}
	idx.Add("img/web/a-10x10-90.jpg")
	if !idx.MightExist("img/web/a-10x10-90.jpg") {
		t.Fatal("added path not found")
	}
}

func TestDerivativeIndexSeed(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"img/web/a-10x10-90.jpg",
		"img/web/sub/b-5x5-0.png",
		"img/web/.c-1x1-0.gif.123.tmp",
		"img/p/1/1.jpg",
	}
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	idx := NewDerivativeIndex(1000, 0.01)
	n, err := idx.Seed(root, "img/web")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("seeded %d, want 2", n)
	}
	if idx.Count() == 0 {
		t.Fatal("count still zero after seeding")
	}
	for _, f := range files[:2] {
		if !idx.MightExist(f) {
			t.Fatalf("%s not seeded", f)
		}
	}
}

func TestDerivativeIndexSeedMissingDir(t *testing.T) {
	idx := NewDerivativeIndex(10, 0.01)
	n, err := idx.Seed(t.TempDir(), "img/web")
	if err != nil || n != 0 {
		t.Fatalf("got (%d, %v)", n, err)
	}
}
