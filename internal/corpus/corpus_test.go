package corpus

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"feltfuzz/internal/bytestream"
)

func newStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := NewStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestAddRetainsOnlyNewCoverage(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)

	retained, err := s.Add([]byte("alpha"), []uint64{1, 2})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !retained {
		t.Fatal("first input with fresh coverage should be retained")
	}

	retained, err = s.Add([]byte("beta"), []uint64{1, 2})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if retained {
		t.Fatal("input with no new tokens should be discarded")
	}
	if s.Count() != 1 {
		t.Fatalf("count = %d, want 1 after discard", s.Count())
	}

	retained, err = s.Add([]byte("gamma"), []uint64{2, 3})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !retained {
		t.Fatal("input growing the frontier should be retained")
	}
	if s.FrontierSize() != 3 {
		t.Fatalf("frontier = %d, want 3", s.FrontierSize())
	}
}

func TestAddCommitsSeedAndSidecar(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)

	if _, err := s.Add([]byte("alpha"), []uint64{0x1a, 0xff}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var seed, sidecar string
	for _, f := range files {
		if strings.Contains(f.Name(), ".tmp-") {
			t.Fatalf("temp residue left behind: %s", f.Name())
		}
		if strings.HasSuffix(f.Name(), ".cov") {
			sidecar = f.Name()
		} else {
			seed = f.Name()
		}
	}
	if seed == "" || sidecar != seed+".cov" {
		t.Fatalf("got files %q/%q, want seed plus matching sidecar", seed, sidecar)
	}
	data, err := os.ReadFile(filepath.Join(dir, sidecar))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1a\nff\n" {
		t.Fatalf("sidecar = %q, want hex tokens one per line", data)
	}
}

func TestLoadRebuildsState(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	if _, err := s.Add([]byte("alpha"), []uint64{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add([]byte("beta"), []uint64{2, 3}); err != nil {
		t.Fatal(err)
	}

	reloaded := newStore(t, dir)
	if reloaded.Count() != s.Count() {
		t.Fatalf("reloaded count = %d, want %d", reloaded.Count(), s.Count())
	}
	if reloaded.FrontierSize() != s.FrontierSize() {
		t.Fatalf("reloaded frontier = %d, want %d", reloaded.FrontierSize(), s.FrontierSize())
	}

	retained, err := reloaded.Add([]byte("gamma"), []uint64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if retained {
		t.Fatal("reloaded frontier should still cover known tokens")
	}
}

func TestMergeFile(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)

	foreign := filepath.Join(dir, "deadbeef")
	if err := os.WriteFile(foreign+".cov", []byte("7\n8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(foreign, []byte("foreign seed"), 0o644); err != nil {
		t.Fatal(err)
	}

	added, err := s.MergeFile(foreign)
	if err != nil {
		t.Fatalf("MergeFile failed: %v", err)
	}
	if !added || s.Count() != 1 || s.FrontierSize() != 2 {
		t.Fatalf("added = %v, count = %d, frontier = %d; want merged entry", added, s.Count(), s.FrontierSize())
	}

	added, err = s.MergeFile(foreign)
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Fatal("second merge of the same seed should be a no-op")
	}

	if added, _ := s.MergeFile(filepath.Join(dir, "x.tmp-123")); added {
		t.Fatal("temp paths should be ignored")
	}
	if added, _ := s.MergeFile(foreign + ".cov"); added {
		t.Fatal("sidecars should be ignored")
	}
}

func TestPickSeed(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)

	if got := s.PickSeed(bytestream.New([]byte{9, 9, 9, 9})); got != nil {
		t.Fatalf("empty corpus should yield nil, got %q", got)
	}

	if _, err := s.Add([]byte("alpha"), []uint64{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add([]byte("beta"), []uint64{2}); err != nil {
		t.Fatal(err)
	}

	ctl := []byte{3, 0, 0, 0}
	a := s.PickSeed(bytestream.New(ctl))
	b := s.PickSeed(bytestream.New(ctl))
	if !bytes.Equal(a, b) {
		t.Fatalf("same stream should pick the same seed: %q vs %q", a, b)
	}

	a[0] = 'X'
	c := s.PickSeed(bytestream.New(ctl))
	if c[0] == 'X' {
		t.Fatal("PickSeed must return a copy, not the stored slice")
	}
}

func TestAddExistingInputGrowsFrontier(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)

	if _, err := s.Add([]byte("alpha"), []uint64{1}); err != nil {
		t.Fatal(err)
	}
	retained, err := s.Add([]byte("alpha"), []uint64{1, 9})
	if err != nil {
		t.Fatal(err)
	}
	if !retained {
		t.Fatal("new tokens should mark the run retained even for a known input")
	}
	if s.Count() != 1 {
		t.Fatalf("count = %d, want 1; identical inputs collapse", s.Count())
	}
	if s.FrontierSize() != 2 {
		t.Fatalf("frontier = %d, want 2", s.FrontierSize())
	}
}
