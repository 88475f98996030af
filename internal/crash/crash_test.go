package crash

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"go.uber.org/zap"

	"feltfuzz/internal/oracle"
)

func newStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := NewStore(dir, nil, "campaign-1", "worker-1", zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func panicOutcome(frame string) oracle.Outcome {
	return oracle.Outcome{
		Kind:      oracle.Crash,
		ErrKind:   "panic",
		Message:   frame,
		Signature: oracle.Signature{Kind: "panic", Frame: frame},
	}
}

func TestRecordDedupesBySignature(t *testing.T) {
	s := newStore(t, t.TempDir())
	ctx := context.Background()
	out := panicOutcome("hint scope underflow at pc N")

	fresh, err := s.Record(ctx, []byte("input-a"), out)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !fresh {
		t.Fatal("first hit of a signature should be a new finding")
	}

	for i := 0; i < 2; i++ {
		fresh, err = s.Record(ctx, []byte("input-b"), out)
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if fresh {
			t.Fatal("repeat hit of a signature should be a duplicate")
		}
	}

	fresh, err = s.Record(ctx, []byte("input-c"), panicOutcome("ap grew past segment end at pc N"))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !fresh {
		t.Fatal("distinct signature should be a new finding")
	}

	findings, duplicates := s.Counts()
	if findings != 2 || duplicates != 2 {
		t.Fatalf("counts = (%d, %d), want (2, 2)", findings, duplicates)
	}
}

func TestRecordWritesInputAndMetadata(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	out := panicOutcome("boom")

	if _, err := s.Record(context.Background(), []byte{0xde, 0xad}, out); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	hash := out.Signature.Hash()
	input, err := os.ReadFile(s.InputPath(hash))
	if err != nil {
		t.Fatalf("crash input missing: %v", err)
	}
	if len(input) != 2 || input[0] != 0xde {
		t.Fatalf("input = %x, want original bytes", input)
	}

	raw, err := os.ReadFile(s.InputPath(hash) + ".json")
	if err != nil {
		t.Fatalf("metadata missing: %v", err)
	}
	var f Finding
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("metadata unparseable: %v", err)
	}
	if f.Signature != hash || f.Kind != "panic" || f.InputSize != 2 || f.WorkerID != "worker-1" {
		t.Fatalf("metadata = %+v, want populated finding", f)
	}
}

func TestLoadRebuildsSeenSet(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	out := panicOutcome("boom")
	if _, err := s.Record(context.Background(), []byte("x"), out); err != nil {
		t.Fatal(err)
	}

	reloaded := newStore(t, dir)
	fresh, err := reloaded.Record(context.Background(), []byte("y"), out)
	if err != nil {
		t.Fatal(err)
	}
	if fresh {
		t.Fatal("reloaded store should remember recorded signatures")
	}
}

func TestFlushPersistsDuplicateCounts(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	ctx := context.Background()
	out := panicOutcome("boom")

	if _, err := s.Record(ctx, []byte("a"), out); err != nil {
		t.Fatal(err)
	}
	s.Record(ctx, []byte("b"), out)
	s.Record(ctx, []byte("c"), out)
	s.Flush(ctx)

	reloaded := newStore(t, dir)
	findings, duplicates := reloaded.Counts()
	if findings != 1 || duplicates != 2 {
		t.Fatalf("counts after reload = (%d, %d), want (1, 2)", findings, duplicates)
	}
}

func TestSaveMinimized(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	out := panicOutcome("boom")
	if _, err := s.Record(context.Background(), []byte("original input"), out); err != nil {
		t.Fatal(err)
	}

	hash := out.Signature.Hash()
	if err := s.SaveMinimized(hash, []byte("tiny")); err != nil {
		t.Fatalf("SaveMinimized failed: %v", err)
	}
	data, err := os.ReadFile(s.InputPath(hash) + ".min")
	if err != nil {
		t.Fatalf("minimized input missing: %v", err)
	}
	if string(data) != "tiny" {
		t.Fatalf("minimized = %q, want %q", data, "tiny")
	}
}
