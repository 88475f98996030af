package minimize

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"feltfuzz/internal/oracle"
)

func markerPipeline(calls *int) Pipeline {
	return func(_ context.Context, input []byte) (oracle.Outcome, error) {
		if calls != nil {
			*calls++
		}
		if bytes.IndexByte(input, 0x42) >= 0 {
			return oracle.Outcome{Kind: oracle.Crash, Signature: oracle.Signature{Kind: "panic", Frame: "marker a"}}, nil
		}
		if bytes.IndexByte(input, 0x43) >= 0 {
			return oracle.Outcome{Kind: oracle.Crash, Signature: oracle.Signature{Kind: "panic", Frame: "marker b"}}, nil
		}
		return oracle.Outcome{Kind: oracle.Completed}, nil
	}
}

func TestMinimizeShrinksToMarker(t *testing.T) {
	m := New(markerPipeline(nil), 4096, zap.NewNop())

	input := bytes.Repeat([]byte{0x11}, 100)
	input[57] = 0x42
	got, err := m.Minimize(context.Background(), input)
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0x42}) {
		t.Fatalf("minimized = %x, want just the marker byte", got)
	}
}

func TestMinimizePreservesSignature(t *testing.T) {
	m := New(markerPipeline(nil), 4096, zap.NewNop())

	input := append(bytes.Repeat([]byte{0x11}, 20), 0x43, 0x42, 0x11, 0x11)
	got, err := m.Minimize(context.Background(), input)
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0x42}) {
		t.Fatalf("minimized = %x, want the byte reproducing the original signature", got)
	}
}

func TestMinimizeIdempotent(t *testing.T) {
	m := New(markerPipeline(nil), 4096, zap.NewNop())

	once, err := m.Minimize(context.Background(), []byte{0x42})
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}
	if !bytes.Equal(once, []byte{0x42}) {
		t.Fatalf("fixed point moved: %x", once)
	}
}

func TestMinimizeRejectsNonCrashingInput(t *testing.T) {
	m := New(markerPipeline(nil), 16, zap.NewNop())
	if _, err := m.Minimize(context.Background(), []byte{0x11, 0x11}); err == nil {
		t.Fatal("expected an error for an input that does not crash")
	}
}

func TestMinimizeSurfacesPipelineError(t *testing.T) {
	broken := func(context.Context, []byte) (oracle.Outcome, error) {
		return oracle.Outcome{}, errors.New("vm unavailable")
	}
	m := New(broken, 16, zap.NewNop())
	if _, err := m.Minimize(context.Background(), []byte{0x42}); err == nil {
		t.Fatal("expected the reproduction error to surface")
	}
}

func TestMinimizeHonorsBudget(t *testing.T) {
	calls := 0
	m := New(markerPipeline(&calls), 10, zap.NewNop())

	input := bytes.Repeat([]byte{0x11}, 64)
	input[33] = 0x42
	got, err := m.Minimize(context.Background(), input)
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}
	if calls > 11 {
		t.Fatalf("pipeline ran %d times, budget allows 11 including reproduction", calls)
	}
	if bytes.IndexByte(got, 0x42) < 0 {
		t.Fatal("result lost the crashing marker")
	}
}

func TestMinimizeEmptyCrasher(t *testing.T) {
	always := func(context.Context, []byte) (oracle.Outcome, error) {
		return oracle.Outcome{Kind: oracle.Crash, Signature: oracle.Signature{Kind: "timeout"}}, nil
	}
	calls := 0
	counting := func(ctx context.Context, in []byte) (oracle.Outcome, error) {
		calls++
		return always(ctx, in)
	}
	m := New(counting, 64, zap.NewNop())
	got, err := m.Minimize(context.Background(), nil)
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("minimized = %x, want empty", got)
	}
	if calls != 1 {
		t.Fatalf("pipeline ran %d times for an empty input, want reproduction only", calls)
	}
}
