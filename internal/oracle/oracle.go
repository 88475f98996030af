// Package oracle drives a single artifact across the VM boundary and
// classifies what came back. Malformed artifacts and recognized VM errors
// are expected negatives; panics, hangs and unrecognized faults are
// findings, each carrying a stable signature for deduplication. The VM call
// runs behind a recover guard and a deadline, so nothing the VM does can
// take the harness down with it.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"feltfuzz/internal/encoding"
	"feltfuzz/pkg/vmclient"
)

type Kind int

const (
	Completed Kind = iota
	ExpectedError
	Crash
)

func (k Kind) String() string {
	switch k {
	case Completed:
		return "completed"
	case ExpectedError:
		return "expected_error"
	case Crash:
		return "crash"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the oracle's verdict on one artifact. Signature is set only
// for crashes; Coverage only when the VM got far enough to report any.
type Outcome struct {
	Kind      Kind
	ErrKind   string
	Message   string
	Signature Signature
	Coverage  []uint64
}

type Oracle struct {
	runner  vmclient.Runner
	timeout time.Duration
	logger  *zap.Logger
}

func New(runner vmclient.Runner, timeout time.Duration, logger *zap.Logger) *Oracle {
	return &Oracle{
		runner,
		timeout,
		logger.Named("oracle"),
	}
}

// Run executes one artifact and classifies the result. A returned error
// means the harness itself could not complete the attempt (infrastructure
// failure or shutdown), never a VM verdict; callers log it and move on.
func (o *Oracle) Run(ctx context.Context, artifact []byte) (Outcome, error) {
	if _, err := encoding.Decode(artifact); err != nil {
		var malformed *encoding.MalformedArtifactError
		if errors.As(err, &malformed) {
			return Outcome{Kind: ExpectedError, ErrKind: "malformed_artifact", Message: malformed.Reason}, nil
		}
		return Outcome{}, fmt.Errorf("failed to pre-check artifact: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	type vmReturn struct {
		res      *vmclient.Result
		err      error
		panicMsg string
		panicked bool
	}
	done := make(chan vmReturn, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- vmReturn{panicked: true, panicMsg: fmt.Sprint(r)}
			}
		}()
		res, err := o.runner.LoadAndRun(ctx, artifact)
		done <- vmReturn{res: res, err: err}
	}()

	var ret vmReturn
	select {
	case ret = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return o.timeoutOutcome(), nil
		}
		return Outcome{}, ctx.Err()
	}

	if ret.panicked {
		frame := normalizeFrame(ret.panicMsg)
		o.logger.Debug("vm panicked", zap.String("frame", frame))
		return Outcome{
			Kind:      Crash,
			ErrKind:   "panic",
			Message:   ret.panicMsg,
			Signature: Signature{"panic", frame},
		}, nil
	}
	if ret.err != nil {
		if errors.Is(ret.err, context.DeadlineExceeded) {
			return o.timeoutOutcome(), nil
		}
		if errors.Is(ret.err, context.Canceled) {
			return Outcome{}, ret.err
		}
		return Outcome{}, fmt.Errorf("failed to invoke vm: %w", ret.err)
	}

	res := ret.res
	switch res.Status {
	case vmclient.Success:
		return Outcome{Kind: Completed, Coverage: res.Coverage}, nil
	case vmclient.RecognizedError:
		if vmclient.KnownKind(res.ErrKind) {
			return Outcome{Kind: ExpectedError, ErrKind: res.ErrKind, Message: res.Message, Coverage: res.Coverage}, nil
		}
		return Outcome{
			Kind:      Crash,
			ErrKind:   "unrecognized_error",
			Message:   res.Message,
			Signature: Signature{"unrecognized_error", normalizeFrame(res.ErrKind + ": " + res.Message)},
			Coverage:  res.Coverage,
		}, nil
	default:
		return Outcome{
			Kind:      Crash,
			ErrKind:   res.ErrKind,
			Message:   res.Message,
			Signature: Signature{res.ErrKind, normalizeFrame(res.Message)},
			Coverage:  res.Coverage,
		}, nil
	}
}

func (o *Oracle) timeoutOutcome() Outcome {
	return Outcome{
		Kind:      Crash,
		ErrKind:   "timeout",
		Message:   fmt.Sprintf("no verdict within %s", o.timeout),
		Signature: Signature{Kind: "timeout"},
	}
}
