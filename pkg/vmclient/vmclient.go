// Package vmclient is the harness's only window into the VM under test: a
// load-and-run entry point that reports success, a recognized error from the
// VM's own taxonomy, or an unrecognized fault, plus the coverage tokens the
// run produced. Nothing above this boundary inspects VM internals.
package vmclient

import "context"

type Status int

const (
	Success Status = iota
	RecognizedError
	UnrecognizedFault
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case RecognizedError:
		return "recognized_error"
	case UnrecognizedFault:
		return "unrecognized_fault"
	}
	return "unknown"
}

// Result is the outcome of one load-and-run invocation. ErrKind carries the
// VM's error family for recognized errors and a normalized fault class
// (signal name, exit code) for unrecognized faults.
type Result struct {
	Status   Status
	ErrKind  string
	Message  string
	Coverage []uint64
}

type Runner interface {
	// LoadAndRun executes one artifact. The returned error reports a
	// harness-side failure to invoke the VM at all; everything the VM
	// itself does, including dying, comes back as a Result.
	LoadAndRun(ctx context.Context, artifact []byte) (*Result, error)
}

// RecognizedKinds are the error families the VM reports when it rejects or
// aborts on bad input in a controlled way. Anything else is a fault.
var RecognizedKinds = []string{
	"program",
	"runner",
	"memory",
	"math",
	"trace",
	"deserialize",
}

func KnownKind(kind string) bool {
	for _, k := range RecognizedKinds {
		if k == kind {
			return true
		}
	}
	return false
}
