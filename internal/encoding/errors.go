package encoding

import "fmt"

// GeneratorInternalError reports that a structurally invalid program reached
// the encoder. The generator guarantees its output validates, so this only
// fires for hand-built programs or a harness bug, and the worker treats it
// as fatal.
type GeneratorInternalError struct {
	Err error
}

func (e *GeneratorInternalError) Error() string {
	return fmt.Sprintf("program construction invariant violated: %v", e.Err)
}

func (e *GeneratorInternalError) Unwrap() error { return e.Err }

// EncodeError reports a serialization failure on a structurally valid
// program. This must never happen for generator output; it is a harness
// bug, never a VM finding.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode program: %v", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// MalformedArtifactError classifies every way an artifact can fail to
// decode. It is an expected negative outcome for externally supplied or
// minimized bytes and is never escalated as a crash.
type MalformedArtifactError struct {
	Reason string
}

func (e *MalformedArtifactError) Error() string {
	return "malformed artifact: " + e.Reason
}

func malformedf(format string, args ...any) error {
	return &MalformedArtifactError{Reason: fmt.Sprintf(format, args...)}
}
