package vmclient

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// Subprocess runs each artifact in a fresh VM process, so a crash can never
// poison harness state. Wire contract: the binary receives --program and
// --coverage-out paths; exit 0 means success with coverage tokens written
// one hex value per line, exit 1 with "error: <kind>: <message>" on stderr
// means a recognized rejection, anything else is a fault.
type Subprocess struct {
	logger *zap.Logger
	binary string
}

func NewSubprocess(binary string, logger *zap.Logger) *Subprocess {
	return &Subprocess{
		logger.Named("vm"),
		binary,
	}
}

func (r *Subprocess) LoadAndRun(ctx context.Context, artifact []byte) (*Result, error) {
	dir, err := os.MkdirTemp("", "feltfuzz-run-")
	if err != nil {
		return nil, fmt.Errorf("failed to create run dir: %w", err)
	}
	defer os.RemoveAll(dir)

	programPath := filepath.Join(dir, "program.json")
	coveragePath := filepath.Join(dir, "coverage.out")
	if err := os.WriteFile(programPath, artifact, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.binary, "--program", programPath, "--coverage-out", coveragePath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	coverage := readCoverage(coveragePath)

	if runErr == nil {
		return &Result{Status: Success, Coverage: coverage}, nil
	}
	if ctx.Err() != nil {
		// the process was killed by the deadline; the oracle classifies this
		return nil, ctx.Err()
	}

	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return nil, fmt.Errorf("failed to run vm: %w", runErr)
	}

	head := firstLine(stderr.String())
	if exitErr.ExitCode() == 1 {
		if kind, msg, ok := parseErrorLine(head); ok && KnownKind(kind) {
			return &Result{Status: RecognizedError, ErrKind: kind, Message: msg, Coverage: coverage}, nil
		}
		r.logger.Debug("vm exited 1 with unparseable error", zap.String("stderr", head))
		return &Result{Status: UnrecognizedFault, ErrKind: "exit:1", Message: head, Coverage: coverage}, nil
	}

	return &Result{
		Status:   UnrecognizedFault,
		ErrKind:  faultKind(exitErr),
		Message:  head,
		Coverage: coverage,
	}, nil
}

// parseErrorLine splits the VM's "error: <kind>: <message>" stderr line.
func parseErrorLine(line string) (kind, msg string, ok bool) {
	rest, found := strings.CutPrefix(line, "error: ")
	if !found {
		return "", "", false
	}
	kind, msg, found = strings.Cut(rest, ": ")
	if !found || kind == "" {
		return "", "", false
	}
	return kind, msg, true
}

func faultKind(exitErr *exec.ExitError) string {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return "signal:" + ws.Signal().String()
	}
	return "exit:" + strconv.Itoa(exitErr.ExitCode())
}

// readCoverage parses the coverage sidecar, one hex token per line.
// Malformed lines are skipped; a missing file just means no coverage.
func readCoverage(path string) []uint64 {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var tokens []uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		t, err := strconv.ParseUint(line, 16, 64)
		if err != nil {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const maxLen = 160
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
