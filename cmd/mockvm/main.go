package main

// the reference VM behind the subprocess wire contract: exit 0 with
// coverage tokens on success, exit 1 with "error: <kind>: <message>" on a
// recognized rejection, and an unhandled panic for everything else

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"feltfuzz/pkg/vmclient"
)

func main() {
	program := flag.String("program", "", "path to the program artifact")
	coverageOut := flag.String("coverage-out", "", "where to write coverage tokens, one hex value per line")
	gas := flag.Int("gas", 0, "step budget, 0 for the default")
	flag.Parse()

	if *program == "" {
		fmt.Fprintln(os.Stderr, "error: runner: missing --program")
		os.Exit(1)
	}
	artifact, err := os.ReadFile(*program)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: runner: %v\n", err)
		os.Exit(1)
	}

	vm := &vmclient.Mock{Gas: *gas}
	res, err := vm.LoadAndRun(context.Background(), artifact)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: runner: %v\n", err)
		os.Exit(1)
	}

	writeCoverage(*coverageOut, res.Coverage)

	switch res.Status {
	case vmclient.Success:
	case vmclient.RecognizedError:
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", res.ErrKind, res.Message)
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, res.Message)
		os.Exit(3)
	}
}

func writeCoverage(path string, tokens []uint64) {
	if path == "" || len(tokens) == 0 {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot write coverage: %v\n", err)
		return
	}
	defer f.Close()
	for _, t := range tokens {
		fmt.Fprintln(f, strconv.FormatUint(t, 16))
	}
}
