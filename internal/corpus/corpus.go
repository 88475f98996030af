// Package corpus keeps the shared pool of retained inputs on the local
// filesystem. Each seed is one file named by its content hash plus a .cov
// sidecar listing the coverage tokens its run produced, one hex value per
// line. Workers share a corpus directory through atomically renamed files
// only, so a reader never observes a partial seed.
package corpus

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"feltfuzz/internal/bytestream"
	"feltfuzz/internal/utils"
)

type Store struct {
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	entries  map[string][]byte
	order    []string
	frontier map[uint64]struct{}
}

func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		dir:      dir,
		logger:   logger.Named("corpus"),
		entries:  make(map[string][]byte),
		frontier: make(map[uint64]struct{}),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create corpus dir: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to scan corpus dir: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		if utils.IsTempPath(name) || strings.HasSuffix(name, ".cov") {
			continue
		}
		if _, err := s.merge(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warn("Failed to load corpus entry", zap.String("file", name), zap.Error(err))
		}
	}
	s.logger.Info("Corpus loaded", zap.Int("entries", len(s.entries)), zap.Int("frontier", len(s.frontier)))
	return nil
}

// Add decides whether an executed input earns a place in the corpus: it is
// retained when its coverage grows the frontier and discarded otherwise.
// The sidecar is committed before the seed itself, so whoever notices the
// seed appear will find its coverage already in place. The frontier only
// ever grows.
func (s *Store) Add(input []byte, coverage []uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grew := false
	for _, tok := range coverage {
		if _, ok := s.frontier[tok]; !ok {
			grew = true
			break
		}
	}
	if !grew {
		return false, nil
	}

	name := seedName(input)
	path := filepath.Join(s.dir, name)
	if err := utils.WriteFileAtomic(path+".cov", encodeTokens(coverage), 0o644); err != nil {
		return false, fmt.Errorf("failed to write coverage sidecar: %w", err)
	}
	if _, ok := s.entries[name]; !ok {
		if err := utils.WriteFileAtomic(path, input, 0o644); err != nil {
			return false, fmt.Errorf("failed to write seed: %w", err)
		}
		s.entries[name] = input
		s.order = append(s.order, name)
	}
	for _, tok := range coverage {
		s.frontier[tok] = struct{}{}
	}
	return true, nil
}

// MergeFile folds a seed another worker renamed into the corpus directory
// into the local view. Temp files and coverage sidecars are ignored; a
// sidecar is read alongside its seed.
func (s *Store) MergeFile(path string) (bool, error) {
	base := filepath.Base(path)
	if utils.IsTempPath(base) || strings.HasSuffix(base, ".cov") {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merge(path)
}

func (s *Store) merge(path string) (bool, error) {
	input, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read seed: %w", err)
	}
	name := seedName(input)
	if _, ok := s.entries[name]; ok {
		return false, nil
	}
	s.entries[name] = input
	s.order = append(s.order, name)
	for _, tok := range readTokens(path + ".cov") {
		s.frontier[tok] = struct{}{}
	}
	return true, nil
}

// PickSeed returns a copy of one retained input, chosen by the stream, or
// nil when the corpus is empty.
func (s *Store) PickSeed(stream *bytestream.Stream) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return nil
	}
	input := s.entries[s.order[stream.ChooseIndex(len(s.order))]]
	out := make([]byte, len(input))
	copy(out, input)
	return out
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) FrontierSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frontier)
}

func seedName(input []byte) string {
	return fmt.Sprintf("%x", md5.Sum(input))
}

func encodeTokens(tokens []uint64) []byte {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(strconv.FormatUint(t, 16))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func readTokens(path string) []uint64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var tokens []uint64
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
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
