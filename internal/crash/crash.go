// Package crash records findings on disk, one input plus one metadata
// sidecar per unique signature. Re-hits of a known signature only bump a
// duplicate counter, flushed in batches on the stats interval. When a
// findings database is configured every finding is mirrored there too.
package crash

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"feltfuzz/internal/oracle"
	"feltfuzz/internal/utils"
	"feltfuzz/pkg/database"
)

// Finding is the metadata persisted next to each crashing input.
type Finding struct {
	Signature  string    `json:"signature"`
	Kind       string    `json:"kind"`
	Frame      string    `json:"frame"`
	Message    string    `json:"message"`
	InputSize  int       `json:"input_size"`
	WorkerID   string    `json:"worker_id"`
	FoundAt    time.Time `json:"found_at"`
	Duplicates int       `json:"duplicates"`
}

type Store struct {
	dir        string
	logger     *zap.Logger
	db         *gorm.DB
	campaignID string
	workerID   string

	mu      sync.Mutex
	seen    map[string]*Finding
	pending map[string]int
}

func NewStore(dir string, db *gorm.DB, campaignID, workerID string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		dir:        dir,
		logger:     logger.Named("crash"),
		db:         db,
		campaignID: campaignID,
		workerID:   workerID,
		seen:       make(map[string]*Finding),
		pending:    make(map[string]int),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create crash dir: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to scan crash dir: %w", err)
	}
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || utils.IsTempPath(name) || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("Failed to read finding metadata", zap.String("file", name), zap.Error(err))
			continue
		}
		var finding Finding
		if err := json.Unmarshal(data, &finding); err != nil {
			s.logger.Warn("Failed to parse finding metadata", zap.String("file", name), zap.Error(err))
			continue
		}
		s.seen[finding.Signature] = &finding
	}
	s.logger.Info("Crash store loaded", zap.Int("findings", len(s.seen)))
	return nil
}

// Record persists one crash outcome. The first hit of a signature commits
// the input and its metadata and reports true; later hits of the same
// signature only bump the duplicate counter.
func (s *Store) Record(ctx context.Context, input []byte, out oracle.Outcome) (bool, error) {
	hash := out.Signature.Hash()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[hash]; ok {
		s.pending[hash]++
		return false, nil
	}

	finding := &Finding{
		Signature: hash,
		Kind:      out.Signature.Kind,
		Frame:     out.Signature.Frame,
		Message:   out.Message,
		InputSize: len(input),
		WorkerID:  s.workerID,
		FoundAt:   time.Now().UTC(),
	}
	if err := utils.WriteFileAtomic(s.InputPath(hash), input, 0o644); err != nil {
		return false, fmt.Errorf("failed to write crash input: %w", err)
	}
	if err := s.writeMetadata(finding); err != nil {
		return false, err
	}
	s.seen[hash] = finding

	if err := database.AddCrashFindings(ctx, s.db, []*database.CrashFinding{
		database.NewCrashFinding(s.campaignID, s.workerID, hash, finding.Kind, finding.Frame, finding.Message, finding.InputSize, 0),
	}); err != nil {
		s.logger.Warn("Failed to mirror finding to database", zap.Error(err))
	}
	return true, nil
}

// Flush folds pending duplicate counts into the metadata files and the
// database. Entries that fail to write stay pending for the next flush.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return
	}

	var mirrored []*database.CrashFinding
	for hash, n := range s.pending {
		finding, ok := s.seen[hash]
		if !ok {
			delete(s.pending, hash)
			continue
		}
		finding.Duplicates += n
		if err := s.writeMetadata(finding); err != nil {
			finding.Duplicates -= n
			s.logger.Warn("Failed to update finding metadata", zap.String("signature", hash), zap.Error(err))
			continue
		}
		mirrored = append(mirrored, database.NewCrashFinding(s.campaignID, finding.WorkerID, hash, finding.Kind, finding.Frame, finding.Message, finding.InputSize, finding.Duplicates))
		delete(s.pending, hash)
	}
	if err := database.AddCrashFindings(ctx, s.db, mirrored); err != nil {
		s.logger.Warn("Failed to mirror duplicate counts to database", zap.Error(err))
	}
}

func (s *Store) writeMetadata(finding *Finding) error {
	data, err := json.MarshalIndent(finding, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal finding: %w", err)
	}
	return utils.WriteFileAtomic(s.InputPath(finding.Signature)+".json", data, 0o644)
}

// InputPath returns where the crashing input for a signature hash lives.
func (s *Store) InputPath(hash string) string {
	return filepath.Join(s.dir, "crash-"+hash)
}

// SaveMinimized stores the minimizer's reduced input next to the original.
func (s *Store) SaveMinimized(hash string, input []byte) error {
	return utils.WriteFileAtomic(s.InputPath(hash)+".min", input, 0o644)
}

// Counts reports unique findings and total duplicate hits, pending included.
func (s *Store) Counts() (findings, duplicates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	findings = len(s.seen)
	for _, f := range s.seen {
		duplicates += f.Duplicates
	}
	for _, n := range s.pending {
		duplicates += n
	}
	return findings, duplicates
}
