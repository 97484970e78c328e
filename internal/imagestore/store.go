// Package imagestore holds the bloom-filtered cache of image filenames a
// node is currently responsible for: a 64-bit, three-hash bloom filter
// guarding a capped array of exact records.
package imagestore

import (
	"bufio"
	"crypto/sha1"
	"fmt"
	"os"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
)

// MaxRecords is the hard cap on the number of image records a store may
// hold at once.
const MaxRecords = 1024

// QueryResult is the outcome of a Query.
type QueryResult int

const (
	// Miss means at least one of the three bloom bits is unset: the
	// image is definitely not present.
	Miss QueryResult = iota
	// FalsePositive means all three bloom bits are set but no record
	// matches the (id, name) pair.
	FalsePositive
	// Hit means a matching record was found.
	Hit
)

func (r QueryResult) String() string {
	switch r {
	case Miss:
		return "miss"
	case FalsePositive:
		return "false_positive"
	case Hit:
		return "hit"
	default:
		return "unknown"
	}
}

// Record is a single cached image filename and its folded identifier.
type Record struct {
	ID   domain.ID
	Name string
}

// Store is the bloom-filtered local image cache. All mutation is expected
// to come from the node's single event-loop goroutine.
type Store struct {
	logger       logger.Logger
	manifestPath string
	imagesDir    string

	bloom   uint64
	records []Record
}

// New creates an empty store backed by the given manifest file and
// images directory.
func New(manifestPath, imagesDir string, opts ...Option) *Store {
	s := &Store{
		logger:       &logger.NopLogger{},
		manifestPath: manifestPath,
		imagesDir:    imagesDir,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// bloomBits returns the three bit positions (mod 64) a name's SHA-1 digest
// maps onto the bloom filter, taken from three distinct bytes of the
// digest, mirroring the three-hash-position bloom filter design.
func bloomBits(name string) [3]uint {
	sum := sha1.Sum([]byte(name))
	return [3]uint{
		uint(sum[0]) % 64,
		uint(sum[7]) % 64,
		uint(sum[15]) % 64,
	}
}

// Load clears the filter and record set, then rescans the manifest file,
// keeping only names whose folded id falls in (predID, selfID] on the
// ring, up to MaxRecords.
func (s *Store) Load(predID, selfID domain.ID) error {
	s.bloom = 0
	s.records = s.records[:0]

	f, err := os.Open(s.manifestPath)
	if err != nil {
		return fmt.Errorf("imagestore: open manifest: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(s.records) < MaxRecords {
		name := scanner.Text()
		if name == "" {
			continue
		}
		id := domain.DeriveImageID(name)
		if domain.InRange(id, predID, selfID) {
			s.store(id, name)
		}
	}
	s.logger.Debug("imagestore: loaded",
		logger.F("pred", predID.String()),
		logger.F("self", selfID.String()),
		logger.F("count", len(s.records)),
	)
	return scanner.Err()
}

func (s *Store) store(id domain.ID, name string) {
	s.records = append(s.records, Record{ID: id, Name: name})
	bits := bloomBits(name)
	s.bloom |= 1 << bits[0]
	s.bloom |= 1 << bits[1]
	s.bloom |= 1 << bits[2]
}

// Cache registers name in the store so subsequent queries hit locally.
// It assumes the file already exists on disk under the images directory.
// A no-op when the store is already at MaxRecords.
func (s *Store) Cache(name string) {
	if len(s.records) >= MaxRecords {
		s.logger.Warn("imagestore: cache full, dropping", logger.F("name", name))
		return
	}
	id := domain.DeriveImageID(name)
	s.store(id, name)
	s.logger.Debug("imagestore: cached", logger.F("name", name), logger.F("id", id.String()))
}

// Query classifies name against the bloom filter and, on a filter hit,
// the exact record list.
func (s *Store) Query(name string) QueryResult {
	bits := bloomBits(name)
	if s.bloom&(1<<bits[0]) == 0 || s.bloom&(1<<bits[1]) == 0 || s.bloom&(1<<bits[2]) == 0 {
		return Miss
	}
	id := domain.DeriveImageID(name)
	for _, r := range s.records {
		if r.ID == id && r.Name == name {
			return Hit
		}
	}
	return FalsePositive
}

// ImagePath returns the on-disk path of a cached image file.
func (s *Store) ImagePath(name string) string {
	return s.imagesDir + string(os.PathSeparator) + name
}

// Len returns the current number of records, for diagnostics.
func (s *Store) Len() int { return len(s.records) }
