// Package capture keeps a copy of the raw bytes the emulator receives so a
// session can be inspected or replayed later.
package capture

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	indexFile = "index.json"
	// LastFile always holds the most recent payload
	LastFile = "last_escpos_receive.bin"
)

var (
	// ErrNotFound is returned for an unknown capture id
	ErrNotFound = errors.New("capture not found")
	// ErrCorrupt is returned when a payload no longer matches its digest
	ErrCorrupt = errors.New("capture does not match its digest")
)

// Entry describes one captured payload
type Entry struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Size       int       `json:"size"`
	MD5        string    `json:"md5"`
	ReceivedAt time.Time `json:"received_at"`
}

// Sink accepts replayed bytes. printer.FeedQueue implements it.
type Sink interface {
	Enqueue(source string, data []byte) (string, error)
}

// Store persists payloads as <id>.bin files with a JSON index
type Store struct {
	dir        string
	maxEntries int
	logger     *zap.Logger

	entries []*Entry
	mu      sync.RWMutex
}

// New opens or creates a store in dir. maxEntries bounds how many payloads
// are kept; 0 keeps all of them.
func New(dir string, maxEntries int, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}

	s := &Store{
		dir:        dir,
		maxEntries: maxEntries,
		logger:     logger.With(zap.String("component", "capture")),
		entries:    make([]*Entry, 0),
	}

	if err := s.load(); err != nil {
		// A missing index just means nothing was captured yet
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load capture index: %w", err)
		}
	}

	return s, nil
}

// Dir returns the directory the store writes to
func (s *Store) Dir() string { return s.dir }

// Save writes data to disk and returns its entry
func (s *Store) Save(source string, data []byte) (Entry, error) {
	entry := &Entry{
		ID:         uuid.New().String(),
		Source:     source,
		Size:       len(data),
		MD5:        digest(data),
		ReceivedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.payloadPath(entry.ID), data, 0o644); err != nil {
		return Entry{}, fmt.Errorf("failed to write capture: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, LastFile), data, 0o644); err != nil {
		return Entry{}, fmt.Errorf("failed to write last capture: %w", err)
	}

	s.entries = append(s.entries, entry)
	s.trimLocked()

	if err := s.save(); err != nil {
		// the payload is on disk; the index is rewritten on the next save
		s.logger.Warn("Failed to save capture index", zap.Error(err))
	}

	s.logger.Debug("Captured payload",
		zap.String("capture_id", entry.ID),
		zap.String("source", source),
		zap.Int("bytes", len(data)),
	)

	return *entry, nil
}

// Get returns an entry by id
func (s *Store) Get(id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.ID == id {
			return *e, nil
		}
	}
	return Entry{}, ErrNotFound
}

// Load reads a payload back and checks it against its digest
func (s *Store) Load(id string) ([]byte, error) {
	entry, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.payloadPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read capture %s: %w", id, err)
	}
	if digest(data) != entry.MD5 {
		return nil, fmt.Errorf("%s: %w", id, ErrCorrupt)
	}

	return data, nil
}

// Last reads the most recent payload
func (s *Store) Last() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, LastFile))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

// List returns every entry, oldest first
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}

// Remove deletes a payload and its entry
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			os.Remove(s.payloadPath(id))
			if err := s.save(); err != nil {
				s.logger.Warn("Failed to save capture index", zap.Error(err))
			}
			return true
		}
	}
	return false
}

// Replay feeds a stored payload to sink and returns the job id
func (s *Store) Replay(id string, sink Sink) (string, error) {
	data, err := s.Load(id)
	if err != nil {
		return "", err
	}

	jobID, err := sink.Enqueue("replay:"+id, data)
	if err != nil {
		return "", fmt.Errorf("failed to replay capture %s: %w", id, err)
	}
	return jobID, nil
}

func (s *Store) payloadPath(id string) string {
	return filepath.Join(s.dir, id+".bin")
}

// trimLocked removes the oldest payloads beyond maxEntries
func (s *Store) trimLocked() {
	if s.maxEntries <= 0 {
		return
	}
	for len(s.entries) > s.maxEntries {
		os.Remove(s.payloadPath(s.entries[0].ID))
		s.entries = s.entries[1:]
	}
}

func (s *Store) load() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &s.entries)
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(s.dir, indexFile), data, 0o644)
}

func digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
