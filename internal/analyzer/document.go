package analyzer

import (
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Document records one source file's open state as known to the analyzer.
type Document struct {
	URI     DocumentURI
	Path    string
	Version int
	// Hash is an xxhash of the content last sent to the analyzer.
	Hash uint64
	// Stale is set when the watcher sees an external write; the next
	// command touching the file re-reads it and re-syncs if the hash
	// actually changed.
	Stale bool
}

// DocumentStore tracks open documents and detects on-disk changes behind the
// analyzer's back. A filesystem watcher flags externally modified files so
// hashing can be skipped for untouched ones.
type DocumentStore struct {
	mu      sync.Mutex
	docs    map[string]*Document // keyed by absolute path
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	done    chan struct{}
}

// NewDocumentStore creates a document store. The fsnotify watcher is
// optional: if it cannot be created the store falls back to hashing on
// every access.
func NewDocumentStore(logger *zap.Logger) *DocumentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DocumentStore{
		docs:   make(map[string]*Document),
		logger: logger,
		done:   make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("file watcher unavailable, falling back to per-command hashing", zap.Error(err))
		return s
	}
	s.watcher = watcher
	go s.watch()
	return s
}

// watch marks documents stale when their file changes on disk.
func (s *DocumentStore) watch() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.mu.Lock()
			if doc, exists := s.docs[ev.Name]; exists {
				doc.Stale = true
			}
			s.mu.Unlock()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// Close stops the watcher.
func (s *DocumentStore) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// SyncState describes what the session must do for a document before
// sending a command that references it.
type SyncState int

const (
	// SyncCurrent means the analyzer already has the latest content.
	SyncCurrent SyncState = iota
	// SyncOpen means the document must be opened (didOpen).
	SyncOpen
	// SyncChanged means the on-disk content moved past what the analyzer
	// has seen (didChange).
	SyncChanged
)

// Check reads the file and reports whether it needs opening, re-syncing, or
// nothing. For SyncCurrent the returned content is empty. The document table
// itself is only mutated by MarkOpen/MarkChanged once the corresponding
// notification has been sent.
func (s *DocumentStore) Check(path string) (SyncState, string, error) {
	s.mu.Lock()
	doc, exists := s.docs[path]
	stale := !exists || doc.Stale || s.watcher == nil
	s.mu.Unlock()

	if !stale {
		return SyncCurrent, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return SyncCurrent, "", err
	}

	if !exists {
		return SyncOpen, string(data), nil
	}

	if xxhash.Sum64(data) == doc.Hash {
		s.mu.Lock()
		doc.Stale = false
		s.mu.Unlock()
		return SyncCurrent, "", nil
	}
	return SyncChanged, string(data), nil
}

// MarkOpen records a document as open after didOpen was sent.
func (s *DocumentStore) MarkOpen(path, content string) *Document {
	doc := &Document{
		URI:     FilePathToURI(path),
		Path:    path,
		Version: 1,
		Hash:    xxhash.Sum64String(content),
	}

	s.mu.Lock()
	s.docs[path] = doc
	s.mu.Unlock()

	if s.watcher != nil {
		if err := s.watcher.Add(path); err != nil {
			s.logger.Debug("cannot watch document", zap.String("path", path), zap.Error(err))
		}
	}
	return doc
}

// MarkChanged bumps the version and hash after didChange was sent. It
// returns the new version, or 0 if the document is not open.
func (s *DocumentStore) MarkChanged(path, content string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[path]
	if !exists {
		return 0
	}
	doc.Version++
	doc.Hash = xxhash.Sum64String(content)
	doc.Stale = false
	return doc.Version
}

// Remove forgets a document after didClose was sent.
func (s *DocumentStore) Remove(path string) {
	s.mu.Lock()
	_, exists := s.docs[path]
	delete(s.docs, path)
	s.mu.Unlock()

	if exists && s.watcher != nil {
		_ = s.watcher.Remove(path)
	}
}

// Get returns a copy of the document record if open.
func (s *DocumentStore) Get(path string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, exists := s.docs[path]
	if !exists {
		return Document{}, false
	}
	return *doc, true
}

// IsOpen reports whether the document is open.
func (s *DocumentStore) IsOpen(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.docs[path]
	return exists
}

// Paths returns the paths of all open documents.
func (s *DocumentStore) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.docs))
	for path := range s.docs {
		paths = append(paths, path)
	}
	return paths
}
