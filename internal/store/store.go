// Package store implements the device-local content store: one JSON
// document file per brochure plus a small dirty index, all written
// atomically.
//
// The store is the single writer of on-device documents. Writes to the
// same document id are serialized with a per-id lock so a user edit and
// a sync-triggered pull cannot race; writes to different ids proceed
// concurrently.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/repkit/brochuresync/internal/content"
	"github.com/repkit/brochuresync/internal/syncerr"
)

// indexFile tracks which documents carry unpushed edits so that
// ListModified never has to parse document bodies.
const indexFile = "modified.json"

// Store persists content documents under a single directory.
type Store struct {
	dir    string
	logger *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	dirty map[string]bool
}

// Open creates the documents directory if needed and loads the dirty
// index, rebuilding it from document flags when the index file is
// missing or unreadable.
func Open(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create documents directory: %w", err)
	}

	s := &Store{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
		dirty:  make(map[string]bool),
	}

	if err := s.loadIndex(); err != nil {
		s.logger.Printf("Rebuilding dirty index: %v", err)
		if err := s.rebuildIndex(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dir returns the documents directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Load reads one document. A missing file reports syncerr.ErrNotFound;
// an unreadable or unparsable file reports syncerr.ErrStorageCorrupt.
// Corruption is never masked as an empty document, because the engine
// would then push emptiness over the server copy.
func (s *Store) Load(id string) (*content.Document, error) {
	doc, err := content.Read(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("document %s: %w", id, syncerr.ErrNotFound)
		}
		return nil, fmt.Errorf("document %s: %v: %w", id, err, syncerr.ErrStorageCorrupt)
	}
	return doc, nil
}

// Save persists the document and records its dirty state in the index.
// Callers that mutated content should have done so through the
// content.Document methods, which already stamped LastModified.
func (s *Store) Save(doc *content.Document) error {
	l := s.lockFor(doc.ID)
	l.Lock()
	defer l.Unlock()
	return s.saveLocked(doc)
}

func (s *Store) saveLocked(doc *content.Document) error {
	if err := content.Write(s.dir, doc); err != nil {
		return err
	}
	s.setDirty(doc.ID, doc.NeedsSync)
	return nil
}

// Apply runs a mutation against the document under its lock and
// persists the result. If fn returns an error nothing is written.
// Returns the updated document.
func (s *Store) Apply(id string, fn func(*content.Document) error) (*content.Document, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	doc, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	if err := s.saveLocked(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// MarkModified flags the document as carrying unpushed edits without
// changing its content or reconciliation timestamp.
func (s *Store) MarkModified(id string) error {
	_, err := s.Apply(id, func(doc *content.Document) error {
		doc.Modified = true
		doc.NeedsSync = true
		return nil
	})
	return err
}

// MarkSynced clears the dirty flags and adopts the server-returned
// timestamp after a confirmed successful push. pushedTS is the
// LastModified of the snapshot that was uploaded: if the stored
// document has moved past it, an edit landed while the push was in
// flight, the upload did not contain it, and the document stays dirty
// so the next pass retries. A failed write also leaves the document
// dirty.
func (s *Store) MarkSynced(id string, pushedTS, serverTS time.Time) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	doc, err := s.Load(id)
	if err != nil {
		return err
	}
	if !doc.LastModified.Equal(pushedTS) {
		s.logger.Printf("Document %s edited during push, keeping it dirty", id)
		return nil
	}
	doc.Modified = false
	doc.NeedsSync = false
	doc.LastModified = serverTS
	return s.saveLocked(doc)
}

// ReplaceFromRemote installs a server copy of the document, creating it
// locally if this device has never held it. The document adopts the
// server timestamp and is clean afterwards.
func (s *Store) ReplaceFromRemote(id, title string, slides []content.Slide, groups []content.Group, ts time.Time) (*content.Document, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	doc, err := s.Load(id)
	if err != nil {
		if !errors.Is(err, syncerr.ErrNotFound) {
			return nil, err
		}
		doc = content.New(id, title)
	}
	if title != "" {
		doc.Title = title
	}
	doc.ReplaceContent(slides, groups, ts)
	if err := s.saveLocked(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ListModified returns the ids of documents with unpushed edits, from
// the index alone.
func (s *Store) ListModified() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.dirty))
	for id, d := range s.dirty {
		if d {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// List returns the ids of all documents held locally.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || name == indexFile {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Exists reports whether a document file is present locally.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Delete removes the document file and its index entry. Deleting a
// document that does not exist is not an error.
func (s *Store) Delete(id string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	s.setDirty(id, false)
	return nil
}

// setDirty updates the in-memory index and persists it. Index write
// failures are logged, not fatal: the index can always be rebuilt from
// document flags.
func (s *Store) setDirty(id string, dirty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dirty {
		s.dirty[id] = true
	} else {
		delete(s.dirty, id)
	}
	if err := s.writeIndexLocked(); err != nil {
		s.logger.Printf("Warning: failed to write dirty index: %v", err)
	}
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read dirty index: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("failed to parse dirty index: %w", err)
	}
	for _, id := range ids {
		s.dirty[id] = true
	}
	return nil
}

// rebuildIndex recovers the dirty set by reading every document's
// flags. Used when the index file is missing or corrupt.
func (s *Store) rebuildIndex() error {
	docs, err := content.ReadAll(s.dir)
	if err != nil {
		return fmt.Errorf("failed to rebuild dirty index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = make(map[string]bool)
	for _, doc := range docs {
		if doc.NeedsSync {
			s.dirty[doc.ID] = true
		}
	}
	return s.writeIndexLocked()
}

func (s *Store) writeIndexLocked() error {
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, indexFile)
	tmp, err := os.CreateTemp(s.dir, indexFile+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
