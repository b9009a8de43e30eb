package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/repkit/brochuresync/internal/content"
	"github.com/repkit/brochuresync/internal/syncerr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir(), testLogger(t))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return s
}

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(os.Stderr, "[test] ", 0)
}

func seedDoc(t *testing.T, s *Store, id string) *content.Document {
	t.Helper()

	doc := content.New(id, "Deck "+id)
	doc.AddSlide(content.Slide{ID: id + "-s1", ImageRef: "1.png"})
	doc.Modified = false
	doc.NeedsSync = false
	if err := s.Save(doc); err != nil {
		t.Fatalf("failed to seed document: %v", err)
	}
	return doc
}

func TestLoadMissingReportsNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Load("nope")
	if !errors.Is(err, syncerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadCorruptReportsCorrupt(t *testing.T) {
	s := openTestStore(t)
	if err := os.WriteFile(filepath.Join(s.Dir(), "bad.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load("bad")
	if !errors.Is(err, syncerr.ErrStorageCorrupt) {
		t.Errorf("expected ErrStorageCorrupt, got %v", err)
	}
}

func TestMarkModifiedAndListModified(t *testing.T) {
	s := openTestStore(t)
	seedDoc(t, s, "a")
	seedDoc(t, s, "b")

	if err := s.MarkModified("a"); err != nil {
		t.Fatalf("MarkModified failed: %v", err)
	}

	got := s.ListModified()
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("ListModified = %v, want [a]", got)
	}

	doc, err := s.Load("a")
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Modified || !doc.NeedsSync {
		t.Error("flags not persisted")
	}
}

func TestMarkModifiedDoesNotAdvanceTimestamp(t *testing.T) {
	s := openTestStore(t)
	doc := seedDoc(t, s, "a")
	before := doc.LastModified

	if err := s.MarkModified("a"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load("a")
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastModified.Equal(before) {
		t.Errorf("MarkModified moved LastModified from %v to %v", before, got.LastModified)
	}
}

func TestMarkSyncedClearsFlagsAndAdoptsTimestamp(t *testing.T) {
	s := openTestStore(t)
	seeded := seedDoc(t, s, "a")
	if err := s.MarkModified("a"); err != nil {
		t.Fatal(err)
	}

	serverTS := time.Now().Add(3 * time.Second).Truncate(time.Millisecond)
	if err := s.MarkSynced("a", seeded.LastModified, serverTS); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	doc, err := s.Load("a")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Modified || doc.NeedsSync {
		t.Error("flags not cleared")
	}
	if !doc.LastModified.Equal(serverTS) {
		t.Errorf("LastModified = %v, want %v", doc.LastModified, serverTS)
	}
	if got := s.ListModified(); len(got) != 0 {
		t.Errorf("ListModified = %v, want empty", got)
	}
}

func TestMarkSyncedKeepsDirtyWhenEditedSinceSnapshot(t *testing.T) {
	s := openTestStore(t)
	seeded := seedDoc(t, s, "a")

	// The document moves past the snapshot that was uploaded.
	if _, err := s.Apply("a", func(doc *content.Document) error {
		doc.AddSlide(content.Slide{ID: "late", ImageRef: "late.png"})
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	serverTS := time.Now().Add(3 * time.Second)
	if err := s.MarkSynced("a", seeded.LastModified, serverTS); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	doc, err := s.Load("a")
	if err != nil {
		t.Fatal(err)
	}
	if !doc.NeedsSync {
		t.Error("document marked clean although the upload predates the edit")
	}
	if doc.LastModified.Equal(serverTS) {
		t.Error("server timestamp adopted over a newer local edit")
	}
	if got := s.ListModified(); len(got) != 1 || got[0] != "a" {
		t.Errorf("ListModified = %v, want [a]", got)
	}
}

func TestApplyPersistsMutation(t *testing.T) {
	s := openTestStore(t)
	seedDoc(t, s, "a")

	_, err := s.Apply("a", func(doc *content.Document) error {
		doc.AddSlide(content.Slide{ID: "new", ImageRef: "n.png"})
		return nil
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	doc, err := s.Load("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Slides) != 2 {
		t.Errorf("expected 2 slides, got %d", len(doc.Slides))
	}
	if !doc.NeedsSync {
		t.Error("edit did not dirty the document")
	}
	if got := s.ListModified(); len(got) != 1 || got[0] != "a" {
		t.Errorf("ListModified = %v", got)
	}
}

func TestApplyErrorWritesNothing(t *testing.T) {
	s := openTestStore(t)
	seedDoc(t, s, "a")

	_, err := s.Apply("a", func(doc *content.Document) error {
		doc.AddSlide(content.Slide{ID: "new", ImageRef: "n.png"})
		return fmt.Errorf("edit rejected")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	doc, err := s.Load("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Slides) != 1 {
		t.Errorf("rejected edit was persisted: %d slides", len(doc.Slides))
	}
}

func TestReplaceFromRemoteCreatesUnknownDocument(t *testing.T) {
	s := openTestStore(t)
	ts := time.Now().Truncate(time.Millisecond)

	doc, err := s.ReplaceFromRemote("new-doc", "Server Deck",
		[]content.Slide{{ID: "r1", ImageRef: "r1.png"}}, nil, ts)
	if err != nil {
		t.Fatalf("ReplaceFromRemote failed: %v", err)
	}
	if doc.NeedsSync {
		t.Error("pulled document must be clean")
	}
	if !doc.LastModified.Equal(ts) {
		t.Errorf("LastModified = %v, want %v", doc.LastModified, ts)
	}
	if !s.Exists("new-doc") {
		t.Error("document not persisted")
	}
}

func TestIndexRebuildFromDocumentFlags(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	seedDoc(t, s, "a")
	if err := s.MarkModified("a"); err != nil {
		t.Fatal(err)
	}

	// Corrupt the index; a fresh open must recover from the flags.
	if err := os.WriteFile(filepath.Join(dir, indexFile), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dir, testLogger(t))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got := s2.ListModified()
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("rebuilt index = %v, want [a]", got)
	}
}

func TestConcurrentApplySameDocument(t *testing.T) {
	s := openTestStore(t)
	seedDoc(t, s, "a")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Apply("a", func(doc *content.Document) error {
				doc.AddSlide(content.Slide{ID: fmt.Sprintf("c%d", n), ImageRef: "x.png"})
				return nil
			})
			if err != nil {
				t.Errorf("Apply failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	doc, err := s.Load("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Slides) != 21 {
		t.Errorf("expected 21 slides, got %d", len(doc.Slides))
	}
	if err := doc.Validate(); err != nil {
		t.Errorf("document invalid after concurrent edits: %v", err)
	}
}

func TestDeleteRemovesDocumentAndIndexEntry(t *testing.T) {
	s := openTestStore(t)
	seedDoc(t, s, "a")
	if err := s.MarkModified("a"); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.Exists("a") {
		t.Error("document still present")
	}
	if got := s.ListModified(); len(got) != 0 {
		t.Errorf("ListModified = %v, want empty", got)
	}

	// Deleting again is a no-op.
	if err := s.Delete("a"); err != nil {
		t.Errorf("second delete errored: %v", err)
	}
}
