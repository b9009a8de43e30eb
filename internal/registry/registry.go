// Package registry manages the per-user saved-brochure list and keeps
// it reconciled with the server's copy.
//
// The list is coarser-grained than per-document sync: it tracks which
// brochures the user wants available offline, with a catalog snapshot
// for display before content has ever been fetched. Content itself is
// pulled lazily on first view, not eagerly at login, to bound
// login-time network cost.
//
// Rename, remove, and access updates are dual-write: local first (the
// device is the source of truth), then the server; a failed server
// write is retried on the next registry sync.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/repkit/brochuresync/internal/content"
	"github.com/repkit/brochuresync/internal/gateway"
	"github.com/repkit/brochuresync/internal/store"
	"github.com/repkit/brochuresync/internal/syncerr"
)

// Record is one saved brochure on this device.
type Record struct {
	BrochureID     string    `json:"brochure_id"`
	CustomTitle    string    `json:"custom_title,omitempty"`
	SavedAt        time.Time `json:"saved_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// Catalog snapshot captured at save time, shown while the content
	// document has not been fetched yet.
	CatalogTitle    string `json:"catalog_title,omitempty"`
	CatalogCategory string `json:"catalog_category,omitempty"`
	CatalogThumbRef string `json:"catalog_thumb_ref,omitempty"`

	// ContentPending marks a server-known brochure whose content
	// document is not on this device yet; the first view fetches it.
	ContentPending bool `json:"content_pending,omitempty"`

	// ServerPending marks a local change (save/rename) the server has
	// not acknowledged; retried on the next registry sync.
	ServerPending bool `json:"server_pending,omitempty"`

	// Deleted marks a tombstone: removed locally, removal not yet
	// acknowledged by the server.
	Deleted bool `json:"deleted,omitempty"`
}

// Registry holds the saved list for one user.
type Registry struct {
	path   string
	userID string
	gw     gateway.Gateway
	store  *store.Store
	logger *log.Logger

	mu      sync.Mutex
	records map[string]*Record
}

// Open loads (or creates) the saved list at dir/saved.json.
func Open(dir, userID string, gw gateway.Gateway, st *store.Store, logger *log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[saved] ", log.LstdFlags)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	r := &Registry{
		path:    filepath.Join(dir, "saved.json"),
		userID:  userID,
		gw:      gw,
		store:   st,
		logger:  logger,
		records: make(map[string]*Record),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read saved list: %w", err)
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse saved list: %v: %w", err, syncerr.ErrStorageCorrupt)
	}
	for _, rec := range records {
		r.records[rec.BrochureID] = rec
	}
	return nil
}

// persistLocked writes the list atomically (temp file + rename).
func (r *Registry) persistLocked() error {
	records := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].BrochureID < records[j].BrochureID
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal saved list: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, "saved.tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write saved list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace saved list: %w", err)
	}
	return nil
}

// List returns the saved records, tombstones excluded, ordered by most
// recently accessed.
func (r *Registry) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		if rec.Deleted {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessedAt.After(out[j].LastAccessedAt)
	})
	return out
}

// Get returns a saved record by brochure id.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Deleted {
		return Record{}, false
	}
	return *rec, true
}

// Save records a newly saved brochure locally and pushes the record to
// the server. A server failure leaves the record marked pending for the
// next registry sync.
func (r *Registry) Save(ctx context.Context, rec Record) error {
	now := time.Now()
	if rec.SavedAt.IsZero() {
		rec.SavedAt = now
	}
	if rec.LastAccessedAt.IsZero() {
		rec.LastAccessedAt = now
	}
	rec.ContentPending = !r.store.Exists(rec.BrochureID)

	r.mu.Lock()
	stored := rec
	r.records[rec.BrochureID] = &stored
	err := r.persistLocked()
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if err := r.gw.SaveItem(ctx, r.userID, toItem(rec)); err != nil {
		r.logger.Printf("Warning: server save of %s deferred: %v", rec.BrochureID, err)
		r.setServerPending(rec.BrochureID, true)
		return nil
	}
	return nil
}

// Rename updates the device-local display name, then the server copy.
func (r *Registry) Rename(ctx context.Context, id, customTitle string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || rec.Deleted {
		r.mu.Unlock()
		return fmt.Errorf("saved brochure %s: %w", id, syncerr.ErrNotFound)
	}
	rec.CustomTitle = customTitle
	err := r.persistLocked()
	r.mu.Unlock()
	if err != nil {
		return err
	}

	// Keep the content document's local title in step when present.
	if r.store.Exists(id) {
		if _, err := r.store.Apply(id, func(doc *content.Document) error {
			doc.SetCustomTitle(customTitle)
			return nil
		}); err != nil {
			r.logger.Printf("Warning: failed to update document title for %s: %v", id, err)
		}
	}

	if err := r.gw.RenameItem(ctx, r.userID, id, customTitle); err != nil {
		r.logger.Printf("Warning: server rename of %s deferred: %v", id, err)
		r.setServerPending(id, true)
		return nil
	}
	return nil
}

// Remove deletes the saved record and its content document locally,
// leaving a tombstone until the server acknowledges the removal.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || rec.Deleted {
		r.mu.Unlock()
		return fmt.Errorf("saved brochure %s: %w", id, syncerr.ErrNotFound)
	}
	rec.Deleted = true
	err := r.persistLocked()
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if err := r.store.Delete(id); err != nil {
		r.logger.Printf("Warning: failed to delete document %s: %v", id, err)
	}

	if err := r.gw.RemoveItem(ctx, r.userID, id); err != nil {
		r.logger.Printf("Warning: server removal of %s deferred: %v", id, err)
		return nil
	}
	r.dropRecord(id)
	return nil
}

// Touch bumps the access time locally and best-effort on the server.
func (r *Registry) Touch(ctx context.Context, id string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || rec.Deleted {
		r.mu.Unlock()
		return fmt.Errorf("saved brochure %s: %w", id, syncerr.ErrNotFound)
	}
	rec.LastAccessedAt = time.Now()
	err := r.persistLocked()
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if err := r.gw.TouchAccess(ctx, r.userID, id); err != nil {
		r.logger.Printf("Warning: access touch of %s not recorded on server: %v", id, err)
	}
	return nil
}

// EnsureContent fetches the content document on first view of a saved
// brochure whose content is not on this device. Later views hit the
// local copy; picking up newer server edits is the reconciliation
// pass's job, not this one's.
func (r *Registry) EnsureContent(ctx context.Context, id string) error {
	if r.store.Exists(id) {
		return nil
	}

	rec, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("saved brochure %s: %w", id, syncerr.ErrNotFound)
	}

	result, err := r.gw.Pull(ctx, r.userID, id)
	if err != nil {
		return fmt.Errorf("fetch content for %s: %w", id, err)
	}

	title := result.Title
	if title == "" {
		title = rec.CatalogTitle
	}
	if _, err := r.store.ReplaceFromRemote(id, title, result.Slides, result.Groups, result.Timestamp); err != nil {
		return fmt.Errorf("install content for %s: %w", id, err)
	}

	r.mu.Lock()
	if cur, ok := r.records[id]; ok {
		cur.ContentPending = false
		if err := r.persistLocked(); err != nil {
			r.logger.Printf("Warning: failed to persist saved list: %v", err)
		}
	}
	r.mu.Unlock()
	return nil
}

// SyncWithServer reconciles the saved list with the server's copy. Runs
// once at login (before per-document sync, since document sync is
// meaningless for brochures the device does not know yet) and on manual
// refresh of the saved list.
func (r *Registry) SyncWithServer(ctx context.Context) error {
	items, err := r.gw.ListSaved(ctx, r.userID)
	if err != nil {
		return fmt.Errorf("list saved brochures: %w", err)
	}

	serverIDs := make(map[string]bool, len(items))
	for _, item := range items {
		serverIDs[item.BrochureID] = true
	}

	r.mu.Lock()
	// Server records unknown locally become local records; content is
	// deferred to first view.
	added := 0
	for _, item := range items {
		rec, ok := r.records[item.BrochureID]
		if ok {
			if rec.Deleted || rec.ServerPending {
				// Local state is ahead of the server; keep it.
				continue
			}
			rec.CustomTitle = item.CustomTitle
			rec.CatalogTitle = item.CatalogTitle
			rec.CatalogCategory = item.CatalogCategory
			rec.CatalogThumbRef = item.CatalogThumbRef
			rec.ContentPending = !r.store.Exists(item.BrochureID)
			continue
		}
		r.records[item.BrochureID] = &Record{
			BrochureID:      item.BrochureID,
			CustomTitle:     item.CustomTitle,
			SavedAt:         item.SavedAt,
			LastAccessedAt:  item.LastAccessedAt,
			CatalogTitle:    item.CatalogTitle,
			CatalogCategory: item.CatalogCategory,
			CatalogThumbRef: item.CatalogThumbRef,
			ContentPending:  !r.store.Exists(item.BrochureID),
		}
		added++
	}

	// Snapshot the records needing server writes, then release the lock
	// before doing network work.
	var pushUp, tombstones []Record
	for _, rec := range r.records {
		switch {
		case rec.Deleted:
			tombstones = append(tombstones, *rec)
		case rec.ServerPending || !serverIDs[rec.BrochureID]:
			pushUp = append(pushUp, *rec)
		}
	}
	if err := r.persistLocked(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	pushed, failed := 0, 0
	for _, rec := range pushUp {
		if err := r.gw.SaveItem(ctx, r.userID, toItem(rec)); err != nil {
			r.logger.Printf("Warning: failed to push saved record %s: %v", rec.BrochureID, err)
			r.setServerPending(rec.BrochureID, true)
			failed++
			continue
		}
		r.setServerPending(rec.BrochureID, false)
		pushed++
	}

	for _, rec := range tombstones {
		if err := r.gw.RemoveItem(ctx, r.userID, rec.BrochureID); err != nil {
			if errors.Is(err, syncerr.ErrNotFound) {
				r.dropRecord(rec.BrochureID)
				continue
			}
			r.logger.Printf("Warning: failed to push removal of %s: %v", rec.BrochureID, err)
			failed++
			continue
		}
		r.dropRecord(rec.BrochureID)
	}

	r.logger.Printf("Saved list synced: server=%d added=%d pushed=%d failed=%d",
		len(items), added, pushed, failed)
	return nil
}

func (r *Registry) setServerPending(id string, pending bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.ServerPending = pending
		if err := r.persistLocked(); err != nil {
			r.logger.Printf("Warning: failed to persist saved list: %v", err)
		}
	}
}

func (r *Registry) dropRecord(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	if err := r.persistLocked(); err != nil {
		r.logger.Printf("Warning: failed to persist saved list: %v", err)
	}
}

func toItem(rec Record) gateway.SavedItem {
	return gateway.SavedItem{
		BrochureID:      rec.BrochureID,
		CustomTitle:     rec.CustomTitle,
		SavedAt:         rec.SavedAt,
		LastAccessedAt:  rec.LastAccessedAt,
		CatalogTitle:    rec.CatalogTitle,
		CatalogCategory: rec.CatalogCategory,
		CatalogThumbRef: rec.CatalogThumbRef,
	}
}
