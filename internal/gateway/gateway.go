// Package gateway defines the narrow remote interface the sync engine
// depends on, plus the HTTP client that implements it.
//
// The engine never talks to the server except through this interface,
// so tests substitute a fake and the reconciliation logic stays
// independent of the wire protocol.
package gateway

import (
	"context"
	"time"

	"github.com/repkit/brochuresync/internal/content"
)

// Status is the result of a cheap server-side change probe. It carries
// no document body.
type Status struct {
	HasServerChanges bool      `json:"has_server_changes"`
	NeedsDownload    bool      `json:"needs_download"`
	ServerTimestamp  time.Time `json:"server_timestamp"`
}

// PushRequest is a full upsert of one document's content. Pushing the
// same content twice is a server-side no-op.
type PushRequest struct {
	DocID  string          `json:"doc_id"`
	Title  string          `json:"title"`
	Slides []content.Slide `json:"slides"`
	Groups []content.Group `json:"groups,omitempty"`
}

// PullResult is a full fetch of one document's content.
type PullResult struct {
	Slides    []content.Slide `json:"slides"`
	Groups    []content.Group `json:"groups,omitempty"`
	Title     string          `json:"title"`
	Timestamp time.Time       `json:"timestamp"`
}

// SavedItem is one entry of the per-user saved-brochure list, with a
// snapshot of catalog metadata taken at save time so the item can be
// listed offline before its content document has ever been fetched.
type SavedItem struct {
	BrochureID     string    `json:"brochure_id"`
	CustomTitle    string    `json:"custom_title,omitempty"`
	SavedAt        time.Time `json:"saved_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`

	CatalogTitle    string `json:"catalog_title,omitempty"`
	CatalogCategory string `json:"catalog_category,omitempty"`
	CatalogThumbRef string `json:"catalog_thumb_ref,omitempty"`
}

// SessionResult is the one-time outcome of registering this device as
// the user's active session.
type SessionResult struct {
	OK                  bool   `json:"ok"`
	HasConflict         bool   `json:"has_conflict"`
	ConflictDeviceLabel string `json:"conflict_device_label,omitempty"`
}

// Gateway is the remote procedure surface used by the sync engine.
//
// All methods may fail with syncerr.ErrNetworkUnavailable (server not
// reachable, retryable) or syncerr.ErrServerRejected (reached but
// refused, not retryable). Missing documents report syncerr.ErrNotFound.
type Gateway interface {
	// CheckStatus compares the server copy against a local timestamp
	// without transferring the document body.
	CheckStatus(ctx context.Context, userID, docID string, localTS time.Time) (Status, error)

	// Push upserts the full document and returns the new server
	// timestamp, which the caller adopts as the local timestamp.
	Push(ctx context.Context, userID string, req PushRequest) (time.Time, error)

	// Pull fetches the full document.
	Pull(ctx context.Context, userID, docID string) (PullResult, error)

	// Saved-list management.
	ListSaved(ctx context.Context, userID string) ([]SavedItem, error)
	SaveItem(ctx context.Context, userID string, item SavedItem) error
	RemoveItem(ctx context.Context, userID, brochureID string) error
	RenameItem(ctx context.Context, userID, brochureID, customTitle string) error
	TouchAccess(ctx context.Context, userID, brochureID string) error

	// RegisterSession claims the active session for this user. If a
	// different device held it, that session is invalidated server-side
	// and the result names the superseded device once.
	RegisterSession(ctx context.Context, userID, deviceID, deviceLabel string) (SessionResult, error)
}
