// Package content defines the brochure content document: an ordered set
// of image slides plus user-defined slide groups, persisted one JSON
// file per brochure.
//
// All mutations go through the methods on Document so that slide
// ordering, group referential integrity, the last-modified timestamp,
// and the dirty flags are maintained in one place and cannot be skipped
// by a caller.
package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// CurrentSchemaVersion is the on-disk document schema version.
//
// Version 1 carried a singular group_id per slide; version 2 replaced
// it with the plural group_ids list. Read migrates v1 files once at
// load instead of branching on field presence throughout the engine.
const CurrentSchemaVersion = 2

// Slide is one ordered image page of a brochure.
type Slide struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	ImageRef string `json:"image_ref"`

	// Order is the 1-based position of the slide. After any structural
	// change the store renumbers so orders are contiguous 1..N.
	Order int `json:"order"`

	// GroupIDs lists the groups this slide belongs to.
	GroupIDs []string `json:"group_ids,omitempty"`

	// LegacyGroupID is the singular membership field written by schema
	// version 1. Folded into GroupIDs by the v1->v2 migration.
	LegacyGroupID string `json:"group_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Group is a named, ordered selection of slides within one brochure.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SlideIDs  []string  `json:"slide_ids,omitempty"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is the device-local replica of one brochure's content.
type Document struct {
	SchemaVersion int `json:"schema_version"`

	ID    string `json:"id"`
	Title string `json:"title"`

	// CustomTitle is the device-local display name. It is never sent to
	// the server; Title is the canonical source name.
	CustomTitle string `json:"custom_title,omitempty"`

	Slides []Slide `json:"slides"`
	Groups []Group `json:"groups,omitempty"`

	// LastModified is the single timestamp compared against the server
	// copy during reconciliation. Advanced on every slide/group
	// mutation and only on such mutations.
	LastModified time.Time `json:"last_modified"`

	// Modified and NeedsSync are device-local flags: true from the
	// moment of a local edit until a push to the server succeeds.
	Modified  bool `json:"modified"`
	NeedsSync bool `json:"needs_sync"`
}

// New creates an empty document for a brochure.
func New(id, title string) *Document {
	return &Document{
		SchemaVersion: CurrentSchemaVersion,
		ID:            id,
		Title:         title,
		LastModified:  time.Now(),
	}
}

// touch records a content mutation: the reconciliation timestamp moves
// forward and the document becomes dirty until the next successful push.
func (d *Document) touch() {
	d.LastModified = time.Now()
	d.Modified = true
	d.NeedsSync = true
}

// renumber restores the contiguous 1..N slide ordering.
func (d *Document) renumber() {
	for i := range d.Slides {
		d.Slides[i].Order = i + 1
	}
}

// Validate checks structural invariants of the document.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if d.Title == "" {
		return fmt.Errorf("title is required")
	}

	seen := make(map[string]bool, len(d.Slides))
	for i, s := range d.Slides {
		if s.ID == "" {
			return fmt.Errorf("slide at index %d has no id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate slide id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Order != i+1 {
			return fmt.Errorf("slide %q has order %d, want %d", s.ID, s.Order, i+1)
		}
	}

	groupIDs := make(map[string]bool, len(d.Groups))
	for _, g := range d.Groups {
		if g.ID == "" {
			return fmt.Errorf("group %q has no id", g.Name)
		}
		if groupIDs[g.ID] {
			return fmt.Errorf("duplicate group id %q", g.ID)
		}
		groupIDs[g.ID] = true
		for _, sid := range g.SlideIDs {
			if !seen[sid] {
				return fmt.Errorf("group %q references missing slide %q", g.Name, sid)
			}
		}
	}
	return nil
}

// AddSlide appends a slide at the end of the deck.
func (d *Document) AddSlide(s Slide) {
	s.UpdatedAt = time.Now()
	d.Slides = append(d.Slides, s)
	d.renumber()
	d.touch()
}

// DeleteSlide removes the slide and drops its id from every group that
// references it, then renumbers the remaining slides.
func (d *Document) DeleteSlide(id string) bool {
	idx := d.slideIndex(id)
	if idx < 0 {
		return false
	}
	d.Slides = append(d.Slides[:idx], d.Slides[idx+1:]...)
	for gi := range d.Groups {
		d.Groups[gi].SlideIDs = removeString(d.Groups[gi].SlideIDs, id)
	}
	d.renumber()
	d.touch()
	return true
}

// MoveSlide moves the slide to the given 1-based position. Positions
// outside the deck are clamped.
func (d *Document) MoveSlide(id string, pos int) bool {
	idx := d.slideIndex(id)
	if idx < 0 {
		return false
	}
	if pos < 1 {
		pos = 1
	}
	if pos > len(d.Slides) {
		pos = len(d.Slides)
	}
	s := d.Slides[idx]
	d.Slides = append(d.Slides[:idx], d.Slides[idx+1:]...)
	rest := make([]Slide, 0, len(d.Slides)+1)
	rest = append(rest, d.Slides[:pos-1]...)
	rest = append(rest, s)
	rest = append(rest, d.Slides[pos-1:]...)
	d.Slides = rest
	d.Slides[pos-1].UpdatedAt = time.Now()
	d.renumber()
	d.touch()
	return true
}

// SortSlidesByTitle orders slides alphabetically by title (case
// insensitive), falling back to id for equal titles.
func (d *Document) SortSlidesByTitle() {
	sort.SliceStable(d.Slides, func(i, j int) bool {
		a := strings.ToLower(d.Slides[i].Title)
		b := strings.ToLower(d.Slides[j].Title)
		if a == b {
			return d.Slides[i].ID < d.Slides[j].ID
		}
		return a < b
	})
	d.renumber()
	d.touch()
}

// RenameSlide sets the slide title.
func (d *Document) RenameSlide(id, title string) bool {
	idx := d.slideIndex(id)
	if idx < 0 {
		return false
	}
	d.Slides[idx].Title = title
	d.Slides[idx].UpdatedAt = time.Now()
	d.touch()
	return true
}

// AddGroup creates a new empty group and returns its id.
func (d *Document) AddGroup(id, name, color string) {
	d.Groups = append(d.Groups, Group{
		ID:        id,
		Name:      name,
		Color:     color,
		CreatedAt: time.Now(),
	})
	d.touch()
}

// RenameGroup sets the group name.
func (d *Document) RenameGroup(id, name string) bool {
	g := d.group(id)
	if g == nil {
		return false
	}
	g.Name = name
	d.touch()
	return true
}

// SetGroupColor sets the group's UI color tag.
func (d *Document) SetGroupColor(id, color string) bool {
	g := d.group(id)
	if g == nil {
		return false
	}
	g.Color = color
	d.touch()
	return true
}

// DeleteGroup removes the group and clears the membership back-links on
// its slides. The slides themselves are untouched.
func (d *Document) DeleteGroup(id string) bool {
	idx := -1
	for i := range d.Groups {
		if d.Groups[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	d.Groups = append(d.Groups[:idx], d.Groups[idx+1:]...)
	for si := range d.Slides {
		d.Slides[si].GroupIDs = removeString(d.Slides[si].GroupIDs, id)
	}
	d.touch()
	return true
}

// AddSlideToGroup appends the slide to the group's ordering and records
// the membership on the slide. Adding an existing member is a no-op.
func (d *Document) AddSlideToGroup(groupID, slideID string) error {
	g := d.group(groupID)
	if g == nil {
		return fmt.Errorf("group %q not found", groupID)
	}
	idx := d.slideIndex(slideID)
	if idx < 0 {
		return fmt.Errorf("slide %q not found", slideID)
	}
	if containsString(g.SlideIDs, slideID) {
		return nil
	}
	g.SlideIDs = append(g.SlideIDs, slideID)
	d.Slides[idx].GroupIDs = append(d.Slides[idx].GroupIDs, groupID)
	d.touch()
	return nil
}

// RemoveSlideFromGroup removes the membership on both sides.
func (d *Document) RemoveSlideFromGroup(groupID, slideID string) bool {
	g := d.group(groupID)
	if g == nil || !containsString(g.SlideIDs, slideID) {
		return false
	}
	g.SlideIDs = removeString(g.SlideIDs, slideID)
	if idx := d.slideIndex(slideID); idx >= 0 {
		d.Slides[idx].GroupIDs = removeString(d.Slides[idx].GroupIDs, groupID)
	}
	d.touch()
	return true
}

// SetGroupOrder replaces the group's slide ordering. Every id must
// already be a member of the group.
func (d *Document) SetGroupOrder(groupID string, slideIDs []string) error {
	g := d.group(groupID)
	if g == nil {
		return fmt.Errorf("group %q not found", groupID)
	}
	if len(slideIDs) != len(g.SlideIDs) {
		return fmt.Errorf("ordering has %d ids, group has %d members", len(slideIDs), len(g.SlideIDs))
	}
	for _, sid := range slideIDs {
		if !containsString(g.SlideIDs, sid) {
			return fmt.Errorf("slide %q is not a member of group %q", sid, groupID)
		}
	}
	g.SlideIDs = append([]string(nil), slideIDs...)
	d.touch()
	return nil
}

// SetCustomTitle sets the device-local display name. This is not a
// content mutation: it neither advances LastModified nor dirties the
// document, because the server copy never carries it.
func (d *Document) SetCustomTitle(title string) {
	d.CustomTitle = title
}

// ReplaceContent replaces slides and groups wholesale with a server
// copy. The document adopts the server timestamp and is considered
// clean; this is the pull path, not a user edit.
func (d *Document) ReplaceContent(slides []Slide, groups []Group, ts time.Time) {
	d.Slides = append([]Slide(nil), slides...)
	d.Groups = append([]Group(nil), groups...)
	d.renumber()
	d.LastModified = ts
	d.Modified = false
	d.NeedsSync = false
}

// DisplayTitle returns the device-local name if set, else the canonical
// title.
func (d *Document) DisplayTitle() string {
	if d.CustomTitle != "" {
		return d.CustomTitle
	}
	return d.Title
}

func (d *Document) slideIndex(id string) int {
	for i := range d.Slides {
		if d.Slides[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *Document) group(id string) *Group {
	for i := range d.Groups {
		if d.Groups[i].ID == id {
			return &d.Groups[i]
		}
	}
	return nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(ss []string, s string) []string {
	out := ss[:0]
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Filename returns the canonical filename for this document: {id}.json
func (d *Document) Filename() string {
	return fmt.Sprintf("%s.json", d.ID)
}

// Read reads, migrates, and validates a document file.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document file %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document file %s: %w", path, err)
	}

	doc.migrate()

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid document file %s: %w", path, err)
	}

	return &doc, nil
}

// Write persists the document to dir/{id}.json. The write is atomic: a
// temp file in the same directory is renamed over the target, so a
// crash mid-write cannot leave a truncated document behind.
func Write(dir string, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid document: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create documents directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", doc.ID, err)
	}

	path := filepath.Join(dir, doc.Filename())
	tmp, err := os.CreateTemp(dir, doc.ID+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write document %s: %w", doc.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %w", doc.ID, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace document file %s: %w", path, err)
	}
	return nil
}

// ReadAll reads every document in the directory. Invalid files are
// skipped with a warning to stderr; a missing directory is empty, not
// an error.
func ReadAll(dir string) ([]*Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Document{}, nil
		}
		return nil, fmt.Errorf("failed to read documents directory: %w", err)
	}

	var docs []*Document
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		doc, err := Read(filepath.Join(dir, entry.Name()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid document file %s: %v\n", entry.Name(), err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
