// Package session holds drawing sessions: one host surface each, plus the
// analysis classes and the filter selection the client chose for it.
package session

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dgallion1/inkport/internal/filter"
	"github.com/dgallion1/inkport/internal/surface"
	"github.com/dgallion1/inkport/internal/svgtree"
)

// Session is one client's drawing board.
type Session struct {
	ID        string
	CreatedAt time.Time

	surface *surface.Surface

	mu        sync.Mutex
	selection filter.Selection
	classes   *filter.Classes
	analysed  uint64 // Surface version the classes describe
	lastUsed  time.Time
}

// New creates a session with an empty surface of the given size.
func New(bounds surface.Bounds) *Session {
	now := time.Now()
	return &Session{
		ID:        ulid.Make().String(),
		CreatedAt: now,
		surface:   surface.New(bounds),
		lastUsed:  now,
	}
}

// Surface returns the session's host surface.
func (s *Session) Surface() *surface.Surface {
	return s.surface
}

// Selection returns the active filter.
func (s *Session) Selection() filter.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// SetSelection replaces the active filter.
func (s *Session) SetSelection(sel filter.Selection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = sel.Normalized()
	s.lastUsed = time.Now()
}

// SetClasses stores the classes reported by an analysis of the surface at
// the given version.
func (s *Session) SetClasses(c filter.Classes, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes = &c
	s.analysed = version
	s.lastUsed = time.Now()
}

// Classes returns the analysis classes for the committed tree. When the
// tree changed since the last analysis, or there was none, the classes
// are counted locally.
func (s *Session) Classes() (filter.Classes, bool) {
	version := s.surface.Version()
	s.mu.Lock()
	if s.classes != nil && s.analysed == version {
		c := *s.classes
		s.mu.Unlock()
		return c, true
	}
	s.mu.Unlock()
	return filter.Count(s.surface.Current()), false
}

// View returns the committed tree with the filter applied, or nil when
// nothing has been imported.
func (s *Session) View() *svgtree.Node {
	tree := s.surface.Current()
	if tree == nil {
		return nil
	}
	sel := s.Selection()
	if sel.Empty() {
		return tree
	}
	return filter.Apply(tree, sel)
}

// Touch marks the session as used.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
}

// LastUsed returns the later of the last client access and the last change
// to the surface.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	last := s.lastUsed
	s.mu.Unlock()
	if u := s.surface.UpdatedAt(); u.After(last) {
		return u
	}
	return last
}

// Summary is a JSON-safe view of a session.
type Summary struct {
	ID        string           `json:"session_id"`
	Bounds    surface.Bounds   `json:"bounds"`
	Version   uint64           `json:"version"`
	HasImport bool             `json:"has_import"`
	Selection filter.Selection `json:"filter"`
	Classes   filter.Classes   `json:"classes"`
	Analysed  bool             `json:"analysed"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Summary returns the session's current state.
func (s *Session) Summary() Summary {
	classes, analysed := s.Classes()
	sel := s.Selection()
	if sel.Tags == nil {
		sel.Tags = []string{}
	}
	if sel.Strokes == nil {
		sel.Strokes = []float64{}
	}
	return Summary{
		ID:        s.ID,
		Bounds:    s.surface.BoundingBox(),
		Version:   s.surface.Version(),
		HasImport: s.surface.HasImport(),
		Selection: sel,
		Classes:   classes,
		Analysed:  analysed,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.LastUsed(),
	}
}
