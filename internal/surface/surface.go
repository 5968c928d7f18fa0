// Package surface models the host drawing surface that owns the single
// active imported vector tree, and commits accepted trees onto it.
package surface

import (
	"errors"
	"sync"
	"time"

	"github.com/dgallion1/inkport/internal/svgtree"
)

// ErrStaleImport is returned when a newer import has already been committed
// to the surface. The stale tree is discarded and the surface is unchanged.
var ErrStaleImport = errors.New("surface: newer import already committed")

// Bounds is the size of the host area an import is fitted into.
type Bounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Host is what Commit needs from a surface: its bounding box, and an
// atomic replacement of the active import.
type Host interface {
	BoundingBox() Bounds
	ReplaceImport(tree *svgtree.Node) error
}

// Surface holds at most one committed import. All access to the import
// slot goes through the surface lock, so readers never observe a state
// with both or neither of an old and new import during a replacement.
type Surface struct {
	mu        sync.RWMutex
	bounds    Bounds
	current   *svgtree.Node
	version   uint64 // Incremented on every change to current
	issued    uint64 // Last generation handed out by Claim
	committed uint64 // Generation of the committed import
	updatedAt time.Time
}

// New creates an empty surface.
func New(bounds Bounds) *Surface {
	return &Surface{bounds: bounds, updatedAt: time.Now()}
}

// BoundingBox returns the surface's current size.
func (s *Surface) BoundingBox() Bounds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bounds
}

// Resize changes the host bounds used by later commits.
func (s *Surface) Resize(b Bounds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bounds = b
	s.updatedAt = time.Now()
}

// Claim reserves the next import generation. Claims are ordered by the
// time they are taken, not by the time they commit.
func (s *Surface) Claim() *Claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return &Claim{s: s, gen: s.issued}
}

// ReplaceImport commits tree as the newest import.
func (s *Surface) ReplaceImport(tree *svgtree.Node) error {
	return s.Claim().ReplaceImport(tree)
}

// Current returns a copy of the committed tree, or nil.
func (s *Surface) Current() *svgtree.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// HasImport reports whether a tree is committed.
func (s *Surface) HasImport() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Version changes whenever the committed import changes.
func (s *Surface) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// UpdatedAt returns the time of the last change.
func (s *Surface) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Clear removes the committed import, if any. Imports claimed before the
// clear can no longer commit.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	s.committed = s.issued
	s.removeImport()
}

// removeImport and insertImport must be called with mu held.
func (s *Surface) removeImport() {
	if s.current == nil {
		return
	}
	s.current = nil
	s.version++
	s.updatedAt = time.Now()
}

func (s *Surface) insertImport(tree *svgtree.Node) {
	s.current = tree
	s.version++
	s.updatedAt = time.Now()
}

// Claim is one import's right to commit to a surface.
type Claim struct {
	s   *Surface
	gen uint64
}

// Generation returns the claim's position in submission order.
func (c *Claim) Generation() uint64 {
	return c.gen
}

// BoundingBox returns the surface's current size.
func (c *Claim) BoundingBox() Bounds {
	return c.s.BoundingBox()
}

// ReplaceImport removes the previous import and inserts tree without
// releasing the surface lock in between. It fails with ErrStaleImport when
// an import claimed later has already been committed.
func (c *Claim) ReplaceImport(tree *svgtree.Node) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.gen < c.s.committed {
		return ErrStaleImport
	}
	c.s.removeImport()
	c.s.insertImport(tree)
	c.s.committed = c.gen
	return nil
}
