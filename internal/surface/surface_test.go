package surface

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/inkport/internal/svgtree"
)

func TestFit(t *testing.T) {
	vp := svgtree.Viewport{Width: 612, Height: 792}

	assert.Equal(t, 0.5, Fit(vp, Bounds{Width: 306, Height: 2000}))
	assert.Equal(t, 0.25, Fit(vp, Bounds{Width: 1000, Height: 198}))
	// Never upscale.
	assert.Equal(t, 1.0, Fit(vp, Bounds{Width: 5000, Height: 5000}))
	// Unknown host size leaves the page at its natural size.
	assert.Equal(t, 1.0, Fit(vp, Bounds{}))
	// Only the known axis constrains.
	assert.Equal(t, 0.5, Fit(vp, Bounds{Width: 306, Height: -1}))
}

func TestCommit_SetsSizing(t *testing.T) {
	s := New(Bounds{Width: 306, Height: 396})
	tree := svgtree.New("svg")

	scale, err := Commit(s, tree, svgtree.Viewport{Width: 612, Height: 792})
	require.NoError(t, err)
	assert.Equal(t, 0.5, scale)

	got := s.Current()
	require.NotNil(t, got)
	assert.Equal(t, "306", got.Attr("width"))
	assert.Equal(t, "396", got.Attr("height"))
	assert.Equal(t, "0 0 612 792", got.Attr("viewBox"))

	vp, ok := CommittedViewport(got)
	assert.True(t, ok)
	assert.Equal(t, svgtree.Viewport{Width: 612, Height: 792}, vp)
}

func TestCommittedViewport_Missing(t *testing.T) {
	_, ok := CommittedViewport(svgtree.New("svg"))
	assert.False(t, ok)
	_, ok = CommittedViewport(svgtree.New("svg", svgtree.Attr{Name: "viewBox", Value: "0 0 0 10"}))
	assert.False(t, ok)
	_, ok = CommittedViewport(nil)
	assert.False(t, ok)
}

func TestCommit_InvalidInput(t *testing.T) {
	s := New(Bounds{Width: 10, Height: 10})
	_, err := Commit(s, nil, svgtree.Viewport{Width: 1, Height: 1})
	assert.Error(t, err)
	_, err = Commit(s, svgtree.New("svg"), svgtree.Viewport{})
	assert.Error(t, err)
	assert.Nil(t, s.Current())
	assert.Zero(t, s.Version())
}

type recordingHost struct {
	bounds Bounds
	calls  []string
	err    error
}

func (h *recordingHost) BoundingBox() Bounds {
	h.calls = append(h.calls, "bbox")
	return h.bounds
}

func (h *recordingHost) ReplaceImport(tree *svgtree.Node) error {
	h.calls = append(h.calls, "replace")
	return h.err
}

func TestCommit_QueriesBoundsBeforeReplacing(t *testing.T) {
	h := &recordingHost{bounds: Bounds{Width: 100, Height: 100}}
	_, err := Commit(h, svgtree.New("svg"), svgtree.Viewport{Width: 10, Height: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"bbox", "replace"}, h.calls)
}

func TestCommit_PropagatesHostError(t *testing.T) {
	h := &recordingHost{err: ErrStaleImport}
	_, err := Commit(h, svgtree.New("svg"), svgtree.Viewport{Width: 10, Height: 10})
	assert.True(t, errors.Is(err, ErrStaleImport))
}

func TestSurface_ReplaceSwapsSingleImport(t *testing.T) {
	s := New(Bounds{Width: 100, Height: 100})
	first := svgtree.New("svg", svgtree.Attr{Name: "id", Value: "first"})
	second := svgtree.New("svg", svgtree.Attr{Name: "id", Value: "second"})

	require.NoError(t, s.ReplaceImport(first))
	require.NoError(t, s.ReplaceImport(second))

	assert.Equal(t, "second", s.Current().Attr("id"))
}

func TestClaim_StaleCommitDiscarded(t *testing.T) {
	s := New(Bounds{Width: 100, Height: 100})
	older := s.Claim()
	newer := s.Claim()
	assert.Less(t, older.Generation(), newer.Generation())

	require.NoError(t, newer.ReplaceImport(svgtree.New("svg", svgtree.Attr{Name: "id", Value: "new"})))
	version := s.Version()

	err := older.ReplaceImport(svgtree.New("svg", svgtree.Attr{Name: "id", Value: "old"}))
	assert.ErrorIs(t, err, ErrStaleImport)
	assert.Equal(t, "new", s.Current().Attr("id"))
	assert.Equal(t, version, s.Version())
}

func TestClaim_OlderFinishingFirstIsReplaced(t *testing.T) {
	s := New(Bounds{})
	older := s.Claim()
	newer := s.Claim()

	require.NoError(t, older.ReplaceImport(svgtree.New("svg", svgtree.Attr{Name: "id", Value: "old"})))
	require.NoError(t, newer.ReplaceImport(svgtree.New("svg", svgtree.Attr{Name: "id", Value: "new"})))
	assert.Equal(t, "new", s.Current().Attr("id"))
}

func TestSurface_CurrentIsACopy(t *testing.T) {
	s := New(Bounds{})
	require.NoError(t, s.ReplaceImport(svgtree.New("svg", svgtree.Attr{Name: "id", Value: "a"})))
	s.Current().Set("id", "mutated")
	assert.Equal(t, "a", s.Current().Attr("id"))
}

func TestSurface_ConcurrentReadersSeeWholeImport(t *testing.T) {
	s := New(Bounds{})
	require.NoError(t, s.ReplaceImport(svgtree.New("svg")))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				assert.NotNil(t, s.Current())
			}
		}
	}()
	for range 200 {
		require.NoError(t, s.ReplaceImport(svgtree.New("svg")))
	}
	close(stop)
	wg.Wait()
}

func TestSurface_Clear(t *testing.T) {
	s := New(Bounds{})
	assert.False(t, s.HasImport())
	require.NoError(t, s.ReplaceImport(svgtree.New("svg")))
	assert.True(t, s.HasImport())
	s.Clear()
	assert.Nil(t, s.Current())
	assert.False(t, s.HasImport())
	assert.Equal(t, uint64(2), s.Version())
}

func TestSurface_ClearInvalidatesPendingClaims(t *testing.T) {
	s := New(Bounds{})
	pending := s.Claim()
	s.Clear()
	assert.ErrorIs(t, pending.ReplaceImport(svgtree.New("svg")), ErrStaleImport)
	assert.False(t, s.HasImport())

	require.NoError(t, s.Claim().ReplaceImport(svgtree.New("svg")))
	assert.True(t, s.HasImport())
}

func TestSurface_ResizeAffectsLaterCommits(t *testing.T) {
	s := New(Bounds{Width: 1000, Height: 1000})
	s.Resize(Bounds{Width: 50, Height: 50})
	scale, err := Commit(s.Claim(), svgtree.New("svg"), svgtree.Viewport{Width: 100, Height: 100})
	require.NoError(t, err)
	assert.Equal(t, 0.5, scale)
}
