package svgtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStyle_LastDeclarationKeepsValue(t *testing.T) {
	for _, style := range []string{"fill:red", "fill:red;", " fill : red ; ;"} {
		decls, err := ParseStyle(style)
		require.NoError(t, err, style)
		require.Len(t, decls, 1, style)
		assert.Equal(t, "fill", decls[0].Property)
		assert.Equal(t, "red", decls[0].Value, style)
	}
}

func TestParseStyle_Empty(t *testing.T) {
	decls, err := ParseStyle(" ; ")
	require.NoError(t, err)
	assert.Empty(t, decls)
}

func TestStyleValue(t *testing.T) {
	v, ok := StyleValue("fill:red;Stroke-Width:0.25", "stroke-width")
	assert.True(t, ok)
	assert.Equal(t, "0.25", v)

	_, ok = StyleValue("fill:red", "stroke")
	assert.False(t, ok)
}
