package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("internal/engine/engine.go", 0)
	b := PointID("internal/engine/engine.go", 0)
	c := PointID("internal/engine/engine.go", 1)
	d := PointID("internal/engine/other.go", 0)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)

	// Valid UUID shape, required by Qdrant point IDs.
	assert.Len(t, a, 36)
}

func TestPointIDs(t *testing.T) {
	ids := PointIDs("a.go", 2, 5)

	assert.Equal(t, []string{
		PointID("a.go", 2),
		PointID("a.go", 3),
		PointID("a.go", 4),
	}, ids)

	assert.Nil(t, PointIDs("a.go", 3, 3))
	assert.Nil(t, PointIDs("a.go", 5, 2))
}

func TestDirPrefixes(t *testing.T) {
	assert.Nil(t, DirPrefixes("main.go"))
	assert.Equal(t, []string{"internal"}, DirPrefixes("internal/config.go"))
	assert.Equal(t,
		[]string{"internal", "internal/store"},
		DirPrefixes("internal/store/qdrant.go"))
}

func TestUnderDir(t *testing.T) {
	assert.True(t, underDir("internal/store/qdrant.go", ""))
	assert.True(t, underDir("internal/store/qdrant.go", "internal"))
	assert.True(t, underDir("internal/store/qdrant.go", "internal/store"))
	assert.True(t, underDir("internal/store/qdrant.go", "internal/store/"))

	assert.False(t, underDir("internal/store/qdrant.go", "internal/st"))
	assert.False(t, underDir("main.go", "internal"))
}
