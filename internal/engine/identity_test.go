package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_ProducesValidUUIDs(t *testing.T) {
	gen := UUIDv7Generator{}

	a := gen.Generate()
	b := gen.Generate()

	require.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestFixedGenerator_ReturnsInOrder(t *testing.T) {
	gen := NewFixedGenerator("row-1", "row-2", "row-3")

	assert.Equal(t, "row-1", gen.Generate())
	assert.Equal(t, "row-2", gen.Generate())
	assert.Equal(t, "row-3", gen.Generate())
}

func TestFixedGenerator_PanicsWhenExhausted(t *testing.T) {
	gen := NewFixedGenerator("only")
	gen.Generate()

	assert.Panics(t, func() { gen.Generate() })
}
