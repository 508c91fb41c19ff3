package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStableID_Determinism(t *testing.T) {
	t.Run("case, whitespace and parentheticals collapse", func(t *testing.T) {
		a := StableID("Eiffel Tower (Champ de Mars)", 48.85837, 2.294481)
		b := StableID(" eiffel tower ", 48.8584, 2.2945)
		assert.Equal(t, a, b)
	})

	t.Run("coordinates within rounding radius collide", func(t *testing.T) {
		a := StableID("Torre de Belém", 38.69151, -9.21595)
		b := StableID("torre de belém", 38.69149, -9.21597)
		assert.Equal(t, a, b)
	})

	t.Run("distinct places stay distinct", func(t *testing.T) {
		a := StableID("Mercado da Ribeira", 38.7071, -9.1458)
		b := StableID("Mercado da Ribeira", 38.7190, -9.1458)
		assert.NotEqual(t, a, b)
	})

	t.Run("punctuation is dropped, hyphens become separators", func(t *testing.T) {
		a := StableID("St. Paul's - Cathedral", 51.5138, -0.0984)
		b := StableID("st pauls cathedral", 51.5138, -0.0984)
		assert.Equal(t, a, b)
	})

	t.Run("empty name is degenerate but deterministic", func(t *testing.T) {
		a := StableID("", 1.0, 2.0)
		b := StableID("   ", 1.0, 2.0)
		assert.Equal(t, a, b)
		assert.NotEmpty(t, a)
	})

	t.Run("unicode letters survive normalization", func(t *testing.T) {
		id := StableID("Praça do Comércio", 38.7075, -9.1364)
		assert.Contains(t, id, "praça_do_comércio")
	})
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash("Eiffel Tower (Champ de Mars)", 48.85837, 2.294481)
	h2 := ContentHash(" eiffel tower ", 48.8584, 2.2945)
	require.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	h3 := ContentHash("Louvre", 48.8606, 2.3376)
	assert.NotEqual(t, h1, h3)
}
