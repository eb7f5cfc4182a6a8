package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidUnitType(t *testing.T) {
	require.True(t, ValidUnitType(UnitMainContent))
	require.True(t, ValidUnitType(UnitObjection))
	require.False(t, ValidUnitType(UnitType("not_a_real_type")))
	require.False(t, ValidUnitType(UnitType("")))
}

func TestNormalizeSectionPath(t *testing.T) {
	require.Equal(t, "Book I > Chapter 2", NormalizeSectionPath("  Book   I  >   Chapter  2  "))
	require.Equal(t, "", NormalizeSectionPath("   "))
}

func TestNormalizeSectionPath_StablePrefixing(t *testing.T) {
	parent := NormalizeSectionPath("Book I")
	child := NormalizeSectionPath("Book  I > Chapter 2")
	require.Contains(t, child, parent)
}
