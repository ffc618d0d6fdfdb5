package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedHasClosedPersonaSet(t *testing.T) {
	store := NewMemoryStore(Seed())
	items := store.List()

	require.Len(t, items, 2)
	assert.Equal(t, StudentID, items[0].ID)
	assert.Equal(t, ProfessionalID, items[1].ID)
	assert.Contains(t, items[0].OpeningLine, "As a student,")
	assert.Contains(t, items[1].OpeningLine, "As a professional,")
}

func TestFindByID(t *testing.T) {
	store := NewMemoryStore(Seed())

	got, ok := store.FindByID(ProfessionalID)
	require.True(t, ok)
	assert.Equal(t, "Professional", got.Name)

	_, ok = store.FindByID("retiree")
	assert.False(t, ok)
}

func TestListReturnsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	items := store.List()
	items[0].Name = "mutated"

	got, _ := store.FindByID(StudentID)
	assert.Equal(t, "Student", got.Name)
}
