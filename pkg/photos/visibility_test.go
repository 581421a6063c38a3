package photos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMostRestrictive(t *testing.T) {
	tests := []struct {
		name   string
		levels []Level
		want   Level
	}{
		{"empty defaults to private", nil, LevelPrivate},
		{"single", []Level{LevelFriends}, LevelFriends},
		{"private wins", []Level{LevelPublic, LevelPrivate, LevelFriends}, LevelPrivate},
		{"friends beats public", []Level{LevelPublic, LevelFriends}, LevelFriends},
		{"all public", []Level{LevelPublic, LevelPublic}, LevelPublic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MostRestrictive(tt.levels...))
		})
	}
}

func TestMoreRestrictive(t *testing.T) {
	assert.True(t, LevelPrivate.MoreRestrictive(LevelFriends))
	assert.True(t, LevelFriends.MoreRestrictive(LevelPublic))
	assert.False(t, LevelPublic.MoreRestrictive(LevelPrivate))
	assert.False(t, LevelPrivate.MoreRestrictive(LevelPrivate))
}

func TestSortConflictsStable(t *testing.T) {
	conflicts := []Conflict{
		{Type: ConflictVisibility, Services: []string{"flickr"}},
		{Type: ConflictDuplicateDetected, Services: []string{"google-photos"}},
		{Type: ConflictMetadataMismatch, Services: []string{"google-photos", "flickr"},
			Details: map[string]any{"field": "caption"}},
		{Type: ConflictDuplicateDetected, Services: []string{"flickr"}},
	}

	SortConflicts(conflicts)

	// Ordered by type, then lexical service names.
	assert.Equal(t, ConflictDuplicateDetected, conflicts[0].Type)
	assert.Equal(t, []string{"flickr"}, conflicts[0].Services)
	assert.Equal(t, ConflictDuplicateDetected, conflicts[1].Type)
	assert.Equal(t, ConflictMetadataMismatch, conflicts[2].Type)
	assert.Equal(t, ConflictVisibility, conflicts[3].Type)
}
