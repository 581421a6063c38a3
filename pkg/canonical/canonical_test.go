package canonical

import (
	"fmt"
	"testing"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/services"
)

func testHash(b byte) string {
	return fmt.Sprintf("sha256:%064x", b)
}

func obs(service, id, hash string, quality photos.Quality) services.Observation {
	return services.Observation{
		Service:     service,
		ServiceID:   id,
		ContentHash: hash,
		Quality:     quality,
		Visibility:  photos.LevelPrivate,
		ObservedAt:  utc.Now(),
	}
}

func TestCreateFromObservation(t *testing.T) {
	c := New(photos.LevelPrivate)
	o := obs("flickr", "f-1", testHash(1), photos.QualityOriginal)
	o.Metadata.Caption = "beach day"

	p, err := c.Create(o)
	require.NoError(t, err)

	assert.NotEmpty(t, p.PhotoID)
	assert.Equal(t, photos.StateDiscovered, p.ProcessingState)
	assert.Equal(t, testHash(1), p.ContentHash)
	assert.Equal(t, "flickr:f-1", p.CanonicalSource)
	assert.Equal(t, "beach day", p.Metadata.Caption)
	assert.Equal(t, photos.LevelPrivate, p.Visibility.Observed()["flickr"])
	assert.Empty(t, p.Conflicts)
	require.NoError(t, p.Validate())
}

func TestMergeIsIdempotent(t *testing.T) {
	c := New(photos.LevelPrivate)
	o := obs("flickr", "f-1", testHash(1), photos.QualityHigh)
	o.Metadata.Caption = "beach day"
	o.Metadata.Tags = []string{"beach", "summer"}

	p, err := c.Create(o)
	require.NoError(t, err)

	// The same observation merged again changes nothing observable.
	_, err = c.Merge(p, o)
	require.NoError(t, err)

	assert.Len(t, p.Instances, 1)
	assert.Empty(t, p.Conflicts)
	assert.Equal(t, []string{"beach", "summer"}, p.Metadata.Tags)
	assert.Empty(t, p.ContentHistory)
}

func TestCaptionDisagreementProducesOneConflict(t *testing.T) {
	c := New(photos.LevelPrivate)
	oA := obs("flickr", "f-1", testHash(1), photos.QualityHigh)
	oA.Metadata.Caption = "beach day"
	oB := obs("smugmug", "s-9", testHash(1), photos.QualityHigh)
	oB.Metadata.Caption = "Beach Day!"

	p, err := c.Create(oA)
	require.NoError(t, err)
	_, err = c.Merge(p, oB)
	require.NoError(t, err)

	// Canonical value stands; exactly one conflict names both services.
	assert.Equal(t, "beach day", p.Metadata.Caption)
	require.Len(t, p.Conflicts, 1)
	conflict := p.Conflicts[0]
	assert.Equal(t, photos.ConflictMetadataMismatch, conflict.Type)
	assert.True(t, conflict.ResolutionRequired)
	assert.ElementsMatch(t, []string{"flickr", "smugmug"}, conflict.Services)
	assert.Equal(t, "caption", conflict.Details["field"])

	// Merging the disagreeing observation again does not duplicate it.
	_, err = c.Merge(p, oB)
	require.NoError(t, err)
	assert.Len(t, p.Conflicts, 1)
}

func TestQualityVariantPromotesWithoutConflict(t *testing.T) {
	c := New(photos.LevelPrivate)
	p, err := c.Create(obs("service-b", "b-2", testHash(1), photos.QualityMedium))
	require.NoError(t, err)
	_, err = c.Merge(p, obs("service-a", "a-1", testHash(1), photos.QualityOriginal))
	require.NoError(t, err)

	assert.Equal(t, "service-a:a-1", p.CanonicalSource)
	assert.Empty(t, p.Conflicts)
}

func TestSameServiceDuplicateIsInformational(t *testing.T) {
	c := New(photos.LevelPrivate)
	p, err := c.Create(obs("flickr", "f-1", testHash(1), photos.QualityHigh))
	require.NoError(t, err)
	_, err = c.Merge(p, obs("flickr", "f-2", testHash(1), photos.QualityHigh))
	require.NoError(t, err)

	// The earliest instance stays; the later id is recorded, not adopted.
	assert.Equal(t, "f-1", p.Instances["flickr"].ID)
	require.Len(t, p.Conflicts, 1)
	conflict := p.Conflicts[0]
	assert.Equal(t, photos.ConflictDuplicateDetected, conflict.Type)
	assert.False(t, conflict.ResolutionRequired)
	assert.Equal(t, "f-2", conflict.Details["duplicate_id"])
}

func TestCrossEntityDuplicateRequiresManualResolution(t *testing.T) {
	p := photos.New()
	require.NoError(t, EscalateCrossEntityDuplicate(p, "other-id", []string{"flickr", "smugmug"}))

	require.Len(t, p.Conflicts, 1)
	assert.Equal(t, photos.ConflictDuplicateDetected, p.Conflicts[0].Type)
	assert.True(t, p.Conflicts[0].ResolutionRequired)
	assert.True(t, p.HasBlockingConflicts())

	// Escalating the same pair twice records it once.
	require.NoError(t, EscalateCrossEntityDuplicate(p, "other-id", []string{"flickr", "smugmug"}))
	assert.Len(t, p.Conflicts, 1)
}

func TestChangedHashReopensReplicatedPhoto(t *testing.T) {
	c := New(photos.LevelPrivate)
	p, err := c.Create(obs("flickr", "f-1", testHash(1), photos.QualityOriginal))
	require.NoError(t, err)
	p.ProcessingState = photos.StateReplicated

	out, err := c.Merge(p, obs("flickr", "f-1", testHash(2), photos.QualityOriginal))
	require.NoError(t, err)

	assert.True(t, out.Reopened)
	assert.Equal(t, photos.StateDiscovered, p.ProcessingState)
	assert.Equal(t, testHash(2), p.ContentHash)
	require.Len(t, p.ContentHistory, 1)
	assert.Equal(t, testHash(1), p.ContentHistory[0].ContentHash)
}

func TestNullFieldsNeverErase(t *testing.T) {
	c := New(photos.LevelPrivate)
	o := obs("flickr", "f-1", testHash(1), photos.QualityHigh)
	o.Metadata.Caption = "kept"
	o.Metadata.FileSize = 2048

	p, err := c.Create(o)
	require.NoError(t, err)

	bare := obs("smugmug", "s-1", testHash(1), photos.QualityHigh)
	_, err = c.Merge(p, bare)
	require.NoError(t, err)

	assert.Equal(t, "kept", p.Metadata.Caption)
	assert.Equal(t, int64(2048), p.Metadata.FileSize)
	assert.Empty(t, p.Conflicts)
}

func TestIndexMatching(t *testing.T) {
	c := New(photos.LevelPrivate)
	p, err := c.Create(obs("flickr", "f-1", testHash(1), photos.QualityHigh))
	require.NoError(t, err)

	idx := NewIndex([]*photos.Photo{p})

	// Hash match wins even when the instance is unknown.
	id, ok := idx.Match(obs("smugmug", "s-1", testHash(1), photos.QualityLow))
	require.True(t, ok)
	assert.Equal(t, p.PhotoID, id)

	// Instance match covers observations without a hash.
	byInstance := services.Observation{
		Service: "flickr", ServiceID: "f-1",
		Quality: photos.QualityHigh, Visibility: photos.LevelPrivate,
	}
	id, ok = idx.Match(byInstance)
	require.True(t, ok)
	assert.Equal(t, p.PhotoID, id)

	_, ok = idx.Match(obs("flickr", "f-99", testHash(9), photos.QualityHigh))
	assert.False(t, ok)
}

func TestIndexDuplicateIdentities(t *testing.T) {
	c := New(photos.LevelPrivate)
	a, err := c.Create(obs("flickr", "f-1", testHash(1), photos.QualityHigh))
	require.NoError(t, err)
	b := photos.New()
	require.NoError(t, b.SetContentHash(testHash(1)))
	b.SetInstance("smugmug", &photos.Instance{ID: "s-1", Quality: photos.QualityHigh})

	idx := NewIndex([]*photos.Photo{a, b})
	dups := idx.DuplicateIdentities()
	require.Len(t, dups, 1)
	assert.ElementsMatch(t, []string{a.PhotoID, b.PhotoID}, dups[testHash(1)])
}
