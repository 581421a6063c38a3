package conflicts

import (
	"fmt"
	"testing"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photokeep/photosync/pkg/canonical"
	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/services"
)

func testHash(b byte) string {
	return fmt.Sprintf("sha256:%064x", b)
}

func obs(service, id, hash, caption string) services.Observation {
	return services.Observation{
		Service:     service,
		ServiceID:   id,
		ContentHash: hash,
		Quality:     photos.QualityHigh,
		Visibility:  photos.LevelPrivate,
		Metadata:    photos.Metadata{Caption: caption},
		ObservedAt:  utc.Now(),
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	c := canonical.New(photos.LevelPrivate)
	d := NewDetector(c)

	p, err := c.Create(obs("flickr", "f-1", testHash(1), "beach"))
	require.NoError(t, err)

	in := []services.Observation{
		obs("smugmug", "s-1", testHash(1), "Beach!"),
		obs("flickr", "f-1", testHash(1), "beach"),
	}
	require.NoError(t, d.Detect(p, in, nil))
	first := append([]photos.Conflict(nil), p.Conflicts...)

	// A second pass over the same inputs changes nothing.
	require.NoError(t, d.Detect(p, in, nil))
	assert.Equal(t, first, p.Conflicts)
	require.Len(t, p.Conflicts, 1)
	assert.Equal(t, photos.ConflictMetadataMismatch, p.Conflicts[0].Type)
}

func TestDetectOrdersConflictsStably(t *testing.T) {
	c := canonical.New(photos.LevelPrivate)
	d := NewDetector(c)

	p, err := c.Create(obs("flickr", "f-1", testHash(1), "beach"))
	require.NoError(t, err)

	wide := obs("smugmug", "s-1", testHash(1), "Beach!")
	wide.Visibility = photos.LevelPublic
	require.NoError(t, d.Detect(p, []services.Observation{wide}, nil))

	require.Len(t, p.Conflicts, 2)
	// metadata_mismatch sorts before visibility_conflict.
	assert.Equal(t, photos.ConflictMetadataMismatch, p.Conflicts[0].Type)
	assert.Equal(t, photos.ConflictVisibility, p.Conflicts[1].Type)
}

func TestDetectCrossEntityDuplicates(t *testing.T) {
	c := canonical.New(photos.LevelPrivate)
	d := NewDetector(c)

	a, err := c.Create(obs("flickr", "f-1", testHash(1), ""))
	require.NoError(t, err)
	b, err := c.Create(obs("smugmug", "s-1", testHash(1), ""))
	require.NoError(t, err)

	idx := canonical.NewIndex([]*photos.Photo{a, b})
	require.NoError(t, d.Detect(a, nil, idx))

	require.Len(t, a.Conflicts, 1)
	assert.Equal(t, photos.ConflictDuplicateDetected, a.Conflicts[0].Type)
	assert.True(t, a.Conflicts[0].ResolutionRequired)
	assert.Equal(t, b.PhotoID, a.Conflicts[0].Details["other_photo_id"])
}

func TestAutoResolveSettlesInformationalConflicts(t *testing.T) {
	r := NewResolver()
	p := photos.New()
	p.AddConflict(photos.Conflict{
		Type:        photos.ConflictDuplicateDetected,
		Description: "same content under a second id on flickr",
		Services:    []string{"flickr"},
		Status:      photos.ConflictOpen,
	})
	p.AddConflict(photos.Conflict{
		Type:               photos.ConflictMetadataMismatch,
		Description:        "services disagree on caption",
		Services:           []string{"flickr", "smugmug"},
		ResolutionRequired: true,
		Status:             photos.ConflictOpen,
		Details:            map[string]any{"field": "caption"},
	})

	settled := r.AutoResolve(p)

	assert.Equal(t, 1, settled)
	assert.Equal(t, photos.ConflictAutoResolved, p.Conflicts[0].Status)
	assert.Equal(t, photos.ConflictPendingManual, p.Conflicts[1].Status)
	assert.True(t, p.HasBlockingConflicts())
}

func TestPendingRequestsAndApply(t *testing.T) {
	c := canonical.New(photos.LevelPrivate)
	r := NewResolver()

	p, err := c.Create(obs("flickr", "f-1", testHash(1), "beach day"))
	require.NoError(t, err)
	_, err = c.Merge(p, obs("smugmug", "s-1", testHash(1), "Beach Day!"))
	require.NoError(t, err)

	requests := r.PendingRequests(p)
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, p.PhotoID, req.PhotoID)
	assert.Equal(t, photos.ConflictMetadataMismatch, req.Type)

	var choices []Choice
	for _, o := range req.Options {
		choices = append(choices, o.Choice)
	}
	assert.Contains(t, choices, ChoiceKeepCanonical)
	assert.Contains(t, choices, ChoiceUseObserved)
	assert.Contains(t, choices, ChoiceSkip)

	err = r.Apply(p, Decision{
		PhotoID:     p.PhotoID,
		ConflictKey: req.ConflictKey,
		Choice:      ChoiceUseObserved,
	})
	require.NoError(t, err)

	assert.Equal(t, "Beach Day!", p.Metadata.Caption)
	assert.False(t, p.HasBlockingConflicts())
	assert.Empty(t, r.PendingRequests(p))
}

func TestApplyCustomValue(t *testing.T) {
	c := canonical.New(photos.LevelPrivate)
	r := NewResolver()

	p, err := c.Create(obs("flickr", "f-1", testHash(1), "beach day"))
	require.NoError(t, err)
	_, err = c.Merge(p, obs("smugmug", "s-1", testHash(1), "Beach Day!"))
	require.NoError(t, err)

	req := r.PendingRequests(p)[0]
	require.NoError(t, r.Apply(p, Decision{
		PhotoID:     p.PhotoID,
		ConflictKey: req.ConflictKey,
		Choice:      ChoiceCustom,
		Value:       "Beach day at Ocean Grove",
	}))
	assert.Equal(t, "Beach day at Ocean Grove", p.Metadata.Caption)
}

func TestSkipKeepsConflictPending(t *testing.T) {
	c := canonical.New(photos.LevelPrivate)
	r := NewResolver()

	p, err := c.Create(obs("flickr", "f-1", testHash(1), "a"))
	require.NoError(t, err)
	_, err = c.Merge(p, obs("smugmug", "s-1", testHash(1), "b"))
	require.NoError(t, err)

	req := r.PendingRequests(p)[0]
	require.NoError(t, r.Apply(p, Decision{
		PhotoID:     p.PhotoID,
		ConflictKey: req.ConflictKey,
		Choice:      ChoiceSkip,
	}))

	assert.True(t, p.HasBlockingConflicts(), "skip leaves the photo blocked")
	assert.Len(t, r.PendingRequests(p), 1)
}

func TestApplyApproveWidening(t *testing.T) {
	c := canonical.New(photos.LevelPrivate)
	d := NewDetector(c)
	r := NewResolver()

	p, err := c.Create(obs("flickr", "f-1", testHash(1), ""))
	require.NoError(t, err)
	wide := obs("flickr", "f-1", testHash(1), "")
	wide.Visibility = photos.LevelPublic
	require.NoError(t, d.Detect(p, []services.Observation{wide}, nil))
	require.True(t, p.HasBlockingConflicts())

	req := r.PendingRequests(p)[0]
	require.NoError(t, r.Apply(p, Decision{
		PhotoID:     p.PhotoID,
		ConflictKey: req.ConflictKey,
		Choice:      ChoiceApprove,
	}))

	assert.Equal(t, photos.LevelPublic, p.Visibility.Canonical)
	assert.False(t, p.HasBlockingConflicts())
}

func TestApplyUnknownConflict(t *testing.T) {
	r := NewResolver()
	p := photos.New()
	err := r.Apply(p, Decision{PhotoID: p.PhotoID, ConflictKey: "nope", Choice: ChoiceSkip})
	require.Error(t, err)
}
