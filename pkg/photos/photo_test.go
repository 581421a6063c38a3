package photos

import (
	"strings"
	"testing"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestNewPhotoDefaults(t *testing.T) {
	p := New()

	assert.NotEmpty(t, p.PhotoID)
	assert.Equal(t, StateDiscovered, p.ProcessingState)
	assert.Equal(t, LevelPrivate, p.Visibility.Canonical)
	assert.False(t, p.CreatedAt.IsZero())
	assert.NoError(t, p.Validate())

	// Fresh identities never collide.
	other := New()
	assert.NotEqual(t, p.PhotoID, other.PhotoID)
}

func TestContentHashImmutable(t *testing.T) {
	p := New()
	require.NoError(t, p.SetContentHash(testHash))

	// Setting the same hash again is a no-op.
	assert.NoError(t, p.SetContentHash(testHash))

	// A different hash needs a reopen event.
	otherHash := "sha256:" + strings.Repeat("b", 64)
	assert.Error(t, p.SetContentHash(otherHash))

	p.Supersede(otherHash, "flickr")
	assert.Equal(t, otherHash, p.ContentHash)
	require.Len(t, p.ContentHistory, 1)
	assert.Equal(t, testHash, p.ContentHistory[0].ContentHash)
	assert.Equal(t, "flickr", p.ContentHistory[0].Service)
}

func TestHasBlockingConflicts(t *testing.T) {
	p := New()
	assert.False(t, p.HasBlockingConflicts())

	p.AddConflict(Conflict{
		Type:               ConflictDuplicateDetected,
		Description:        "same bytes twice on flickr",
		Services:           []string{"flickr"},
		ResolutionRequired: false,
	})
	assert.False(t, p.HasBlockingConflicts())

	p.AddConflict(Conflict{
		Type:               ConflictMetadataMismatch,
		Description:        "caption disagrees",
		Services:           []string{"flickr", "google-photos"},
		ResolutionRequired: true,
	})
	assert.True(t, p.HasBlockingConflicts())
}

func TestTouchMonotonic(t *testing.T) {
	p := New()
	before := p.UpdatedAt
	p.Touch()
	assert.False(t, p.UpdatedAt.Before(before))
}

func TestValidate(t *testing.T) {
	valid := func() *Photo {
		p := New()
		p.ContentHash = testHash
		p.CanonicalSource = "flickr:42"
		p.SetInstance("flickr", &Instance{ID: "42", Quality: QualityOriginal})
		return p
	}

	tests := []struct {
		name    string
		mutate  func(*Photo)
		wantErr string
	}{
		{"valid", func(*Photo) {}, ""},
		{"missing id", func(p *Photo) { p.PhotoID = "" }, "photo_id"},
		{"bad state", func(p *Photo) { p.ProcessingState = "archived" }, "processing_state"},
		{"bad hash", func(p *Photo) { p.ContentHash = "md5:abc" }, "content_hash"},
		{"bad canonical source", func(p *Photo) { p.CanonicalSource = "flickr" }, "canonical_source"},
		{"bad service key", func(p *Photo) {
			p.Instances["not ok"] = &Instance{ID: "1", Quality: QualityLow}
		}, "instances"},
		{"bad quality", func(p *Photo) {
			p.Instances["flickr"].Quality = "potato"
		}, "quality"},
		{"lat out of range", func(p *Photo) {
			p.Metadata.Location = &Location{Lat: 91, Lng: 0}
		}, "lat"},
		{"lng out of range", func(p *Photo) {
			p.Metadata.Location = &Location{Lat: 0, Lng: -181}
		}, "lng"},
		{"zero dimensions", func(p *Photo) {
			p.Metadata.Dimensions = &Dimensions{Width: 0, Height: 100}
		}, "dimensions"},
		{"negative file size", func(p *Photo) { p.Metadata.FileSize = -1 }, "file_size"},
		{"duplicate tags", func(p *Photo) { p.Metadata.Tags = []string{"a", "a"} }, "tags"},
		{"bad visibility", func(p *Photo) { p.Visibility.Canonical = "hidden" }, "visibility"},
		{"conflict without services", func(p *Photo) {
			p.Conflicts = append(p.Conflicts, Conflict{Type: ConflictVisibility})
		}, "service"},
		{"updated before created", func(p *Photo) {
			p.UpdatedAt = utc.Time{}
			p.CreatedAt = utc.Now()
		}, "updated_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
