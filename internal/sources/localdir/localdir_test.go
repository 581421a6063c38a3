package localdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photokeep/photosync/pkg/photos"
)

func writeFile(t *testing.T, root, rel string, content []byte) string {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, content, 0o644))
	return full
}

func TestListChangedObservesImages(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "2024/beach.jpg", []byte("beach bytes"))
	writeFile(t, root, "2024/notes.txt", []byte("not a photo"))
	writeFile(t, root, "2024/beach.jpg.meta.json", []byte(`{"caption":"low tide","tags":["sea"],"visibility":"friends"}`))

	adapter, err := New("archive", root)
	require.NoError(t, err)

	obs, err := adapter.ListChanged(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, obs, 1)

	o := obs[0]
	assert.Equal(t, "archive", o.Service)
	assert.Equal(t, "2024/beach.jpg", o.ServiceID)
	assert.Equal(t, photos.QualityOriginal, o.Quality)
	assert.Equal(t, photos.LevelFriends, o.Visibility)
	assert.Equal(t, "low tide", o.Metadata.Caption)
	assert.Equal(t, []string{"sea"}, o.Metadata.Tags)
	assert.Equal(t, "beach.jpg", o.Metadata.Filename)
	assert.NoError(t, o.Validate())
}

func TestListChangedHonorsSince(t *testing.T) {
	root := t.TempDir()
	old := writeFile(t, root, "old.jpg", []byte("old"))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	writeFile(t, root, "new.jpg", []byte("new"))

	adapter, err := New("archive", root)
	require.NoError(t, err)

	obs, err := adapter.ListChanged(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "new.jpg", obs[0].ServiceID)
}

func TestFetchBytesRejectsEscape(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.jpg", []byte("a"))

	adapter, err := New("archive", root)
	require.NoError(t, err)

	_, err = adapter.FetchBytes(context.Background(), "../outside.jpg")
	assert.Error(t, err)

	raw, err := adapter.FetchBytes(context.Background(), "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), raw)
}

func TestPushMetadataAndVisibilityRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.jpg", []byte("a"))

	adapter, err := New("archive", root)
	require.NoError(t, err)
	ctx := context.Background()

	meta := photos.Metadata{Caption: "sunset", Tags: []string{"golden", "hour"}}
	require.NoError(t, adapter.PushMetadata(ctx, "a.jpg", meta))
	require.NoError(t, adapter.SetVisibility(ctx, "a.jpg", photos.LevelPublic))

	obs, err := adapter.ListChanged(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "sunset", obs[0].Metadata.Caption)
	assert.Equal(t, []string{"golden", "hour"}, obs[0].Metadata.Tags)
	assert.Equal(t, photos.LevelPublic, obs[0].Visibility)
}
