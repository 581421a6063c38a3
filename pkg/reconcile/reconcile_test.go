package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photokeep/photosync/internal/blobstore"
	"github.com/photokeep/photosync/internal/config"
	"github.com/photokeep/photosync/internal/recordstore"
	"github.com/photokeep/photosync/pkg/conflicts"
	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/services"
)

type fixture struct {
	engine *Engine
	store  *recordstore.Memory
	blobs  *blobstore.Memory
	fakes  map[string]*services.Fake
}

func newFixture(t *testing.T, serviceKeys ...string) *fixture {
	t.Helper()
	registry := services.NewRegistry()
	fakes := make(map[string]*services.Fake)
	for _, key := range serviceKeys {
		fake := services.NewFake(key)
		require.NoError(t, registry.Register(fake))
		fakes[key] = fake
	}

	cfg := &config.Config{
		RepoPath:          t.TempDir(),
		Backend:           config.BackendFiles,
		Workers:           4,
		DefaultVisibility: photos.LevelPrivate,
	}
	store := recordstore.NewMemory()
	blobs := blobstore.NewMemory()

	return &fixture{
		engine: NewEngine(cfg, store, blobs, registry),
		store:  store,
		blobs:  blobs,
		fakes:  fakes,
	}
}

func (f *fixture) observe(service string, content []byte, serviceID, caption string) {
	hash := blobstore.HashBytes(content)
	f.fakes[service].Observe(services.Observation{
		Service:     service,
		ServiceID:   serviceID,
		ContentHash: hash,
		Quality:     photos.QualityOriginal,
		Visibility:  photos.LevelPrivate,
		Metadata:    photos.Metadata{Caption: caption},
		ObservedAt:  utc.Now(),
	})
	f.fakes[service].SetBytes(serviceID, content)
}

func (f *fixture) all(t *testing.T) []*photos.Photo {
	t.Helper()
	stored, err := f.store.List(context.Background(), recordstore.Filter{})
	require.NoError(t, err)
	out := make([]*photos.Photo, 0, len(stored))
	for _, s := range stored {
		out = append(out, s.Photo)
	}
	return out
}

func TestDiscoveryIsIdempotent(t *testing.T) {
	f := newFixture(t, "flickr")
	ctx := context.Background()
	f.observe("flickr", []byte("photo one"), "f-1", "sunset")

	report, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.False(t, report.Failed())

	// The same observations again: no new photos, no new conflicts.
	report, err = f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)
	assert.Zero(t, report.Created)

	all := f.all(t)
	require.Len(t, all, 1)
	assert.Empty(t, all[0].Conflicts)
}

func TestFullPipeline(t *testing.T) {
	f := newFixture(t, "flickr", "smugmug")
	ctx := context.Background()
	content := []byte("photo one")
	f.observe("flickr", content, "f-1", "sunset")
	f.observe("smugmug", content, "s-1", "sunset")

	_, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)

	// Identical hash folds both services into one photo.
	all := f.all(t)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Instances, 2)

	report, err := f.engine.Resolve(ctx, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Empty(t, report.Pending)

	report, err = f.engine.Replicate(ctx, ReplicateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Replicated)
	assert.False(t, report.Failed())

	p := f.all(t)[0]
	assert.Equal(t, photos.StateReplicated, p.ProcessingState)
	secured, err := f.blobs.Exists(ctx, p.ContentHash)
	require.NoError(t, err)
	assert.True(t, secured, "authoritative bytes must be in the blob store")

	// A second replication pass finds nothing to do.
	report, err = f.engine.Replicate(ctx, ReplicateOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.Processed)

	status, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ByState[photos.StateReplicated])
	assert.Equal(t, 1, status.SecuredBlobs)
}

func TestCaptionConflictBlocksUntilDecided(t *testing.T) {
	f := newFixture(t, "flickr", "smugmug")
	ctx := context.Background()
	content := []byte("photo one")
	f.observe("flickr", content, "f-1", "sunset")
	f.observe("smugmug", content, "s-1", "Sunset over the bay")

	_, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)

	report, err := f.engine.Resolve(ctx, ResolveOptions{AutoOnly: true})
	require.NoError(t, err)
	assert.Zero(t, report.Resolved, "a blocking conflict must hold the photo at discovered")
	require.Len(t, report.Pending, 1)
	request := report.Pending[0]
	assert.Equal(t, photos.ConflictMetadataMismatch, request.Type)

	// Replication has nothing to do while the photo is blocked.
	repl, err := f.engine.Replicate(ctx, ReplicateOptions{})
	require.NoError(t, err)
	assert.Zero(t, repl.Processed)

	report, err = f.engine.Resolve(ctx, ResolveOptions{Decisions: []conflicts.Decision{{
		PhotoID:     request.PhotoID,
		ConflictKey: request.ConflictKey,
		Choice:      conflicts.ChoiceUseObserved,
	}}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Empty(t, report.Pending)

	p := f.all(t)[0]
	assert.Equal(t, photos.StateResolved, p.ProcessingState)
	assert.Equal(t, "Sunset over the bay", p.Metadata.Caption)
}

func TestVisibilityWideningNeedsApproval(t *testing.T) {
	f := newFixture(t, "flickr")
	ctx := context.Background()
	content := []byte("photo one")
	f.fakes["flickr"].SetBytes("f-1", content)
	f.fakes["flickr"].Observe(services.Observation{
		Service:     "flickr",
		ServiceID:   "f-1",
		ContentHash: blobstore.HashBytes(content),
		Quality:     photos.QualityOriginal,
		Visibility:  photos.LevelPublic,
		ObservedAt:  utc.Now(),
	})

	_, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)

	report, err := f.engine.Resolve(ctx, ResolveOptions{AutoOnly: true})
	require.NoError(t, err)
	assert.Zero(t, report.Resolved)
	require.Len(t, report.Pending, 1)
	request := report.Pending[0]
	assert.Equal(t, photos.ConflictVisibility, request.Type)

	p := f.all(t)[0]
	assert.Equal(t, photos.LevelPrivate, p.Visibility.Canonical, "canonical stays private until approval")

	report, err = f.engine.Resolve(ctx, ResolveOptions{Decisions: []conflicts.Decision{{
		PhotoID:     request.PhotoID,
		ConflictKey: request.ConflictKey,
		Choice:      conflicts.ChoiceApprove,
	}}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)

	p = f.all(t)[0]
	assert.Equal(t, photos.LevelPublic, p.Visibility.Canonical)
}

func TestRediscoveryKeepsApprovedWidening(t *testing.T) {
	f := newFixture(t, "flickr", "smugmug")
	ctx := context.Background()
	content := []byte("photo one")
	hash := blobstore.HashBytes(content)
	f.fakes["flickr"].SetBytes("f-1", content)
	f.fakes["smugmug"].SetBytes("s-1", content)
	f.fakes["flickr"].Observe(services.Observation{
		Service:     "flickr",
		ServiceID:   "f-1",
		ContentHash: hash,
		Quality:     photos.QualityOriginal,
		Visibility:  photos.LevelPublic,
		ObservedAt:  utc.Now(),
	})
	f.fakes["smugmug"].Observe(services.Observation{
		Service:     "smugmug",
		ServiceID:   "s-1",
		ContentHash: hash,
		Quality:     photos.QualityOriginal,
		Visibility:  photos.LevelPrivate,
		ObservedAt:  utc.Now(),
	})

	_, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)

	report, err := f.engine.Resolve(ctx, ResolveOptions{AutoOnly: true})
	require.NoError(t, err)
	require.Len(t, report.Pending, 1)
	request := report.Pending[0]
	require.Equal(t, photos.ConflictVisibility, request.Type)

	_, err = f.engine.Resolve(ctx, ResolveOptions{Decisions: []conflicts.Decision{{
		PhotoID:     request.PhotoID,
		ConflictKey: request.ConflictKey,
		Choice:      conflicts.ChoiceApprove,
	}}})
	require.NoError(t, err)
	require.Equal(t, photos.LevelPublic, f.all(t)[0].Visibility.Canonical)

	// Discovery runs again before replication pushed the widening; smugmug
	// still reports the old private level.
	_, err = f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)

	p := f.all(t)[0]
	assert.Equal(t, photos.LevelPublic, p.Visibility.Canonical, "approved widening must survive rediscovery")
	require.Len(t, p.Visibility.Discrepancies, 1)
	assert.Equal(t, "smugmug", p.Visibility.Discrepancies[0].Service)
}

func TestReopenOnChangedContent(t *testing.T) {
	f := newFixture(t, "flickr")
	ctx := context.Background()
	original := []byte("photo one")
	f.observe("flickr", original, "f-1", "sunset")

	_, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)
	_, err = f.engine.Resolve(ctx, ResolveOptions{})
	require.NoError(t, err)
	_, err = f.engine.Replicate(ctx, ReplicateOptions{})
	require.NoError(t, err)
	require.Equal(t, photos.StateReplicated, f.all(t)[0].ProcessingState)

	// The bytes behind the same service id change.
	edited := []byte("photo one, edited")
	f.observe("flickr", edited, "f-1", "sunset")

	report, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reopened)

	p := f.all(t)[0]
	assert.Equal(t, photos.StateDiscovered, p.ProcessingState)
	assert.Equal(t, blobstore.HashBytes(edited), p.ContentHash)
	require.Len(t, p.ContentHistory, 1)
	assert.Equal(t, blobstore.HashBytes(original), p.ContentHistory[0].ContentHash)
}

func TestCrossEntityDuplicatesEscalate(t *testing.T) {
	f := newFixture(t, "flickr", "smugmug")
	ctx := context.Background()
	hash := blobstore.HashBytes([]byte("photo one"))

	// Two photos exist before either service reports a hash.
	ids := map[string]string{"flickr": "f-1", "smugmug": "s-1"}
	for service, id := range ids {
		f.fakes[service].Observe(services.Observation{
			Service:    service,
			ServiceID:  id,
			Quality:    photos.QualityOriginal,
			Visibility: photos.LevelPrivate,
			ObservedAt: utc.Now(),
		})
	}
	_, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)
	require.Len(t, f.all(t), 2)

	// Both identities later learn the same hash.
	for service, id := range ids {
		f.fakes[service].Observe(services.Observation{
			Service:     service,
			ServiceID:   id,
			ContentHash: hash,
			Quality:     photos.QualityOriginal,
			Visibility:  photos.LevelPrivate,
			ObservedAt:  utc.Now(),
		})
	}
	_, err = f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)

	blocked := 0
	for _, p := range f.all(t) {
		for _, c := range p.Conflicts {
			if c.Type == photos.ConflictDuplicateDetected && c.ResolutionRequired {
				blocked++
			}
		}
	}
	assert.Equal(t, 2, blocked, "both identities carry a manual duplicate conflict")

	report, err := f.engine.Resolve(ctx, ResolveOptions{AutoOnly: true})
	require.NoError(t, err)
	assert.Zero(t, report.Resolved, "merging identities is never automatic")
}

func TestDryRunInvokesNoAdapters(t *testing.T) {
	f := newFixture(t, "flickr")
	ctx := context.Background()
	f.observe("flickr", []byte("photo one"), "f-1", "sunset")

	_, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)
	_, err = f.engine.Resolve(ctx, ResolveOptions{})
	require.NoError(t, err)

	report, err := f.engine.Replicate(ctx, ReplicateOptions{DryRun: true})
	require.NoError(t, err)

	require.Len(t, report.PlannedActions, 1)
	assert.Empty(t, f.fakes["flickr"].PushedMetadata, "dry run must not touch the service")

	// Nothing advanced; a real run still has the full plan to execute.
	p := f.all(t)[0]
	assert.Equal(t, photos.StateResolved, p.ProcessingState)
}

func TestPerPhotoFailureIsolation(t *testing.T) {
	f := newFixture(t, "flickr")
	ctx := context.Background()
	f.observe("flickr", []byte("photo one"), "f-1", "a")

	// The second photo's bytes are never available, so its download fails.
	f.fakes["flickr"].Observe(services.Observation{
		Service:     "flickr",
		ServiceID:   "f-2",
		ContentHash: blobstore.HashBytes([]byte("photo two")),
		Quality:     photos.QualityOriginal,
		Visibility:  photos.LevelPrivate,
		ObservedAt:  utc.Now(),
	})

	_, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)
	_, err = f.engine.Resolve(ctx, ResolveOptions{})
	require.NoError(t, err)

	report, err := f.engine.Replicate(ctx, ReplicateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed, "one photo's failure must not abort the batch")
	assert.Equal(t, 1, report.Replicated)
}

func TestStatusCounts(t *testing.T) {
	f := newFixture(t, "flickr")
	ctx := context.Background()
	f.observe("flickr", []byte("photo one"), "f-1", "a")

	_, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)

	status, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Total)
	assert.Equal(t, 1, status.ByState[photos.StateDiscovered])
	assert.Equal(t, 1, status.ByService["flickr"])
	assert.Equal(t, 1, status.WithHash)
	assert.Zero(t, status.SecuredBlobs)
}

func TestAuditFindsExposure(t *testing.T) {
	f := newFixture(t, "flickr")
	ctx := context.Background()
	f.observe("flickr", []byte("photo one"), "f-1", "a")
	_, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)

	// Simulate a service widening the photo behind our back.
	p := f.all(t)[0]
	_, err = f.engine.update(ctx, p.PhotoID, func(rec *photos.Photo) error {
		rec.Visibility.SetObserved("flickr", photos.LevelPublic)
		return nil
	})
	require.NoError(t, err)

	findings, err := f.engine.Audit(ctx, AuditOptions{VisibilityCheck: true})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "visibility_exposure", findings[0].Kind)
}

func TestCheckpointAdvancesOnDiscovery(t *testing.T) {
	f := newFixture(t, "flickr")
	ctx := context.Background()
	f.observe("flickr", []byte("photo one"), "f-1", "a")

	require.True(t, f.engine.checkpoints.LastDiscovery("flickr").IsZero())
	start := time.Now()
	_, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)

	// The watermark lands inside the run, at the moment listing began.
	watermark := f.engine.checkpoints.LastDiscovery("flickr")
	require.False(t, watermark.IsZero())
	assert.False(t, watermark.Before(start))
	assert.False(t, watermark.After(time.Now()))
}

func TestDiscoveryCatchesChangesDuringSlowListing(t *testing.T) {
	f := newFixture(t, "flickr")
	ctx := context.Background()
	f.observe("flickr", []byte("photo one"), "f-1", "a")
	f.fakes["flickr"].ListDelay = 100 * time.Millisecond

	// A second photo appears while the first listing is still in flight.
	injected := make(chan struct{})
	go func() {
		defer close(injected)
		time.Sleep(30 * time.Millisecond)
		f.observe("flickr", []byte("photo two"), "f-2", "b")
	}()

	report, err := f.engine.Discover(ctx, DiscoverOptions{})
	require.NoError(t, err)
	<-injected
	assert.Equal(t, 1, report.Created, "the in-flight photo is not in the first snapshot")

	// The watermark predates the in-flight change, so the next incremental
	// run still picks it up.
	report, err = f.engine.Discover(ctx, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Len(t, f.all(t), 2)
}

func TestAutoOnlyNeverAdvances(t *testing.T) {
	f := newFixture(t, "flickr")
	ctx := context.Background()
	f.observe("flickr", []byte("photo one"), "f-1", "a")
	_, err := f.engine.Discover(ctx, DiscoverOptions{FullScan: true})
	require.NoError(t, err)

	report, err := f.engine.Resolve(ctx, ResolveOptions{AutoOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Zero(t, report.Resolved)
	assert.Equal(t, photos.StateDiscovered, f.all(t)[0].ProcessingState)

	// A regular pass advances the same unblocked photo.
	report, err = f.engine.Resolve(ctx, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, photos.StateResolved, f.all(t)[0].ProcessingState)
}
