package canonical

import (
	"sort"

	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/services"
)

// Index maps content hashes and service instances to photo identities so
// observations can be matched without rescanning the store. The engine
// builds one per run from the record listing and keeps it current as photos
// are created and merged.
type Index struct {
	byHash     map[string][]string // content hash -> photo ids, insertion order
	byInstance map[string]string   // service:id -> photo id
}

// NewIndex builds an index over existing records.
func NewIndex(records []*photos.Photo) *Index {
	idx := &Index{
		byHash:     make(map[string][]string),
		byInstance: make(map[string]string),
	}
	for _, p := range records {
		idx.Add(p)
	}
	return idx
}

// Add indexes one photo, updating any entries it already has.
func (idx *Index) Add(p *photos.Photo) {
	if p.ContentHash != "" && !contains(idx.byHash[p.ContentHash], p.PhotoID) {
		idx.byHash[p.ContentHash] = append(idx.byHash[p.ContentHash], p.PhotoID)
	}
	for service, inst := range p.Instances {
		idx.byInstance[photos.CanonicalRef(service, inst.ID)] = p.PhotoID
	}
}

// Match resolves an observation to an existing photo identity. Content hash
// wins over instance identity: the hash is the primary dedup key.
func (idx *Index) Match(obs services.Observation) (string, bool) {
	if obs.ContentHash != "" {
		if ids := idx.byHash[obs.ContentHash]; len(ids) > 0 {
			return ids[0], true
		}
	}
	if id, ok := idx.byInstance[obs.Ref()]; ok {
		return id, true
	}
	return "", false
}

// DuplicateIdentities returns the photo ids sharing one content hash, in
// lexical order, for every hash held by more than one identity. These are
// the cross-entity duplicates that require manual resolution.
func (idx *Index) DuplicateIdentities() map[string][]string {
	out := make(map[string][]string)
	for hash, ids := range idx.byHash {
		if len(ids) < 2 {
			continue
		}
		sorted := append([]string(nil), ids...)
		sort.Strings(sorted)
		out[hash] = sorted
	}
	return out
}
