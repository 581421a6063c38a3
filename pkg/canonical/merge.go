package canonical

import (
	"fmt"
	"sort"

	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/services"
)

// mergeMetadata folds observed metadata into the canonical record, field by
// field. Null observed fields never erase known values; null canonical
// fields adopt observed values silently; two non-null values that disagree
// become a metadata_mismatch conflict and the canonical value stands until
// someone resolves it. Tags are the one exception: set semantics make union
// the lossless merge, so they combine without conflict.
func (c *Canonicalizer) mergeMetadata(p *photos.Photo, obs services.Observation) {
	meta := &p.Metadata
	o := obs.Metadata

	if o.TakenDate != nil {
		if meta.TakenDate == nil {
			meta.TakenDate = o.TakenDate
		} else if !meta.TakenDate.Equal(*o.TakenDate) {
			c.mismatch(p, obs, "taken_date", meta.TakenDate.String(), o.TakenDate.String())
		}
	}
	if o.Filename != "" {
		if meta.Filename == "" {
			meta.Filename = o.Filename
		} else if meta.Filename != o.Filename {
			c.mismatch(p, obs, "filename", meta.Filename, o.Filename)
		}
	}
	if o.Caption != "" {
		if meta.Caption == "" {
			meta.Caption = o.Caption
		} else if meta.Caption != o.Caption {
			c.mismatch(p, obs, "caption", meta.Caption, o.Caption)
		}
	}
	if o.Location != nil {
		if meta.Location == nil {
			meta.Location = o.Location
		} else if !meta.Location.Equal(o.Location) {
			c.mismatch(p, obs, "location",
				fmt.Sprintf("%v,%v", meta.Location.Lat, meta.Location.Lng),
				fmt.Sprintf("%v,%v", o.Location.Lat, o.Location.Lng))
		}
	}
	if o.CameraInfo != nil {
		if meta.CameraInfo == nil {
			meta.CameraInfo = o.CameraInfo
		} else if !meta.CameraInfo.Equal(o.CameraInfo) {
			c.mismatch(p, obs, "camera_info",
				meta.CameraInfo.Make+" "+meta.CameraInfo.Model,
				o.CameraInfo.Make+" "+o.CameraInfo.Model)
		}
	}
	if o.Dimensions != nil {
		if meta.Dimensions == nil {
			meta.Dimensions = o.Dimensions
		} else if !meta.Dimensions.Equal(o.Dimensions) {
			c.mismatch(p, obs, "dimensions",
				fmt.Sprintf("%dx%d", meta.Dimensions.Width, meta.Dimensions.Height),
				fmt.Sprintf("%dx%d", o.Dimensions.Width, o.Dimensions.Height))
		}
	}
	if o.FileSize > 0 {
		if meta.FileSize == 0 {
			meta.FileSize = o.FileSize
		} else if meta.FileSize != o.FileSize {
			c.mismatch(p, obs, "file_size",
				fmt.Sprintf("%d", meta.FileSize),
				fmt.Sprintf("%d", o.FileSize))
		}
	}
	if len(o.Tags) > 0 {
		meta.AddTags(o.Tags...)
	}
}

// mismatch records a metadata_mismatch conflict naming every service that
// carries an instance of the photo, the observing service included.
func (c *Canonicalizer) mismatch(p *photos.Photo, obs services.Observation, field, canonicalValue, observedValue string) {
	contributors := sortedServices(p)
	if !contains(contributors, obs.Service) {
		contributors = append(contributors, obs.Service)
		sort.Strings(contributors)
	}
	c.recordConflict(p, photos.Conflict{
		Type:               photos.ConflictMetadataMismatch,
		Description:        fmt.Sprintf("services disagree on %s", field),
		Services:           contributors,
		ResolutionRequired: true,
		Status:             photos.ConflictOpen,
		Details: map[string]any{
			"field":     field,
			"canonical": canonicalValue,
			"observed":  observedValue,
			"service":   obs.Service,
		},
	})
}

func sortedServices(p *photos.Photo) []string {
	out := p.Services()
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
