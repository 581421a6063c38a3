package photos

import (
	"slices"
	"sort"

	"github.com/agentstation/utc"
)

// Metadata is the best-known descriptive data for a photo. Every field is
// independently nullable; absence means no contributing service has reported
// a value yet.
type Metadata struct {
	TakenDate  *utc.Time   `json:"taken_date,omitempty"`
	Filename   string      `json:"filename,omitempty"`
	Location   *Location   `json:"location,omitempty"`
	Tags       []string    `json:"tags,omitempty"` // Set semantics, kept sorted and unique
	Caption    string      `json:"caption,omitempty"`
	CameraInfo *CameraInfo `json:"camera_info,omitempty"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
	FileSize   int64       `json:"file_size,omitempty"`
}

// Location is a geographic position with an optional reverse-geocoded address.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Equal reports whether two locations describe the same position and address.
func (l *Location) Equal(other *Location) bool {
	if l == nil || other == nil {
		return l == other
	}
	return l.Lat == other.Lat && l.Lng == other.Lng && l.Address == other.Address
}

// CameraInfo is camera or device information from EXIF or service metadata.
type CameraInfo struct {
	Make     string            `json:"make,omitempty"`
	Model    string            `json:"model,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
}

// Equal reports whether two camera records agree.
func (c *CameraInfo) Equal(other *CameraInfo) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.Make != other.Make || c.Model != other.Model {
		return false
	}
	if len(c.Settings) != len(other.Settings) {
		return false
	}
	for k, v := range c.Settings {
		if other.Settings[k] != v {
			return false
		}
	}
	return true
}

// Dimensions is the pixel size of the full-resolution image.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Equal reports whether two dimension records agree.
func (d *Dimensions) Equal(other *Dimensions) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.Width == other.Width && d.Height == other.Height
}

// AddTags merges tags into the set, keeping it sorted and unique.
func (m *Metadata) AddTags(tags ...string) {
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if !slices.Contains(m.Tags, tag) {
			m.Tags = append(m.Tags, tag)
		}
	}
	sort.Strings(m.Tags)
}

// HasTag reports whether the tag set contains the given tag.
func (m *Metadata) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}
