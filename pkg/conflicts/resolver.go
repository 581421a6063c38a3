package conflicts

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/utc"

	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/visibility"
)

// Choice is one way to settle a conflict.
type Choice string

// Decision choices.
const (
	ChoiceKeepCanonical Choice = "keep_canonical" // Canonical value stands; divergent services converge to it
	ChoiceUseObserved   Choice = "use_observed"   // Adopt the observed value as canonical
	ChoiceCustom        Choice = "custom"         // Adopt a caller-supplied merge value
	ChoiceApprove       Choice = "approve"        // Approve a visibility widening
	ChoiceKeepSeparate  Choice = "keep_separate"  // Keep two photo identities distinct
	ChoiceSkip          Choice = "skip"           // Leave the conflict pending
)

// Option is one candidate choice in a decision request.
type Option struct {
	Choice Choice `json:"choice"`
	Label  string `json:"label"`
	Value  string `json:"value,omitempty"` // The value this choice adopts, when known
}

// DecisionRequest describes one conflict awaiting a manual decision. The
// engine emits requests; any front end supplies a Decision back.
type DecisionRequest struct {
	PhotoID     string              `json:"photo_id"`
	ConflictKey string              `json:"conflict_key"`
	Type        photos.ConflictType `json:"type"`
	Description string              `json:"description"`
	Services    []string            `json:"services"`
	Options     []Option            `json:"options"`
}

// Decision settles one conflict.
type Decision struct {
	PhotoID     string `json:"photo_id"`
	ConflictKey string `json:"conflict_key"`
	Choice      Choice `json:"choice"`
	Value       string `json:"value,omitempty"` // Custom merge value for ChoiceCustom
}

// Resolver applies automatic resolution rules and the manual decision
// protocol.
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// AutoResolve applies the automatic rules to every open conflict:
// informational duplicates settle as auto_resolved, while anything that
// requires a human moves to pending_manual and keeps blocking the photo.
// Returns the number of conflicts settled automatically.
func (r *Resolver) AutoResolve(p *photos.Photo) int {
	settled := 0
	for i := range p.Conflicts {
		c := &p.Conflicts[i]
		switch {
		case c.Status == photos.ConflictResolved || c.Status == photos.ConflictAutoResolved:
		case !c.ResolutionRequired:
			c.Status = photos.ConflictAutoResolved
			settled++
		case c.Status != photos.ConflictPendingManual:
			c.Status = photos.ConflictPendingManual
		}
	}
	if settled > 0 {
		p.Touch()
	}
	return settled
}

// PendingRequests builds a decision request for every conflict still
// requiring manual resolution, in the record's stable conflict order.
func (r *Resolver) PendingRequests(p *photos.Photo) []DecisionRequest {
	var out []DecisionRequest
	for _, c := range p.Conflicts {
		if !c.ResolutionRequired {
			continue
		}
		out = append(out, DecisionRequest{
			PhotoID:     p.PhotoID,
			ConflictKey: c.Key(),
			Type:        c.Type,
			Description: c.Description,
			Services:    append([]string(nil), c.Services...),
			Options:     optionsFor(c),
		})
	}
	return out
}

func optionsFor(c photos.Conflict) []Option {
	switch c.Type {
	case photos.ConflictMetadataMismatch:
		return []Option{
			{Choice: ChoiceKeepCanonical, Label: "keep canonical value", Value: stringDetail(c.Details, "canonical")},
			{Choice: ChoiceUseObserved, Label: "use " + stringDetail(c.Details, "service") + " value", Value: stringDetail(c.Details, "observed")},
			{Choice: ChoiceCustom, Label: "enter a merged value"},
			{Choice: ChoiceSkip, Label: "decide later"},
		}
	case photos.ConflictVisibility:
		return []Option{
			{Choice: ChoiceApprove, Label: "approve widening", Value: stringDetail(c.Details, "observed")},
			{Choice: ChoiceKeepCanonical, Label: "keep canonical, narrow the service", Value: stringDetail(c.Details, "canonical")},
			{Choice: ChoiceSkip, Label: "decide later"},
		}
	case photos.ConflictDuplicateDetected:
		return []Option{
			{Choice: ChoiceKeepSeparate, Label: "keep both photo identities"},
			{Choice: ChoiceSkip, Label: "decide later"},
		}
	default:
		return []Option{
			{Choice: ChoiceKeepCanonical, Label: "acknowledge"},
			{Choice: ChoiceSkip, Label: "decide later"},
		}
	}
}

// Apply settles one conflict according to a decision. Skip leaves the
// conflict pending_manual and the photo blocked; every other choice clears
// ResolutionRequired, mutates the relevant fields, and stamps the record.
func (r *Resolver) Apply(p *photos.Photo, d Decision) error {
	if d.PhotoID != p.PhotoID {
		return errors.NewValidationError("photo_id", d.PhotoID, "decision does not belong to this photo")
	}

	idx := -1
	for i, c := range p.Conflicts {
		if c.Key() == d.ConflictKey && c.ResolutionRequired {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.NewNotFoundError("conflict", d.ConflictKey)
	}
	c := &p.Conflicts[idx]

	switch d.Choice {
	case ChoiceSkip:
		c.Status = photos.ConflictPendingManual
		return nil

	case ChoiceKeepCanonical:
		// Canonical stands; replication converges the divergent services.
		c.ResolutionRequired = false
		c.Status = photos.ConflictResolved

	case ChoiceUseObserved:
		if c.Type != photos.ConflictMetadataMismatch {
			return errors.NewValidationError("choice", string(d.Choice), "only metadata conflicts carry an observed value")
		}
		if err := applyField(p, stringDetail(c.Details, "field"), stringDetail(c.Details, "observed")); err != nil {
			return err
		}
		c.ResolutionRequired = false
		c.Status = photos.ConflictResolved

	case ChoiceCustom:
		if c.Type != photos.ConflictMetadataMismatch {
			return errors.NewValidationError("choice", string(d.Choice), "only metadata conflicts accept a custom value")
		}
		if err := applyField(p, stringDetail(c.Details, "field"), d.Value); err != nil {
			return err
		}
		c.ResolutionRequired = false
		c.Status = photos.ConflictResolved

	case ChoiceApprove:
		if c.Type != photos.ConflictVisibility {
			return errors.NewValidationError("choice", string(d.Choice), "approve only applies to visibility conflicts")
		}
		level := photos.Level(stringDetail(c.Details, "observed"))
		return visibility.Approve(p, level)

	case ChoiceKeepSeparate:
		if c.Type != photos.ConflictDuplicateDetected {
			return errors.NewValidationError("choice", string(d.Choice), "keep_separate only applies to duplicate conflicts")
		}
		c.ResolutionRequired = false
		c.Status = photos.ConflictResolved

	default:
		return errors.NewValidationError("choice", string(d.Choice), "unknown choice")
	}

	p.Touch()
	return nil
}

// applyField writes a decided value into the canonical metadata. Values
// arrive in the same string form the conflict recorded them in.
func applyField(p *photos.Photo, field, value string) error {
	switch field {
	case "caption":
		p.Metadata.Caption = value
	case "filename":
		p.Metadata.Filename = value
	case "taken_date":
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return errors.NewValidationError(field, value, "must be RFC 3339")
		}
		ts := utc.Time{Time: parsed.UTC()}
		p.Metadata.TakenDate = &ts
	case "file_size":
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil || size < 0 {
			return errors.NewValidationError(field, value, "must be a non-negative integer")
		}
		p.Metadata.FileSize = size
	case "location":
		parts := strings.SplitN(value, ",", 2)
		if len(parts) != 2 {
			return errors.NewValidationError(field, value, "must be lat,lng")
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errLat != nil || errLng != nil {
			return errors.NewValidationError(field, value, "must be lat,lng")
		}
		p.Metadata.Location = &photos.Location{Lat: lat, Lng: lng}
	case "dimensions":
		parts := strings.SplitN(value, "x", 2)
		if len(parts) != 2 {
			return errors.NewValidationError(field, value, "must be WIDTHxHEIGHT")
		}
		width, errW := strconv.Atoi(parts[0])
		height, errH := strconv.Atoi(parts[1])
		if errW != nil || errH != nil || width < 1 || height < 1 {
			return errors.NewValidationError(field, value, "must be WIDTHxHEIGHT")
		}
		p.Metadata.Dimensions = &photos.Dimensions{Width: width, Height: height}
	case "camera_info":
		parts := strings.SplitN(value, " ", 2)
		info := &photos.CameraInfo{Make: parts[0]}
		if len(parts) == 2 {
			info.Model = parts[1]
		}
		p.Metadata.CameraInfo = info
	default:
		return errors.NewValidationError("field", field, fmt.Sprintf("no manual merge rule for %q", field))
	}
	return nil
}

func stringDetail(details map[string]any, key string) string {
	if details == nil {
		return ""
	}
	s, _ := details[key].(string)
	return s
}

func sortedServices(p *photos.Photo) []string {
	out := p.Services()
	sort.Strings(out)
	return out
}
