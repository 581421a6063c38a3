package photos

// Level is a visibility level, totally ordered private < friends < public.
type Level string

// Visibility levels, most restrictive first.
const (
	LevelPrivate Level = "private"
	LevelFriends Level = "friends"
	LevelPublic  Level = "public"
)

// levelRank orders levels by exposure: lower is more restrictive.
var levelRank = map[Level]int{
	LevelPrivate: 0,
	LevelFriends: 1,
	LevelPublic:  2,
}

// String returns the string representation of a visibility level.
func (l Level) String() string {
	return string(l)
}

// Valid reports whether l is a known visibility level.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// MoreRestrictive reports whether l exposes strictly less than other.
func (l Level) MoreRestrictive(other Level) bool {
	return levelRank[l] < levelRank[other]
}

// MostRestrictive returns the most restrictive of the given levels.
// Returns LevelPrivate when called with no levels.
func MostRestrictive(levels ...Level) Level {
	result := LevelPublic
	if len(levels) == 0 {
		return LevelPrivate
	}
	for _, l := range levels {
		if l.MoreRestrictive(result) {
			result = l
		}
	}
	return result
}

// Visibility tracks the canonical privacy level and how each service
// currently diverges from it.
//
// ApprovedLevel and ApprovedPending persist an explicitly approved widening:
// canonical was raised to ApprovedLevel while the listed services still
// showed the narrower levels captured here, awaiting push. Until replication
// converges them, those levels are push targets rather than narrowing
// signals.
type Visibility struct {
	Canonical       Level            `json:"canonical"`
	PerService      map[string]Level `json:"per_service,omitempty"`
	ApprovedLevel   Level            `json:"approved_level,omitempty"`
	ApprovedPending map[string]Level `json:"approved_pending,omitempty"`
	Discrepancies   []Discrepancy    `json:"discrepancies,omitempty"`
}

// Discrepancy records a mismatch between a service's current visibility and
// the canonical visibility. Movement toward less restrictive visibility is
// never applied automatically; it is recorded here and surfaced as a
// conflict awaiting explicit approval.
type Discrepancy struct {
	Service   string `json:"service"`
	Current   Level  `json:"current"`
	Canonical Level  `json:"canonical"`
}

// SetObserved records a service's currently observed visibility level.
func (v *Visibility) SetObserved(service string, level Level) {
	if v.PerService == nil {
		v.PerService = make(map[string]Level)
	}
	v.PerService[service] = level
}

// Observed returns the recorded per-service levels, never nil.
func (v *Visibility) Observed() map[string]Level {
	if v.PerService == nil {
		return map[string]Level{}
	}
	return v.PerService
}
