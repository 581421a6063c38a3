package photos

// Quality is the quality tier of a per-service photo copy.
type Quality string

// Quality tiers, best first.
const (
	QualityOriginal Quality = "original"
	QualityHigh     Quality = "high"
	QualityMedium   Quality = "medium"
	QualityLow      Quality = "low"
)

// qualityRank orders tiers for canonical-source promotion.
var qualityRank = map[Quality]int{
	QualityOriginal: 3,
	QualityHigh:     2,
	QualityMedium:   1,
	QualityLow:      0,
}

// String returns the string representation of a quality tier.
func (q Quality) String() string {
	return string(q)
}

// Valid reports whether q is a known quality tier.
func (q Quality) Valid() bool {
	_, ok := qualityRank[q]
	return ok
}

// Better reports whether q is a strictly higher quality tier than other.
func (q Quality) Better(other Quality) bool {
	return qualityRank[q] > qualityRank[other]
}
