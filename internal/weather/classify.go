// Package weather – rain classification.
//
// Classification is a declarative table from description substrings to rain
// intensity, so the vocabulary can be extended or tested without touching the
// selection control flow.
package weather

import "strings"

// Intensity grades a forecast description by expected rain severity.
type Intensity int

// Intensity levels, ordered from none to most severe.
const (
	IntensityNone Intensity = iota
	IntensityLight
	IntensityModerate
	IntensityHeavy
	IntensityThunderstorm
)

// String implements fmt.Stringer.
func (i Intensity) String() string {
	switch i {
	case IntensityLight:
		return "ringan"
	case IntensityModerate:
		return "sedang"
	case IntensityHeavy:
		return "lebat"
	case IntensityThunderstorm:
		return "petir"
	}
	return "tidak hujan"
}

// rainVocabulary maps known BMKG description fragments to intensities.
// Ordered most-specific first; the first matching fragment wins.
var rainVocabulary = []struct {
	fragment  string
	intensity Intensity
}{
	{"hujan petir", IntensityThunderstorm},
	{"hujan disertai petir", IntensityThunderstorm},
	{"hujan lebat", IntensityHeavy},
	{"hujan sedang", IntensityModerate},
	{"hujan ringan", IntensityLight},
	// Bare "hujan" covers local dialect variants the feed occasionally emits.
	{"hujan", IntensityModerate},
}

// Classify grades a forecast description. Matching is a case-insensitive
// substring check against the known intensity vocabulary.
func Classify(desc string) Intensity {
	low := strings.ToLower(desc)
	for _, entry := range rainVocabulary {
		if strings.Contains(low, entry.fragment) {
			return entry.intensity
		}
	}
	return IntensityNone
}

// IsRain reports whether a description predicts rain of any intensity.
func IsRain(desc string) bool { return Classify(desc) != IntensityNone }
