package confidence

import "strings"

// Vocabulary is a list of lowercase terms matched as substrings.
type Vocabulary []string

// Occurrences counts every non-overlapping occurrence of every term in text,
// case-insensitively.
func (v Vocabulary) Occurrences(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, term := range v {
		n += strings.Count(lower, term)
	}
	return n
}

// Matches reports whether text contains at least one term.
func (v Vocabulary) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range v {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// CountMatching returns how many entries of texts contain at least one term.
func (v Vocabulary) CountMatching(texts []string) int {
	n := 0
	for _, t := range texts {
		if v.Matches(t) {
			n++
		}
	}
	return n
}

// HedgingTerms signal epistemic uncertainty in free text.
var HedgingTerms = Vocabulary{
	"maybe", "possibly", "might", "could be", "appears to be", "seems like",
	"probably", "perhaps", "likely", "suggest", "indicate", "may be",
	"unclear", "difficult to determine",
}

// TierOneEvidence names specific, hard-to-fake visual evidence.
var TierOneEvidence = Vocabulary{
	// signage and addresses
	"street sign", "road sign", "street name", "sign", "signage", "plaque",
	"address", "house number",
	// vehicles
	"license plate", "licence plate", "number plate", "registration plate",
	// named places and businesses
	"logo", "brand", "storefront", "shop name", "business", "restaurant name",
	"landmark", "monument", "statue", "cathedral", "temple", "mosque", "tower",
	// language and symbols
	"language", "alphabet", "lettering", "written in", "flag",
	// codes and coordinates
	"coordinates", "gps", "postal code", "postcode", "zip code", "area code",
	"phone number", "dialing code",
	// transit
	"station", "metro", "subway", "tram", "bus stop",
	// distinctive architecture
	"distinctive architecture", "iconic",
}

// TierTwoEvidence names supporting but generic cues.
var TierTwoEvidence = Vocabulary{
	"architecture", "architectural", "building style", "facade", "roof",
	"road marking", "lane marking", "traffic sign", "traffic light", "bollard",
	"driving side", "left-hand traffic", "right-hand traffic",
	"vehicle", "car model", "truck", "bus",
	"chain store", "supermarket", "fuel station", "gas station",
	"power line", "utility pole", "electrical", "pylon",
	"climate", "weather", "snow", "tropical", "arid",
	"vegetation", "palm", "tree species", "forest", "crop",
	"urban planning", "street layout", "sidewalk", "pavement", "curb",
	"terrain", "mountain", "coast", "soil",
}

// GenericDescriptionTerms mark a description that says little.
var GenericDescriptionTerms = Vocabulary{
	"building", "street", "road", "tree", "sky", "generic",
}
