package event

import "strings"

var categoryKeywords = []struct {
	name     string
	keywords []string
}{
	{"cycling", []string{"bike", "cycling", "cycle", "ride", "pedal", "cyclist", "bicycle"}},
	{"outdoor", []string{"hike", "trail", "park", "outdoor", "nature", "kayak", "run", "walk", "camping", "fishing"}},
	{"music", []string{"concert", "music", "band", "show", "live music", "performance", "symphony", "jazz", "rock", "hip hop", "dj", "singer", "festival"}},
	{"food", []string{"food", "dining", "restaurant", "brunch", "dinner", "cooking", "culinary", "wine", "beer", "tasting"}},
	{"arts", []string{"art", "museum", "gallery", "exhibition", "theater", "theatre", "play", "comedy", "film", "movie"}},
	{"family", []string{"family", "kids", "children", "playground"}},
	{"sports", []string{"sports", "game", "match", "basketball", "football", "baseball", "soccer", "hockey"}},
}

// Categorize derives category tags from free text.
func Categorize(title, description string) []string {
	text := strings.ToLower(title + " " + description)
	var categories []string
	for _, c := range categoryKeywords {
		if containsAny(text, c.keywords) {
			categories = append(categories, c.name)
		}
	}
	return categories
}

// Weights applied by RelevanceScore.
const (
	WeightCycling  = 10
	WeightCouple   = 9
	WeightMusic    = 8
	WeightDog      = 7
	WeightOutdoor  = 5
	PenaltyKidOnly = -5
)

var (
	cyclingWords = []string{"cycling", "bike", "biking", "bicycle", "mtb", "ride", "critical mass"}
	outdoorWords = []string{"outdoor", "park", "hike", "trail", "run", "nature", "bayou", "memorial park", "kayak", "paddle"}
	musicWords   = []string{"music", "concert", "band", "live music", "dj", "show", "performance", "venue"}
	dogWords     = []string{"dog", "dog-friendly", "pet", "pet-friendly", "pup", "canine", "bark", "dogs welcome"}
	coupleWords  = []string{"wine", "brewery", "beer", "cocktail", "tasting", "comedy", "trivia", "art walk", "gallery", "date night", "romantic"}
	kidWords     = []string{"kids", "children", "family fun", "toddler", "playground", "bounce house", "story time", "baby"}
)

// Match is one scoring rule that fired for an event.
type Match struct {
	Reason string
	Weight int
}

// ScoreMatches returns the scoring rules that apply to e.
func ScoreMatches(e Event) []Match {
	text := strings.ToLower(e.Title + " " + e.Description)
	var matches []Match
	if containsAny(text, cyclingWords) {
		matches = append(matches, Match{"High priority: cycling event", WeightCycling})
	}
	if containsAny(text, coupleWords) {
		matches = append(matches, Match{"High priority: couple-friendly activity", WeightCouple})
	}
	if containsAny(text, musicWords) {
		matches = append(matches, Match{"Music/concert event", WeightMusic})
	}
	if containsAny(text, dogWords) {
		matches = append(matches, Match{"Dog-friendly event", WeightDog})
	}
	if containsAny(text, outdoorWords) {
		matches = append(matches, Match{"Outdoor activity", WeightOutdoor})
	}
	if containsAny(text, kidWords) {
		matches = append(matches, Match{"Kid-focused event (deprioritized)", PenaltyKidOnly})
	}
	return matches
}

// RelevanceScore sums the weights of every rule matching e.
func RelevanceScore(e Event) int {
	score := 0
	for _, m := range ScoreMatches(e) {
		score += m.Weight
	}
	return score
}

// Interest is a user-defined topic that boosts matching events.
type Interest struct {
	Title    string
	Keywords []string
	Weight   int
}

// InterestBoost adds the weight of every interest whose title or keywords
// appear in the event text.
func InterestBoost(e Event, interests []Interest) int {
	if len(interests) == 0 {
		return 0
	}
	text := strings.ToLower(e.Title + " " + e.Description + " " + strings.Join(e.Categories, " "))
	boost := 0
	for _, in := range interests {
		words := append([]string{in.Title}, in.Keywords...)
		if containsAny(text, lowerAll(words)) {
			boost += in.Weight
		}
	}
	return boost
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, strings.ToLower(strings.TrimSpace(w)))
	}
	return out
}
