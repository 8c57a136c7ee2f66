package recommendation

// Recommendation is derived from a whole conversation and never persisted.
// Each list is meant to carry five entries but the producing model does not
// guarantee it, so consumers must accept any length.
type Recommendation struct {
	EmotionSummary string   `json:"emotion_summary"`
	Music          []string `json:"music_recommendations"`
	Movies         []string `json:"movie_recommendations"`
	Books          []string `json:"book_recommendations"`
	Activities     []string `json:"activity_suggestions"`
}

// Empty reports whether the model produced nothing usable.
func (r Recommendation) Empty() bool {
	return r.EmotionSummary == "" && len(r.Music) == 0 && len(r.Movies) == 0 &&
		len(r.Books) == 0 && len(r.Activities) == 0
}
