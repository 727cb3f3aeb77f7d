package model

// Movie is the subset of catalog metadata the application stores with a list item.
type Movie struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"posterPath"`
	VoteAverage float64 `json:"voteAverage"`
}
