package sortopt

// Sort is the result ordering requested by a caller.
type Sort string

// Sort option constants.
const (
	// Relevance orders by engine score (default).
	Relevance  Sort = "relevance"
	Newest     Sort = "newest"
	Name       Sort = "name"
	Popularity Sort = "popularity"
	Quality    Sort = "quality"
)

// IsValid checks if the sort is one of the supported values.
func (s Sort) IsValid() bool {
	switch s {
	case Relevance, Newest, Name, Popularity, Quality:
		return true
	}
	return false
}

// Field returns the document field backing a non-relevance sort and whether it
// sorts descending. Relevance returns an empty field.
func (s Sort) Field() (field string, desc bool) {
	switch s {
	case Newest:
		return "updatedAt", true
	case Name:
		return "name", false
	case Popularity:
		return "popularity", true
	case Quality:
		return "qualityScore", true
	}
	return "", false
}
