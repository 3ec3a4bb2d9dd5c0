package catalog

// SearchItem is one validated catalog entry.
type SearchItem struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Rating      *float64 `json:"rating,omitempty"` // nil when the catalog has no rating
	IconURL     string   `json:"iconUrl"`
	PreviewURLs []string `json:"previewUrls"`

	Price        string `json:"price,omitempty"`
	Description  string `json:"description,omitempty"`
	ReleaseNotes string `json:"releaseNotes,omitempty"`
	Publisher    string `json:"publisher,omitempty"`
	Collection   string `json:"collection,omitempty"`
}

// HasRating reports whether the item carries a rating. A zero rating is a rating.
func (i SearchItem) HasRating() bool {
	return i.Rating != nil
}

// Result is the outcome of one load: either Items or Err is meaningful.
type Result struct {
	Items []SearchItem
	Err   error
}

// Success wraps items in a successful Result.
func Success(items []SearchItem) Result {
	return Result{Items: items}
}

// Failure wraps err in a failed Result.
func Failure(err error) Result {
	return Result{Err: err}
}

// OK reports whether the load succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}
