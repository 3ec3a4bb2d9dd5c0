package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// searchResponse is the top-level catalog payload.
type searchResponse struct {
	Results *[]itemDTO `json:"results"`
}

// itemDTO is one raw result. Pointers distinguish missing from zero.
type itemDTO struct {
	TrackID           *int      `json:"trackId"`
	TrackName         *string   `json:"trackName"`
	PrimaryGenreName  *string   `json:"primaryGenreName"`
	AverageUserRating *float64  `json:"averageUserRating"`
	ScreenshotURLs    *[]string `json:"screenshotUrls"`
	ArtworkURL100     *string   `json:"artworkUrl100"`
	FormattedPrice    *string   `json:"formattedPrice"`
	Description       *string   `json:"description"`
	ReleaseNotes      *string   `json:"releaseNotes"`
	ArtistName        *string   `json:"artistName"`
	CollectionName    *string   `json:"collectionName"`
}

// MapItems validates a catalog response and converts it into SearchItems.
// Mapping is all-or-nothing: any invalid element fails the whole response
// with ErrInvalidData.
func MapItems(data []byte, statusCode int) ([]SearchItem, error) {
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrInvalidData, statusCode)
	}

	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("%w: missing results", ErrInvalidData)
	}

	raw := *resp.Results
	items := make([]SearchItem, len(raw))
	seen := make(map[int]int, len(raw))
	for i, dto := range raw {
		item, err := dto.toItem()
		if err != nil {
			return nil, fmt.Errorf("%w: results[%d]: %v", ErrInvalidData, i, err)
		}
		// IDs key rows downstream, so they must be unique within a result set.
		if first, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: results[%d]: trackId %d duplicates results[%d]", ErrInvalidData, i, item.ID, first)
		}
		seen[item.ID] = i
		items[i] = item
	}

	return items, nil
}

func (d itemDTO) toItem() (SearchItem, error) {
	switch {
	case d.TrackID == nil:
		return SearchItem{}, fmt.Errorf("missing trackId")
	case d.TrackName == nil:
		return SearchItem{}, fmt.Errorf("missing trackName")
	case d.PrimaryGenreName == nil:
		return SearchItem{}, fmt.Errorf("missing primaryGenreName")
	case d.ScreenshotURLs == nil:
		return SearchItem{}, fmt.Errorf("missing screenshotUrls")
	case d.ArtworkURL100 == nil:
		return SearchItem{}, fmt.Errorf("missing artworkUrl100")
	}

	if !isValidURL(*d.ArtworkURL100) {
		return SearchItem{}, fmt.Errorf("malformed artworkUrl100 %q", *d.ArtworkURL100)
	}

	previews := make([]string, len(*d.ScreenshotURLs))
	for i, u := range *d.ScreenshotURLs {
		if !isValidURL(u) {
			return SearchItem{}, fmt.Errorf("malformed screenshotUrls[%d] %q", i, u)
		}
		previews[i] = u
	}

	return SearchItem{
		ID:           *d.TrackID,
		Name:         *d.TrackName,
		Category:     *d.PrimaryGenreName,
		Rating:       d.AverageUserRating,
		IconURL:      *d.ArtworkURL100,
		PreviewURLs:  previews,
		Price:        deref(d.FormattedPrice),
		Description:  deref(d.Description),
		ReleaseNotes: deref(d.ReleaseNotes),
		Publisher:    deref(d.ArtistName),
		Collection:   deref(d.CollectionName),
	}, nil
}

// isValidURL accepts absolute URLs with a scheme and host and no whitespace.
func isValidURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
