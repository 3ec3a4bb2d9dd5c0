package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/appsearch/appsearch/internal/catalog"
)

// SearchHandler serves catalog searches.
type SearchHandler struct {
	searcher catalog.Searcher
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(searcher catalog.Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// Search runs one catalog search.
// GET /api/v1/search?term=
func (h *SearchHandler) Search(c echo.Context) error {
	term := strings.TrimSpace(c.QueryParam("term"))
	if term == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "term is required",
		})
	}

	items, err := h.searcher.Search(c.Request().Context(), term)
	if err != nil {
		kind := catalog.KindOf(err)
		if kind == "" {
			return err
		}
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": string(kind),
		})
	}

	if items == nil {
		items = []catalog.SearchItem{}
	}
	return c.JSON(http.StatusOK, items)
}
