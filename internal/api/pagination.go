package api

import (
	"net/http"
	"strconv"
)

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// PageMeta describes the slice of a list returned in a response.
type PageMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// ParsePagination reads page and limit from the query. A missing or invalid
// limit gets defaultLimit; limits above maxLimit are capped.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	return PaginationParams{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// Paginate returns the page of items selected by p and its metadata. Pages
// past the end are empty.
func Paginate[T any](items []T, p PaginationParams) ([]T, PageMeta) {
	meta := PageMeta{Page: p.Page, Limit: p.Limit, Total: len(items)}
	if p.Offset >= len(items) {
		return []T{}, meta
	}
	end := min(p.Offset+p.Limit, len(items))
	meta.HasMore = end < len(items)
	return items[p.Offset:end], meta
}
