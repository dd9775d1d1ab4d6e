package common

import (
	"net/http"
	"strconv"
)

const maxPerPage = 100

// PageRequest is the parsed ?page=&limit= pair. Page is 1-based.
type PageRequest struct {
	Page    int
	PerPage int
}

// Page is the pagination block of a list response. TotalItems is omitted
// for lists that are not counted.
type Page struct {
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	TotalItems *int64 `json:"total_items,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// ParsePage reads page and limit from the query, capping limit at 100.
func ParsePage(r *http.Request, defaultPerPage int) PageRequest {
	q := r.URL.Query()
	req := PageRequest{Page: 1, PerPage: defaultPerPage}
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		req.Page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		req.PerPage = l
	}
	req.PerPage = min(req.PerPage, maxPerPage)
	return req
}

// Offset is the number of rows before this page.
func (p PageRequest) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// Counted describes this page of a list holding total rows.
func (p PageRequest) Counted(total int64) Page {
	return Page{Page: p.Page, PerPage: p.PerPage, TotalItems: &total, HasMore: int64(p.Offset()+p.PerPage) < total}
}

// TrimPage takes rows fetched with a limit of PerPage+1 and returns the page
// itself plus whether another page follows.
func TrimPage[T any](p PageRequest, rows []T) ([]T, Page) {
	page := Page{Page: p.Page, PerPage: p.PerPage}
	if len(rows) > p.PerPage {
		rows = rows[:p.PerPage]
		page.HasMore = true
	}
	return rows, page
}
