// Package listutil parses list query parameters shared by the collection
// endpoints.
package listutil

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// DefaultLimit is used when neither limit nor per_page is given.
const DefaultLimit = 50

// MaxLimit caps a single page.
const MaxLimit = 200

// PageParams is a limit/offset window.
type PageParams struct {
	Limit  int
	Offset int
}

// SortParams carries a sort column and direction.
type SortParams struct {
	Sort string // empty means the store's default order
	Dir  string // "asc" or "desc"
}

// FilterParams carries free-text search and exact-match filters.
type FilterParams struct {
	Search  string
	Filters map[string]string
}

// ListParams combines all list parameters.
type ListParams struct {
	PageParams
	SortParams
	FilterParams
}

// Get returns a named filter or "".
func (f FilterParams) Get(key string) string {
	return f.Filters[key]
}

// ParsePageParams reads limit and offset. The page/per_page pair is accepted
// as an alternative when limit is absent.
// POST: 1 <= Limit <= MaxLimit, Offset >= 0
func ParsePageParams(q url.Values) PageParams {
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if q.Get("limit") == "" && q.Get("per_page") != "" {
		limit, _ = strconv.Atoi(q.Get("per_page"))
		page, _ := strconv.Atoi(q.Get("page"))
		if page > 1 && limit > 0 {
			offset = (page - 1) * min(limit, MaxLimit)
		}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return PageParams{Limit: min(limit, MaxLimit), Offset: max(offset, 0)}
}

// ParseSortParams reads sort and dir. Columns outside allowed are dropped.
// POST: Dir is always "asc" or "desc"
func ParseSortParams(q url.Values, allowed []string) SortParams {
	sort := q.Get("sort")
	if !slices.Contains(allowed, sort) {
		sort = ""
	}
	dir := strings.ToLower(q.Get("dir"))
	if dir != "desc" {
		dir = "asc"
	}
	return SortParams{Sort: sort, Dir: dir}
}

// ParseFilterParams reads search (or q) and the named filters.
// POST: Filters holds only keys from filterKeys with non-empty values
func ParseFilterParams(q url.Values, filterKeys []string) FilterParams {
	search := q.Get("search")
	if search == "" {
		search = q.Get("q")
	}
	fp := FilterParams{Search: strings.TrimSpace(search), Filters: make(map[string]string)}
	for _, key := range filterKeys {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			fp.Filters[key] = v
		}
	}
	return fp
}

// ParseListParams parses all list parameters.
func ParseListParams(q url.Values, allowedSort, filterKeys []string) ListParams {
	return ListParams{
		PageParams:   ParsePageParams(q),
		SortParams:   ParseSortParams(q, allowedSort),
		FilterParams: ParseFilterParams(q, filterKeys),
	}
}

// PageInfo describes where a page sits in the full result.
type PageInfo struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// NewPageInfo builds PageInfo for a returned page.
func NewPageInfo(limit, offset int, total int64) PageInfo {
	return PageInfo{Limit: limit, Offset: offset, Total: total}
}

// HasMore reports whether rows exist past this page.
func (p PageInfo) HasMore() bool {
	return int64(p.Offset+p.Limit) < p.Total
}

// NextOffset is the offset of the following page, or -1 on the last page.
func (p PageInfo) NextOffset() int {
	if !p.HasMore() {
		return -1
	}
	return p.Offset + p.Limit
}
