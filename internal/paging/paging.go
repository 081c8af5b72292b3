// Package paging implements skip/limit page state and its transitions.
package paging

import "encoding/json"

// State is the page position of one paginated resource.
type State struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// New returns the first page with the given page size.
func New(limit int) State {
	if limit < 1 {
		limit = 1
	}
	return State{Page: 1, Limit: limit}
}

// Skip is the offset sent to the backend.
func (s State) Skip() int {
	if s.Page < 1 {
		return 0
	}
	return (s.Page - 1) * s.Limit
}

// CanPrev reports whether a previous page exists.
func (s State) CanPrev() bool {
	return s.Page > 1
}

// CanNext reports whether the next page holds any records.
func (s State) CanNext() bool {
	return s.Page*s.Limit < s.Total
}

// Prev returns the previous page number, never below 1.
func (s State) Prev() int {
	return max(s.Page-1, 1)
}

// Next returns the next page number.
func (s State) Next() int {
	return s.Page + 1
}

// PageCount is ceil(total/limit). It is 0 when there are no records, so the
// dashboard shows "Page 1 of 0" for an empty result.
func (s State) PageCount() int {
	if s.Limit <= 0 || s.Total <= 0 {
		return 0
	}
	return (s.Total + s.Limit - 1) / s.Limit
}

// WithPage returns the state moved to page, clamped to 1.
func (s State) WithPage(page int) State {
	s.Page = max(page, 1)
	return s
}

// Reset starts a new query: page 1 with the same page size and no known
// total.
func (s State) Reset() State {
	return State{Page: 1, Limit: s.Limit}
}

// MarshalJSON adds the derived page count and navigation flags so renderers
// never recompute them.
func (s State) MarshalJSON() ([]byte, error) {
	type plain State
	return json.Marshal(struct {
		plain
		PageCount int  `json:"page_count"`
		CanPrev   bool `json:"can_prev"`
		CanNext   bool `json:"can_next"`
	}{plain(s), s.PageCount(), s.CanPrev(), s.CanNext()})
}
