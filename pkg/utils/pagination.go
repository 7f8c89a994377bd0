package utils

const maxPageLimit = 100

// Page is a normalized page/limit pair taken from query parameters
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// NewPage clamps page to >= 1 and limit to [1, 100], using defaultLimit when limit is unset.
func NewPage(page, limit, defaultLimit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return Page{Page: page, Limit: limit}
}

// Offset is the number of rows to skip
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// PageMeta is rendered next to paginated results
type PageMeta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// Meta builds pagination metadata for total rows
func (p Page) Meta(total int64) PageMeta {
	pages := int64(0)
	if total > 0 {
		pages = (total + int64(p.Limit) - 1) / int64(p.Limit)
	}
	return PageMeta{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}
