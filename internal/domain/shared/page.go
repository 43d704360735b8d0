package shared

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageQuery selects one page of a listing. SortDir is "asc" or "desc".
type PageQuery struct {
	Number  int
	Size    int
	SortBy  string
	SortDir string
	Search  string
}

// NewPageQuery returns the given page, newest rows first. A non-positive
// number means the first page; size falls back to DefaultPageSize and is
// capped at MaxPageSize.
func NewPageQuery(number, size int) PageQuery {
	if number < 1 {
		number = 1
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return PageQuery{Number: number, Size: size, SortBy: "created_at", SortDir: "desc"}
}

// Offset is the number of rows that precede the page
func (q PageQuery) Offset() int {
	if q.Number < 1 {
		return 0
	}
	return (q.Number - 1) * q.Size
}

// Page is one slice of a listing plus the size of the whole listing
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Number     int   `json:"page"`
	Size       int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPage wraps the items fetched for q
func NewPage[T any](items []T, total int64, q PageQuery) Page[T] {
	p := Page[T]{Items: items, Total: total, Number: q.Number, Size: q.Size}
	if q.Size > 0 {
		p.TotalPages = int((total + int64(q.Size) - 1) / int64(q.Size))
	}
	return p
}
