package pagination

const (
	// DefaultLimit is the page size when a limit is not provided.
	DefaultLimit = 20
	// MaxLimit caps how many rows any page can request.
	MaxLimit = 100
)

// Params holds page/limit inputs from controllers or services. Pages start at 1.
type Params struct {
	Page  int
	Limit int
}

// Normalize applies the default page and limit and caps the limit.
func Normalize(p Params) Params {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	return p
}

// Offset is the number of rows skipped before the page starts.
func (p Params) Offset() int {
	n := Normalize(p)
	return (n.Page - 1) * n.Limit
}

// Meta is returned alongside every page.
type Meta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

func NewMeta(p Params, total int64) Meta {
	n := Normalize(p)
	return Meta{Page: n.Page, Limit: n.Limit, Total: total}
}
