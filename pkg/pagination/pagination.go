// Package pagination provides skip/limit windows for list endpoints.
package pagination

// Window bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Window is an offset/limit pair.
type Window struct {
	Skip  int
	Limit int
}

// New creates a Window with defaults applied and the limit clamped.
func New(skip, limit int) Window {
	if skip < 0 {
		skip = 0
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Window{Skip: skip, Limit: limit}
}

// Offset returns the offset for queries.
func (w Window) Offset() int {
	return w.Skip
}

// Next returns the window following w.
func (w Window) Next() Window {
	return Window{Skip: w.Skip + w.Limit, Limit: w.Limit}
}

// Result is one page of items.
type Result[T any] struct {
	Data    []T  `json:"data"`
	Skip    int  `json:"skip"`
	Limit   int  `json:"limit"`
	Count   int  `json:"count"`
	HasMore bool `json:"has_more"`
}

// NewResult wraps data fetched with w. A full page implies more may follow.
func NewResult[T any](data []T, w Window) Result[T] {
	if data == nil {
		data = make([]T, 0)
	}
	return Result[T]{
		Data:    data,
		Skip:    w.Skip,
		Limit:   w.Limit,
		Count:   len(data),
		HasMore: len(data) >= w.Limit,
	}
}
