package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Params holds the limit and offset of a list request.
type Params struct {
	Limit  int
	Offset int
}

// InvalidParamError reports a malformed limit or offset.
type InvalidParamError struct {
	Param string
	Value string
}

func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("%s must be a non-negative integer, got %q", e.Param, e.Value)
}

func parseInt(c echo.Context, name string) (int, bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false, &InvalidParamError{Param: name, Value: raw}
	}
	return v, true, nil
}

// Parse reads limit and offset from the query string. A missing or zero
// limit means DefaultLimit; limits above MaxLimit are clamped.
func Parse(c echo.Context) (Params, error) {
	limit, _, err := parseInt(c, "limit")
	if err != nil {
		return Params{}, err
	}
	offset, _, err := parseInt(c, "offset")
	if err != nil {
		return Params{}, err
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Limit: limit, Offset: offset}, nil
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// Page is the JSON envelope of a paginated list.
type Page[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

func NewPage[T any](items []T, total int, p Params) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:   items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
}
