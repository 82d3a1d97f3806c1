package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Page  int
	Limit int
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page <= 0 {
		page = 1
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{Page: page, Limit: limit}
}

// Offset returns the row offset for the current page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Response wraps a paginated API response.
type Response struct {
	Data       interface{} `json:"data"`
	Pagination Meta        `json:"pagination"`
}

// Meta describes the page window of a Response.
type Meta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	pages := total / p.Limit
	if total%p.Limit != 0 {
		pages++
	}
	return &Response{
		Data: data,
		Pagination: Meta{
			Page:  p.Page,
			Limit: p.Limit,
			Total: total,
			Pages: pages,
		},
	}
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.Limit < total
}
