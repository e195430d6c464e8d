package pagination

import (
	"fmt"
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Page     int
	PageSize int
}

// FromContext extracts page/size parameters from the echo context.
func FromContext(c echo.Context) Params {
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	// pages past the last representable offset are all empty
	if page > maxPage(size) {
		page = maxPage(size)
	}

	return Params{Page: page, PageSize: size}
}

func maxPage(size int) int {
	return math.MaxInt/size + 1
}

// Offset returns the number of rows preceding the current page. It
// saturates at math.MaxInt instead of overflowing.
func (p Params) Offset() int {
	if p.Page <= 1 || p.PageSize <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// Limit is the page size, named for SQL callers.
func (p Params) Limit() int {
	return p.PageSize
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit(), p.Offset())
}

// Window returns the [start, end) slice bounds of the page within total rows.
func (p Params) Window(total int) (int, int) {
	start := p.Offset()
	if start > total {
		start = total
	}
	end := total
	if p.PageSize > 0 && p.PageSize < total-start {
		end = start + p.PageSize
	}
	return start, end
}

// TotalPages returns the number of pages needed for total rows.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Page is one window of rows plus the metadata a browser needs to render
// pagination controls.
type Page[T any] struct {
	Rows       []T `json:"rows"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
}

// NewPage builds a page for rows out of total matching items.
func NewPage[T any](rows []T, total int, p Params) *Page[T] {
	if rows == nil || total == 0 {
		rows = []T{}
	}
	if len(rows) > p.PageSize {
		rows = rows[:p.PageSize]
	}
	return &Page[T]{
		Rows:       rows,
		TotalItems: total,
		TotalPages: TotalPages(total, p.PageSize),
		Page:       p.Page,
		PageSize:   p.PageSize,
	}
}

// Validate checks the structural invariants of a page, typically one decoded
// from a remote response.
func (pg *Page[T]) Validate() error {
	if pg.Page < 1 {
		return fmt.Errorf("page must be >= 1, got %d", pg.Page)
	}
	if pg.PageSize < 1 {
		return fmt.Errorf("pageSize must be >= 1, got %d", pg.PageSize)
	}
	if pg.TotalItems < 0 {
		return fmt.Errorf("totalItems must be >= 0, got %d", pg.TotalItems)
	}
	if len(pg.Rows) > pg.PageSize {
		return fmt.Errorf("page holds %d rows, more than pageSize %d", len(pg.Rows), pg.PageSize)
	}
	if pg.TotalItems == 0 && (len(pg.Rows) != 0 || pg.TotalPages != 0) {
		return fmt.Errorf("empty result must have no rows and zero pages")
	}
	if want := TotalPages(pg.TotalItems, pg.PageSize); pg.TotalPages != want {
		return fmt.Errorf("totalPages %d does not match %d items at size %d", pg.TotalPages, pg.TotalItems, pg.PageSize)
	}
	return nil
}

// HasNext returns true if there are more pages after this one.
func (pg *Page[T]) HasNext() bool {
	return pg.Page < pg.TotalPages
}

// HasPrevious returns true if this is not the first page.
func (pg *Page[T]) HasPrevious() bool {
	return pg.Page > 1
}
