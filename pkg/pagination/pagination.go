// Package pagination parses page/per_page query parameters and shapes
// paginated list responses.
package pagination

import (
	"math"
	"net/http"
	"strconv"

	apperrors "github.com/utafrali/identity/pkg/errors"
	"github.com/utafrali/identity/pkg/validator"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params is a validated page request.
type Params struct {
	Page    int `json:"page" validate:"min=1"`
	PerPage int `json:"per_page" validate:"min=1,max=100"`
	Offset  int `json:"-"`
}

// FromRequest reads page and per_page from the query string. Absent values
// take the defaults; present values must be integers in range.
func FromRequest(r *http.Request) (Params, error) {
	q := r.URL.Query()
	p := Params{Page: 1, PerPage: DefaultPerPage}

	var err error
	if p.Page, err = intParam(q.Get("page"), p.Page, "page"); err != nil {
		return Params{}, err
	}
	if p.PerPage, err = intParam(q.Get("per_page"), p.PerPage, "per_page"); err != nil {
		return Params{}, err
	}
	if err := validator.Validate(p); err != nil {
		return Params{}, err
	}
	// page*per_page must fit in an int so the offset stays non-negative.
	if p.Page > math.MaxInt/p.PerPage {
		return Params{}, apperrors.New(http.StatusBadRequest, "INVALID_PARAMETER",
			"page is out of range", apperrors.ErrInvalidInput)
	}

	p.Offset = (p.Page - 1) * p.PerPage
	return p, nil
}

func intParam(raw string, def int, name string) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.New(http.StatusBadRequest, "INVALID_PARAMETER",
			name+" must be an integer", apperrors.ErrInvalidInput)
	}
	return v, nil
}

// Result is the body of a paginated list response.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult builds a Result. A nil slice is emitted as [].
func NewResult[T any](data []T, totalCount int, p Params) Result[T] {
	if data == nil {
		data = []T{}
	}
	pages := 0
	if p.PerPage > 0 {
		pages = (totalCount + p.PerPage - 1) / p.PerPage
	}
	return Result[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: pages,
		HasNext:    p.Page < pages,
		HasPrev:    p.Page > 1,
	}
}
