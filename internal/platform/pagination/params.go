// Package pagination parses pageSize/pageToken query parameters and pages in-memory result sets.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of entries returned when the client sends only a pageToken.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps the supported pageSize to prevent oversized responses.
	DefaultMaxPageSize = 100
)

// Cursor is the payload carried inside a page token.
type Cursor struct {
	Offset int `json:"offset"`
}

// Params bundles the pagination values extracted from a request.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
	// Requested is false when the client sent neither pageSize nor pageToken; such requests get the full result.
	Requested bool
}

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes the provided query values and returns the normalised Params representation.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	rawSize := strings.TrimSpace(values.Get("pageSize"))
	rawToken := strings.TrimSpace(values.Get("pageToken"))

	pageSize, err := parsePageSize(rawSize, opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: pageSize, Requested: rawSize != "" || rawToken != ""}

	if rawToken != "" {
		cursor, err := DecodeToken(rawToken)
		if err != nil {
			return Params{}, err
		}
		params.PageToken = rawToken
		params.Cursor = cursor
	}
	return params, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	maxPageSize := opts.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}

	defaultPageSize := opts.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	if defaultPageSize > maxPageSize {
		defaultPageSize = maxPageSize
	}

	if raw == "" {
		return defaultPageSize, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	if value > maxPageSize {
		value = maxPageSize
	}
	return value, nil
}

// Slice returns the page of items selected by params and the token for the following page.
// The token is empty on the last page. Unrequested pagination returns items unchanged.
func Slice[T any](items []T, params Params) ([]T, string, error) {
	if !params.Requested {
		return items, "", nil
	}
	size := params.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	start := min(params.Cursor.Offset, len(items))
	end := min(start+size, len(items))
	page := items[start:end]
	if end >= len(items) {
		return page, "", nil
	}
	next, err := EncodeToken(Cursor{Offset: end})
	if err != nil {
		return nil, "", err
	}
	return page, next, nil
}
