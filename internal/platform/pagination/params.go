package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

const (
	DefaultPageSize    = 20
	DefaultMaxPageSize = 100

	maxFilterValueLength = 128
	filterSeparator      = "=="
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidFilter    = errors.New("pagination: invalid filter")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Filter is one equality predicate from a filter=field==value parameter.
type Filter struct {
	Field string
	Value string
}

// Params holds the list parameters read from a request.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
	Filters   []Filter
}

// Values returns every filter value given for field, in request order.
func (p Params) Values(field string) []string {
	var out []string
	for _, f := range p.Filters {
		if f.Field == field {
			out = append(out, f.Value)
		}
	}
	return out
}

// Options bound what a handler accepts.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	FilterFields    []string
}

// FromRequest parses pageSize, pageToken and filter from the request query.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil || r.URL == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse reads list parameters from query values. Filters on fields outside
// opts.FilterFields are rejected rather than ignored so typos surface to the caller.
func Parse(values url.Values, opts Options) (Params, error) {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = DefaultMaxPageSize
	}

	size, err := parsePageSize(values.Get("pageSize"), opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: size, PageToken: strings.TrimSpace(values.Get("pageToken"))}
	if params.PageToken != "" {
		cursor, err := DecodeToken(params.PageToken)
		if err != nil {
			return Params{}, err
		}
		params.Cursor = cursor
	}

	for _, raw := range values["filter"] {
		filter, err := parseFilter(raw)
		if err != nil {
			return Params{}, err
		}
		if !slices.Contains(opts.FilterFields, filter.Field) {
			return Params{}, fmt.Errorf("%w: field %q is not filterable", ErrInvalidFilter, filter.Field)
		}
		params.Filters = append(params.Filters, filter)
	}
	return params, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return min(opts.DefaultPageSize, opts.MaxPageSize), nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
	}
	return min(size, opts.MaxPageSize), nil
}

func parseFilter(raw string) (Filter, error) {
	field, value, ok := strings.Cut(strings.TrimSpace(raw), filterSeparator)
	field = strings.TrimSpace(field)
	value = strings.TrimSpace(value)
	if !ok || field == "" || value == "" {
		return Filter{}, fmt.Errorf("%w: expected field==value, got %q", ErrInvalidFilter, raw)
	}
	if !isFieldName(field) {
		return Filter{}, fmt.Errorf("%w: bad field name %q", ErrInvalidFilter, field)
	}
	if len(value) > maxFilterValueLength || strings.ContainsFunc(value, unicode.IsControl) {
		return Filter{}, fmt.Errorf("%w: bad value for %q", ErrInvalidFilter, field)
	}
	return Filter{Field: field, Value: value}, nil
}

func isFieldName(field string) bool {
	for i, r := range field {
		switch {
		case unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || r == '_'):
		default:
			return false
		}
	}
	return true
}
