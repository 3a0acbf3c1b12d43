package httpx

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/larderhq/larder/internal/shared"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// ParseListFilters reads the common list query parameters with sane defaults.
func ParseListFilters(r *http.Request) shared.ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	sortBy := q.Get("sort")
	if sortBy == "" {
		sortBy = q.Get("sortBy")
	}
	sortDir := q.Get("order")
	if sortDir == "" {
		sortDir = q.Get("sortDir")
	}
	return shared.ListFilters{
		Page:    page,
		Limit:   limit,
		Search:  q.Get("search"),
		SortBy:  sortBy,
		SortDir: sortDir,
	}
}

// URLParamID parses a chi URL parameter as a positive integer id.
func URLParamID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid %s", shared.ErrValidation, name)
	}
	return id, nil
}

// IdempotencyKey returns the Idempotency-Key header, falling back to the
// body-supplied key when the header is absent.
func IdempotencyKey(r *http.Request, bodyKey string) string {
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		return key
	}
	return bodyKey
}

// QueryInt64 parses an optional integer query parameter, returning 0 when
// absent or malformed.
func QueryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if v < 0 {
		return 0
	}
	return v
}
