package service

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/iliyamo/farmer-objection-service/internal/model"
)

// PageSize is the fixed number of rows per admin listing page.
const PageSize = 10

// MaxPage is the largest page whose offset still fits in an int. Larger
// requests are clamped to it and simply come back empty.
const MaxPage = math.MaxInt / PageSize

// Page is the envelope returned by both admin listings.
type Page[T any] struct {
	Rows       []T    `json:"rows"`
	Page       int    `json:"page"`
	TotalPages int    `json:"totalPages"`
	SearchTerm string `json:"searchTerm"`
}

func newPage[T any](rows []T, page, total int, term string) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	return Page[T]{Rows: rows, Page: page, TotalPages: TotalPages(total), SearchTerm: term}
}

// ParsePage turns the raw page query parameter into a page number.
// Anything that is not a positive integer is page 1.
func ParsePage(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1 // junk, zero and negatives all mean the first page
	}
	return min(n, MaxPage)
}

// TotalPages is ceil(total / PageSize).
func TotalPages(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + PageSize - 1) / PageSize
}

// QueryEngine serves the paginated admin listings.
type QueryEngine struct {
	store ObjectionStore
}

func NewQueryEngine(store ObjectionStore) *QueryEngine {
	return &QueryEngine{store: store}
}

// ListActive lists pending and reviewed objections, newest first. The
// search term matches objection code or transaction number.
func (q *QueryEngine) ListActive(ctx context.Context, page int, searchTerm string, role Role) (Page[model.Objection], error) {
	if role != RoleAdmin {
		return Page[model.Objection]{}, ErrForbidden
	}
	page, term := normalize(page, searchTerm)
	rows, total, err := q.store.ListActive(ctx, term, PageSize, (page-1)*PageSize)
	if err != nil {
		return Page[model.Objection]{}, storageErr("list active objections", err)
	}
	return newPage(rows, page, total, term), nil
}

// ListArchive lists resolved objections with their farmer's name, most
// recently updated first. The search term also matches first and last name.
func (q *QueryEngine) ListArchive(ctx context.Context, page int, searchTerm string, role Role) (Page[model.ArchivedObjection], error) {
	if role != RoleAdmin {
		return Page[model.ArchivedObjection]{}, ErrForbidden
	}
	page, term := normalize(page, searchTerm)
	rows, total, err := q.store.ListArchive(ctx, term, PageSize, (page-1)*PageSize)
	if err != nil {
		return Page[model.ArchivedObjection]{}, storageErr("list archived objections", err)
	}
	return newPage(rows, page, total, term), nil
}

func normalize(page int, term string) (int, string) {
	// clamp both ends so (page-1)*PageSize never overflows into a
	// negative OFFSET
	page = max(1, min(page, MaxPage))
	return page, strings.TrimSpace(term)
}
