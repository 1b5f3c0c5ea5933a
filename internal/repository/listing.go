package repository

import (
	"strings"

	"github.com/iliyamo/farmer-objection-service/internal/model"
)

// listing describes one paginated admin view over objections. The count
// query and the page query are both derived from where(), so a search term
// always narrows both or neither.
type listing struct {
	from     string         // table expression, including any join
	columns  string         // select list of the page query
	statuses []model.Status // o.status IN (...)
	search   []string       // columns matched with LIKE %term%
	orderBy  string
}

var activeListing = listing{
	from:     "objection o",
	columns:  "o.id, o.farmer_id, o.code, o.transaction_number, o.status, o.created_at, o.updated_at",
	statuses: model.ActiveStatuses,
	search:   []string{"o.code", "o.transaction_number"},
	orderBy:  "o.created_at DESC, o.id DESC",
}

var archiveListing = listing{
	from: "objection o JOIN farmer f ON f.id = o.farmer_id",
	columns: "o.id, o.farmer_id, o.code, o.transaction_number, o.status, o.created_at, o.updated_at, " +
		"f.first_name, f.last_name",
	statuses: []model.Status{model.StatusResolved},
	search:   []string{"o.code", "f.first_name", "f.last_name", "o.transaction_number"},
	orderBy:  "o.updated_at DESC, o.id DESC",
}

// likeEscape is the escape character declared in every LIKE clause.
const likeEscape = "!"

// where builds the shared predicate and its arguments. An empty term
// (after trimming) adds no search clause.
func (l listing) where(term string) (string, []any) {
	args := make([]any, 0, len(l.statuses)+len(l.search))
	cond := "o.status IN (" + placeholders(len(l.statuses)) + ")"
	for _, s := range l.statuses {
		args = append(args, string(s))
	}

	term = strings.TrimSpace(term)
	if term != "" && len(l.search) > 0 {
		pattern := "%" + escapeLike(term) + "%"
		ors := make([]string, 0, len(l.search))
		for _, col := range l.search {
			ors = append(ors, col+" LIKE ? ESCAPE '"+likeEscape+"'")
			args = append(args, pattern)
		}
		cond += " AND (" + strings.Join(ors, " OR ") + ")"
	}
	return cond, args
}

func (l listing) countQuery(term string) (string, []any) {
	cond, args := l.where(term)
	return "SELECT COUNT(*) FROM " + l.from + " WHERE " + cond, args
}

func (l listing) pageQuery(term string, limit, offset int) (string, []any) {
	cond, args := l.where(term)
	q := "SELECT " + l.columns + " FROM " + l.from + " WHERE " + cond +
		" ORDER BY " + l.orderBy + " LIMIT ? OFFSET ?"
	return q, append(args, limit, offset)
}

// escapeLike neutralizes LIKE wildcards so the term matches literally.
func escapeLike(term string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return r.Replace(term)
}

// placeholders returns n comma-separated bind markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
