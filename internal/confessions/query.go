package confessions

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const (
	filterAll       = "all"
	defaultPageSize = 50
	maxPageSize     = 200
)

// Surface identifies which audience a listing is built for.
type Surface int

const (
	// SurfacePublic only ever exposes approved confessions.
	SurfacePublic Surface = iota
	// SurfaceModeration exposes every status to moderators.
	SurfaceModeration
)

// SortOrder selects the listing order.
type SortOrder string

const (
	SortNewest    SortOrder = "newest"
	SortOldest    SortOrder = "oldest"
	SortMostLiked SortOrder = "mostLiked"
)

// ParseSortOrder maps raw input onto a SortOrder. Blank input defaults to SortNewest.
func ParseSortOrder(rawInput string) (SortOrder, error) {
	trimmed := strings.TrimSpace(rawInput)
	switch {
	case trimmed == "":
		return SortNewest, nil
	case strings.EqualFold(trimmed, string(SortNewest)):
		return SortNewest, nil
	case strings.EqualFold(trimmed, string(SortOldest)):
		return SortOldest, nil
	case strings.EqualFold(trimmed, string(SortMostLiked)), strings.EqualFold(trimmed, "most_liked"):
		return SortMostLiked, nil
	default:
		return "", fmt.Errorf("%w: unknown sort order %q", ErrValidation, rawInput)
	}
}

// Criteria is the raw, independent set of listing filters.
type Criteria struct {
	Status   string
	Category string
	SortBy   string
	Search   string
	Limit    int
	Offset   int
	Surface  Surface
}

// Query is a validated listing plan produced by ComposeQuery.
type Query struct {
	status   *Status
	category *Category
	order    SortOrder
	search   string
	limit    int
	offset   int
	surface  Surface
}

// ComposeQuery validates the criteria and combines the filter axes into a Query.
func ComposeQuery(criteria Criteria) (Query, error) {
	query := Query{surface: criteria.Surface}

	if raw := strings.TrimSpace(criteria.Status); raw != "" && !strings.EqualFold(raw, filterAll) {
		status, err := ParseStatus(raw)
		if err != nil {
			return Query{}, err
		}
		query.status = &status
	}

	if raw := strings.TrimSpace(criteria.Category); raw != "" && !strings.EqualFold(raw, filterAll) {
		category, err := ParseCategory(raw)
		if err != nil {
			return Query{}, err
		}
		query.category = &category
	}

	order, err := ParseSortOrder(criteria.SortBy)
	if err != nil {
		return Query{}, err
	}
	query.order = order

	switch {
	case criteria.Limit < 0:
		return Query{}, fmt.Errorf("%w: limit must not be negative", ErrValidation)
	case criteria.Limit == 0:
		query.limit = defaultPageSize
	case criteria.Limit > maxPageSize:
		query.limit = maxPageSize
	default:
		query.limit = criteria.Limit
	}
	if criteria.Offset < 0 {
		return Query{}, fmt.Errorf("%w: offset must not be negative", ErrValidation)
	}
	query.offset = criteria.Offset
	query.search = strings.TrimSpace(criteria.Search)

	return query, nil
}

// Status returns the requested status filter, if any.
func (q Query) Status() (Status, bool) {
	if q.status == nil {
		return "", false
	}
	return *q.status, true
}

// Category returns the requested category filter, if any.
func (q Query) Category() (Category, bool) {
	if q.category == nil {
		return "", false
	}
	return *q.category, true
}

// Order returns the resolved sort order.
func (q Query) Order() SortOrder {
	return q.order
}

// Limit returns the resolved page size.
func (q Query) Limit() int {
	return q.limit
}

// Offset returns the resolved page offset.
func (q Query) Offset() int {
	return q.offset
}

// Matches reports whether a confession passes every filter of the query.
func (q Query) Matches(confession Confession) bool {
	if q.surface == SurfacePublic && confession.Status != StatusApproved {
		return false
	}
	if q.status != nil && confession.Status != *q.status {
		return false
	}
	if q.category != nil && confession.Category != *q.category {
		return false
	}
	if q.search != "" && !strings.Contains(strings.ToLower(confession.Content), strings.ToLower(q.search)) {
		return false
	}
	return true
}

// Scope applies the query to a gorm statement over the confessions table.
func (q Query) Scope(db *gorm.DB) *gorm.DB {
	if q.surface == SurfacePublic {
		db = db.Where("status = ?", StatusApproved)
	}
	if q.status != nil {
		db = db.Where("status = ?", *q.status)
	}
	if q.category != nil {
		db = db.Where("category = ?", *q.category)
	}
	if q.search != "" {
		pattern := "%" + escapeLikePattern(strings.ToLower(q.search)) + "%"
		db = db.Where("LOWER(content) LIKE ? ESCAPE '\\'", pattern)
	}

	switch q.order {
	case SortOldest:
		db = db.Order("created_at ASC").Order("id ASC")
	case SortMostLiked:
		db = db.Order("reaction_like DESC").Order("created_at DESC").Order("id DESC")
	default:
		db = db.Order("created_at DESC").Order("id DESC")
	}

	return db.Limit(q.limit).Offset(q.offset)
}

func escapeLikePattern(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
